package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// Completer is the subset of Client used by the generators.
type Completer interface {
	Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// DIGEST GENERATOR
// ══════════════════════════════════════════════════════════════════════════════

const digestSystemPrompt = `You summarise knowledge-transfer material for new team members.
The material is either a transcript of a conversation with a project member or a list of their commits.
Write a succinct, well-structured digest with these sections:
purpose and context, architecture and main components, where things live in the code,
challenges and pitfalls, and anything else a newcomer should keep in mind.
Do not omit important details. Answer with the digest text only.`

// DigestGenerator produces digests through chat completions.
type DigestGenerator struct {
	llm Completer
}

// NewDigestGenerator creates a new DigestGenerator.
func NewDigestGenerator(llm Completer) *DigestGenerator {
	return &DigestGenerator{llm: llm}
}

// Digest returns the digest of the material. Empty model output is an error.
func (g *DigestGenerator) Digest(ctx context.Context, material []string) (string, error) {
	var b strings.Builder
	for _, m := range material {
		if strings.TrimSpace(m) == "" {
			continue
		}
		b.WriteString(m)
		b.WriteString("\n")
	}

	out, err := g.llm.Complete(ctx, []Message{
		{Role: "system", Content: digestSystemPrompt},
		{Role: "user", Content: b.String()},
	}, false)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", shared.WrapError("llm", "Digest", shared.ErrDigestUnavailable, "model returned an empty digest", nil)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PATH GENERATOR
// ══════════════════════════════════════════════════════════════════════════════

const pathSystemPrompt = `You design personalised learning paths for engineers joining a project.
For every topic, estimate study hours from the user's initial score: a high score needs fewer hours.
Split subjects into topics of about two hours each. Give each subject an assessment with a passing
threshold between 0 and 100 and links to official, freely available documentation.
Respond with one JSON object of this shape and nothing else:
{"path_name": "...", "total_estimated_hours": 0,
 "subjects": [{"subject_name": "...", "estimated_hours": 0,
   "assessment": {"threshold": 70},
   "topics": [{"topic_name": "..."}],
   "official_docs": ["https://..."]}]}`

// PathGenerator produces untrusted path documents through chat completions.
type PathGenerator struct {
	llm Completer
}

// NewPathGenerator creates a new PathGenerator.
func NewPathGenerator(llm Completer) *PathGenerator {
	return &PathGenerator{llm: llm}
}

// Generate asks for a path and decodes the first JSON object in the answer.
// The result is not validated here.
func (g *PathGenerator) Generate(ctx context.Context, topics []string, scores map[string]float64) (learning.PathShape, error) {
	out, err := g.llm.Complete(ctx, []Message{
		{Role: "system", Content: pathSystemPrompt},
		{Role: "user", Content: "Topics and initial quiz scores: " + topicScores(topics, scores)},
	}, true)
	if err != nil {
		return nil, err
	}
	return ExtractJSONObject(out)
}

func topicScores(topics []string, scores map[string]float64) string {
	parts := make([]string, 0, len(topics))
	for _, t := range topics {
		if s, ok := scores[t]; ok {
			parts = append(parts, fmt.Sprintf("%s: %g", t, s))
		} else {
			parts = append(parts, t+": N/A")
		}
	}
	// Scores for topics outside the list still inform the estimate.
	var extra []string
	for t, s := range scores {
		if !contains(topics, t) {
			extra = append(extra, fmt.Sprintf("%s: %g", t, s))
		}
	}
	sort.Strings(extra)
	return strings.Join(append(parts, extra...), "; ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ GENERATOR
// ══════════════════════════════════════════════════════════════════════════════

const quizSystemPrompt = `You write skill-assessment quizzes for engineers joining a project.
Ask about the subjects and topics listed by the user, two or three questions per topic.
Every question has exactly four options and one correct answer copied verbatim from the options.
Respond with one JSON object of this shape and nothing else:
{"title": "...",
 "questions": [{"id": 1, "question": "...", "options": ["...", "...", "...", "..."],
   "correctAnswer": "...", "points": 10, "topic": "..."}]}
The "topic" of each question must be one of the listed topic names.`

// QuizGenerator produces untrusted quiz documents through chat completions.
type QuizGenerator struct {
	llm Completer
}

// NewQuizGenerator creates a new QuizGenerator.
func NewQuizGenerator(llm Completer) *QuizGenerator {
	return &QuizGenerator{llm: llm}
}

// GenerateQuiz asks for a quiz over the outline. The result is not validated here.
func (g *QuizGenerator) GenerateQuiz(ctx context.Context, subjects []project.SubjectOutline) (learning.QuizShape, error) {
	out, err := g.llm.Complete(ctx, []Message{
		{Role: "system", Content: quizSystemPrompt},
		{Role: "user", Content: "Project outline:\n" + outline(subjects)},
	}, true)
	if err != nil {
		return nil, err
	}
	shape, err := ExtractJSONObject(out)
	if err != nil {
		return nil, err
	}
	return learning.QuizShape(shape), nil
}

func outline(subjects []project.SubjectOutline) string {
	var b strings.Builder
	for _, s := range subjects {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, strings.Join(s.Topics, ", "))
	}
	return b.String()
}

// ExtractJSONObject decodes the text between the first '{' and the last '}'.
func ExtractJSONObject(text string) (learning.PathShape, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, shared.WrapError("llm", "Generate", shared.ErrGenerationFailed, "no JSON object in model output", nil)
	}
	var shape learning.PathShape
	if err := json.Unmarshal([]byte(text[start:end+1]), &shape); err != nil {
		return nil, shared.WrapError("llm", "Generate", shared.ErrGenerationFailed, "model output is not valid JSON", err)
	}
	return shape, nil
}
