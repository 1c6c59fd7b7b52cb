package learning

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// PathShape - нетипизированный документ, полученный от генератора пути.
// Его содержимое не считается доверенным.
type PathShape map[string]interface{}

// Normalize приводит документ генератора к типизированному черновику.
// Числа в виде строк и "null" приводятся к нужным типам, флаги прогресса
// генератора игнорируются. Предметы без имени или без тем отбрасываются.
// Если не осталось ни одного предмета, возвращается shared.ErrMalformedPath.
func Normalize(shape PathShape) (Draft, error) {
	if shape == nil {
		return Draft{}, shared.ErrMalformedPath
	}
	doc := map[string]interface{}(shape)
	if inner, ok := doc["learning_path"].(map[string]interface{}); ok {
		doc = inner
	}

	rawSubjects, _ := doc["subjects"].([]interface{})
	subjects := make([]Subject, 0, len(rawSubjects))
	seen := make(map[string]int, len(rawSubjects))

	for _, raw := range rawSubjects {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		s, ok := normalizeSubject(m)
		if !ok {
			continue
		}
		key := strings.ToLower(s.Name)
		seen[key]++
		if n := seen[key]; n > 1 {
			s.Name = fmt.Sprintf("%s (%d)", s.Name, n)
		}
		subjects = append(subjects, s)
	}

	if len(subjects) == 0 {
		return Draft{}, shared.ErrMalformedPath
	}

	total, ok := coerceFloat(doc["total_estimated_hours"])
	if !ok || total <= 0 {
		total = 0
		for _, s := range subjects {
			total += s.EstimatedHours
		}
	}

	return Draft{
		Name:                coerceString(doc["path_name"]),
		TotalEstimatedHours: total,
		Subjects:            subjects,
	}, nil
}

func normalizeSubject(m map[string]interface{}) (Subject, bool) {
	name := firstString(m, "subject_name", "name", "title")
	if name == "" {
		return Subject{}, false
	}

	var topics []Topic
	rawTopics, _ := m["topics"].([]interface{})
	for _, rt := range rawTopics {
		switch t := rt.(type) {
		case string:
			if n := strings.TrimSpace(t); n != "" {
				topics = append(topics, Topic{Name: n})
			}
		case map[string]interface{}:
			if n := firstString(t, "topic_name", "name", "title"); n != "" {
				topics = append(topics, Topic{Name: n})
			}
		}
	}
	if len(topics) == 0 {
		return Subject{}, false
	}

	hours, ok := coerceFloat(m["estimated_hours"])
	if !ok || hours < 0 || math.IsNaN(hours) {
		hours = DefaultEstimatedHours
	}

	s := Subject{
		Name:           name,
		EstimatedHours: hours,
		Topics:         topics,
		OfficialDocs:   coerceStrings(m["official_docs"]),
		Assessment: Assessment{
			Threshold: DefaultThreshold,
			Status:    AssessmentPending,
		},
	}

	if am, ok := m["assessment"].(map[string]interface{}); ok {
		s.Assessment.Threshold = normalizeThreshold(am)
		s.Assessment.Quiz = normalizeQuiz(am)
	}
	return s, true
}

func normalizeThreshold(am map[string]interface{}) float64 {
	var (
		t  float64
		ok bool
	)
	if t, ok = coerceFloat(am["threshold"]); !ok {
		t, ok = coerceFloat(am["passing_score"])
	}
	if !ok || math.IsNaN(t) {
		return DefaultThreshold
	}
	if t > 0 && t < 1 {
		t *= 100
	}
	return math.Max(0, math.Min(100, t))
}

func normalizeQuiz(am map[string]interface{}) []QuizQuestion {
	raw, ok := am["quiz"].([]interface{})
	if !ok {
		raw, _ = am["questions"].([]interface{})
	}
	var out []QuizQuestion
	for _, r := range raw {
		q, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		text := firstString(q, "question", "text")
		if text == "" {
			continue
		}
		out = append(out, QuizQuestion{
			Question:      text,
			Options:       coerceStrings(q["options"]),
			CorrectAnswer: firstString(q, "correct_answer", "answer"),
		})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// COERCION
// ══════════════════════════════════════════════════════════════════════════════

// coerceFloat приводит числа и числовые строки к float64.
// nil, "null", пустая строка и нечисловые значения (NaN, Inf)
// считаются отсутствующим значением.
func coerceFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case float32:
		return coerceFloat(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%"))
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func coerceString(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := coerceString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func coerceStrings(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s := coerceString(r); s != "" {
			out = append(out, s)
		}
	}
	return out
}
