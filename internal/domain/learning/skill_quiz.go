package learning

import (
	"strings"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

const (
	// DefaultQuestionPoints - вес вопроса, если генератор его не указал.
	DefaultQuestionPoints = 10.0

	// NeutralScore - начальная оценка темы, по которой нет данных.
	NeutralScore = 0.5
)

// QuizShape - нетипизированный документ теста навыков от генератора.
type QuizShape map[string]interface{}

// SkillQuestion - вопрос теста навыков с вариантами ответа.
type SkillQuestion struct {
	ID            int      `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
	Points        float64  `json:"points"`
	Topic         string   `json:"topic"`
}

// SkillQuiz - входной тест навыков проекта. Его результаты дают
// начальные оценки тем для генерации учебного пути.
type SkillQuiz struct {
	Title     string          `json:"title"`
	Questions []SkillQuestion `json:"questions"`
}

// NormalizeSkillQuiz приводит документ генератора к SkillQuiz.
// Вопрос сохраняется, только если у него есть текст, хотя бы два варианта
// и правильный ответ совпадает с одним из вариантов. Номера вопросов
// назначаются заново по порядку. Тема вопроса приводится к написанию
// из topics, если совпадает без учёта регистра.
func NormalizeSkillQuiz(shape QuizShape, topics []string) (SkillQuiz, error) {
	if shape == nil {
		return SkillQuiz{}, shared.ErrMalformedQuiz
	}
	doc := map[string]interface{}(shape)
	if inner, ok := doc["quiz"].(map[string]interface{}); ok {
		doc = inner
	}

	canonical := make(map[string]string, len(topics))
	for _, t := range topics {
		canonical[strings.ToLower(strings.TrimSpace(t))] = t
	}

	raw, _ := doc["questions"].([]interface{})
	questions := make([]SkillQuestion, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		q, ok := normalizeQuestion(m)
		if !ok {
			continue
		}
		if t, ok := canonical[strings.ToLower(q.Topic)]; ok {
			q.Topic = t
		}
		q.ID = len(questions) + 1
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return SkillQuiz{}, shared.ErrMalformedQuiz
	}

	title := coerceString(doc["title"])
	if title == "" {
		title = "Skill assessment"
	}
	return SkillQuiz{Title: title, Questions: questions}, nil
}

func normalizeQuestion(m map[string]interface{}) (SkillQuestion, bool) {
	text := firstString(m, "question", "text")
	options := coerceStrings(m["options"])
	if text == "" || len(options) < 2 {
		return SkillQuestion{}, false
	}

	answer := firstString(m, "correctAnswer", "correct_answer", "answer")
	correct := ""
	for _, o := range options {
		if strings.EqualFold(o, answer) {
			correct = o
			break
		}
	}
	if correct == "" {
		return SkillQuestion{}, false
	}

	points, ok := coerceFloat(m["points"])
	if !ok || points <= 0 {
		points = DefaultQuestionPoints
	}

	return SkillQuestion{
		Question:      text,
		Options:       options,
		CorrectAnswer: correct,
		Points:        points,
		Topic:         coerceString(m["topic"]),
	}, true
}

// Clone возвращает глубокую копию теста.
func (q SkillQuiz) Clone() SkillQuiz {
	out := SkillQuiz{Title: q.Title, Questions: make([]SkillQuestion, len(q.Questions))}
	for i, sq := range q.Questions {
		sq.Options = append([]string(nil), sq.Options...)
		out.Questions[i] = sq
	}
	return out
}

// Public возвращает копию теста без правильных ответов.
func (q SkillQuiz) Public() SkillQuiz {
	out := q.Clone()
	for i := range out.Questions {
		out.Questions[i].CorrectAnswer = ""
	}
	return out
}

// Grade оценивает ответы (номер вопроса -> выбранный вариант) и возвращает
// долю набранных баллов по каждой теме в диапазоне [0, 1]. Вопрос без
// ответа считается неверным. Темы из topics, по которым нет вопросов,
// получают NeutralScore.
func (q SkillQuiz) Grade(answers map[int]string, topics []string) (map[string]float64, error) {
	known := make(map[int]bool, len(q.Questions))
	for _, sq := range q.Questions {
		known[sq.ID] = true
	}
	for id := range answers {
		if !known[id] {
			return nil, shared.ErrUnknownQuestion
		}
	}

	earned := make(map[string]float64)
	total := make(map[string]float64)
	for _, sq := range q.Questions {
		if sq.Topic == "" {
			continue
		}
		total[sq.Topic] += sq.Points
		if strings.EqualFold(strings.TrimSpace(answers[sq.ID]), sq.CorrectAnswer) {
			earned[sq.Topic] += sq.Points
		}
	}

	scores := make(map[string]float64, len(total)+len(topics))
	for _, t := range topics {
		scores[t] = NeutralScore
	}
	for t, max := range total {
		scores[t] = earned[t] / max
	}
	return scores, nil
}
