// Package learning содержит модель учебного пути сотрудника и движок прогресса:
// выбор следующей незавершённой темы, оценку по тесту предмета и применение
// частичных обновлений с повторной проверкой инвариантов.
package learning

import (
	"strings"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultThreshold - проходной балл теста, если генератор его не указал.
	DefaultThreshold = 70.0

	// DefaultEstimatedHours - оценка длительности предмета по умолчанию.
	DefaultEstimatedHours = 8.0

	// DefaultPathName - название пути по умолчанию.
	DefaultPathName = "Learning Path"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODEL
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentStatus - результат теста по предмету.
type AssessmentStatus string

const (
	AssessmentPending AssessmentStatus = "pending"
	AssessmentPassed  AssessmentStatus = "passed"
	AssessmentFailed  AssessmentStatus = "failed"
)

// QuizQuestion - вопрос теста с вариантами ответа.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

// Assessment - тест, открывающий следующий предмет.
type Assessment struct {
	Threshold float64          `json:"threshold"`
	Score     *float64         `json:"score"`
	Status    AssessmentStatus `json:"status"`
	Quiz      []QuizQuestion   `json:"quiz"`
}

// Topic - тема внутри предмета.
type Topic struct {
	Name      string `json:"topic_name"`
	Completed bool   `json:"is_completed"`
}

// Subject - предмет учебного пути.
type Subject struct {
	Name           string     `json:"subject_name"`
	Started        bool       `json:"is_started"`
	Completed      bool       `json:"is_completed"`
	EstimatedHours float64    `json:"estimated_hours"`
	Assessment     Assessment `json:"assessment"`
	Topics         []Topic    `json:"topics"`
	OfficialDocs   []string   `json:"official_docs"`
}

// IsCurrent возвращает true для начатого, но не завершённого предмета.
func (s *Subject) IsCurrent() bool {
	return s.Started && !s.Completed
}

// LearningPath - версия учебного пути сотрудника.
// Каждая генерация создаёт новую версию, прежние хранятся для аудита.
type LearningPath struct {
	ID                  string    `json:"id"`
	OwnerID             string    `json:"owner_id"`
	Name                string    `json:"path_name"`
	TotalEstimatedHours float64   `json:"total_estimated_hours"`
	Subjects            []Subject `json:"subjects"`
	Fallback            bool      `json:"fallback"`
	CompletedTopics     int       `json:"completed_topics"`
	TotalTopics         int       `json:"total_topics"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Draft - нормализованное содержимое пути до присвоения владельца.
type Draft struct {
	Name                string
	TotalEstimatedHours float64
	Subjects            []Subject
	Fallback            bool
}

// NewLearningPath создаёт путь из черновика: сбрасывает весь прогресс
// и принудительно начинает первый предмет.
func NewLearningPath(id, ownerID string, draft Draft, now time.Time) (*LearningPath, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(ownerID) == "" {
		return nil, shared.NewDomainError("learning", "NewLearningPath", shared.ErrInvalidID, "path and owner ids are required")
	}
	if len(draft.Subjects) == 0 {
		return nil, shared.ErrEmptyPath
	}

	subjects := make([]Subject, len(draft.Subjects))
	for i, s := range draft.Subjects {
		subjects[i] = resetSubject(s)
	}
	subjects[0].Started = true

	name := strings.TrimSpace(draft.Name)
	if name == "" {
		name = DefaultPathName
	}
	total := draft.TotalEstimatedHours
	if total <= 0 {
		for _, s := range subjects {
			total += s.EstimatedHours
		}
	}

	p := &LearningPath{
		ID:                  id,
		OwnerID:             ownerID,
		Name:                name,
		TotalEstimatedHours: total,
		Subjects:            subjects,
		Fallback:            draft.Fallback,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	p.RecomputeCounters()
	return p, nil
}

func resetSubject(s Subject) Subject {
	out := s
	out.Started = false
	out.Completed = false
	out.Assessment.Status = AssessmentPending
	out.Assessment.Score = nil
	out.Topics = make([]Topic, len(s.Topics))
	for i, t := range s.Topics {
		out.Topics[i] = Topic{Name: t.Name}
	}
	out.OfficialDocs = append([]string(nil), s.OfficialDocs...)
	out.Assessment.Quiz = append([]QuizQuestion(nil), s.Assessment.Quiz...)
	return out
}

// Clone возвращает глубокую копию пути.
func (p *LearningPath) Clone() *LearningPath {
	c := *p
	c.Subjects = make([]Subject, len(p.Subjects))
	for i, s := range p.Subjects {
		cs := s
		cs.Topics = append([]Topic(nil), s.Topics...)
		cs.OfficialDocs = append([]string(nil), s.OfficialDocs...)
		cs.Assessment.Quiz = append([]QuizQuestion(nil), s.Assessment.Quiz...)
		if s.Assessment.Score != nil {
			v := *s.Assessment.Score
			cs.Assessment.Score = &v
		}
		c.Subjects[i] = cs
	}
	return &c
}

// FindSubject ищет предмет по имени: сначала точное совпадение,
// затем без учёта регистра и пробелов по краям.
func (p *LearningPath) FindSubject(name string) (int, error) {
	for i := range p.Subjects {
		if p.Subjects[i].Name == name {
			return i, nil
		}
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	for i := range p.Subjects {
		if strings.ToLower(strings.TrimSpace(p.Subjects[i].Name)) == needle {
			return i, nil
		}
	}
	return -1, shared.ErrSubjectNotFound
}

// CurrentSubject возвращает индекс текущего предмета или -1.
func (p *LearningPath) CurrentSubject() int {
	for i := range p.Subjects {
		if p.Subjects[i].IsCurrent() {
			return i
		}
	}
	return -1
}

// AllCompleted возвращает true, если все предметы завершены.
func (p *LearningPath) AllCompleted() bool {
	for i := range p.Subjects {
		if !p.Subjects[i].Completed {
			return false
		}
	}
	return true
}

// RecomputeCounters пересчитывает счётчики тем для отчёта о прогрессе.
func (p *LearningPath) RecomputeCounters() {
	completed, total := 0, 0
	for _, s := range p.Subjects {
		for _, t := range s.Topics {
			total++
			if t.Completed {
				completed++
			}
		}
	}
	p.CompletedTopics = completed
	p.TotalTopics = total
}

// ProgressPercent возвращает процент завершённых тем (0..100).
func (p *LearningPath) ProgressPercent() float64 {
	if p.TotalTopics == 0 {
		return 0
	}
	return float64(p.CompletedTopics) * 100 / float64(p.TotalTopics)
}

// Topics возвращает имена всех тем пути по порядку.
func (p *LearningPath) Topics() []string {
	out := make([]string, 0, p.TotalTopics)
	for _, s := range p.Subjects {
		for _, t := range s.Topics {
			out = append(out, t.Name)
		}
	}
	return out
}

// Validate проверяет инварианты пути: хотя бы один предмет,
// не больше одного текущего, завершённый предмет считается начатым.
func (p *LearningPath) Validate() error {
	if len(p.Subjects) == 0 {
		return shared.ErrEmptyPath
	}
	current := 0
	for i := range p.Subjects {
		s := &p.Subjects[i]
		if s.Completed && !s.Started {
			return shared.ErrCompletedNotStarted
		}
		if s.IsCurrent() {
			current++
		}
	}
	if current > 1 {
		return shared.ErrMultipleCurrent
	}
	return nil
}
