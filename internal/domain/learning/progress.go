package learning

import (
	"math"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NEXT INCOMPLETE TOPIC
// ══════════════════════════════════════════════════════════════════════════════

// TopicRef указывает на тему и её предмет.
type TopicRef struct {
	Subject      string `json:"subject"`
	Topic        string `json:"topic"`
	SubjectIndex int    `json:"subject_index"`
	TopicIndex   int    `json:"topic_index"`
}

// NextIncompleteTopic возвращает первую незавершённую тему первого предмета,
// в котором такая тема есть. ok=false, если все темы завершены.
func (p *LearningPath) NextIncompleteTopic() (TopicRef, bool) {
	for si := range p.Subjects {
		s := &p.Subjects[si]
		for ti := range s.Topics {
			if !s.Topics[ti].Completed {
				return TopicRef{
					Subject:      s.Name,
					Topic:        s.Topics[ti].Name,
					SubjectIndex: si,
					TopicIndex:   ti,
				}, true
			}
		}
	}
	return TopicRef{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENT
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentOutcome - итог проверки теста.
type AssessmentOutcome struct {
	Subject     string           `json:"subject"`
	Score       float64          `json:"score"`
	Threshold   float64          `json:"threshold"`
	Status      AssessmentStatus `json:"status"`
	NextSubject string           `json:"next_subject,omitempty"`
}

// Passed возвращает true для пройденного теста.
func (o AssessmentOutcome) Passed() bool {
	return o.Status == AssessmentPassed
}

// SubmitAssessment записывает балл теста предмета.
// При score >= threshold все темы предмета завершаются, предмет завершается
// и начинается следующий незавершённый. При провале темы не меняются.
func (p *LearningPath) SubmitAssessment(subjectName string, score float64, now time.Time) (AssessmentOutcome, error) {
	if score < 0 || score > 100 || math.IsNaN(score) {
		return AssessmentOutcome{}, shared.ErrInvalidScore
	}
	idx, err := p.FindSubject(subjectName)
	if err != nil {
		return AssessmentOutcome{}, err
	}

	s := &p.Subjects[idx]
	v := score
	s.Assessment.Score = &v

	out := AssessmentOutcome{
		Subject:   s.Name,
		Score:     score,
		Threshold: s.Assessment.Threshold,
	}

	if score >= s.Assessment.Threshold {
		s.Assessment.Status = AssessmentPassed
		for ti := range s.Topics {
			s.Topics[ti].Completed = true
		}
		s.Started = true
		s.Completed = true
		p.advanceFrom(idx)
	} else {
		s.Assessment.Status = AssessmentFailed
	}
	out.Status = s.Assessment.Status

	if cur := p.CurrentSubject(); cur >= 0 {
		out.NextSubject = p.Subjects[cur].Name
	}

	p.RecomputeCounters()
	p.UpdatedAt = now
	return out, nil
}

// advanceFrom начинает следующий незавершённый предмет после idx,
// если текущего предмета нет. Если после idx всё завершено, берётся первый
// незавершённый предмет с начала пути.
func (p *LearningPath) advanceFrom(idx int) {
	if p.CurrentSubject() >= 0 {
		return
	}
	for j := idx + 1; j < len(p.Subjects); j++ {
		if !p.Subjects[j].Completed {
			p.Subjects[j].Started = true
			return
		}
	}
	for j := 0; j < idx && j < len(p.Subjects); j++ {
		if !p.Subjects[j].Completed {
			p.Subjects[j].Started = true
			return
		}
	}
}

// ensureCurrent начинает первый незавершённый предмет, если текущего нет.
func (p *LearningPath) ensureCurrent() {
	if p.CurrentSubject() >= 0 || p.AllCompleted() {
		return
	}
	p.advanceFrom(-1)
}

// ══════════════════════════════════════════════════════════════════════════════
// PATCH
// ══════════════════════════════════════════════════════════════════════════════

// TopicUpdate меняет отметку о завершении темы.
// Пустой Subject означает поиск темы по всем предметам.
type TopicUpdate struct {
	Subject   string `json:"subject,omitempty"`
	Topic     string `json:"topic"`
	Completed bool   `json:"completed"`
}

// SubjectUpdate меняет флаги предмета; nil-поля не трогаются.
type SubjectUpdate struct {
	Name           string   `json:"name"`
	Started        *bool    `json:"started,omitempty"`
	Completed      *bool    `json:"completed,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

// Patch - частичное обновление пути от администратора или внешнего агента.
type Patch struct {
	Name     *string         `json:"name,omitempty"`
	Subjects []SubjectUpdate `json:"subjects,omitempty"`
	Topics   []TopicUpdate   `json:"topics,omitempty"`
}

// IsEmpty возвращает true, если патч ничего не меняет.
func (pt Patch) IsEmpty() bool {
	return pt.Name == nil && len(pt.Subjects) == 0 && len(pt.Topics) == 0
}

// ApplyPatch применяет патч атомарно: изменения вносятся в копию,
// инварианты проверяются, и только затем копия заменяет путь.
func (p *LearningPath) ApplyPatch(patch Patch, now time.Time) error {
	next := p.Clone()

	if patch.Name != nil && *patch.Name != "" {
		next.Name = *patch.Name
	}

	for _, su := range patch.Subjects {
		idx, err := next.FindSubject(su.Name)
		if err != nil {
			return err
		}
		s := &next.Subjects[idx]
		if su.Started != nil {
			s.Started = *su.Started
		}
		if su.Completed != nil {
			s.Completed = *su.Completed
			if s.Completed {
				s.Started = true
				for ti := range s.Topics {
					s.Topics[ti].Completed = true
				}
			}
		}
		if su.EstimatedHours != nil && *su.EstimatedHours >= 0 {
			s.EstimatedHours = *su.EstimatedHours
		}
	}

	for _, tu := range patch.Topics {
		si, ti, err := next.findTopic(tu.Subject, tu.Topic)
		if err != nil {
			return err
		}
		next.Subjects[si].Topics[ti].Completed = tu.Completed
	}

	next.ensureCurrent()
	if err := next.Validate(); err != nil {
		return err
	}

	next.RecomputeCounters()
	next.UpdatedAt = now
	*p = *next
	return nil
}

func (p *LearningPath) findTopic(subject, topic string) (int, int, error) {
	if subject != "" {
		si, err := p.FindSubject(subject)
		if err != nil {
			return -1, -1, err
		}
		for ti := range p.Subjects[si].Topics {
			if p.Subjects[si].Topics[ti].Name == topic {
				return si, ti, nil
			}
		}
		return -1, -1, shared.ErrTopicNotFound
	}
	for si := range p.Subjects {
		for ti := range p.Subjects[si].Topics {
			if p.Subjects[si].Topics[ti].Name == topic {
				return si, ti, nil
			}
		}
	}
	return -1, -1, shared.ErrTopicNotFound
}
