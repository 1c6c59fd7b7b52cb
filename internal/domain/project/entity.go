// Package project содержит модель проекта: упорядоченный список предметов,
// каждый из которых - упорядоченный список тем. Проект неизменяем после
// создания; темы копируются в учебный путь, а не ссылаются на проект.
package project

import (
	"strings"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// SubjectOutline - предмет проекта и его темы.
type SubjectOutline struct {
	Name   string   `json:"name" yaml:"name"`
	Topics []string `json:"topics" yaml:"topics"`
}

// Project - проект, на который назначаются сотрудники.
type Project struct {
	ID          string
	Name        string
	Description string
	Subjects    []SubjectOutline
	// Quiz - входной тест навыков; nil, если генератор не справился.
	Quiz        *learning.SkillQuiz
	CreatedAt   time.Time
}

// NewProject создаёт проект. Пустые темы отбрасываются,
// предметы без имени недопустимы.
func NewProject(id, name, description string, subjects []SubjectOutline, now time.Time) (*Project, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewDomainError("project", "New", shared.ErrInvalidID, "id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("project", "New", shared.ErrEmptyValue, "project name is required")
	}
	if len(subjects) == 0 {
		return nil, shared.NewDomainError("project", "New", shared.ErrValidation, "project needs at least one subject")
	}

	outline := make([]SubjectOutline, 0, len(subjects))
	for _, s := range subjects {
		sn := strings.TrimSpace(s.Name)
		if sn == "" {
			return nil, shared.NewDomainError("project", "New", shared.ErrValidation, "subject name is required")
		}
		topics := make([]string, 0, len(s.Topics))
		for _, t := range s.Topics {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
		outline = append(outline, SubjectOutline{Name: sn, Topics: topics})
	}

	return &Project{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Subjects:    outline,
		CreatedAt:   now,
	}, nil
}

// Topics возвращает темы проекта по порядку. Предмет без тем
// представлен собственным именем.
func (p *Project) Topics() []string {
	var out []string
	for _, s := range p.Subjects {
		if len(s.Topics) == 0 {
			out = append(out, s.Name)
			continue
		}
		out = append(out, s.Topics...)
	}
	return out
}

// SkillQuiz возвращает тест навыков проекта или shared.ErrQuizNotFound.
func (p *Project) SkillQuiz() (learning.SkillQuiz, error) {
	if p.Quiz == nil || len(p.Quiz.Questions) == 0 {
		return learning.SkillQuiz{}, shared.ErrQuizNotFound
	}
	return *p.Quiz, nil
}
