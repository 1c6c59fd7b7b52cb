package query

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// SkillQuizDTO - тест навыков проекта.
type SkillQuizDTO struct {
	ProjectID   string             `json:"project_id"`
	ProjectName string             `json:"project_name"`
	Quiz        learning.SkillQuiz `json:"quiz"`
}

// GetSkillAssessmentQuizParams - параметры запроса. Пустой ProjectID
// означает проект, назначенный вызывающему.
type GetSkillAssessmentQuizParams struct {
	CallerID  string
	ProjectID string
}

// GetSkillAssessmentQuizHandler отдаёт тест навыков проекта.
// Сотрудник видит тест своего проекта без правильных ответов,
// администратор - любой тест целиком.
type GetSkillAssessmentQuizHandler struct {
	employees employee.Repository
	projects  project.Repository
}

// NewGetSkillAssessmentQuizHandler создаёт обработчик.
func NewGetSkillAssessmentQuizHandler(employees employee.Repository, projects project.Repository) *GetSkillAssessmentQuizHandler {
	return &GetSkillAssessmentQuizHandler{employees: employees, projects: projects}
}

// Handle выполняет запрос.
func (h *GetSkillAssessmentQuizHandler) Handle(ctx context.Context, params GetSkillAssessmentQuizParams) (*SkillQuizDTO, error) {
	caller, err := h.employees.GetByID(ctx, params.CallerID)
	if err != nil {
		return nil, fmt.Errorf("get_skill_quiz: %w", err)
	}

	projectID := params.ProjectID
	switch {
	case projectID == "":
		projectID = caller.AssignedProjectID
		if projectID == "" {
			return nil, fmt.Errorf("get_skill_quiz: %w", shared.ErrNoAssignedProject)
		}
	case !caller.IsAdmin() && projectID != caller.AssignedProjectID:
		return nil, fmt.Errorf("get_skill_quiz: %w", shared.ErrAdminOnly)
	}

	proj, err := h.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get_skill_quiz: %w", err)
	}
	quiz, err := proj.SkillQuiz()
	if err != nil {
		return nil, fmt.Errorf("get_skill_quiz: %w", err)
	}
	if !caller.IsAdmin() {
		quiz = quiz.Public()
	}
	return &SkillQuizDTO{ProjectID: proj.ID, ProjectName: proj.Name, Quiz: quiz}, nil
}
