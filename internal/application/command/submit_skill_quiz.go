package command

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT SKILL QUIZ COMMAND
// Grades the assigned project's skill-assessment quiz and builds a new path
// version from the per-topic scores.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitSkillQuizCommand contains the answers, keyed by question ID.
type SubmitSkillQuizCommand struct {
	ActorID string
	OwnerID string
	Answers map[int]string

	CorrelationID string
}

// SubmitSkillQuizResult carries the graded scores and the generated path.
type SubmitSkillQuizResult struct {
	Scores map[string]float64
	*GeneratePathResult
}

// SubmitSkillQuizHandler handles SubmitSkillQuizCommand.
type SubmitSkillQuizHandler struct {
	employees employee.Repository
	projects  project.Repository
	generate  *GeneratePathHandler
}

// NewSubmitSkillQuizHandler creates a new SubmitSkillQuizHandler.
func NewSubmitSkillQuizHandler(
	employees employee.Repository,
	projects project.Repository,
	generate *GeneratePathHandler,
) *SubmitSkillQuizHandler {
	return &SubmitSkillQuizHandler{employees: employees, projects: projects, generate: generate}
}

// Handle executes the command. The caller must be the owner or an admin.
// A project without a quiz fails with shared.ErrQuizNotFound.
func (h *SubmitSkillQuizHandler) Handle(ctx context.Context, cmd SubmitSkillQuizCommand) (*SubmitSkillQuizResult, error) {
	if err := authorizeOwnerOrAdmin(ctx, h.employees, cmd.ActorID, cmd.OwnerID); err != nil {
		return nil, fmt.Errorf("submit_skill_quiz: %w", err)
	}

	owner, err := h.employees.GetByID(ctx, cmd.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("submit_skill_quiz: load owner: %w", err)
	}
	if owner.AssignedProjectID == "" {
		return nil, fmt.Errorf("submit_skill_quiz: %w", shared.ErrNoAssignedProject)
	}
	proj, err := h.projects.GetByID(ctx, owner.AssignedProjectID)
	if err != nil {
		return nil, fmt.Errorf("submit_skill_quiz: load project: %w", err)
	}
	quiz, err := proj.SkillQuiz()
	if err != nil {
		return nil, fmt.Errorf("submit_skill_quiz: %w", err)
	}

	topics := proj.Topics()
	scores, err := quiz.Grade(cmd.Answers, topics)
	if err != nil {
		return nil, fmt.Errorf("submit_skill_quiz: %w", err)
	}

	generated, err := h.generate.Handle(ctx, GeneratePathCommand{
		OwnerID:       owner.ID,
		Topics:        topics,
		Scores:        scores,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		return nil, err
	}
	return &SubmitSkillQuizResult{Scores: scores, GeneratePathResult: generated}, nil
}
