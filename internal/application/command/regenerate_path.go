package command

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/learning"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGENERATE PATH COMMAND
// Builds a new path version for the owner's assigned project, feeding the
// generator the scores of the latest version's assessments.
// ══════════════════════════════════════════════════════════════════════════════

// RegeneratePathCommand contains the owner whose path is rebuilt.
type RegeneratePathCommand struct {
	ActorID string
	OwnerID string

	CorrelationID string
}

// RegeneratePathHandler handles RegeneratePathCommand.
type RegeneratePathHandler struct {
	paths     learning.Repository
	employees employee.Repository
	projects  project.Repository
	generate  *GeneratePathHandler
}

// NewRegeneratePathHandler creates a new RegeneratePathHandler.
func NewRegeneratePathHandler(
	paths learning.Repository,
	employees employee.Repository,
	projects project.Repository,
	generate *GeneratePathHandler,
) *RegeneratePathHandler {
	return &RegeneratePathHandler{
		paths:     paths,
		employees: employees,
		projects:  projects,
		generate:  generate,
	}
}

// Handle executes the command. The caller must be the owner or an admin.
func (h *RegeneratePathHandler) Handle(ctx context.Context, cmd RegeneratePathCommand) (*GeneratePathResult, error) {
	if err := authorizeOwnerOrAdmin(ctx, h.employees, cmd.ActorID, cmd.OwnerID); err != nil {
		return nil, fmt.Errorf("regenerate_path: %w", err)
	}

	owner, err := h.employees.GetByID(ctx, cmd.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("regenerate_path: load owner: %w", err)
	}
	if owner.AssignedProjectID == "" {
		return nil, fmt.Errorf("regenerate_path: %w", shared.ErrNoAssignedProject)
	}
	proj, err := h.projects.GetByID(ctx, owner.AssignedProjectID)
	if err != nil {
		return nil, fmt.Errorf("regenerate_path: load project: %w", err)
	}

	scores := make(map[string]float64)
	latest, err := h.paths.Latest(ctx, owner.ID)
	switch {
	case err == nil:
		scores = ScoresFromPath(latest)
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("regenerate_path: load latest path: %w", err)
	}

	return h.generate.Handle(ctx, GeneratePathCommand{
		OwnerID:       owner.ID,
		Topics:        proj.Topics(),
		Scores:        scores,
		CorrelationID: cmd.CorrelationID,
	})
}

// ScoresFromPath maps every topic of an assessed subject to the subject's
// score as a fraction of 1.
func ScoresFromPath(p *learning.LearningPath) map[string]float64 {
	scores := make(map[string]float64)
	for _, s := range p.Subjects {
		if s.Assessment.Score == nil {
			continue
		}
		v := *s.Assessment.Score / 100
		for _, t := range s.Topics {
			scores[t.Name] = v
		}
	}
	return scores
}
