// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/learnpro/kt-hub/internal/domain/employee"
	"github.com/learnpro/kt-hub/internal/domain/knowledge"
	"github.com/learnpro/kt-hub/internal/domain/project"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// requireAdmin loads the actor and fails with shared.ErrAdminOnly unless
// the actor is an administrator.
func requireAdmin(ctx context.Context, employees employee.Repository, actorID string) (*employee.Employee, error) {
	if actorID == "" {
		return nil, shared.ErrAdminOnly
	}
	actor, err := employees.GetByID(ctx, actorID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrAdminOnly
		}
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if !actor.IsAdmin() {
		return nil, shared.ErrAdminOnly
	}
	return actor, nil
}

// authorizeOwnerOrAdmin lets the owner act on their own data and an admin
// act on anyone's.
func authorizeOwnerOrAdmin(ctx context.Context, employees employee.Repository, actorID, ownerID string) error {
	if actorID == "" {
		return shared.ErrForbidden
	}
	if actorID == ownerID {
		return nil
	}
	if _, err := requireAdmin(ctx, employees, actorID); err != nil {
		return err
	}
	return nil
}

// resolveScope checks that the scope points at something that exists:
// a stored project, or a reachable repository when a resolver is configured.
func resolveScope(ctx context.Context, scope knowledge.Scope, projects project.Repository, repos RepoResolver) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	switch scope.Kind {
	case knowledge.ScopeProject:
		if _, err := projects.GetByID(ctx, scope.ProjectID); err != nil {
			return err
		}
	case knowledge.ScopeRepo:
		if repos != nil {
			if err := repos.ResolveRepo(ctx, scope.RepoURL); err != nil {
				return err
			}
		}
	}
	return nil
}

// publishAll publishes events after commit. Publish failures never fail the command.
func publishAll(publisher shared.EventPublisher, events ...shared.Event) {
	if publisher == nil {
		return
	}
	for _, e := range events {
		_ = publisher.Publish(e)
	}
}
