package project

import "context"

// Repository хранит проекты.
type Repository interface {
	// Create сохраняет проект; дубликат имени - shared.ErrProjectExists.
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context) ([]*Project, error)
}
