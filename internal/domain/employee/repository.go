package employee

import "context"

// Repository хранит пользователей.
type Repository interface {
	// Create сохраняет пользователя; дубликат email - shared.ErrEmployeeExists.
	Create(ctx context.Context, e *Employee) error
	GetByID(ctx context.Context, id string) (*Employee, error)
	GetByEmail(ctx context.Context, email string) (*Employee, error)
	Update(ctx context.Context, e *Employee) error

	// List возвращает пользователей с ролью role (пусто = все).
	List(ctx context.Context, role Role) ([]*Employee, error)
}
