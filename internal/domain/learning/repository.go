package learning

import "context"

// Repository хранит версии учебных путей.
type Repository interface {
	// Create сохраняет новую версию пути.
	Create(ctx context.Context, p *LearningPath) error

	// Latest возвращает самую свежую версию пути владельца
	// (наибольший created_at, при равенстве - наибольший id)
	// или shared.ErrPathNotFound.
	Latest(ctx context.Context, ownerID string) (*LearningPath, error)

	// Save сохраняет прогресс существующей версии.
	Save(ctx context.Context, p *LearningPath) error

	// ListByOwner возвращает все версии пути владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID string) ([]*LearningPath, error)
}

// Store - транзакционное хранилище учебных путей. Внутри WithinTx
// Latest блокирует возвращённую версию до конца транзакции.
type Store interface {
	Repository

	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
