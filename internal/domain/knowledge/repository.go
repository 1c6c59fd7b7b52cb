package knowledge

import "context"

// SessionFilter ограничивает выборку сессий.
type SessionFilter struct {
	// EmployeeID - только сессии этого сотрудника (пусто = все).
	EmployeeID string

	// ScopeKey - только сессии этой области (пусто = все).
	ScopeKey string
}

// Repository - операции хранилища знаний над сессиями и дайджестами.
// Реализации обязаны переводить нарушения уникальности в shared.ErrConflict,
// а отсутствие записи - в shared.ErrNotFound.
type Repository interface {
	// LockScope сериализует операции над одной областью до конца транзакции.
	LockScope(ctx context.Context, scopeKey string) error

	CreateGiveSession(ctx context.Context, s *GiveSession) error
	GetGiveSession(ctx context.Context, id string) (*GiveSession, error)
	UpdateGiveSession(ctx context.Context, s *GiveSession) error
	DeleteGiveSession(ctx context.Context, id string) error
	ListGiveSessions(ctx context.Context, filter SessionFilter) ([]*GiveSession, error)

	CreateReceiveSession(ctx context.Context, s *ReceiveSession) error
	GetReceiveSession(ctx context.Context, id string) (*ReceiveSession, error)
	UpdateReceiveSession(ctx context.Context, s *ReceiveSession) error
	DeleteReceiveSession(ctx context.Context, id string) error
	ListReceiveSessions(ctx context.Context, filter SessionFilter) ([]*ReceiveSession, error)

	// ListAwaitingReceivers возвращает сессии области в статусе AwaitingDigest.
	ListAwaitingReceivers(ctx context.Context, scopeKey string) ([]*ReceiveSession, error)

	// ListReceiversByDigest возвращает сессии, ссылающиеся на дайджест.
	ListReceiversByDigest(ctx context.Context, digestID string) ([]*ReceiveSession, error)

	CreateDigest(ctx context.Context, d *DigestRecord) error
	GetDigest(ctx context.Context, id string) (*DigestRecord, error)
	DeleteDigest(ctx context.Context, id string) error

	// LatestDigestForScope возвращает самый свежий дайджест области
	// или shared.ErrDigestNotFound.
	LatestDigestForScope(ctx context.Context, scopeKey string) (*DigestRecord, error)
}

// Store - транзакционное хранилище знаний.
// Методы Repository вне WithinTx выполняются без общей транзакции.
type Store interface {
	Repository

	// WithinTx выполняет fn атомарно. Ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
