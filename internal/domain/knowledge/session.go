package knowledge

import (
	"strings"
	"time"

	"github.com/learnpro/kt-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GIVE SESSION
// ══════════════════════════════════════════════════════════════════════════════

// GiveStatus - производный статус сессии передачи знаний.
type GiveStatus string

const (
	GivePending   GiveStatus = "Pending"
	GiveCompleted GiveStatus = "Completed"
)

// GiveSession - обязанность сотрудника передать знания об области Scope.
// DigestID пуст до завершения и устанавливается ровно один раз.
type GiveSession struct {
	ID          string
	EmployeeID  string
	Scope       Scope
	DigestID    string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// NewGiveSession создаёт новую незавершённую сессию передачи знаний.
func NewGiveSession(id, employeeID string, scope Scope, now time.Time) (*GiveSession, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(employeeID) == "" {
		return nil, shared.NewDomainError("knowledge", "NewGiveSession", shared.ErrInvalidID, "session and employee ids are required")
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return &GiveSession{
		ID:         id,
		EmployeeID: employeeID,
		Scope:      scope,
		CreatedAt:  now,
	}, nil
}

// IsCompleted возвращает true, если дайджест уже создан.
func (g *GiveSession) IsCompleted() bool {
	return g.DigestID != ""
}

// Status возвращает Pending или Completed.
func (g *GiveSession) Status() GiveStatus {
	if g.IsCompleted() {
		return GiveCompleted
	}
	return GivePending
}

// AuthorizeCompletion проверяет, может ли callerID завершить сессию.
func (g *GiveSession) AuthorizeCompletion(callerID string) error {
	if callerID != g.EmployeeID {
		return shared.ErrNotSessionOwner
	}
	if g.IsCompleted() {
		return shared.ErrGiveSessionCompleted
	}
	return nil
}

// Complete устанавливает ссылку на дайджест. Переход монотонный:
// повторная установка и сброс в пустое значение запрещены.
func (g *GiveSession) Complete(digestID string, now time.Time) error {
	if digestID == "" {
		return shared.NewDomainError("knowledge", "CompleteGiveSession", shared.ErrInvalidID, "digest id is required")
	}
	if g.IsCompleted() {
		return shared.ErrGiveSessionCompleted
	}
	g.DigestID = digestID
	g.CompletedAt = &now
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECEIVE SESSION
// ══════════════════════════════════════════════════════════════════════════════

// ReceiveStatus - состояние сессии получения знаний.
type ReceiveStatus string

const (
	AwaitingDigest ReceiveStatus = "AwaitingDigest"
	ReadyToConsume ReceiveStatus = "ReadyToConsume"
	Consumed       ReceiveStatus = "Consumed"
)

// IsValid проверяет, что статус известен.
func (s ReceiveStatus) IsValid() bool {
	switch s {
	case AwaitingDigest, ReadyToConsume, Consumed:
		return true
	}
	return false
}

// ReceiveSession - обязанность сотрудника изучить дайджест по области Scope.
type ReceiveSession struct {
	ID         string
	EmployeeID string
	Scope      Scope
	DigestID   string
	Status     ReceiveStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewReceiveSession создаёт сессию получения. Если для области уже есть
// дайджест, сессия сразу готова к изучению, иначе ожидает дайджест.
func NewReceiveSession(id, employeeID string, scope Scope, existing *DigestRecord, now time.Time) (*ReceiveSession, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(employeeID) == "" {
		return nil, shared.NewDomainError("knowledge", "NewReceiveSession", shared.ErrInvalidID, "session and employee ids are required")
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	r := &ReceiveSession{
		ID:         id,
		EmployeeID: employeeID,
		Scope:      scope,
		Status:     AwaitingDigest,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil && existing.Scope.Key() == scope.Key() {
		r.DigestID = existing.ID
		r.Status = ReadyToConsume
	}
	return r, nil
}

// AttachDigest переводит ожидающую сессию в ReadyToConsume.
// Для сессий в любом другом состоянии это no-op; возвращает true,
// если сессия изменилась.
func (r *ReceiveSession) AttachDigest(digestID string, now time.Time) bool {
	if r.Status != AwaitingDigest || digestID == "" {
		return false
	}
	r.DigestID = digestID
	r.Status = ReadyToConsume
	r.UpdatedAt = now
	return true
}

// MarkConsumed принимает внешний сигнал о завершении изучения.
// Повторный вызов для Consumed возвращает changed=false без ошибки.
func (r *ReceiveSession) MarkConsumed(now time.Time) (bool, error) {
	switch r.Status {
	case Consumed:
		return false, nil
	case ReadyToConsume:
		r.Status = Consumed
		r.UpdatedAt = now
		return true, nil
	default:
		return false, shared.ErrReceiveNotReady
	}
}

// Repoint заменяет ссылку на удаляемый дайджест. replacement может быть nil:
// тогда ожидающая или готовая сессия возвращается в AwaitingDigest,
// а изученная сохраняет статус Consumed без ссылки.
func (r *ReceiveSession) Repoint(replacement *DigestRecord, now time.Time) {
	r.UpdatedAt = now
	if replacement != nil {
		r.DigestID = replacement.ID
		if r.Status == AwaitingDigest {
			r.Status = ReadyToConsume
		}
		return
	}
	r.DigestID = ""
	if r.Status != Consumed {
		r.Status = AwaitingDigest
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DIGEST
// ══════════════════════════════════════════════════════════════════════════════

// DigestRecord - неизменяемый итог передачи знаний по области.
type DigestRecord struct {
	ID            string
	GiveSessionID string
	ProducedBy    string
	Scope         Scope
	Content       string
	RawMaterial   []string
	CreatedAt     time.Time
}

// NewDigestRecord создаёт дайджест для завершённой сессии передачи.
func NewDigestRecord(id string, give *GiveSession, content string, material []string, now time.Time) (*DigestRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, shared.NewDomainError("knowledge", "NewDigestRecord", shared.ErrInvalidID, "digest id is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, shared.WrapError("knowledge", "NewDigestRecord", shared.ErrDigestUnavailable, "generator returned empty digest", nil)
	}
	raw := make([]string, len(material))
	copy(raw, material)
	return &DigestRecord{
		ID:            id,
		GiveSessionID: give.ID,
		ProducedBy:    give.EmployeeID,
		Scope:         give.Scope,
		Content:       content,
		RawMaterial:   raw,
		CreatedAt:     now,
	}, nil
}

// FanOut привязывает дайджест ко всем ожидающим сессиям той же области
// и возвращает изменённые. Повторный вызов безопасен.
func FanOut(digest *DigestRecord, receivers []*ReceiveSession, now time.Time) []*ReceiveSession {
	key := digest.Scope.Key()
	changed := make([]*ReceiveSession, 0, len(receivers))
	for _, r := range receivers {
		if r.Scope.Key() != key {
			continue
		}
		if r.AttachDigest(digest.ID, now) {
			changed = append(changed, r)
		}
	}
	return changed
}

// MaterialIsEmpty возвращает true, если в материале нет непустых строк.
func MaterialIsEmpty(material []string) bool {
	for _, m := range material {
		if strings.TrimSpace(m) != "" {
			return false
		}
	}
	return true
}
