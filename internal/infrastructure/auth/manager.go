// Package auth implements caller authentication: bcrypt password hashes
// and HS256 access tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnpro/kt-hub/internal/application/command"
	"github.com/learnpro/kt-hub/internal/domain/shared"
)

var (
	// ErrInvalidToken is returned for malformed, forged or expired tokens.
	ErrInvalidToken = shared.NewDomainError("auth", "ValidateToken", shared.ErrUnauthorized, "invalid or expired token")

	// ErrEmptySecret is returned when no signing secret is configured.
	ErrEmptySecret = errors.New("auth: jwt secret is empty")
)

// Claims are the JWT claims of an access token.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and validates access tokens.
type Manager struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time
}

var _ command.TokenIssuer = (*Manager)(nil)

// NewManager creates a token manager.
func NewManager(secret, issuer string, tokenTTL time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if issuer == "" {
		issuer = "kt-hub"
	}
	return &Manager{secret: []byte(secret), issuer: issuer, tokenTTL: tokenTTL, now: time.Now}, nil
}

// TokenTTL returns the lifetime of issued tokens.
func (m *Manager) TokenTTL() time.Duration {
	return m.tokenTTL
}

// Issue signs an access token for the identity.
func (m *Manager) Issue(identity command.AccessToken) (string, error) {
	now := m.now()
	claims := &Claims{
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   identity.EmployeeID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns the identity it carries.
func (m *Manager) Validate(tokenString string) (command.AccessToken, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return command.AccessToken{}, shared.WrapError("auth", "ValidateToken", shared.ErrUnauthorized, "invalid or expired token", err)
	}
	return command.AccessToken{EmployeeID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PASSWORDS
// ══════════════════════════════════════════════════════════════════════════════

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	Cost int
}

var _ command.PasswordHasher = BcryptHasher{}

// Hash returns the bcrypt hash of the password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Compare returns shared.ErrBadCredentials when the password does not match.
func (h BcryptHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return shared.ErrBadCredentials
	}
	return nil
}
