// Package livekit issues participant credentials for voice sessions.
package livekit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/learnpro/kt-hub/internal/application/command"
)

// ErrNotConfigured is returned when the API key or secret is missing.
var ErrNotConfigured = errors.New("livekit: api key and secret are required")

// VideoGrant is the room permission embedded in the token.
type VideoGrant struct {
	RoomJoin bool   `json:"roomJoin"`
	Room     string `json:"room"`
}

// Claims are the JWT claims of a participant token.
type Claims struct {
	Name     string      `json:"name,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
	Video    *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs participant tokens with the API secret.
type Issuer struct {
	apiKey    string
	apiSecret []byte
	serverURL string
	ttl       time.Duration
	now       func() time.Time
}

var _ command.VoiceTokenIssuer = (*Issuer)(nil)

// NewIssuer creates a token issuer.
func NewIssuer(apiKey, apiSecret, serverURL string, ttl time.Duration) (*Issuer, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrNotConfigured
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Issuer{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		serverURL: serverURL,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// ServerURL returns the URL clients connect to.
func (i *Issuer) ServerURL() string {
	return i.serverURL
}

// IssueVoiceToken signs a token that lets the identity join the room.
func (i *Issuer) IssueVoiceToken(grant command.VoiceGrant) (string, error) {
	var metadata string
	if len(grant.Metadata) > 0 {
		b, err := json.Marshal(grant.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(b)
	}

	now := i.now()
	claims := &Claims{
		Name:     grant.Name,
		Metadata: metadata,
		Video:    &VideoGrant{RoomJoin: true, Room: grant.Room},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   grant.Identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.apiSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
