// Package identity answers "who is acting" for the services.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Provider reports the current actor id, or false when nobody is signed in.
type Provider interface {
	CurrentActorID(ctx context.Context) (string, bool)
}

// Static always reports the same actor. The zero value means signed out.
type Static string

func (s Static) CurrentActorID(context.Context) (string, bool) {
	return string(s), s != ""
}

type contextKey struct{}

// WithActor returns a context that ContextProvider resolves to id.
func WithActor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ContextProvider reads the actor placed on the context by WithActor.
type ContextProvider struct{}

func (ContextProvider) CurrentActorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// AnonymousNamePrefix starts every generated display name.
const AnonymousNamePrefix = "익명"

// DefaultTokenTTL bounds how long a session token can be restored.
const DefaultTokenTTL = 30 * 24 * time.Hour

var ErrInvalidToken = errors.New("invalid session token")

// DisplayName derives the public nickname of an anonymous actor from the
// last four characters of its id.
func DisplayName(actorID string) string {
	suffix := actorID
	if r := []rune(actorID); len(r) > 4 {
		suffix = string(r[len(r)-4:])
	}
	return AnonymousNamePrefix + suffix
}

// AnonymousSession signs actors in without credentials. The actor id lives
// in process memory and survives restarts through a signed token.
type AnonymousSession struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration

	mu      sync.RWMutex
	actorID string
}

// NewAnonymousSession creates a signed-out session.
func NewAnonymousSession(users repository.UserRepository, secret string) *AnonymousSession {
	return &AnonymousSession{users: users, secret: []byte(secret), ttl: DefaultTokenTTL}
}

func (s *AnonymousSession) CurrentActorID(context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actorID, s.actorID != ""
}

// EnsureSignedIn reuses the current actor or mints a new one, makes sure
// its profile exists, and returns the profile with a session token.
func (s *AnonymousSession) EnsureSignedIn(ctx context.Context) (*models.UserProfile, string, error) {
	s.mu.Lock()
	if s.actorID == "" {
		s.actorID = uuid.NewString()
	}
	actorID := s.actorID
	s.mu.Unlock()

	profile, err := s.users.Upsert(ctx, actorID, DisplayName(actorID))
	if err != nil {
		return nil, "", fmt.Errorf("save profile: %w", err)
	}
	token, err := IssueToken(s.secret, actorID, s.ttl)
	if err != nil {
		return nil, "", err
	}
	return profile, token, nil
}

// Restore signs the session in as the actor named by token.
func (s *AnonymousSession) Restore(token string) error {
	actorID, err := ParseToken(s.secret, token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.actorID = actorID
	s.mu.Unlock()
	return nil
}

// SignOut forgets the current actor.
func (s *AnonymousSession) SignOut() {
	s.mu.Lock()
	s.actorID = ""
	s.mu.Unlock()
}

// IssueToken signs an HS256 token whose subject is actorID.
func IssueToken(secret []byte, actorID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   actorID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies token and returns its subject.
func ParseToken(secret []byte, token string) (string, error) {
	parsed, err := jwt.Parse(strings.TrimSpace(token), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
