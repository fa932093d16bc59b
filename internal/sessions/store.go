// Package sessions keeps caller-registered portal auth tokens in Redis so
// API clients can reference them by an opaque id instead of resending the
// cookie and CSRF token on every request.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/ecw-bridge/internal/ecw"
)

// DefaultTTL matches the portal's idle session timeout.
const DefaultTTL = 30 * time.Minute

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("sessions: session not found")

// Store saves AuthTokens under ecw:session:<id>.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStore builds a store. ttl <= 0 uses DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		panic("sessions: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("ecw.internal.sessions"),
	}
}

// TTL is how long a saved session lives without being touched.
func (s *Store) TTL() time.Duration { return s.ttl }

// Save validates and stores auth, returning its new id.
func (s *Store) Save(ctx context.Context, auth ecw.AuthTokens) (string, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.save")
	defer span.End()

	if err := auth.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(auth)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("sessions: failed to marshal tokens: %w", err)
	}
	id := uuid.NewString()
	if err := s.redis.Set(ctx, sessionKey(id), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("sessions: failed to persist tokens: %w", err)
	}
	return id, nil
}

// Load returns the tokens for id and refreshes its TTL.
func (s *Store) Load(ctx context.Context, id string) (ecw.AuthTokens, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.load")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return ecw.AuthTokens{}, ErrNotFound
	}
	data, err := s.redis.GetEx(ctx, sessionKey(id), s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ecw.AuthTokens{}, ErrNotFound
		}
		span.RecordError(err)
		return ecw.AuthTokens{}, fmt.Errorf("sessions: failed to load tokens: %w", err)
	}

	var auth ecw.AuthTokens
	if err := json.Unmarshal(data, &auth); err != nil {
		span.RecordError(err)
		return ecw.AuthTokens{}, fmt.Errorf("sessions: failed to decode tokens: %w", err)
	}
	return auth, nil
}

// Delete forgets id. Deleting an unknown id returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "sessions.delete")
	defer span.End()

	n, err := s.redis.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: failed to delete tokens: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("ecw:session:%s", id)
}
