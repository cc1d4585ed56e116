package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/ids"
	"payrollhub.org/internal/kv"
)

const (
	sessionKeyPrefix  = "session:"
	sessionTokenBytes = 32
	// DefaultSessionTTL applies when neither the store nor the caller sets one.
	DefaultSessionTTL = 12 * time.Hour
)

// sessionRecord is the JSON value stored at session:<token>.
type sessionRecord struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	BranchID  *string   `json:"branchId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionStore keeps sessions in the shared key-value store.
type SessionStore struct {
	kv     kv.Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// SessionOption configures SessionStore.
type SessionOption func(*SessionStore)

// WithSessionTTL sets the default lifetime of new sessions.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionLogger sets the logger used for dropped records.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSessionStore(store kv.Store, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		kv:     store,
		ttl:    DefaultSessionTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(token string) string { return sessionKeyPrefix + token }

// Create issues a new token for the user. ttl <= 0 uses the store default.
func (s *SessionStore) Create(ctx context.Context, userID, username, branchID string, ttl time.Duration) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	token, err := ids.Secret(sessionTokenBytes)
	if err != nil {
		return Session{}, fault.Internal("generate session token", err)
	}
	now := s.now().UTC()
	sess := Session{
		Token:     token,
		UserID:    userID,
		Username:  username,
		BranchID:  branchID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	rec := sessionRecord{
		UserID:    sess.UserID,
		Username:  sess.Username,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
	if branchID != "" {
		rec.BranchID = &branchID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return Session{}, fault.Internal("encode session", err)
	}
	if err := s.kv.Set(ctx, sessionKey(token), data, ttl); err != nil {
		return Session{}, fault.Internal("store session", err)
	}
	return sess, nil
}

// Get returns the live session behind token. Absent, expired and unreadable
// records all yield ErrSessionNotFound; expired and unreadable ones are
// deleted on the way out.
func (s *SessionStore) Get(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	key := sessionKey(token)
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fault.Internal("read session", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.UserID == "" {
		s.logger.WarnContext(ctx, "session_record_unreadable", "error", err)
		s.drop(ctx, key)
		return Session{}, ErrSessionNotFound
	}
	if !s.now().Before(rec.ExpiresAt) {
		s.drop(ctx, key)
		return Session{}, ErrSessionNotFound
	}

	sess := Session{
		Token:     token,
		UserID:    rec.UserID,
		Username:  rec.Username,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if rec.BranchID != nil {
		sess.BranchID = *rec.BranchID
	}
	return sess, nil
}

// Delete removes the session. Deleting a missing token is not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := s.kv.Delete(ctx, sessionKey(token)); err != nil {
		return fault.Internal("delete session", err)
	}
	return nil
}

func (s *SessionStore) drop(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "session_delete_failed", "error", err)
	}
}
