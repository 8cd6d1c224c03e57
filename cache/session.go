package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session is the server-side state behind a session cookie. A voter
// session proves token possession was verified at login; an admin session
// carries the admin role only.
type Session struct {
	VoterID       uint   `json:"voter_id,omitempty"`
	StudentNumber string `json:"student_number,omitempty"`
	Role          string `json:"role"`
}

const (
	RoleVoter = "voter"
	RoleAdmin = "admin"

	// SessionTTL bounds how long a login stays valid.
	SessionTTL = 2 * time.Hour

	sessionKeyPrefix = "session:"
)

// CreateSession stores the session and returns its opaque ID.
func CreateSession(ctx context.Context, session Session) (string, error) {
	id := uuid.New().String()
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to serialize session: %w", err)
	}

	key := sessionKeyPrefix + id

	if mockMode {
		mockSet(key, string(payload), SessionTTL)
		return id, nil
	}

	client, err := GetClient()
	if err != nil {
		return "", err
	}
	if err := client.Set(ctx, key, payload, SessionTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return id, nil
}

// GetSession resolves a session ID, returning ErrSessionNotFound for
// unknown or expired IDs.
func GetSession(ctx context.Context, id string) (*Session, error) {
	key := sessionKeyPrefix + id

	var payload string
	if mockMode {
		value, ok := mockGet(key)
		if !ok {
			return nil, ErrSessionNotFound
		}
		payload = value
	} else {
		client, err := GetClient()
		if err != nil {
			return nil, err
		}
		value, err := client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		if err != nil {
			return nil, err
		}
		payload = value
	}

	var session Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes a session (logout).
func DeleteSession(ctx context.Context, id string) error {
	key := sessionKeyPrefix + id

	if mockMode {
		mockDel(key)
		return nil
	}

	client, err := GetClient()
	if err != nil {
		return err
	}
	return client.Del(ctx, key).Err()
}
