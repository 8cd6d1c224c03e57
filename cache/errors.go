package cache

import "errors"

var (
	// ErrRedisNotAvailable is returned when an operation needs a live
	// Redis connection and none exists.
	ErrRedisNotAvailable = errors.New("redis not available")

	// ErrLockNotAcquired is returned when the distributed lock could not
	// be taken.
	ErrLockNotAcquired = errors.New("could not acquire distributed lock")

	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("session not found")
)
