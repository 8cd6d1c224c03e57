package cache

import (
	"sync"
	"time"
)

// In-process fallback state used when Redis is unavailable. Only suitable
// for a single instance; a multi-instance deployment needs real Redis.
var (
	mockMode  bool
	mockMutex sync.Mutex
	mockData  = make(map[string]mockEntry)
)

type mockEntry struct {
	value     string
	expiresAt time.Time
}

func mockSet(key, value string, ttl time.Duration) {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	entry := mockEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	mockData[key] = entry
}

func mockGet(key string) (string, bool) {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	entry, ok := mockData[key]
	if !ok {
		return "", false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(mockData, key)
		return "", false
	}
	return entry.value, true
}

func mockDel(key string) {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	delete(mockData, key)
}
