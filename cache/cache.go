// Package cache provides the short-lived diagnosis result cache. The
// cache is advisory: every failure degrades to a cache miss and the
// request proceeds to the provider chain.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/redis/go-redis/v9"

	"xray-diagnosis-service/models"
)

// Store caches normalized diagnoses keyed by request fingerprint.
type Store interface {
	Get(ctx context.Context, key string) (*models.NormalizedDiagnosis, bool)
	Set(ctx context.Context, key string, d *models.NormalizedDiagnosis)
}

// Key fingerprints a request. Two uploads of byte-identical images with
// the same symptoms, mode and region share a cache entry.
func Key(image []byte, symptoms string, mode models.AnalysisMode, region string) string {
	h := sha256.New()
	h.Write(image)
	h.Write([]byte{0})
	h.Write([]byte(symptoms))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(region))
	return "diagnosis:" + hex.EncodeToString(h.Sum(nil))
}

// New picks the backing store: Redis when a URL is configured, otherwise
// an in-process TTL map. A bad Redis URL degrades to the memory store so
// the service still starts.
func New(redisURL string, ttl time.Duration) Store {
	if redisURL == "" {
		return NewMemory(ttl)
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Warn("invalid redis URL, using in-memory cache")
		return NewMemory(ttl)
	}
	return &redisStore{client: redis.NewClient(opts), ttl: ttl}
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *redisStore) Get(ctx context.Context, key string) (*models.NormalizedDiagnosis, bool) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).Warn("cache get failed")
		}
		return nil, false
	}
	var d models.NormalizedDiagnosis
	if err := json.Unmarshal(data, &d); err != nil {
		log.WithError(err).Warn("cache entry corrupt, ignoring")
		return nil, false
	}
	return &d, true
}

func (s *redisStore) Set(ctx context.Context, key string, d *models.NormalizedDiagnosis) {
	data, err := json.Marshal(d)
	if err != nil {
		log.WithError(err).Warn("cache marshal failed")
		return
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		log.WithError(err).Warn("cache set failed")
	}
}

type memoryEntry struct {
	diagnosis models.NormalizedDiagnosis
	expires   time.Time
}

// Memory is a mutex-guarded TTL map for single-instance deployments.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an in-process cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (*models.NormalizedDiagnosis, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	d := e.diagnosis
	return &d, true
}

func (m *Memory) Set(_ context.Context, key string, d *models.NormalizedDiagnosis) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Opportunistic sweep keeps the map bounded without a janitor goroutine.
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{diagnosis: *d, expires: now.Add(m.ttl)}
}
