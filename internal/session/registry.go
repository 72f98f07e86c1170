// Package session keeps dialogue state between HTTP and WebSocket turns.
// The registry is in-memory only: sessions live for one process lifetime
// and expire on a TTL sweep.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"muza/internal/dialogue"
	"muza/internal/logging"
	"muza/internal/observability"
	"muza/internal/profile"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

const (
	defaultTTL           = 30 * time.Minute
	defaultMaxSessions   = 1000
	defaultSweepInterval = time.Minute
)

// Session is one visitor dialogue in flight.
type Session struct {
	ID           string
	Conversation dialogue.Conversation
	Profile      profile.Profile
	// Question is the clarification currently waiting for an answer, nil
	// once the dialogue terminated.
	Question  *dialogue.Question
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Config tunes the registry. Zero values fall back to defaults.
type Config struct {
	// TTL evicts sessions idle longer than this.
	TTL time.Duration
	// MaxSessions caps the registry; the stalest session is evicted when
	// a new one would exceed it.
	MaxSessions   int
	SweepInterval time.Duration
	Logger        logging.Logger
	Metrics       *observability.MetricsCollector
}

// Registry stores sessions under registry-generated IDs. Safe for
// concurrent use. Call Close to stop the sweeper.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session

	ttl     time.Duration
	maxSize int
	log     logging.Logger
	metrics *observability.MetricsCollector

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRegistry(config Config) *Registry {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxSize := config.MaxSessions
	if maxSize <= 0 {
		maxSize = defaultMaxSessions
	}
	sweep := config.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}
	r := &Registry{
		sessions: make(map[string]Session),
		ttl:      ttl,
		maxSize:  maxSize,
		log:      logging.OrNop(config.Logger),
		metrics:  config.Metrics,
		stopCh:   make(chan struct{}),
	}
	go r.sweepLoop(sweep)
	return r
}

// Close stops the background sweeper. The registry stays usable.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Create registers a new session and returns it with a fresh ID.
func (r *Registry) Create(ctx context.Context, conv dialogue.Conversation, p profile.Profile, q *dialogue.Question) Session {
	now := time.Now()
	s := Session{
		ID:           observability.NewSessionID(),
		Conversation: conv,
		Profile:      p,
		Question:     q,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	if len(r.sessions) >= r.maxSize {
		r.evictStalestLocked(ctx)
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.IncrementActiveSessions(ctx)
	}
	r.log.Debug("session %s created", s.ID)
	return s
}

// Get returns the session. Sessions past their TTL count as not found and
// are dropped on access, so readers never see stale dialogue state.
func (r *Registry) Get(ctx context.Context, id string) (Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	if time.Since(s.UpdatedAt) > r.ttl {
		r.remove(ctx, id)
		return Session{}, ErrNotFound
	}
	return s, nil
}

// Update replaces the dialogue state of an existing session and refreshes
// its TTL.
func (r *Registry) Update(_ context.Context, id string, conv dialogue.Conversation, p profile.Profile, q *dialogue.Question) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	s.Conversation = conv
	s.Profile = p
	s.Question = q
	s.UpdatedAt = time.Now()
	r.sessions[id] = s
	return s, nil
}

// Delete removes the session if present.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if !r.remove(ctx, id) {
		return ErrNotFound
	}
	return nil
}

// Len reports the number of live sessions, expired ones included until the
// next sweep.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) remove(ctx context.Context, id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok && r.metrics != nil {
		r.metrics.DecrementActiveSessions(ctx)
	}
	return ok
}

func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep drops every session idle past the TTL.
func (r *Registry) sweep() {
	now := time.Now()
	ctx := context.Background()

	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if now.Sub(s.UpdatedAt) > r.ttl {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for range expired {
		if r.metrics != nil {
			r.metrics.DecrementActiveSessions(ctx)
		}
	}
	if len(expired) > 0 {
		r.log.Info("swept %d expired sessions", len(expired))
	}
}

// evictStalestLocked drops the least recently updated session. Caller
// holds r.mu.
func (r *Registry) evictStalestLocked(ctx context.Context) {
	var stalest string
	var oldest time.Time
	for id, s := range r.sessions {
		if stalest == "" || s.UpdatedAt.Before(oldest) {
			stalest = id
			oldest = s.UpdatedAt
		}
	}
	if stalest == "" {
		return
	}
	delete(r.sessions, stalest)
	if r.metrics != nil {
		r.metrics.DecrementActiveSessions(ctx)
	}
	r.log.Warn("session registry full, evicted %s", stalest)
}
