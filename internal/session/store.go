// Package session holds per-session conversation windows and response caches.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"querybot/internal/common/metrics"
	"querybot/internal/models"
)

// State is one conversation. Callers must hold it through Store.Acquire while mutating it.
type State struct {
	ID        string
	Window    *Window
	CreatedAt time.Time

	store *Store
}

// Lookup returns the cached result for key if it is younger than the store TTL.
func (s *State) Lookup(ctx context.Context, key string) (*models.CacheEntry, error) {
	entry, err := s.store.cache.Get(ctx, s.ID, key)
	if err != nil {
		return nil, err
	}
	if !entry.Fresh(s.store.now(), s.store.ttl) {
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Remember stores a terminal result under key, stamped with the current time.
func (s *State) Remember(ctx context.Context, key string, entry models.CacheEntry) error {
	entry.Timestamp = s.store.now()
	return s.store.cache.Put(ctx, s.ID, key, entry)
}

// AppendTurn records a question/answer pair in the conversation window.
func (s *State) AppendTurn(question, answer string) {
	s.Window.Append(models.Turn{Question: question, Answer: answer, At: s.store.now()})
}

type slot struct {
	state    *State
	lock     chan struct{}
	lastUsed time.Time
}

// Store owns every session. Its map lock only guards lookup and creation; each
// session has its own exclusive lock held for a whole request.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*slot
	windowSize int
	ttl        time.Duration
	cache      Cache
	now        func() time.Time
}

type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(windowSize int, ttl time.Duration, cache Cache, opts ...Option) *Store {
	if cache == nil {
		cache = NewMemoryCache()
	}
	s := &Store{
		sessions:   map[string]*slot{},
		windowSize: windowSize,
		ttl:        ttl,
		cache:      cache,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) slot(id string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.sessions[id]
	if !ok {
		now := s.now()
		sl = &slot{
			state:    &State{ID: id, Window: NewWindow(s.windowSize), CreatedAt: now, store: s},
			lock:     make(chan struct{}, 1),
			lastUsed: now,
		}
		s.sessions[id] = sl
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	return sl
}

// GetOrCreate returns the state for id, registering an empty one if needed.
// It does not take the session lock.
func (s *Store) GetOrCreate(id string) *State {
	return s.slot(id).state
}

// Acquire waits for exclusive access to session id. The returned release
// function must be called exactly once; further calls are ignored.
func (s *Store) Acquire(ctx context.Context, id string) (*State, func(), error) {
	for {
		sl := s.slot(id)
		select {
		case sl.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}

		// the session may have been pruned while we waited
		s.mu.Lock()
		current := s.sessions[id]
		s.mu.Unlock()
		if current != sl {
			<-sl.lock
			continue
		}

		var once sync.Once
		release := func() {
			once.Do(func() {
				s.mu.Lock()
				sl.lastUsed = s.now()
				s.mu.Unlock()
				<-sl.lock
			})
		}
		return sl.state, release, nil
	}
}

// Prune drops sessions idle for longer than idle, along with their cached
// results, and returns how many were removed. Sessions in use are skipped.
func (s *Store) Prune(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var removed []string
	for id, sl := range s.sessions {
		if !sl.lastUsed.Before(cutoff) {
			continue
		}
		select {
		case sl.lock <- struct{}{}:
			delete(s.sessions, id)
			removed = append(removed, id)
			<-sl.lock
		default:
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	var errs []error
	for _, id := range removed {
		if err := s.cache.Clear(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return len(removed), errors.Join(errs...)
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
