package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/logging"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/jsphweid/accompanist/util"
)

var ErrSessionNotFound = errors.New("session not found")

// Defaults seed every session the store creates.
type Defaults struct {
	Progression chord.Progression
	Key         pitch.Class
	Tempo       int
}

// Store owns sessions by id. The store lock only guards the map; each
// session serializes its own calls.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults Defaults
	logger   hclog.Logger
	now      func() time.Time
}

func NewStore(defaults Defaults, logger hclog.Logger) (*Store, error) {
	if len(defaults.Progression) == 0 {
		return nil, fmt.Errorf("store defaults: %w", chord.ErrEmptyCandidateSet)
	}
	return &Store{
		sessions: make(map[string]*Session),
		defaults: defaults,
		logger:   logging.OrNull(logger),
		now:      time.Now,
	}, nil
}

func (st *Store) Defaults() Defaults {
	return st.defaults
}

func (st *Store) Create() *Session {
	id := uuid.New().String()
	s, err := New(id, st.defaults.Progression, st.defaults.Key, st.defaults.Tempo, st.logger)
	if err != nil {
		// NewStore rejects an empty progression
		panic(err)
	}
	s.now = st.now
	s.touch()

	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()

	st.logger.Debug("session created", "session", id)
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, id)
	}
	return s, nil
}

func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[id]; !ok {
		return fmt.Errorf("%w: %v", ErrSessionNotFound, id)
	}
	delete(st.sessions, id)
	st.logger.Debug("session deleted", "session", id)
	return nil
}

// List returns the session ids in ascending order.
func (st *Store) List() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return util.GetKeys(st.sessions)
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions untouched for longer than maxIdle and returns their ids.
func (st *Store) Sweep(maxIdle time.Duration) []string {
	cutoff := st.now().Add(-maxIdle)

	st.mu.Lock()
	defer st.mu.Unlock()

	var removed []string
	for _, id := range util.GetKeys(st.sessions) {
		if st.sessions[id].idleSince().Before(cutoff) {
			delete(st.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		st.logger.Info("swept idle sessions", "count", len(removed))
	}
	return removed
}
