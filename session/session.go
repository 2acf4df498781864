// Package session holds the per-conversation chord progression state.
//
// A Session starts Fresh. The first chord request that carries a melody note
// anchors the progression on the chord nearest that note and moves it to
// Anchored, after which detected key and tempo updates are ignored until the
// next Reset. Every method takes the session lock, so calls on one session
// are applied in a single total order.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/logging"
	"github.com/jsphweid/accompanist/pitch"
)

type State int

const (
	Fresh State = iota
	Anchored
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Anchored:
		return "anchored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Report is the key and tempo handed back to the client.
type Report struct {
	Key   pitch.Class
	Tempo int
}

type Chord struct {
	Chord  pitch.Class
	Degree chord.Degree
	Key    pitch.Class
	Tempo  int
	Index  int
}

type Snapshot struct {
	ID          string
	Progression chord.Progression
	Key         pitch.Class
	Tempo       int
	Cursor      int
	State       State
	UpdatedAt   time.Time
}

type Session struct {
	mu          sync.Mutex
	id          string
	progression chord.Progression
	key         pitch.Class
	tempo       int
	cursor      int
	state       State
	generation  uint64
	updatedAt   time.Time
	logger      hclog.Logger
	now         func() time.Time
}

func New(id string, progression chord.Progression, key pitch.Class, tempo int, logger hclog.Logger) (*Session, error) {
	if len(progression) == 0 {
		return nil, fmt.Errorf("session %v: %w", id, chord.ErrEmptyCandidateSet)
	}
	s := &Session{
		id:          id,
		progression: append(chord.Progression(nil), progression...),
		key:         key,
		tempo:       tempo,
		logger:      logging.OrNull(logger).With("session", id),
		now:         time.Now,
	}
	s.updatedAt = s.now()
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Reset returns the session to Fresh with the given key and tempo.
func (s *Session) Reset(key pitch.Class, tempo int) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key = key
	s.tempo = tempo
	s.cursor = 0
	s.state = Fresh
	s.generation++
	s.touch()
	s.logger.Debug("reset", "key", key, "tempo", tempo)
	return Report{Key: s.key, Tempo: s.tempo}
}

// UpdateDetection overwrites key and tempo while Fresh and is a no-op once
// Anchored. The returned bool reports whether the values were applied.
func (s *Session) UpdateDetection(key pitch.Class, tempo int) (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateDetection(key, tempo)
}

// Generation counts resets. An estimate computed from audio captured in an
// earlier generation is stale.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// UpdateDetectionSince is UpdateDetection for an estimate computed while the
// session was at generation gen. It is dropped if a Reset happened since.
func (s *Session) UpdateDetectionSince(gen uint64, key pitch.Class, tempo int) (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Debug("dropping stale detection", "key", key, "tempo", tempo)
		return Report{Key: s.key, Tempo: s.tempo}, false
	}
	return s.updateDetection(key, tempo)
}

func (s *Session) updateDetection(key pitch.Class, tempo int) (Report, bool) {
	s.touch()
	if s.state == Anchored {
		s.logger.Trace("ignoring detection after anchor", "key", key, "tempo", tempo)
		return Report{Key: s.key, Tempo: s.tempo}, false
	}
	s.key = key
	s.tempo = tempo
	s.logger.Debug("detection applied", "key", key, "tempo", tempo)
	return Report{Key: s.key, Tempo: s.tempo}, true
}

// RequestChord returns the chord at the cursor and advances the cursor. A
// melody note on the first request of a Fresh session first moves the cursor
// to the chord nearest that note.
func (s *Session) RequestChord(melody *pitch.Class) (Chord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.progression.Resolve(s.key)
	if s.state == Fresh && melody != nil {
		idx, err := chord.SelectNearest(*melody, chord.Roots(steps))
		if err != nil {
			return Chord{}, err
		}
		s.cursor = idx
		s.state = Anchored
		s.logger.Debug("anchored", "melody", *melody, "cursor", idx, "key", s.key)
	}

	step := steps[s.cursor]
	res := Chord{
		Chord:  step.Root,
		Degree: step.Degree,
		Key:    s.key,
		Tempo:  s.tempo,
		Index:  s.cursor,
	}
	s.cursor = (s.cursor + 1) % len(s.progression)
	s.touch()
	return res, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:          s.id,
		Progression: append(chord.Progression(nil), s.progression...),
		Key:         s.key,
		Tempo:       s.tempo,
		Cursor:      s.cursor,
		State:       s.state,
		UpdatedAt:   s.updatedAt,
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.updatedAt = s.now()
}
