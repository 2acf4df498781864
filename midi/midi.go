package midi

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/smf"
)

func ReadMidiFile(filepath string) (s *smf.SMF, e error) {
	// handle panics
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			s, e = nil, fmt.Errorf("parsing midi file: %v", r)
		}
	}()

	dat, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading midi file: %w", err)
	}
	res, err := smf.ReadFrom(bytes.NewReader(dat))
	if err != nil {
		return nil, fmt.Errorf("parsing midi file: %w", err)
	}
	return res, nil
}

type timedNote struct {
	ticks int64
	key   uint8
}

// MelodyNotes returns the note-on keys of every track merged in time order.
// Notes starting together keep only the highest, which is taken as the
// melody.
func MelodyNotes(s *smf.SMF) []uint8 {
	var notes []timedNote
	for _, track := range s.Tracks {
		var absTicks int64
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			var ch, key, vel uint8
			if ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0 {
				notes = append(notes, timedNote{ticks: absTicks, key: key})
			}
		}
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].ticks < notes[j].ticks
	})

	var res []uint8
	for i, n := range notes {
		if i > 0 && notes[i-1].ticks == n.ticks {
			if n.key > res[len(res)-1] {
				res[len(res)-1] = n.key
			}
			continue
		}
		res = append(res, n.key)
	}
	return res
}

// Melody collapses bursts of note-on messages into a single callback with
// the last note struck.
type Melody struct {
	mu        sync.Mutex
	last      uint8
	debounced func(func())
	onNote    func(key uint8)
}

func NewMelody(wait time.Duration, onNote func(key uint8)) *Melody {
	return &Melody{
		debounced: debounce.New(wait),
		onNote:    onNote,
	}
}

func (m *Melody) Handle(msg gomidi.Message) {
	var ch, key, vel uint8
	if !msg.GetNoteStart(&ch, &key, &vel) {
		return
	}
	m.mu.Lock()
	m.last = key
	m.mu.Unlock()
	m.debounced(m.fire)
}

func (m *Melody) fire() {
	m.mu.Lock()
	key := m.last
	m.mu.Unlock()
	m.onNote(key)
}

// Listen opens the named input port, or the first one when name is empty,
// and feeds it to m until stop is called.
func Listen(name string, m *Melody) (stop func(), err error) {
	var in drivers.In
	if name == "" {
		in, err = gomidi.InPort(0)
	} else {
		in, err = gomidi.FindInPort(name)
	}
	if err != nil {
		return nil, fmt.Errorf("opening midi input %q: %w", name, err)
	}

	stop, err = gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		m.Handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("listening to %v: %w", in, err)
	}
	return stop, nil
}

func CloseDriver() {
	gomidi.CloseDriver()
}
