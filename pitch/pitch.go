// Package pitch maps the twelve chromatic note names to semitone offsets
// from C.
package pitch

import (
	"errors"
	"fmt"

	"github.com/jsphweid/accompanist/util"
)

const NumClasses = 12

var ErrUnknownPitchClass = errors.New("unknown pitch class")

// Class is a pitch class, stored as its semitone offset from C.
type Class uint8

var names = [NumClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var indexes = func() map[string]int {
	res := make(map[string]int, NumClasses)
	for i, name := range names {
		res[name] = i
	}
	return res
}()

func IndexOf(name string) (int, error) {
	i, ok := indexes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPitchClass, name)
	}
	return i, nil
}

// NameOf is total: any index is taken mod 12.
func NameOf(index int) string {
	return names[util.Mod(index, NumClasses)]
}

func Parse(name string) (Class, error) {
	i, err := IndexOf(name)
	if err != nil {
		return 0, err
	}
	return Class(i), nil
}

func FromIndex(index int) Class {
	return Class(util.Mod(index, NumClasses))
}

// FromMidi returns the pitch class of a MIDI note number.
func FromMidi(note uint8) Class {
	return Class(note % NumClasses)
}

func (c Class) Index() int {
	return int(c) % NumClasses
}

func (c Class) String() string {
	return NameOf(int(c))
}

// Transpose moves c up by semitones, wrapping around the octave.
func (c Class) Transpose(semitones int) Class {
	return FromIndex(c.Index() + semitones)
}

// Distance is the shortest way around the pitch-class circle from a to b,
// so it is always in [0, 6]. It is not the one-directional (b-a) mod 12:
// D# is one semitone from D either way.
func Distance(a, b Class) int {
	up := util.Mod(b.Index()-a.Index(), NumClasses)
	return util.Min(up, NumClasses-up)
}

func Names() []string {
	res := make([]string, NumClasses)
	copy(res, names[:])
	return res
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
