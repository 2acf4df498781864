package chord

import (
	"fmt"
	"strings"

	"github.com/jsphweid/accompanist/pitch"
)

var DefaultProgression = []string{"I", "V", "vi", "IV"}

type Progression []Degree

func ParseProgression(tokens []string) (Progression, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("progression: %w", ErrEmptyCandidateSet)
	}
	res := make(Progression, 0, len(tokens))
	for _, token := range tokens {
		d, err := ParseDegree(token)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func MustParseProgression(tokens []string) Progression {
	p, err := ParseProgression(tokens)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Progression) String() string {
	parts := make([]string, len(p))
	for i, d := range p {
		parts[i] = d.String()
	}
	return strings.Join(parts, "-")
}

// Step pairs a degree with its root so the selector and the cursor point at
// the same element.
type Step struct {
	Degree Degree
	Root   pitch.Class
}

func (p Progression) Resolve(key pitch.Class) []Step {
	res := make([]Step, len(p))
	for i, d := range p {
		res[i] = Step{Degree: d, Root: d.Root(key)}
	}
	return res
}

func Roots(steps []Step) []pitch.Class {
	res := make([]pitch.Class, len(steps))
	for i, s := range steps {
		res[i] = s.Root
	}
	return res
}

// Triad voices the step as a root position triad starting at the given
// octave (MIDI octave numbering, C4 = 60). Lower case numerals get a minor
// third.
func (s Step) Triad(octave int) [3]uint8 {
	root := uint8((octave+1)*pitch.NumClasses + s.Root.Index())
	third := uint8(4)
	if s.Degree.Minor {
		third = 3
	}
	return [3]uint8{root, root + third, root + 7}
}
