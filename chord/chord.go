package chord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jsphweid/accompanist/pitch"
)

var (
	ErrUnknownScaleDegree = errors.New("unknown scale degree")
	ErrEmptyCandidateSet  = errors.New("empty candidate set")
)

// semitone offset from the tonic for each numeral
var degreeOffsets = map[string]int{
	"I":   0,
	"II":  2,
	"III": 4,
	"IV":  5,
	"V":   7,
	"VI":  9,
	"VII": 11,
}

// Degree is a Roman numeral scale degree. The numeral is stored upper case;
// Minor remembers whether it was written in lower case.
type Degree struct {
	Numeral string
	Minor   bool
}

func ParseDegree(token string) (Degree, error) {
	token = strings.TrimSpace(token)
	upper := strings.ToUpper(token)
	if _, ok := degreeOffsets[upper]; !ok {
		return Degree{}, fmt.Errorf("%w: %q", ErrUnknownScaleDegree, token)
	}
	return Degree{Numeral: upper, Minor: token != upper}, nil
}

func (d Degree) Offset() int {
	return degreeOffsets[d.Numeral]
}

func (d Degree) String() string {
	if d.Minor {
		return strings.ToLower(d.Numeral)
	}
	return d.Numeral
}

func (d Degree) Root(key pitch.Class) pitch.Class {
	return key.Transpose(d.Offset())
}

// Resolve returns the absolute chord root of a numeral in the given key.
func Resolve(degree string, key string) (string, error) {
	d, err := ParseDegree(degree)
	if err != nil {
		return "", err
	}
	k, err := pitch.Parse(key)
	if err != nil {
		return "", err
	}
	return d.Root(k).String(), nil
}

// SelectNearest returns the index of the candidate root closest to melody
// around the pitch-class circle, measured both ways (see pitch.Distance)
// rather than upward only. The first minimum wins ties.
func SelectNearest(melody pitch.Class, candidates []pitch.Class) (int, error) {
	if len(candidates) == 0 {
		return 0, ErrEmptyCandidateSet
	}

	best := 0
	bestDistance := pitch.Distance(melody, candidates[0])
	for i, root := range candidates[1:] {
		if d := pitch.Distance(melody, root); d < bestDistance {
			best, bestDistance = i+1, d
		}
	}
	return best, nil
}

// SelectNearestName is SelectNearest over pitch-class names.
func SelectNearestName(melody string, candidates []string) (int, error) {
	m, err := pitch.Parse(melody)
	if err != nil {
		return 0, err
	}
	roots := make([]pitch.Class, 0, len(candidates))
	for _, name := range candidates {
		root, err := pitch.Parse(name)
		if err != nil {
			return 0, err
		}
		roots = append(roots, root)
	}
	return SelectNearest(m, roots)
}
