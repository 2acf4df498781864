// Package render writes accompaniment chords as a Standard MIDI File.
package render

import (
	"errors"
	"io"

	"github.com/jsphweid/accompanist/chord"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const TicksPerQuarter = 960

const BeatsPerBar = 4

var ErrNothingToRender = errors.New("nothing to render")

type Options struct {
	Tempo    int
	Octave   int
	Velocity uint8
	Channel  uint8
}

func DefaultOptions(tempo int) Options {
	return Options{Tempo: tempo, Octave: 3, Velocity: 80}
}

// Accompaniment holds each step for one bar.
func Accompaniment(steps []chord.Step, opts Options) (*smf.SMF, error) {
	if len(steps) == 0 {
		return nil, ErrNothingToRender
	}

	res := smf.New()
	res.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var meta smf.Track
	meta.Add(0, smf.MetaTempo(float64(opts.Tempo)))
	meta.Add(0, smf.MetaMeter(BeatsPerBar, 4))
	meta.Close(0)

	bar := uint32(TicksPerQuarter * BeatsPerBar)
	var track smf.Track
	for _, step := range steps {
		notes := step.Triad(opts.Octave)
		for _, n := range notes {
			track.Add(0, midi.NoteOn(opts.Channel, n, opts.Velocity))
		}
		for i, n := range notes {
			var delta uint32
			if i == 0 {
				delta = bar
			}
			track.Add(delta, midi.NoteOff(opts.Channel, n))
		}
	}
	track.Close(0)

	if err := res.Add(meta); err != nil {
		return nil, err
	}
	if err := res.Add(track); err != nil {
		return nil, err
	}
	return res, nil
}

func Write(w io.Writer, steps []chord.Step, opts Options) error {
	s, err := Accompaniment(steps, opts)
	if err != nil {
		return err
	}
	_, err = s.WriteTo(w)
	return err
}
