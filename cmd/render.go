package cmd

import (
	"fmt"
	"os"

	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/constants"
	"github.com/jsphweid/accompanist/midi"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/jsphweid/accompanist/render"
	"github.com/jsphweid/accompanist/session"
	"github.com/spf13/cobra"
)

var (
	renderKey    string
	renderTempo  int
	renderBars   int
	renderMelody string
	renderFrom   string
)

func init() {
	renderCmd.Flags().StringVar(&renderKey, "key", constants.GetDefaultKey(), "key of the progression")
	renderCmd.Flags().IntVar(&renderTempo, "tempo", constants.GetDefaultTempo(), "tempo in BPM")
	renderCmd.Flags().IntVar(&renderBars, "bars", 8, "number of chords to render, one per bar")
	renderCmd.Flags().StringVar(&renderMelody, "melody", "", "first melody note to anchor on")
	renderCmd.Flags().StringVar(&renderFrom, "from", "", "MIDI file whose first note anchors the progression")
	rootCmd.AddCommand(renderCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render <out.mid>",
	Short: "Writes an accompaniment as a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(renderKey, renderTempo)
		if err != nil {
			return err
		}
		melody, err := anchorNote(renderMelody, renderFrom)
		if err != nil {
			return err
		}
		steps, err := accompany(s, melody, renderBars)
		if err != nil {
			return err
		}

		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		if err := render.Write(f, steps, render.DefaultOptions(renderTempo)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %v chords to %v\n", len(steps), args[0])
		return nil
	},
}

func anchorNote(name string, from string) (*pitch.Class, error) {
	if name != "" {
		m, err := pitch.Parse(name)
		if err != nil {
			return nil, err
		}
		return &m, nil
	}
	if from == "" {
		return nil, nil
	}
	s, err := midi.ReadMidiFile(from)
	if err != nil {
		return nil, err
	}
	notes := midi.MelodyNotes(s)
	if len(notes) == 0 {
		return nil, fmt.Errorf("%v has no notes", from)
	}
	m := pitch.FromMidi(notes[0])
	return &m, nil
}

// accompany asks the session for n chords, anchoring the first on melody.
func accompany(s *session.Session, melody *pitch.Class, n int) ([]chord.Step, error) {
	var steps []chord.Step
	for i := 0; i < n; i++ {
		c, err := s.RequestChord(melody)
		if err != nil {
			return nil, err
		}
		steps = append(steps, chord.Step{Degree: c.Degree, Root: c.Chord})
	}
	return steps, nil
}
