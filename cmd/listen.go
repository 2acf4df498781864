package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jsphweid/accompanist/constants"
	"github.com/jsphweid/accompanist/logging"
	"github.com/jsphweid/accompanist/midi"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/jsphweid/accompanist/session"
	"github.com/spf13/cobra"
)

var (
	listenPort     string
	listenFile     string
	listenKey      string
	listenTempo    int
	listenDebounce time.Duration
)

func init() {
	listenCmd.Flags().StringVar(&listenPort, "port-name", "", "MIDI input port (default: first port)")
	listenCmd.Flags().StringVar(&listenFile, "file", "", "replay the melody of a MIDI file instead of a live port")
	listenCmd.Flags().StringVar(&listenKey, "key", constants.GetDefaultKey(), "key of the progression")
	listenCmd.Flags().IntVar(&listenTempo, "tempo", constants.GetDefaultTempo(), "tempo in BPM")
	listenCmd.Flags().DurationVar(&listenDebounce, "debounce", 30*time.Millisecond, "notes struck within this window count as one")
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Prints a chord for every melody note played on a MIDI input",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(listenKey, listenTempo)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if listenFile != "" {
			return replay(out, s, listenFile)
		}
		return listenLive(out, s)
	},
}

func playNote(out io.Writer, s *session.Session, key uint8) error {
	melody := pitch.FromMidi(key)
	c, err := s.RequestChord(&melody)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "melody %-2v -> %-3v %v\n", melody, c.Degree, c.Chord)
	return nil
}

func replay(out io.Writer, s *session.Session, path string) error {
	f, err := midi.ReadMidiFile(path)
	if err != nil {
		return err
	}
	for _, key := range midi.MelodyNotes(f) {
		if err := playNote(out, s, key); err != nil {
			return err
		}
	}
	return nil
}

func listenLive(out io.Writer, s *session.Session) error {
	defer midi.CloseDriver()
	logger := logging.New("listen", constants.GetLogLevel())

	m := midi.NewMelody(listenDebounce, func(key uint8) {
		if err := playNote(out, s, key); err != nil {
			logger.Error("chord request failed", "error", err)
		}
	})
	stop, err := midi.Listen(listenPort, m)
	if err != nil {
		return err
	}
	defer stop()

	logger.Info("listening for notes", "port", listenPort, "key", listenKey)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
