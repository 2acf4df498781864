package cmd

import (
	"fmt"
	"io"

	"github.com/jsphweid/accompanist/chord"
	"github.com/jsphweid/accompanist/constants"
	"github.com/jsphweid/accompanist/event"
	"github.com/jsphweid/accompanist/pitch"
	"github.com/jsphweid/accompanist/session"
	"github.com/jsphweid/accompanist/util"
	"github.com/spf13/cobra"
)

var progressionFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&progressionFlag, "progression", "", "comma separated Roman numerals (default from PROGRESSION or I,V,vi,IV)")
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [key]",
	Short: "Prints the progression in a key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := constants.GetDefaultKey()
		if len(args) == 1 {
			name = args[0]
		}
		key, err := pitch.Parse(name)
		if err != nil {
			return err
		}
		p, err := progressionFromFlags()
		if err != nil {
			return err
		}
		printProgression(cmd.OutOrStdout(), p, key)
		return nil
	},
}

func progressionFromFlags() (chord.Progression, error) {
	tokens := util.SplitList(progressionFlag)
	if len(tokens) == 0 {
		tokens = constants.GetProgression()
	}
	return chord.ParseProgression(tokens)
}

func newSession(keyName string, tempo int) (*session.Session, error) {
	key, err := pitch.Parse(keyName)
	if err != nil {
		return nil, err
	}
	p, err := progressionFromFlags()
	if err != nil {
		return nil, err
	}
	return session.New("cli", p, key, tempo, nil)
}

func printProgression(w io.Writer, p chord.Progression, key pitch.Class) {
	res := event.ProgressionIn(p, key)
	fmt.Fprintf(w, "key: %v\n", res.Key)
	for _, c := range res.Chords {
		fmt.Fprintf(w, "%-4v %v\n", c.Degree, c.Chord)
	}
}
