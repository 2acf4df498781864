package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "accompanist",
	Short: "Real-time chord accompaniment",
	Long: `Follows a melody with a looping chord progression. The key and tempo
are estimated from microphone audio until the first melody note anchors the
progression.`,
	SilenceUsage: true,
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
