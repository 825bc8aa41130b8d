package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/janhae4/DATN-sub006/internal/ui"
	"github.com/janhae4/DATN-sub006/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "huddle",
	Short:   "Terminal client for huddle group calls over WebRTC",
	Long:    `Huddle is a command-line client for small group calls. It joins a room through the signald signaling server, connects directly to every other participant over WebRTC and keeps the call running from your terminal.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
