package cmd

import (
	"os"
	"os/signal"

	"github.com/medibridge/telecall/internal/rtcerr"
	"github.com/medibridge/telecall/internal/ui"
	"github.com/medibridge/telecall/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "telecall",
	Short:   "One-to-one video calls between patients and doctors, straight from the terminal",
	Long:    `TeleCall places and answers real-time video calls using WebRTC technology. A caller rings the other party through a lightweight signaling broker, the callee accepts or declines, and media flows directly between the two endpoints. Call sessions are tracked in a registry so an encounter's call history stays auditable.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		if rtcerr.Actionable(err) {
			ui.PrintInfo("Check your camera, microphone and network, then retry.")
		}
		os.Exit(1)
	}
}
