package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "A CLI client for the DayPilot planner service",
	Long:  `A command-line interface for inspecting the planning scheduler and triggering phases by hand.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "planner service base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "request timeout; manual phase runs wait for the phase to finish")
}
