package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// 子命令到 API 路径的映射
var readCommands = []struct {
	use, short, path string
}{
	{"status", "Show scheduler and dependency health", "/health"},
	{"metrics", "Show run counters per phase", "/metrics"},
	{"phases", "List the phase table with next due times", "/phases"},
}

var runCmd = &cobra.Command{
	Use:   "run [phase]",
	Short: "Run a phase now and print its run record",
	Long:  `Runs one of collector, planner, executor, reviewer or fullWorkflow synchronously. A phase that is already running is rejected.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, http.MethodPost, "/phases/"+args[0]+"/run")
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler loop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, http.MethodPost, "/scheduler/start")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the scheduler loop and wait for running phases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return request(cmd, http.MethodPost, "/scheduler/stop")
	},
}

func init() {
	for _, rc := range readCommands {
		path := rc.path
		rootCmd.AddCommand(&cobra.Command{
			Use:   rc.use,
			Short: rc.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return request(cmd, http.MethodGet, path)
			},
		})
	}
	rootCmd.AddCommand(runCmd, startCmd, stopCmd)
}

func request(cmd *cobra.Command, method, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := newAPIClient(serverURL, timeout).call(ctx, method, path)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
