// Command hq is the meta-scheduler's CLI and server entry point. Grounded
// on cuemby-warren's cmd/warren/main.go: a cobra root command with
// persistent logging flags initialized via cobra.OnInitialize, and one
// subcommand per concern (here: server, autoalloc, apply) instead of
// warren's cluster/manager/worker tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spirali/hyperqueue/pkg/log"
)

var (
	logLevel string
	logJSON  bool
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "hq",
	Short: "hq is a meta-scheduler for many short-lived tasks across HPC allocations",
	Long: `hq distributes a DAG of tasks across dynamically acquired worker
nodes, requesting those nodes from a PBS or SLURM batch system on demand
through its auto-allocation loop.`,
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServerAddr(), "hq server address")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(autoallocCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(cancelCmd)
}

func initLogging() {
	level := log.Level(logLevel)
	log.Init(log.Config{Level: level, JSONOutput: logJSON})
}

func defaultServerAddr() string {
	if v, ok := os.LookupEnv("HQ_LISTEN_ADDR"); ok && v != "" {
		return v
	}
	return "127.0.0.1:9100"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
