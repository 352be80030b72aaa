package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spirali/hyperqueue/pkg/api"
	"github.com/spirali/hyperqueue/pkg/client"
)

var autoallocCmd = &cobra.Command{
	Use:   "autoalloc",
	Short: "Manage auto-allocation queue descriptors",
}

var (
	addBacklog         int
	addWorkersPerAlloc int
	addQueue           string
	addTimelimit       string
	addName            string
)

var autoallocListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every configured queue descriptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverAddr)
		resp, err := c.ListQueues(cmd.Context())
		if err != nil {
			return err
		}
		for _, q := range resp.Queues {
			fmt.Printf("%d\t%s\t%s\tqueue=%s backlog=%d workers_per_alloc=%d allocations=%d\n",
				q.Id, q.Manager, q.Name, q.Info.Queue, q.Info.Backlog, q.Info.WorkersPerAlloc, len(q.Allocations))
		}
		return nil
	},
}

var autoallocEventsCmd = &cobra.Command{
	Use:   "events <queue>",
	Short: "Show the event log for a queue descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid queue id %q: %w", args[0], err)
		}
		c := client.New(serverAddr)
		resp, err := c.QueueEvents(cmd.Context(), id)
		if err != nil {
			return err
		}
		for _, e := range resp.Events {
			fmt.Printf("%s\t%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02T15:04:05"), e.Kind, e.AllocationId, e.Error)
		}
		return nil
	},
}

var infoFilter string

var autoallocInfoCmd = &cobra.Command{
	Use:   "info <queue>",
	Short: "Show a queue descriptor's parameters and allocations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid queue id %q: %w", args[0], err)
		}
		c := client.New(serverAddr)
		resp, err := c.QueueInfo(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("queue %d (%s) %q: queue=%s backlog=%d workers_per_alloc=%d timelimit=%s\n",
			resp.Id, resp.Manager, resp.Name, resp.Info.Queue, resp.Info.Backlog, resp.Info.WorkersPerAlloc, resp.Info.Timelimit)
		for _, a := range resp.Allocations {
			status := string(a.Status.Kind)
			if infoFilter != "" && status != infoFilter {
				continue
			}
			fmt.Printf("  %s\tworkers=%d\tstatus=%s\n", a.Id, a.WorkerCount, status)
		}
		return nil
	},
}

var autoallocAddCmd = &cobra.Command{
	Use:   "add {pbs|slurm}",
	Short: "Register a new auto-allocation queue descriptor",
	Args: func(cmd *cobra.Command, args []string) error {
		// Only the manager counts; everything after "--" is additionalArgs.
		n := len(args)
		if dash := cmd.Flags().ArgsLenAtDash(); dash >= 0 {
			n = dash
		}
		if n != 1 {
			return fmt.Errorf("accepts 1 arg(s) before --, received %d", n)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := args[0]
		if manager != "pbs" && manager != "slurm" {
			return fmt.Errorf("unknown manager %q, expected pbs or slurm", manager)
		}
		c := client.New(serverAddr)
		resp, err := c.AddQueue(cmd.Context(), api.QueueAddRequest{
			Manager:         manager,
			Name:            addName,
			Queue:           addQueue,
			Backlog:         addBacklog,
			WorkersPerAlloc: addWorkersPerAlloc,
			Timelimit:       addTimelimit,
			AdditionalArgs:  additionalArgs(cmd),
		})
		if err != nil {
			return err
		}
		fmt.Printf("queue %d created\n", resp.Id)
		return nil
	},
}

var autoallocRemoveCmd = &cobra.Command{
	Use:   "remove <queue>",
	Short: "Remove a queue descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid queue id %q: %w", args[0], err)
		}
		c := client.New(serverAddr)
		if err := c.RemoveQueue(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("queue %d removed\n", id)
		return nil
	},
}

func init() {
	autoallocAddCmd.Flags().StringVar(&addQueue, "queue", "", "PBS queue or SLURM partition (also accepted as --partition)")
	autoallocAddCmd.Flags().StringVar(&addQueue, "partition", "", "alias for --queue")
	autoallocAddCmd.Flags().IntVar(&addBacklog, "backlog", 4, "maximum simultaneously-active allocations (1..100)")
	autoallocAddCmd.Flags().IntVar(&addWorkersPerAlloc, "workers-per-alloc", 1, "worker nodes requested per allocation")
	autoallocAddCmd.Flags().StringVar(&addTimelimit, "time-limit", "1h", "allocation walltime, e.g. 1h30m")
	autoallocAddCmd.Flags().StringVar(&addName, "name", "", "optional human-readable name")

	autoallocInfoCmd.Flags().StringVar(&infoFilter, "filter", "", "filter allocations by status: queued, running, finished, failed")

	autoallocCmd.AddCommand(autoallocListCmd, autoallocEventsCmd, autoallocInfoCmd, autoallocAddCmd, autoallocRemoveCmd)
}

// additionalArgs returns everything after a literal "--" separator, passed
// verbatim to qsub/sbatch per §6's AddQueueParams.additional_args.
func additionalArgs(cmd *cobra.Command) []string {
	rest := cmd.Flags().Args()
	dash := cmd.Flags().ArgsLenAtDash()
	if dash < 0 || dash >= len(rest) {
		return nil
	}
	return rest[dash:]
}
