package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spirali/hyperqueue/pkg/api"
	"github.com/spirali/hyperqueue/pkg/client"
	"github.com/spirali/hyperqueue/pkg/ids"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>...",
	Short: "Cancel one or more tasks and their transitive consumers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskIds := make([]ids.TaskId, len(args))
		for i, a := range args {
			n, err := strconv.ParseUint(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", a, err)
			}
			taskIds[i] = ids.TaskId(n)
		}
		c := client.New(serverAddr)
		resp, err := c.Cancel(cmd.Context(), api.CancelRequest{TaskIds: taskIds})
		if err != nil {
			return err
		}
		fmt.Printf("cancelled %d tasks\n", len(resp.Cancelled))
		return nil
	},
}
