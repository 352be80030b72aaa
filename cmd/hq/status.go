package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spirali/hyperqueue/pkg/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a snapshot of task and worker state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverAddr)
		resp, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("workers: %d\n", resp.Workers)
		for _, state := range []string{"waiting", "ready", "assigned", "running", "finished", "failed", "cancelled"} {
			fmt.Printf("%-10s %d\n", state, resp.TasksByState[state])
		}
		return nil
	},
}
