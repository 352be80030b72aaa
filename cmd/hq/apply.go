// Grounded on cuemby-warren's cmd/warren/apply.go: a single `apply -f file`
// command reading a YAML document and creating server-side resources from
// it, printing one checkmark-style line per resource. Here the resource is
// always a queue descriptor, so there is no per-Kind dispatch.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spirali/hyperqueue/pkg/api"
	"github.com/spirali/hyperqueue/pkg/client"
	"github.com/spirali/hyperqueue/pkg/config"
)

var applyFile string

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Bootstrap queue descriptors declaratively from a YAML file",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "path to a queues.yaml document")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	qf, err := config.LoadQueueFile(applyFile)
	if err != nil {
		return err
	}

	c := client.New(serverAddr)
	for _, q := range qf.Queues {
		resp, err := c.AddQueue(cmd.Context(), api.QueueAddRequest{
			Manager:         q.Manager,
			Name:            q.Name,
			Queue:           q.Queue,
			Backlog:         q.Backlog,
			WorkersPerAlloc: q.WorkersPerAlloc,
			Timelimit:       q.Timelimit,
			AdditionalArgs:  q.AdditionalArgs,
		})
		if err != nil {
			return fmt.Errorf("queue %q: %w", q.Name, err)
		}
		fmt.Printf("✓ queue created: %s (id: %d)\n", q.Name, resp.Id)
	}
	return nil
}
