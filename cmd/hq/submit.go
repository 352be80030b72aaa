package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spirali/hyperqueue/pkg/api"
	"github.com/spirali/hyperqueue/pkg/client"
)

var (
	submitName     string
	submitCount    int
	submitCPUs     int
	submitCPUKind  string
	submitMaxFails int
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a batch of identical tasks as one job",
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks := make([]api.TaskSpec, submitCount)
		for i := range tasks {
			tasks[i] = api.TaskSpec{
				NumOutputs: 0,
				Keep:       false,
				Request: api.ResourceRequest{
					CPUKind:  submitCPUKind,
					CPUCount: submitCPUs,
				},
			}
		}
		c := client.New(serverAddr)
		resp, err := c.Submit(cmd.Context(), api.SubmitRequest{
			Name:     submitName,
			MaxFails: submitMaxFails,
			Tasks:    tasks,
		})
		if err != nil {
			return err
		}
		fmt.Printf("job %d submitted, %d tasks\n", resp.JobId, len(resp.TaskIds))
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitName, "name", "job", "job name")
	submitCmd.Flags().IntVar(&submitCount, "count", 1, "number of identical tasks to submit")
	submitCmd.Flags().IntVar(&submitCPUs, "cpus", 1, "CPUs requested per task")
	submitCmd.Flags().StringVar(&submitCPUKind, "cpu-kind", "compact", "compact, forceCompact, scatter, or all")
	submitCmd.Flags().IntVar(&submitMaxFails, "max-fails", 0, "max_fails value stored on the job; task failures are not counted against it")
}
