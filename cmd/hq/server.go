package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spirali/hyperqueue/pkg/api"
	"github.com/spirali/hyperqueue/pkg/autoalloc"
	"github.com/spirali/hyperqueue/pkg/config"
	"github.com/spirali/hyperqueue/pkg/core"
	"github.com/spirali/hyperqueue/pkg/graph"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/log"
	"github.com/spirali/hyperqueue/pkg/metrics"
	"github.com/spirali/hyperqueue/pkg/reactor"
	"github.com/spirali/hyperqueue/pkg/scheduler"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the scheduling and auto-allocation loops in the foreground",
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	logger := log.WithComponent("cmd")

	c := core.New(cfg.MailboxBuffer)
	allocState := autoalloc.NewState()

	sched := scheduler.New(c, cfg.SchedulerInterval, emptyTaskBody)
	react := reactor.New(c, sched.Wake)

	allocLoop := autoalloc.NewLoop(allocState, taskGraphPressure{c}, cfg.AutoAllocInterval)
	collector := metrics.NewCollector(c)

	metrics.RegisterComponent("core", true, "")
	metrics.RegisterComponent("scheduler", true, "")

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(c, react, allocState, cfg.WorkDirRoot),
	}

	sched.Start()
	allocLoop.Start(cmd.Context())
	collector.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("api server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := autoalloc.Shutdown(shutdownCtx, allocState); err != nil {
		logger.Error().Err(err).Msg("autoalloc shutdown had failures")
	}
	allocLoop.Stop()
	sched.Stop()
	collector.Stop()
	return httpServer.Shutdown(shutdownCtx)
}

// emptyTaskBody is a placeholder TaskBody: the wire encoding of a task's
// command/env/stdio description is outside this repository's scope (§6
// notes the worker-facing RPC transport is not specified), so ComputeTask
// messages carry no body yet.
func emptyTaskBody(ids.TaskId) []byte { return nil }

// taskGraphPressure adapts core.Core to autoalloc.PressureSource.
type taskGraphPressure struct {
	core *core.Core
}

func (p taskGraphPressure) WaitingTasksByJob() map[ids.JobId]graph.JobPressure {
	return p.core.Graph.WaitingTasksByJob()
}
