package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/spirali/hyperqueue/pkg/ids"
)

// Logger is the root logger every component's logger (see WithComponent)
// is derived from.
var Logger zerolog.Logger

// Level is one of the zerolog severities Init accepts from configuration.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init's output: level filtering, JSON vs. console
// rendering, and where to write (nil means stdout).
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init sets the global level and installs Logger, console-rendered for a
// human terminal or newline-delimited JSON for log aggregation, per cfg.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent scopes a logger to one subsystem: core, graph, workertable,
// comm, scheduler, reactor, autoalloc, api, cmd.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithJobID scopes a logger to one JobId, for submit/cancel paths that
// operate on a whole job rather than an individual task.
func WithJobID(id ids.JobId) zerolog.Logger {
	return Logger.With().Uint64("job_id", uint64(id)).Logger()
}

// WithTaskID scopes a logger to one TaskId.
func WithTaskID(id ids.TaskId) zerolog.Logger {
	return Logger.With().Uint64("task_id", uint64(id)).Logger()
}

// WithWorkerID scopes a logger to one WorkerId, for WorkerTable join/lose
// events and Comm traffic addressed to that worker.
func WithWorkerID(id ids.WorkerId) zerolog.Logger {
	return Logger.With().Uint64("worker_id", uint64(id)).Logger()
}

// WithDescriptorID scopes a logger to one autoalloc queue DescriptorId.
func WithDescriptorID(id ids.DescriptorId) zerolog.Logger {
	return Logger.With().Uint64("descriptor_id", uint64(id)).Logger()
}
