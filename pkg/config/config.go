// Package config holds the server's environment-driven configuration and
// the YAML queue-bootstrap file format consumed by `hq apply`. Grounded on
// cuemby-warren's cmd/warren root command, which reads its own knobs
// (log level, log format, containerd socket) from flags bound by
// cobra.OnInitialize; this package plays the same role but reads from the
// process environment instead, per SPEC_FULL.md §6's explicit requirement
// that server configuration come from the environment rather than flags.
package config

import (
	"os"
	"strconv"
	"time"
)

// Server holds every knob `hq server` needs to boot the scheduling and
// auto-allocation loops plus the HTTP API.
type Server struct {
	// ListenAddr is the address the JSON API (autoalloc CRUD, submit,
	// health, metrics) binds to.
	ListenAddr string

	// SchedulerInterval is how often SchedulerState runs an Assign/
	// Balance/Finish pass when not woken early by a new event.
	SchedulerInterval time.Duration

	// AutoAllocInterval is the AutoAllocLoop tick period (§4.5: "on the
	// order of ten seconds").
	AutoAllocInterval time.Duration

	// MailboxBuffer is the per-worker outbound message buffer size for
	// the in-memory Comm.
	MailboxBuffer int

	LogLevel  string
	LogJSON   bool

	// WorkDirRoot is where PBS/SLURM allocation working directories are
	// created (see autoalloc.NewPbsHandler / NewSlurmHandler).
	WorkDirRoot string
}

// FromEnv reads a Server config from the process environment, applying
// defaults for anything unset.
func FromEnv() Server {
	return Server{
		ListenAddr:        envOr("HQ_LISTEN_ADDR", "127.0.0.1:9100"),
		SchedulerInterval: envDuration("HQ_SCHEDULER_INTERVAL", 200*time.Millisecond),
		AutoAllocInterval: envDuration("HQ_AUTOALLOC_INTERVAL", 10*time.Second),
		MailboxBuffer:     envInt("HQ_MAILBOX_BUFFER", 64),
		LogLevel:          envOr("HQ_LOG_LEVEL", "info"),
		LogJSON:           envBool("HQ_LOG_JSON", false),
		WorkDirRoot:       envOr("HQ_WORKDIR_ROOT", "/tmp/hq-allocations"),
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
