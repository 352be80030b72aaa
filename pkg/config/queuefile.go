package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// QueueFile is the document `hq apply -f queues.yaml` reads: one or more
// auto-allocation queue descriptors to register at startup. Grounded on
// cuemby-warren's cmd/warren/apply.go WarrenResource shape (apiVersion/
// kind/metadata/spec), kept here because the queue descriptor has no
// cluster-wide identity worth a Kind dispatch of its own.
type QueueFile struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Queues     []QueueSpec `yaml:"queues"`
}

// QueueSpec is one declarative queue descriptor, the YAML counterpart of
// autoalloc.QueueInfo plus the manager selector and a working directory
// root. WorkDirRoot is parsed but `hq apply` does not send it to the
// server; every queue uses the server's own working-directory root.
type QueueSpec struct {
	Name            string   `yaml:"name"`
	Manager         string   `yaml:"manager"` // "pbs" or "slurm"
	Queue           string   `yaml:"queue"`
	Backlog         int      `yaml:"backlog"`
	WorkersPerAlloc int      `yaml:"workersPerAlloc"`
	Timelimit       string   `yaml:"timelimit"` // parsed with time.ParseDuration
	AdditionalArgs  []string `yaml:"additionalArgs,omitempty"`
	WorkDirRoot     string   `yaml:"workDirRoot,omitempty"`
}

// ParseTimelimit parses the spec's string timelimit field.
func (q QueueSpec) ParseTimelimit() (time.Duration, error) {
	return time.ParseDuration(q.Timelimit)
}

// LoadQueueFile reads and parses a queue bootstrap file from path.
func LoadQueueFile(path string) (*QueueFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	var qf QueueFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parse queue file: %w", err)
	}
	for i, q := range qf.Queues {
		if q.Name == "" {
			return nil, fmt.Errorf("queue %d: name is required", i)
		}
		if _, err := q.ParseTimelimit(); err != nil {
			return nil, fmt.Errorf("queue %q: invalid timelimit %q: %w", q.Name, q.Timelimit, err)
		}
		if q.Backlog < 1 || q.Backlog > 100 {
			return nil, fmt.Errorf("queue %q: backlog %d out of range 1..=100", q.Name, q.Backlog)
		}
	}
	return &qf, nil
}
