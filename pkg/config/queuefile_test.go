package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleQueueFile = `
apiVersion: hq/v1
kind: QueueList
queues:
  - name: gpu-queue
    manager: pbs
    queue: gpu
    backlog: 4
    workersPerAlloc: 2
    timelimit: 1h
    additionalArgs: ["-A", "project123"]
  - name: cpu-queue
    manager: slurm
    queue: compute
    backlog: 2
    workersPerAlloc: 1
    timelimit: 30m
`

func TestLoadQueueFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleQueueFile), 0o644))

	qf, err := LoadQueueFile(path)
	require.NoError(t, err)
	require.Len(t, qf.Queues, 2)

	assert.Equal(t, "gpu-queue", qf.Queues[0].Name)
	assert.Equal(t, "pbs", qf.Queues[0].Manager)
	assert.Equal(t, 4, qf.Queues[0].Backlog)
	assert.Equal(t, []string{"-A", "project123"}, qf.Queues[0].AdditionalArgs)

	d, err := qf.Queues[0].ParseTimelimit()
	require.NoError(t, err)
	assert.Equal(t, "1h0m0s", d.String())
}

func TestLoadQueueFile_RejectsBadTimelimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queues:\n  - name: x\n    timelimit: not-a-duration\n"), 0o644))

	_, err := LoadQueueFile(path)
	assert.Error(t, err)
}

func TestLoadQueueFile_RejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queues:\n  - timelimit: 1h\n"), 0o644))

	_, err := LoadQueueFile(path)
	assert.Error(t, err)
}

func TestLoadQueueFile_RejectsBacklogOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queues.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queues:\n  - name: x\n    timelimit: 1h\n    backlog: 10000\n"), 0o644))

	_, err := LoadQueueFile(path)
	assert.Error(t, err)
}
