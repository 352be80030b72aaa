package autoalloc

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spirali/hyperqueue/pkg/hqerr"
	"github.com/spirali/hyperqueue/pkg/ids"
)

// SlurmHandler shells out to sbatch/scancel/squeue, the SLURM counterpart
// of PbsHandler.
type SlurmHandler struct {
	WorkDirRoot string
}

func NewSlurmHandler(workDirRoot string) *SlurmHandler {
	return &SlurmHandler{WorkDirRoot: workDirRoot}
}

func (h *SlurmHandler) ScheduleAllocation(ctx context.Context, descriptor ids.DescriptorId, info QueueInfo, workerCount int) (CreatedAllocation, error) {
	workDir, err := makeWorkDir(h.WorkDirRoot, descriptor)
	if err != nil {
		return CreatedAllocation{}, hqerr.Wrap(hqerr.ErrAllocatorFailure, "create working dir: %v", err)
	}

	args := []string{
		"--partition", info.Queue,
		"--nodes", strconv.Itoa(workerCount),
		"--time", formatWalltime(info.Timelimit),
		"--parsable",
	}
	args = append(args, info.AdditionalArgs...)

	cmd := exec.CommandContext(ctx, "sbatch", args...)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return CreatedAllocation{}, hqerr.Wrap(hqerr.ErrAllocatorFailure, "sbatch failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}

	// --parsable prints "jobid[;cluster]"; keep only the job id.
	id := strings.TrimSpace(stdout.String())
	if idx := strings.IndexByte(id, ';'); idx >= 0 {
		id = id[:idx]
	}
	return CreatedAllocation{Id: ids.AllocationId(id), WorkingDir: workDir}, nil
}

func (h *SlurmHandler) GetAllocationStatus(ctx context.Context, id ids.AllocationId) (*AllocationStatus, error) {
	cmd := exec.CommandContext(ctx, "squeue", "-j", string(id), "-h", "-o", "%T")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, hqerr.Wrap(hqerr.ErrAllocatorFailure, "squeue failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}
	out := strings.TrimSpace(stdout.String())
	if out == "" {
		// squeue drops jobs shortly after completion; unlike qstat it
		// does not report a terminal state for them, so an empty result
		// here means "no longer known" rather than "finished".
		return nil, nil
	}
	return parseSlurmStatus(out), nil
}

func (h *SlurmHandler) RemoveAllocation(ctx context.Context, id ids.AllocationId) error {
	cmd := exec.CommandContext(ctx, "scancel", string(id))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "Invalid job id") {
			return nil
		}
		return hqerr.Wrap(hqerr.ErrAllocatorFailure, "scancel failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func parseSlurmStatus(state string) *AllocationStatus {
	switch strings.TrimSpace(state) {
	case "PENDING", "CONFIGURING":
		return &AllocationStatus{Kind: StatusQueued}
	case "RUNNING", "COMPLETING":
		return &AllocationStatus{Kind: StatusRunning}
	case "COMPLETED":
		return &AllocationStatus{Kind: StatusFinished}
	default:
		return &AllocationStatus{Kind: StatusFailed}
	}
}

