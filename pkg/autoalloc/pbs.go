package autoalloc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spirali/hyperqueue/pkg/hqerr"
	"github.com/spirali/hyperqueue/pkg/ids"
)

// PbsHandler shells out to qsub/qdel/qstat, per §4.6.
type PbsHandler struct {
	// WorkDirRoot is the parent directory each allocation's working
	// directory is created under.
	WorkDirRoot string
}

func NewPbsHandler(workDirRoot string) *PbsHandler {
	return &PbsHandler{WorkDirRoot: workDirRoot}
}

func (h *PbsHandler) ScheduleAllocation(ctx context.Context, descriptor ids.DescriptorId, info QueueInfo, workerCount int) (CreatedAllocation, error) {
	workDir, err := makeWorkDir(h.WorkDirRoot, descriptor)
	if err != nil {
		return CreatedAllocation{}, hqerr.Wrap(hqerr.ErrAllocatorFailure, "create working dir: %v", err)
	}

	args := []string{
		"-q", info.Queue,
		"-l", fmt.Sprintf("select=%d", workerCount),
		"-l", fmt.Sprintf("walltime=%s", formatWalltime(info.Timelimit)),
	}
	args = append(args, info.AdditionalArgs...)

	cmd := exec.CommandContext(ctx, "qsub", args...)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return CreatedAllocation{}, hqerr.Wrap(hqerr.ErrAllocatorFailure, "qsub failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}

	id := strings.TrimSpace(stdout.String())
	return CreatedAllocation{Id: ids.AllocationId(id), WorkingDir: workDir}, nil
}

func (h *PbsHandler) GetAllocationStatus(ctx context.Context, id ids.AllocationId) (*AllocationStatus, error) {
	cmd := exec.CommandContext(ctx, "qstat", "-f", string(id))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// qstat exits non-zero once PBS has reaped the job entirely.
		return nil, nil
	}
	return parsePbsStatus(stdout.String()), nil
}

func (h *PbsHandler) RemoveAllocation(ctx context.Context, id ids.AllocationId) error {
	cmd := exec.CommandContext(ctx, "qdel", string(id))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Idempotent: a job PBS has already reaped is not an error here.
		if strings.Contains(stderr.String(), "Unknown Job Id") {
			return nil
		}
		return hqerr.Wrap(hqerr.ErrAllocatorFailure, "qdel failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// parsePbsStatus reads the job_state line out of `qstat -f` output.
func parsePbsStatus(out string) *AllocationStatus {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "job_state") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch strings.TrimSpace(parts[1]) {
		case "Q", "H":
			return &AllocationStatus{Kind: StatusQueued}
		case "R":
			return &AllocationStatus{Kind: StatusRunning}
		case "F":
			return &AllocationStatus{Kind: StatusFinished}
		default:
			return &AllocationStatus{Kind: StatusFailed}
		}
	}
	return &AllocationStatus{Kind: StatusQueued}
}

func makeWorkDir(root string, descriptor ids.DescriptorId) (string, error) {
	dir := root + "/" + descriptor.String() + "-" + uuid.New().String()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func formatWalltime(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
