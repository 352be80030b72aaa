package autoalloc

import (
	"context"

	"github.com/spirali/hyperqueue/pkg/ids"
)

// QueueHandler is the pluggable façade over PBS/SLURM from §4.6. Concrete
// implementations shell out to qsub/sbatch/qdel/scancel/qstat/squeue via
// os/exec; a function-valued fake backs the test suite, analogous to the
// original implementation's generic test harness.
type QueueHandler interface {
	// ScheduleAllocation submits a batch job requesting workerCount nodes
	// for info.Timelimit into info.Queue, with info.AdditionalArgs
	// appended verbatim.
	ScheduleAllocation(ctx context.Context, descriptor ids.DescriptorId, info QueueInfo, workerCount int) (CreatedAllocation, error)

	// GetAllocationStatus returns the allocation's current status, or
	// (nil, nil) if the batch system no longer knows this id.
	GetAllocationStatus(ctx context.Context, id ids.AllocationId) (*AllocationStatus, error)

	// RemoveAllocation is idempotent: it must succeed whether id is
	// queued, running, or already finished.
	RemoveAllocation(ctx context.Context, id ids.AllocationId) error
}
