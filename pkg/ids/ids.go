// Package ids defines the opaque identifiers shared across the scheduler
// and allocator: TaskId, WorkerId, DescriptorId and JobId are monotonically
// assigned integers; AllocationId is a string, since it is returned by the
// underlying batch system rather than assigned by this process.
package ids

import "fmt"

type TaskId uint64

func (t TaskId) String() string { return fmt.Sprintf("%d", uint64(t)) }

type WorkerId uint64

func (w WorkerId) String() string { return fmt.Sprintf("%d", uint64(w)) }

type DescriptorId uint64

func (d DescriptorId) String() string { return fmt.Sprintf("%d", uint64(d)) }

type JobId uint64

func (j JobId) String() string { return fmt.Sprintf("%d", uint64(j)) }

// AllocationId is assigned by the underlying batch system (a PBS/SLURM job
// id), not by this process, so it is a plain string rather than a counter.
type AllocationId string
