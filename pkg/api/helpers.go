package api

import (
	"strconv"

	"github.com/spirali/hyperqueue/pkg/autoalloc"
	"github.com/spirali/hyperqueue/pkg/ids"
)

func parseDescriptorId(raw string) (ids.DescriptorId, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errBadDescriptorId(raw)
	}
	return ids.DescriptorId(n), nil
}

type errBadDescriptorId string

func (e errBadDescriptorId) Error() string { return "invalid descriptor id: " + string(e) }

func managerString(m autoalloc.ManagerType) string {
	switch m {
	case autoalloc.Pbs:
		return "pbs"
	case autoalloc.Slurm:
		return "slurm"
	default:
		return "unknown"
	}
}

func toQueueInfoResponse(d *autoalloc.Descriptor) QueueInfoResponse {
	return QueueInfoResponse{
		Id:          d.Id,
		Manager:     managerString(d.Manager),
		Name:        d.Info.Name,
		Info:        d.Info,
		Allocations: d.Allocations(),
	}
}
