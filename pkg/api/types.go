// Package api is the thin HTTP driver SPEC_FULL.md §6 calls for: the CLI
// built in cmd/hq never touches Core/AutoAllocState directly, it talks to
// this JSON API over the loopback address `hq server` binds. Grounded on
// cuemby-warren's pkg/api package (which fronted the manager over gRPC+
// mTLS); grpc and the TLS/cert machinery are dropped here (see DESIGN.md)
// since there is no multi-tenant cluster boundary to defend — `hq server`
// and `hq` run as the same user on the same host, the same trust boundary
// the original implementation's single local daemon assumes.
package api

import (
	"time"

	"github.com/spirali/hyperqueue/pkg/autoalloc"
	"github.com/spirali/hyperqueue/pkg/ids"
	"github.com/spirali/hyperqueue/pkg/resources"
)

// TaskSpec is the wire shape of one task in a SubmitRequest.
type TaskSpec struct {
	NumOutputs int               `json:"numOutputs"`
	Keep       bool              `json:"keep"`
	Deps       []ids.TaskId      `json:"deps,omitempty"`
	Request    ResourceRequest   `json:"request"`
}

// ResourceRequest is the wire shape of resources.Request.
type ResourceRequest struct {
	CPUKind  string            `json:"cpuKind"` // "compact", "forceCompact", "scatter", "all"
	CPUCount int               `json:"cpuCount,omitempty"`
	Generic  map[string]int    `json:"generic,omitempty"`
	MinTime  string            `json:"minTime,omitempty"` // duration string, e.g. "1h"
}

func (r ResourceRequest) toDomain() (resources.Request, error) {
	kind, err := parseCPUKind(r.CPUKind)
	if err != nil {
		return resources.Request{}, err
	}
	var minTime time.Duration
	if r.MinTime != "" {
		minTime, err = time.ParseDuration(r.MinTime)
		if err != nil {
			return resources.Request{}, err
		}
	}
	var generic []resources.GenericRequest
	for name, amount := range r.Generic {
		generic = append(generic, resources.GenericRequest{Name: name, Amount: amount})
	}
	return resources.Request{
		CPUKind:  kind,
		CPUCount: r.CPUCount,
		Generic:  generic,
		MinTime:  minTime,
	}, nil
}

func parseCPUKind(s string) (resources.CPUKind, error) {
	switch s {
	case "", "compact":
		return resources.Compact, nil
	case "forceCompact":
		return resources.ForceCompact, nil
	case "scatter":
		return resources.Scatter, nil
	case "all":
		return resources.All, nil
	default:
		return 0, errUnknownCPUKind(s)
	}
}

type errUnknownCPUKind string

func (e errUnknownCPUKind) Error() string { return "unknown cpuKind: " + string(e) }

// SubmitRequest is the body of POST /v1/jobs.
type SubmitRequest struct {
	Name     string     `json:"name"`
	MaxFails int        `json:"maxFails"`
	Tasks    []TaskSpec `json:"tasks"`
}

// SubmitResponse is the response of POST /v1/jobs.
type SubmitResponse struct {
	JobId   ids.JobId    `json:"jobId"`
	TaskIds []ids.TaskId `json:"taskIds"`
}

// CancelRequest is the body of POST /v1/cancel.
type CancelRequest struct {
	TaskIds []ids.TaskId `json:"taskIds"`
}

// CancelResponse reports which tasks were actually cancelled.
type CancelResponse struct {
	Cancelled []ids.TaskId `json:"cancelled"`
}

// StatusResponse is the response of GET /v1/status: a coarse snapshot over
// the whole task graph, the CLI's `hq status` view.
type StatusResponse struct {
	TasksByState map[string]int `json:"tasksByState"`
	Workers      int            `json:"workers"`
}

// QueueAddRequest is the body of POST /v1/autoalloc.
type QueueAddRequest struct {
	Manager         string   `json:"manager"` // "pbs" or "slurm"
	Name            string   `json:"name"`
	Queue           string   `json:"queue"`
	Backlog         int      `json:"backlog"`
	WorkersPerAlloc int      `json:"workersPerAlloc"`
	Timelimit       string   `json:"timelimit"`
	AdditionalArgs  []string `json:"additionalArgs,omitempty"`
}

// QueueAddResponse reports the assigned descriptor id.
type QueueAddResponse struct {
	Id ids.DescriptorId `json:"id"`
}

// QueueInfoResponse is the response of GET /v1/autoalloc/{id}.
type QueueInfoResponse struct {
	Id          ids.DescriptorId        `json:"id"`
	Manager     string                  `json:"manager"`
	Name        string                  `json:"name"`
	Info        autoalloc.QueueInfo     `json:"info"`
	Allocations []autoalloc.Allocation  `json:"allocations"`
}

// QueueListResponse is the response of GET /v1/autoalloc.
type QueueListResponse struct {
	Queues []QueueInfoResponse `json:"queues"`
}

// QueueEventsResponse is the response of GET /v1/autoalloc/{id}/events.
type QueueEventsResponse struct {
	Events []autoalloc.Event `json:"events"`
}

// ErrorResponse is the JSON body written on any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
