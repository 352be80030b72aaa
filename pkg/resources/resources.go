// Package resources implements the ResourceModel: a worker's capacity, its
// current load, and the matching rules that decide whether a task's request
// fits a worker and what load it would add.
package resources

import (
	"sort"
	"time"
)

// Descriptor describes a worker's total capacity: CPU ids grouped by socket,
// plus zero or more generic named resources (e.g. "gpus", "mem").
type Descriptor struct {
	// Sockets[i] is the list of CPU ids belonging to socket i.
	Sockets [][]int
	// Generic maps a resource name to its total amount on this worker.
	Generic map[string]int
	// TimeLimit is the worker's remaining lifetime budget, if bounded.
	TimeLimit *time.Duration
}

// CPUCount returns the total number of CPUs across all sockets.
func (d *Descriptor) CPUCount() int {
	n := 0
	for _, s := range d.Sockets {
		n += len(s)
	}
	return n
}

// Load tracks currently-reserved resources on a worker: per-socket used CPU
// counts and per-generic-resource used amounts. Load is always a subset of
// the owning worker's Descriptor.
type Load struct {
	// SocketUsed[i] is the number of CPUs reserved on socket i.
	SocketUsed []int
	// GenericUsed maps resource name to amount currently reserved.
	GenericUsed map[string]int
}

// NewLoad returns a zeroed Load sized to fit descriptor d.
func NewLoad(d *Descriptor) Load {
	return Load{
		SocketUsed:  make([]int, len(d.Sockets)),
		GenericUsed: make(map[string]int),
	}
}

func (l *Load) totalCPU() int {
	n := 0
	for _, u := range l.SocketUsed {
		n += u
	}
	return n
}

func (l *Load) freeOnSocket(d *Descriptor, socket int) int {
	return len(d.Sockets[socket]) - l.SocketUsed[socket]
}

func (l *Load) freeGeneric(d *Descriptor, name string) int {
	return d.Generic[name] - l.GenericUsed[name]
}

// CPUKind selects how a task's CPU request is packed onto sockets.
type CPUKind int

const (
	// Compact requests n CPUs, preferring a single socket but spreading
	// across sockets when one socket alone cannot provide n.
	Compact CPUKind = iota
	// ForceCompact requests n CPUs that must all come from one socket.
	ForceCompact
	// Scatter requests n CPUs spread across as many sockets as possible.
	Scatter
	// All requests every CPU of the worker.
	All
)

// GenericRequest asks for `Amount` units of a named generic resource.
type GenericRequest struct {
	Name   string
	Amount int
}

// Request is a task's resource request: the CPU shape, zero or more
// generic-resource requests, and a minimum walltime the assigned worker must
// still be able to provide.
type Request struct {
	CPUKind    CPUKind
	CPUCount   int // ignored when CPUKind == All
	Generic    []GenericRequest
	MinTime    time.Duration
}

// Placement records where a feasible request would land: the CPU ids
// reserved per socket and the generic amounts reserved. It is the output of
// Fit and the input to Reserve/Release.
type Placement struct {
	// SocketCPUs[i] is the number of CPUs this placement reserves on
	// socket i (parallel to Descriptor.Sockets / Load.SocketUsed).
	SocketCPUs []int
	Generic    map[string]int
}

// Fit decides whether req is feasible against worker capacity d carrying
// load l, and if so returns the concrete Placement it would occupy. It does
// not mutate l.
func Fit(d *Descriptor, l *Load, req Request, remaining time.Duration) (Placement, bool) {
	if d.TimeLimit != nil && remaining < req.MinTime {
		return Placement{}, false
	}

	placement := Placement{
		SocketCPUs: make([]int, len(d.Sockets)),
		Generic:    make(map[string]int, len(req.Generic)),
	}

	for _, g := range req.Generic {
		if l.freeGeneric(d, g.Name) < g.Amount {
			return Placement{}, false
		}
		placement.Generic[g.Name] = g.Amount
	}

	switch req.CPUKind {
	case All:
		for i := range d.Sockets {
			placement.SocketCPUs[i] = len(d.Sockets[i]) - l.SocketUsed[i]
		}
		if l.totalCPU() != 0 {
			// Capacity is already partially reserved: "All" cannot be
			// satisfied alongside another occupant.
			return Placement{}, false
		}
	case ForceCompact:
		ok := false
		for i := range d.Sockets {
			if l.freeOnSocket(d, i) >= req.CPUCount {
				placement.SocketCPUs[i] = req.CPUCount
				ok = true
				break
			}
		}
		if !ok {
			return Placement{}, false
		}
	case Compact:
		if !fitCompact(d, l, req.CPUCount, &placement) {
			return Placement{}, false
		}
	case Scatter:
		// One CPU per socket per round, so the request touches as many
		// sockets as possible.
		for left := req.CPUCount; left > 0; {
			took := false
			for i := range d.Sockets {
				if left > 0 && l.freeOnSocket(d, i) > placement.SocketCPUs[i] {
					placement.SocketCPUs[i]++
					left--
					took = true
				}
			}
			if !took {
				return Placement{}, false
			}
		}
	}

	return placement, true
}

// fitCompact tries a single socket first (like ForceCompact), and only
// spreads across sockets when no single socket has enough free CPUs.
func fitCompact(d *Descriptor, l *Load, n int, placement *Placement) bool {
	for i := range d.Sockets {
		if l.freeOnSocket(d, i) >= n {
			placement.SocketCPUs[i] = n
			return true
		}
	}
	return fitScatter(d, l, n, placement)
}

// fitScatter places n CPUs by filling the sockets with the most free CPUs
// first, so they land on as few sockets as possible. fitCompact uses it when
// no single socket fits; Scatter requests are spread in Fit itself.
func fitScatter(d *Descriptor, l *Load, n int, placement *Placement) bool {
	type free struct {
		socket int
		n      int
	}
	frees := make([]free, len(d.Sockets))
	for i := range d.Sockets {
		frees[i] = free{i, l.freeOnSocket(d, i)}
	}
	sort.Slice(frees, func(i, j int) bool { return frees[i].n > frees[j].n })

	remaining := n
	for _, f := range frees {
		if remaining == 0 {
			break
		}
		take := f.n
		if take > remaining {
			take = remaining
		}
		if take > 0 {
			placement.SocketCPUs[f.socket] += take
			remaining -= take
		}
	}
	return remaining == 0
}

// Reserve commits a Placement into l.
func Reserve(l *Load, p Placement) {
	for i, n := range p.SocketCPUs {
		l.SocketUsed[i] += n
	}
	for name, n := range p.Generic {
		l.GenericUsed[name] += n
	}
}

// Release undoes a previously-reserved Placement from l.
func Release(l *Load, p Placement) {
	for i, n := range p.SocketCPUs {
		l.SocketUsed[i] -= n
	}
	for name, n := range p.Generic {
		l.GenericUsed[name] -= n
	}
}

// LoadKey is the comparable projection of a worker's load used to order
// scheduling candidates: total CPU used, then total generic-resource amount
// used, summed across all names. WorkerId is appended by the caller to break
// ties deterministically; see pkg/scheduler.
type LoadKey struct {
	CPU     int
	Generic int
}

// Key computes the post-placement LoadKey of l as if p were already
// reserved, without mutating l.
func Key(l *Load, p Placement) LoadKey {
	cpu := l.totalCPU()
	for _, n := range p.SocketCPUs {
		cpu += n
	}
	generic := 0
	for name, n := range l.GenericUsed {
		generic += n
		_ = name
	}
	for _, n := range p.Generic {
		generic += n
	}
	return LoadKey{CPU: cpu, Generic: generic}
}

// Less orders two LoadKeys lexicographically (CPU, then Generic).
func (k LoadKey) Less(other LoadKey) bool {
	if k.CPU != other.CPU {
		return k.CPU < other.CPU
	}
	return k.Generic < other.Generic
}
