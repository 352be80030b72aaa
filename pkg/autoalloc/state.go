package autoalloc

import (
	"sync"
	"time"

	"github.com/spirali/hyperqueue/pkg/ids"
)

// eventRingCapacity bounds each descriptor's event log (§9: "finite
// capacity... not a contract"). It is a fixed constant; pkg/config has no
// setting for it.
const eventRingCapacity = 256

// Descriptor is one configured auto-allocation queue (§3 QueueDescriptor):
// its manager type, user parameters, handler, active allocations and
// bounded event log.
type Descriptor struct {
	mu sync.Mutex

	Id      ids.DescriptorId
	Manager ManagerType
	Info    QueueInfo
	Handler QueueHandler

	allocations map[ids.AllocationId]*Allocation
	events      []Event
}

// NewDescriptor builds an empty Descriptor.
func NewDescriptor(id ids.DescriptorId, manager ManagerType, info QueueInfo, handler QueueHandler) *Descriptor {
	return &Descriptor{
		Id:          id,
		Manager:     manager,
		Info:        info,
		Handler:     handler,
		allocations: make(map[ids.AllocationId]*Allocation),
	}
}

// addEvent appends to the ring, dropping the oldest entry on overflow.
// Caller must hold d.mu.
func (d *Descriptor) addEvent(e Event) {
	d.events = append(d.events, e)
	if len(d.events) > eventRingCapacity {
		d.events = d.events[len(d.events)-eventRingCapacity:]
	}
}

// Events returns a copy of the descriptor's event log, oldest first.
func (d *Descriptor) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Allocations returns a copy of every allocation known to the descriptor.
func (d *Descriptor) Allocations() []Allocation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Allocation, 0, len(d.allocations))
	for _, a := range d.allocations {
		out = append(out, *a)
	}
	return out
}

// ActiveCount returns the number of allocations still Queued or Running.
// Info.Backlog caps only the Queued ones (see Loop.schedule), so this count
// can exceed the backlog once allocations start running.
func (d *Descriptor) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, a := range d.allocations {
		if a.Active() {
			n++
		}
	}
	return n
}

// State is AutoAllocState (§3/§4.5): every configured queue descriptor,
// keyed by DescriptorId.
type State struct {
	mu          sync.Mutex
	descriptors map[ids.DescriptorId]*Descriptor
	nextId      ids.DescriptorId
}

// NewState returns an empty AutoAllocState.
func NewState() *State {
	return &State{descriptors: make(map[ids.DescriptorId]*Descriptor)}
}

// AddQueue registers a new descriptor and returns its assigned id.
func (s *State) AddQueue(manager ManagerType, info QueueInfo, handler QueueHandler) ids.DescriptorId {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextId
	s.nextId++
	s.descriptors[id] = NewDescriptor(id, manager, info, handler)
	return id
}

// RemoveQueue deletes a descriptor from the state. Its allocations are not
// touched: no RemoveAllocation call is made for them, and a later Shutdown
// no longer sees them.
func (s *State) RemoveQueue(id ids.DescriptorId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.descriptors[id]; !ok {
		return false
	}
	delete(s.descriptors, id)
	return true
}

// Descriptor returns the descriptor for id, if present. The returned
// pointer must be re-fetched after any await per §5: it may have been
// removed by a concurrent RemoveQueue while a handler call was pending.
func (s *State) Descriptor(id ids.DescriptorId) (*Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.descriptors[id]
	return d, ok
}

// DescriptorIds returns a snapshot of every currently-registered
// descriptor id, the set AutoAllocLoop iterates at the start of a tick.
func (s *State) DescriptorIds() []ids.DescriptorId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ids.DescriptorId, 0, len(s.descriptors))
	for id := range s.descriptors {
		out = append(out, id)
	}
	return out
}

// List returns every descriptor, for the `autoalloc list` CLI command.
func (s *State) List() []*Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Descriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, d)
	}
	return out
}

// now is a seam tests could override; kept as a plain function (not a
// struct field) since the tick itself takes no wall-clock parameter in the
// original implementation either.
var now = time.Now
