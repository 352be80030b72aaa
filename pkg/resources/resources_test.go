package resources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSocketDescriptor() *Descriptor {
	return &Descriptor{
		Sockets: [][]int{
			{0, 1, 2, 3},
			{4, 5, 6, 7},
		},
		Generic: map[string]int{"gpus": 2},
	}
}

func TestFit_ForceCompact(t *testing.T) {
	d := twoSocketDescriptor()
	l := NewLoad(d)

	p, ok := Fit(d, &l, Request{CPUKind: ForceCompact, CPUCount: 4}, time.Hour)
	require.True(t, ok)
	assert.Equal(t, []int{4, 0}, p.SocketCPUs)

	_, ok = Fit(d, &l, Request{CPUKind: ForceCompact, CPUCount: 5}, time.Hour)
	assert.False(t, ok, "5 CPUs cannot fit on a single 4-CPU socket")
}

func TestFit_Compact_SpillsWhenNoSingleSocketFits(t *testing.T) {
	d := twoSocketDescriptor()
	l := NewLoad(d)

	p, ok := Fit(d, &l, Request{CPUKind: Compact, CPUCount: 6}, time.Hour)
	require.True(t, ok)
	assert.Equal(t, 6, p.SocketCPUs[0]+p.SocketCPUs[1])
}

func TestFit_Compact_PrefersSingleSocket(t *testing.T) {
	d := twoSocketDescriptor()
	l := NewLoad(d)

	p, ok := Fit(d, &l, Request{CPUKind: Compact, CPUCount: 3}, time.Hour)
	require.True(t, ok)
	assert.True(t, p.SocketCPUs[0] == 3 || p.SocketCPUs[1] == 3, "compact should land on one socket when it fits")
}

func TestFit_Scatter_SpreadsAcrossSockets(t *testing.T) {
	d := twoSocketDescriptor()
	l := NewLoad(d)

	p, ok := Fit(d, &l, Request{CPUKind: Scatter, CPUCount: 4}, time.Hour)
	require.True(t, ok)
	assert.Equal(t, 2, p.SocketCPUs[0])
	assert.Equal(t, 2, p.SocketCPUs[1])
}

func TestFit_All_RequiresEmptyWorker(t *testing.T) {
	d := twoSocketDescriptor()
	l := NewLoad(d)

	p, ok := Fit(d, &l, Request{CPUKind: All}, time.Hour)
	require.True(t, ok)
	Reserve(&l, p)

	_, ok = Fit(d, &l, Request{CPUKind: All}, time.Hour)
	assert.False(t, ok, "All cannot be granted alongside an existing occupant")
}

func TestFit_GenericResources(t *testing.T) {
	d := twoSocketDescriptor()
	l := NewLoad(d)

	p, ok := Fit(d, &l, Request{CPUKind: Compact, CPUCount: 1, Generic: []GenericRequest{{Name: "gpus", Amount: 2}}}, time.Hour)
	require.True(t, ok)
	Reserve(&l, p)

	_, ok = Fit(d, &l, Request{CPUKind: Compact, CPUCount: 1, Generic: []GenericRequest{{Name: "gpus", Amount: 1}}}, time.Hour)
	assert.False(t, ok, "only 2 gpus exist and both are reserved")
}

func TestFit_Walltime(t *testing.T) {
	limit := time.Hour
	d := &Descriptor{Sockets: [][]int{{0}}, TimeLimit: &limit}
	l := NewLoad(d)

	_, ok := Fit(d, &l, Request{CPUKind: Compact, CPUCount: 1, MinTime: 2 * time.Hour}, time.Hour)
	assert.False(t, ok, "request exceeds the worker's remaining time budget")

	_, ok = Fit(d, &l, Request{CPUKind: Compact, CPUCount: 1, MinTime: 30 * time.Minute}, time.Hour)
	assert.True(t, ok)
}

func TestReserveRelease_RoundTrip(t *testing.T) {
	d := twoSocketDescriptor()
	l := NewLoad(d)

	p, ok := Fit(d, &l, Request{CPUKind: Scatter, CPUCount: 4, Generic: []GenericRequest{{Name: "gpus", Amount: 1}}}, time.Hour)
	require.True(t, ok)
	Reserve(&l, p)
	assert.Equal(t, 4, l.totalCPU())

	Release(&l, p)
	assert.Equal(t, 0, l.totalCPU())
	assert.Equal(t, 0, l.GenericUsed["gpus"])
}

func TestLoadKey_Ordering(t *testing.T) {
	a := LoadKey{CPU: 1, Generic: 5}
	b := LoadKey{CPU: 2, Generic: 0}
	assert.True(t, a.Less(b))

	c := LoadKey{CPU: 1, Generic: 0}
	assert.True(t, c.Less(a))
}
