package runtime

import (
	"sort"

	"github.com/capslang/caps/ir"
	"github.com/johnsiilver/calloptions"
)

// DefaultMaxTicks bounds a run that never reaches a deadlock or an
// all-finished state, so a buggy program halts instead of looping the
// host process forever.
const DefaultMaxTicks = 1_000_000

// Runtime is one group's live execution state: its channels, its process
// instances, and the scheduling position needed to resume a tick loop.
// Grounded on scheduler.cpp's Runtime struct; procOrder is this port's
// addition, since Go map iteration order is randomized and every place
// the original walks procs (all_finished, any_running, rendezvous
// lookup) needs a stable order for the run to be reproducible.
type Runtime struct {
	Group    *ir.Group
	Channels map[string]*Channel
	Procs    map[string]*ProcessInstance

	Tick uint64

	procOrder []string
}

// NewRuntime builds a Runtime for g with every channel and process
// initialized to its declared start state, mirroring init_runtime.
func NewRuntime(g *ir.Group, options ...Option) *Runtime {
	opts := &runtimeOptions{}
	if err := calloptions.ApplyOptions(opts, options); err != nil {
		panic(err)
	}

	rt := &Runtime{
		Group:    g,
		Channels: map[string]*Channel{},
		Procs:    map[string]*ProcessInstance{},
	}

	for _, cd := range g.Channels {
		rt.Channels[cd.Name] = NewChannel(cd.Name, cd.Capacity)
	}

	names := make([]string, 0, len(g.Processes))
	for _, p := range g.Processes {
		pi := newProcessInstance(p)
		if start, ok := opts.startStates[p.Name]; ok {
			pi.State = start
		}
		rt.Procs[p.Name] = pi
		names = append(names, p.Name)
	}
	sort.Strings(names)
	rt.procOrder = names

	return rt
}

// ProcOrder returns the deterministic iteration order over this
// runtime's processes (sorted by name).
func (rt *Runtime) ProcOrder() []string {
	return rt.procOrder
}

// AllFinished reports whether every process has reached Finished.
func (rt *Runtime) AllFinished() bool {
	for _, name := range rt.procOrder {
		if rt.Procs[name].Status != Finished {
			return false
		}
	}
	return true
}

// AnyBlocked reports whether at least one process is Blocked.
func (rt *Runtime) AnyBlocked() bool {
	for _, name := range rt.procOrder {
		if rt.Procs[name].Status == Blocked {
			return true
		}
	}
	return false
}
