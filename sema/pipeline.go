package sema

import (
	"sort"

	"github.com/capslang/caps/ast"
	"github.com/capslang/caps/diag"
)

type channelUse struct {
	writers map[string]bool
	readers map[string]bool
}

func newChannelUse() *channelUse {
	return &channelUse{writers: map[string]bool{}, readers: map[string]bool{}}
}

// Topology is the channel-use graph built for a `@pipeline_safe` group,
// returned so callers outside sema (the CLI's `--dump-topology` flag) can
// render it.
type Topology struct {
	GroupName string
	// Edges are writer -> reader process names, one per channel that has
	// exactly one writer and one reader.
	Edges []Edge
	Order []string // topological process order, empty if not a DAG
}

type Edge struct {
	Channel string
	From    string
	To      string
}

// CheckPipelineSafe validates the `@pipeline_safe` invariants for g: every
// channel has exactly one writer and one reader, the resulting process
// graph is acyclic, and the group's schedule respects that graph's
// topological order. It returns the topology it built even when validation
// fails, since a partial topology is still useful for diagnostics/dumping.
func CheckPipelineSafe(g *ast.GroupDecl, diags *diag.Bag) *Topology {
	uses := map[string]*channelUse{}
	for _, ch := range g.Channels {
		uses[ch.Name] = newChannelUse()
	}

	record := func(proc string, a ast.Action) {
		switch v := a.(type) {
		case *ast.SendAction:
			if u, ok := uses[v.Chan]; ok {
				u.writers[proc] = true
			}
		case *ast.ReceiveAction:
			if u, ok := uses[v.Chan]; ok {
				u.readers[proc] = true
			}
		case *ast.TrySendAction:
			if u, ok := uses[v.Chan]; ok {
				u.writers[proc] = true
			}
		case *ast.TryReceiveAction:
			if u, ok := uses[v.Chan]; ok {
				u.readers[proc] = true
			}
		}
	}

	for _, p := range g.Processes {
		for _, ob := range p.OnBlocks {
			for _, a := range ob.Actions {
				record(p.Name, a)
			}
			if ie, ok := ob.Transition.(*ast.IfElse); ok {
				for _, a := range ie.ThenActions {
					record(p.Name, a)
				}
				for _, a := range ie.ElseActions {
					record(p.Name, a)
				}
			}
		}
	}

	chNames := sortedKeysChan(uses)
	for _, ch := range chNames {
		u := uses[ch]
		if len(u.writers) != 1 || len(u.readers) != 1 {
			diags.Errorf(g.Pos, "@pipeline_safe requires each channel to have exactly 1 writer and 1 reader: channel %q has %d writer(s), %d reader(s)", ch, len(u.writers), len(u.readers))
		}
	}

	adj := map[string][]string{}
	indeg := map[string]int{}
	for _, p := range g.Processes {
		adj[p.Name] = nil
		indeg[p.Name] = 0
	}

	var edges []Edge
	for _, ch := range chNames {
		u := uses[ch]
		if len(u.writers) == 1 && len(u.readers) == 1 {
			w := singleKey(u.writers)
			r := singleKey(u.readers)
			adj[w] = append(adj[w], r)
			indeg[r]++
			edges = append(edges, Edge{Channel: ch, From: w, To: r})
		}
	}

	topo := NewTopology(g.Name, edges)

	// Kahn's algorithm, processed in deterministic (sorted) order so the
	// resulting topo order — and any diagnostics derived from it — do not
	// depend on map iteration order.
	var queue []string
	for _, p := range g.Processes {
		if indeg[p.Name] == 0 {
			queue = append(queue, p.Name)
		}
	}
	sort.Strings(queue)

	var order []string
	for i := 0; i < len(queue); i++ {
		n := queue[i]
		order = append(order, n)
		next := append([]string(nil), adj[n]...)
		sort.Strings(next)
		for _, m := range next {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if len(order) != len(g.Processes) {
		diags.Errorf(g.Pos, "@pipeline_safe topology has a cycle (not a DAG)")
		return topo
	}
	topo.Order = order

	stepIndex := map[string]int{}
	if g.Schedule != nil {
		for i, s := range g.Schedule.Steps {
			stepIndex[s] = i
		}
	}
	for _, e := range edges {
		fi, fok := stepIndex[e.From]
		ti, tok := stepIndex[e.To]
		if fok && tok && fi > ti {
			pos := g.Pos
			if g.Schedule != nil {
				pos = g.Schedule.Pos
			}
			diags.Errorf(pos, "@pipeline_safe schedule violates topological order: %q must be scheduled before %q", e.From, e.To)
		}
	}

	return topo
}

func NewTopology(groupName string, edges []Edge) *Topology {
	return &Topology{GroupName: groupName, Edges: edges}
}

func sortedKeysChan(m map[string]*channelUse) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func singleKey(m map[string]bool) string {
	for k := range m {
		return k
	}
	return ""
}
