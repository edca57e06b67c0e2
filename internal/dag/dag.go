// Package dag declares named units of work with explicit upstream references,
// resolves a deterministic topological order and runs the nodes one at a time,
// threading each node's produced value into its dependents.
package dag

import (
	"fmt"
	"strings"
)

// Graph is a statically declared set of nodes. It is not safe for concurrent
// mutation; build it fully before calling Run.
type Graph struct {
	nodes map[string]*node
	// decl preserves declaration order; it breaks ties in Order.
	decl []string
}

type node struct {
	name  string
	index int
	deps  []string
	run   Func
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// Add declares a node. deps may reference nodes that are added later; they
// are resolved by Order. A node may list the same upstream more than once.
func (g *Graph) Add(name string, deps []string, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("dag: node name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("dag: node %q has no work function", name)
	}
	if _, ok := g.nodes[name]; ok {
		return fmt.Errorf("dag: duplicate node %q", name)
	}
	g.nodes[name] = &node{
		name:  name,
		index: len(g.decl),
		deps:  append([]string(nil), deps...),
		run:   fn,
	}
	g.decl = append(g.decl, name)
	return nil
}

// Len returns the number of declared nodes.
func (g *Graph) Len() int { return len(g.decl) }

// Names returns node names in declaration order.
func (g *Graph) Names() []string { return append([]string(nil), g.decl...) }

// Deps returns the declared upstreams of name.
func (g *Graph) Deps(name string) ([]string, error) {
	n, ok := g.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	return append([]string(nil), n.deps...), nil
}

// validate checks that every upstream exists and no node references itself.
func (g *Graph) validate() error {
	for _, name := range g.decl {
		n := g.nodes[name]
		for _, d := range n.deps {
			if d == name {
				return &CycleError{Nodes: []string{name, name}}
			}
			if _, ok := g.nodes[d]; !ok {
				return fmt.Errorf("%w: %q (upstream of %q)", ErrUnknownNode, d, name)
			}
		}
	}
	return nil
}

// dependents maps each node to the nodes that depend on it, with one entry
// per declared edge.
func (g *Graph) dependents() map[string][]string {
	out := make(map[string][]string, len(g.decl))
	for _, name := range g.decl {
		for _, d := range g.nodes[name].deps {
			out[d] = append(out[d], name)
		}
	}
	return out
}

// Order returns a topological ordering in which every node follows all of
// its upstreams. Among nodes that are ready at the same time the one declared
// first wins, so the order is stable across runs.
func (g *Graph) Order() ([]string, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	indegree := make(map[string]int, len(g.decl))
	for _, name := range g.decl {
		indegree[name] = len(g.nodes[name].deps)
	}
	dependents := g.dependents()

	// ready is kept sorted by declaration index.
	var ready []*node
	for _, name := range g.decl {
		if indegree[name] == 0 {
			ready = append(ready, g.nodes[name])
		}
	}

	order := make([]string, 0, len(g.decl))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n.name)

		for _, dep := range dependents[n.name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertByIndex(ready, g.nodes[dep])
			}
		}
	}

	if len(order) != len(g.decl) {
		return nil, g.findCycle(indegree)
	}
	return order, nil
}

func insertByIndex(ready []*node, n *node) []*node {
	i := 0
	for i < len(ready) && ready[i].index < n.index {
		i++
	}
	ready = append(ready, nil)
	copy(ready[i+1:], ready[i:])
	ready[i] = n
	return ready
}

// findCycle walks upstream edges among the nodes Kahn's algorithm could not
// emit. Every such node has at least one unemitted upstream, so the walk must
// revisit a node; the revisited suffix is the cycle.
func (g *Graph) findCycle(indegree map[string]int) *CycleError {
	var start string
	for _, name := range g.decl {
		if indegree[name] > 0 {
			start = name
			break
		}
	}

	seen := map[string]int{}
	var path []string
	cur := start
	for {
		if i, ok := seen[cur]; ok {
			cycle := append([]string(nil), path[i:]...)
			// path follows upstream edges; flip it so arrows read upstream -> downstream.
			for l, r := 0, len(cycle)-1; l < r; l, r = l+1, r-1 {
				cycle[l], cycle[r] = cycle[r], cycle[l]
			}
			cycle = append(cycle, cycle[0])
			return &CycleError{Nodes: cycle}
		}
		seen[cur] = len(path)
		path = append(path, cur)

		next := ""
		for _, d := range g.nodes[cur].deps {
			if indegree[d] > 0 {
				next = d
				break
			}
		}
		if next == "" {
			// Unreachable for a consistent indegree map.
			return &CycleError{Nodes: path}
		}
		cur = next
	}
}

// Downstream returns every transitive dependent of name in declaration order.
func (g *Graph) Downstream(name string) []string {
	dependents := g.dependents()
	marked := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		for _, d := range dependents[n] {
			if !marked[d] {
				marked[d] = true
				walk(d)
			}
		}
	}
	walk(name)

	out := make([]string, 0, len(marked))
	for _, n := range g.decl {
		if marked[n] {
			out = append(out, n)
		}
	}
	return out
}

// Upstream returns every transitive upstream of name in declaration order.
func (g *Graph) Upstream(name string) []string {
	marked := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		nd, ok := g.nodes[n]
		if !ok {
			return
		}
		for _, d := range nd.deps {
			if !marked[d] {
				marked[d] = true
				walk(d)
			}
		}
	}
	walk(name)

	out := make([]string, 0, len(marked))
	for _, n := range g.decl {
		if marked[n] {
			out = append(out, n)
		}
	}
	return out
}

// Subgraph returns a new graph holding the named nodes and all of their
// upstreams, preserving declaration order.
func (g *Graph) Subgraph(names ...string) (*Graph, error) {
	keep := map[string]bool{}
	for _, name := range names {
		if _, ok := g.nodes[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, name)
		}
		keep[name] = true
		for _, u := range g.Upstream(name) {
			keep[u] = true
		}
	}

	sub := New()
	for _, name := range g.decl {
		if !keep[name] {
			continue
		}
		n := g.nodes[name]
		if err := sub.Add(n.name, n.deps, n.run); err != nil {
			return nil, err
		}
	}
	return sub, nil
}
