// Package graph turns the nodes and edges of a flow into an ordered execution plan.
package graph

import (
	"fmt"
	"slices"

	"github.com/dukex/flowstudio/pkg/models"
)

// DependencyGraph maps every node to the set of nodes it depends on.
// An edge target depends on the edge source.
type DependencyGraph struct {
	order      []string
	index      map[string]int
	deps       map[string][]string
	dependents map[string][]string
	dangling   []string
}

// Build creates the dependency graph of a flow. Edges pointing at unknown
// nodes are kept as dangling dependencies and make Order fail.
func Build(nodes []*models.Node, edges []*models.Edge) (*DependencyGraph, error) {
	g := &DependencyGraph{
		order:      make([]string, 0, len(nodes)),
		index:      make(map[string]int, len(nodes)),
		deps:       make(map[string][]string, len(nodes)),
		dependents: make(map[string][]string, len(nodes)),
	}

	for _, node := range nodes {
		if _, exists := g.index[node.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
		}

		g.index[node.ID] = len(g.order)
		g.order = append(g.order, node.ID)
		g.deps[node.ID] = []string{}
	}

	for _, edge := range edges {
		source, target := edge.SourceNodeID, edge.TargetNodeID

		if !g.known(source) || !g.known(target) {
			g.dangling = append(g.dangling, source+" -> "+target)
		}

		if !slices.Contains(g.deps[target], source) {
			g.deps[target] = append(g.deps[target], source)
		}

		if !slices.Contains(g.dependents[source], target) {
			g.dependents[source] = append(g.dependents[source], target)
		}
	}

	// Released nodes follow node-list order.
	for source := range g.dependents {
		slices.SortStableFunc(g.dependents[source], func(a, b string) int {
			return g.position(a) - g.position(b)
		})
	}

	return g, nil
}

// Nodes returns the node ids in input order.
func (g *DependencyGraph) Nodes() []string {
	return slices.Clone(g.order)
}

// Dependencies returns the ids a node depends on, in edge order.
func (g *DependencyGraph) Dependencies(id string) []string {
	return slices.Clone(g.deps[id])
}

// Validate walks the graph depth first, visiting unvisited nodes in input
// order, and fails with a *CycleError on the first back-edge.
func (g *DependencyGraph) Validate() error {
	const (
		unvisited = iota
		inStack
		done
	)

	state := make(map[string]int, len(g.order))
	stack := make([]string, 0, len(g.order))

	var visit func(id string) error

	visit = func(id string) error {
		state[id] = inStack
		stack = append(stack, id)

		for _, next := range g.dependents[id] {
			if _, known := g.index[next]; !known {
				continue
			}

			switch state[next] {
			case inStack:
				start := slices.Index(stack, next)
				path := append(slices.Clone(stack[start:]), next)

				return &CycleError{NodeID: id, Path: path}
			case unvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done

		return nil
	}

	for _, id := range g.order {
		if state[id] != unvisited {
			continue
		}

		if err := visit(id); err != nil {
			return err
		}
	}

	return nil
}

// Order returns a topological order computed with Kahn's algorithm. Ties are
// broken by input order.
func (g *DependencyGraph) Order() ([]string, error) {
	if err := g.checkDangling(); err != nil {
		return nil, err
	}

	inDegree := g.inDegrees()

	queue := make([]string, 0, len(g.order))

	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]string, 0, len(g.order))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, id)

		for _, dependent := range g.dependents[id] {
			if _, known := g.index[dependent]; !known {
				continue
			}

			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.order) {
		return nil, fmt.Errorf("%w: ordered %d of %d nodes", ErrUnresolvableGraph, len(result), len(g.order))
	}

	return result, nil
}

// Layers groups nodes into topological layers. Every node of a layer depends
// only on nodes of earlier layers, so a layer can run concurrently.
func (g *DependencyGraph) Layers() ([][]string, error) {
	if err := g.checkDangling(); err != nil {
		return nil, err
	}

	inDegree := g.inDegrees()

	current := make([]string, 0)

	for _, id := range g.order {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	layers := make([][]string, 0)
	placed := 0

	for len(current) > 0 {
		layers = append(layers, current)
		placed += len(current)

		next := make([]string, 0)

		for _, id := range current {
			for _, dependent := range g.dependents[id] {
				if _, known := g.index[dependent]; !known {
					continue
				}

				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}

		slices.SortFunc(next, func(a, b string) int {
			return g.position(a) - g.position(b)
		})

		current = next
	}

	if placed != len(g.order) {
		return nil, fmt.Errorf("%w: layered %d of %d nodes", ErrUnresolvableGraph, placed, len(g.order))
	}

	return layers, nil
}

// Plan builds, validates and orders a flow in one step.
func Plan(flow *models.Flow) (*DependencyGraph, []string, error) {
	g, err := Build(flow.Nodes, flow.Edges)
	if err != nil {
		return nil, nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, nil, err
	}

	order, err := g.Order()
	if err != nil {
		return nil, nil, err
	}

	return g, order, nil
}

func (g *DependencyGraph) inDegrees() map[string]int {
	inDegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.deps[id])
	}

	return inDegree
}

// Dangling returns the edges whose source or target is not a node of the flow.
func (g *DependencyGraph) Dangling() []string {
	return slices.Clone(g.dangling)
}

func (g *DependencyGraph) checkDangling() error {
	if len(g.dangling) == 0 {
		return nil
	}

	return fmt.Errorf("%w: edge %s references an unknown node", ErrUnresolvableGraph, g.dangling[0])
}

func (g *DependencyGraph) known(id string) bool {
	_, ok := g.index[id]

	return ok
}

func (g *DependencyGraph) position(id string) int {
	if pos, ok := g.index[id]; ok {
		return pos
	}

	return len(g.order)
}
