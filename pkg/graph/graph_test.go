package graph

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/dukex/flowstudio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(ids ...string) []*models.Node {
	result := make([]*models.Node, 0, len(ids))
	for _, id := range ids {
		result = append(result, &models.Node{ID: id, ComponentType: "text_input"})
	}

	return result
}

func edge(source, target string) *models.Edge {
	return &models.Edge{SourceNodeID: source, SourceHandle: "output", TargetNodeID: target}
}

func TestBuild_Dependencies(t *testing.T) {
	t.Parallel()

	g, err := Build(nodes("a", "b", "c"), []*models.Edge{edge("a", "c"), edge("b", "c"), edge("a", "c")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, g.Nodes())
	assert.Empty(t, g.Dependencies("a"))
	assert.Empty(t, g.Dependencies("b"))
	assert.Equal(t, []string{"a", "b"}, g.Dependencies("c"))
}

func TestBuild_DuplicateNode(t *testing.T) {
	t.Parallel()

	_, err := Build(nodes("a", "b", "a"), nil)
	require.ErrorIs(t, err, ErrDuplicateNode)
	assert.Contains(t, err.Error(), "a")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		nodes    []*models.Node
		edges    []*models.Edge
		wantPath []string
	}{
		{
			name:  "linear",
			nodes: nodes("a", "b", "c"),
			edges: []*models.Edge{edge("a", "b"), edge("b", "c")},
		},
		{
			name:  "diamond",
			nodes: nodes("a", "b", "c", "d"),
			edges: []*models.Edge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")},
		},
		{
			name:     "self loop",
			nodes:    nodes("a"),
			edges:    []*models.Edge{edge("a", "a")},
			wantPath: []string{"a", "a"},
		},
		{
			name:     "three node cycle",
			nodes:    nodes("a", "b", "c"),
			edges:    []*models.Edge{edge("a", "b"), edge("b", "c"), edge("c", "a")},
			wantPath: []string{"a", "b", "c", "a"},
		},
		{
			name:     "cycle behind an acyclic prefix",
			nodes:    nodes("start", "x", "y"),
			edges:    []*models.Edge{edge("start", "x"), edge("x", "y"), edge("y", "x")},
			wantPath: []string{"x", "y", "x"},
		},
		{
			name:  "dangling edge is not a cycle",
			nodes: nodes("a"),
			edges: []*models.Edge{edge("ghost", "a")},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g, err := Build(tc.nodes, tc.edges)
			require.NoError(t, err)

			err = g.Validate()
			if tc.wantPath == nil {
				assert.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, ErrCycleDetected)

			var cycleErr *CycleError
			require.ErrorAs(t, err, &cycleErr)
			assert.Equal(t, tc.wantPath, cycleErr.Path)
		})
	}
}

func TestOrder(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		nodes []*models.Node
		edges []*models.Edge
		want  []string
	}{
		{
			name:  "empty",
			nodes: nil,
			want:  []string{},
		},
		{
			name:  "independent nodes keep input order",
			nodes: nodes("c", "a", "b"),
			want:  []string{"c", "a", "b"},
		},
		{
			name:  "edges listed before their nodes",
			nodes: nodes("output", "process", "input"),
			edges: []*models.Edge{edge("process", "output"), edge("input", "process")},
			want:  []string{"input", "process", "output"},
		},
		{
			name:  "released nodes follow input order",
			nodes: nodes("root", "z", "y"),
			edges: []*models.Edge{edge("root", "y"), edge("root", "z")},
			want:  []string{"root", "z", "y"},
		},
		{
			name:  "diamond",
			nodes: nodes("a", "b", "c", "d"),
			edges: []*models.Edge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")},
			want:  []string{"a", "b", "c", "d"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g, err := Build(tc.nodes, tc.edges)
			require.NoError(t, err)

			order, err := g.Order()
			require.NoError(t, err)
			assert.Equal(t, tc.want, order)
		})
	}
}

func TestOrder_Unresolvable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		edges []*models.Edge
	}{
		{name: "cycle", edges: []*models.Edge{edge("a", "b"), edge("b", "a")}},
		{name: "dangling source", edges: []*models.Edge{edge("ghost", "b")}},
		{name: "dangling target", edges: []*models.Edge{edge("a", "ghost")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g, err := Build(nodes("a", "b"), tc.edges)
			require.NoError(t, err)

			_, err = g.Order()
			assert.ErrorIs(t, err, ErrUnresolvableGraph)

			_, err = g.Layers()
			assert.ErrorIs(t, err, ErrUnresolvableGraph)
		})
	}
}

// Every acyclic graph orders each node exactly once with sources before targets.
func TestOrder_RandomAcyclicGraphs(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(42, 7))

	for iteration := range 50 {
		count := 2 + rng.IntN(20)
		ids := make([]string, count)

		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}

		edges := make([]*models.Edge, 0)

		for i := range count {
			for j := i + 1; j < count; j++ {
				if rng.IntN(4) == 0 {
					edges = append(edges, edge(ids[i], ids[j]))
				}
			}
		}

		shuffled := slices.Clone(ids)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		g, err := Build(nodes(shuffled...), edges)
		require.NoError(t, err)
		require.NoError(t, g.Validate(), "iteration %d", iteration)

		order, err := g.Order()
		require.NoError(t, err)
		require.Len(t, order, count)

		position := make(map[string]int, count)
		for i, id := range order {
			position[id] = i
		}

		require.Len(t, position, count)

		for _, e := range edges {
			assert.Less(t, position[e.SourceNodeID], position[e.TargetNodeID])
		}
	}
}

func TestLayers(t *testing.T) {
	t.Parallel()

	g, err := Build(
		nodes("a", "b", "c", "d", "e"),
		[]*models.Edge{edge("a", "c"), edge("b", "c"), edge("a", "d"), edge("c", "e"), edge("d", "e")},
	)
	require.NoError(t, err)

	layers, err := g.Layers()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, layers)

	cyclic, err := Build(nodes("a", "b"), []*models.Edge{edge("a", "b"), edge("b", "a")})
	require.NoError(t, err)

	_, err = cyclic.Layers()
	assert.ErrorIs(t, err, ErrUnresolvableGraph)
}

func TestBuild_RecordsDanglingEdges(t *testing.T) {
	t.Parallel()

	g, err := Build(nodes("a", "b"), []*models.Edge{edge("a", "b"), edge("a", "ghost"), edge("phantom", "b")})
	require.NoError(t, err)

	require.NoError(t, g.Validate())
	assert.Equal(t, []string{"a -> ghost", "phantom -> b"}, g.Dangling())

	_, err = g.Order()
	require.ErrorIs(t, err, ErrUnresolvableGraph)
	assert.Contains(t, err.Error(), "a -> ghost")
}

func TestPlan(t *testing.T) {
	t.Parallel()

	flow := &models.Flow{
		Nodes: nodes("a", "b"),
		Edges: []*models.Edge{edge("a", "b"), edge("b", "a")},
	}

	_, _, err := Plan(flow)
	require.ErrorIs(t, err, ErrCycleDetected)

	flow.Edges = flow.Edges[:1]

	_, order, err := Plan(flow)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}
