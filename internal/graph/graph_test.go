package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoSortReferentsFirst(t *testing.T) {
	g := New()
	// subnet depends on vpc, route depends on subnet.
	g.AddEdge("aws.subnet.main", "aws.vpc.main")
	g.AddEdge("aws.route.default", "aws.subnet.main")

	order, err := g.TopoSortReferentsFirst([]string{
		"aws.route.default", "aws.subnet.main", "aws.vpc.main",
	})
	require.NoError(t, err)

	pos := indexOf(order)
	assert.Less(t, pos["aws.vpc.main"], pos["aws.subnet.main"])
	assert.Less(t, pos["aws.subnet.main"], pos["aws.route.default"])
}

func TestTopoSortReferentsLastIsDeleteOrder(t *testing.T) {
	g := New()
	g.AddEdge("aws.subnet.main", "aws.vpc.main")

	order, err := g.TopoSortReferentsLast([]string{"aws.subnet.main", "aws.vpc.main"})
	require.NoError(t, err)
	require.Equal(t, []string{"aws.subnet.main", "aws.vpc.main"}, order)
}

func TestTopoSortDeterministicOnTies(t *testing.T) {
	g := New()
	g.AddNode("aws.vpc.a")
	g.AddNode("aws.vpc.b")
	g.AddNode("aws.vpc.c")

	order, err := g.TopoSortReferentsFirst([]string{"aws.vpc.c", "aws.vpc.a", "aws.vpc.b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"aws.vpc.a", "aws.vpc.b", "aws.vpc.c"}, order)
}

func TestTopoSortDetectsCycle(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	_, err := g.TopoSortReferentsFirst([]string{"a", "b"})
	require.Error(t, err)
}

func TestConnected(t *testing.T) {
	g := New()
	g.AddEdge("aws.subnet.main", "aws.vpc.main")
	g.AddNode("aws.vpc.unrelated")

	assert.True(t, g.Connected("aws.subnet.main", "aws.vpc.main"))
	assert.False(t, g.Connected("aws.subnet.main", "aws.vpc.unrelated"))
	assert.False(t, g.Connected("aws.subnet.main", "does.not.exist"))
}

func indexOf(order []string) map[string]int {
	m := make(map[string]int, len(order))
	for i, k := range order {
		m[k] = i
	}
	return m
}
