package graph

import (
	"math"
	"testing"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Deterministic(t *testing.T) {
	entities := []*common.Entity{
		testEntity("a", "A", common.EntityPerson),
		testEntity("b", "B", common.EntityOrganization),
		testEntity("c", "C", common.EntitySource),
	}
	relationships := []*common.Relationship{
		testRelationship("r1", "a", "b", "employs"),
		testRelationship("r2", "b", "c", "mentioned_in"),
	}
	opts := DefaultLayoutOptions()
	opts.Seed = 42

	first := Layout(entities, relationships, opts)
	second := Layout(entities, relationships, opts)

	assert.Equal(t, first, second)
}

func TestLayout_TwoNodesConverge(t *testing.T) {
	entities := []*common.Entity{
		testEntity("a", "A", common.EntityPerson),
		testEntity("b", "B", common.EntityPerson),
	}
	relationships := []*common.Relationship{testRelationship("r1", "a", "b", "knows")}

	opts := DefaultLayoutOptions()
	opts.Iterations = 300

	res := Layout(entities, relationships, opts)
	require.Len(t, res.Nodes, 2)

	// Repulsion c*k*k/d balances attraction (d-k)*dampening at
	// d = (k + sqrt(k*k + 4*c*k*k/dampening)) / 2.
	k, c, damp := opts.K, opts.C, opts.Dampening
	want := (k + math.Sqrt(k*k+4*c*k*k/damp)) / 2

	got := math.Hypot(res.Nodes[1].X-res.Nodes[0].X, res.Nodes[1].Y-res.Nodes[0].Y)
	assert.InDelta(t, want, got, 0.01)
	assert.Less(t, res.Residual, 1e-3)
}

func TestLayout_ResidualShrinks(t *testing.T) {
	entities := []*common.Entity{
		testEntity("a", "A", common.EntityPerson),
		testEntity("b", "B", common.EntityPerson),
		testEntity("c", "C", common.EntityPerson),
	}
	relationships := []*common.Relationship{
		testRelationship("r1", "a", "b", "knows"),
		testRelationship("r2", "a", "c", "knows"),
	}

	short := DefaultLayoutOptions()
	short.Iterations = 5
	long := DefaultLayoutOptions()
	long.Iterations = 200

	assert.Less(t,
		Layout(entities, relationships, long).Residual,
		Layout(entities, relationships, short).Residual,
	)
}

func TestLayout_Presentation(t *testing.T) {
	person := testEntity("a", "A", common.EntityPerson)
	person.Occurrences = []string{"cap_1", "cap_2"}
	unknown := testEntity("b", "B", common.EntityUnknown)

	rel := testRelationship("r1", "a", "b", "knows")
	rel.Confidence = 0.5
	dangling := testRelationship("r2", "a", "missing", "knows")

	res := Layout([]*common.Entity{person, unknown}, []*common.Relationship{rel, dangling}, DefaultLayoutOptions())

	require.Len(t, res.Nodes, 2)
	assert.Equal(t, 21.0, res.Nodes[0].Radius)
	assert.Equal(t, "#e05555", res.Nodes[0].Color)
	assert.Equal(t, 15.0, res.Nodes[1].Radius)
	assert.Equal(t, defaultEntityColor, res.Nodes[1].Color)

	require.Len(t, res.Edges, 1)
	assert.Equal(t, "r1", res.Edges[0].ID)
	assert.Equal(t, 2.0, res.Edges[0].Width)
}

func TestLayout_Empty(t *testing.T) {
	res := Layout(nil, nil, LayoutOptions{})

	assert.Empty(t, res.Nodes)
	assert.Empty(t, res.Edges)
	assert.Zero(t, res.Residual)
}

func TestLayout_InitialPositionsInBounds(t *testing.T) {
	entities := make([]*common.Entity, 20)
	for i := range entities {
		entities[i] = testEntity(string(rune('a'+i)), string(rune('A'+i)), common.EntityPerson)
	}
	opts := DefaultLayoutOptions()
	opts.Iterations = 1
	opts.C = 1e-12

	res := Layout(entities, nil, opts)

	for _, n := range res.Nodes {
		assert.GreaterOrEqual(t, n.X, -opts.Width/2-1)
		assert.Less(t, n.X, opts.Width/2+1)
		assert.GreaterOrEqual(t, n.Y, -opts.Height/2-1)
		assert.Less(t, n.Y, opts.Height/2+1)
	}
}
