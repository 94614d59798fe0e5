package graph

import (
	"testing"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainIndex builds A -employs-> B -owns-> C plus an isolated D.
func chainIndex() *Index {
	entities := []*common.Entity{
		testEntity("a", "A", common.EntityPerson),
		testEntity("b", "B", common.EntityOrganization),
		testEntity("c", "C", common.EntityAsset),
		testEntity("d", "D", common.EntityLocation),
	}
	relationships := []*common.Relationship{
		testRelationship("r1", "a", "b", "employs"),
		testRelationship("r2", "b", "c", "owns"),
	}
	return NewIndex(entities, relationships)
}

func pathNames(res PathResult) []string {
	names := make([]string, len(res.Path))
	for i, s := range res.Path {
		names[i] = s.Entity
	}
	return names
}

func TestShortestPath_TwoHops(t *testing.T) {
	res := chainIndex().ShortestPath("A", "C")

	require.True(t, res.Found, res.Error)
	assert.Equal(t, 2, res.Length)
	assert.Equal(t, []string{"A", "B", "C"}, pathNames(res))

	require.NotNil(t, res.Path[0].Relationship)
	assert.Equal(t, "employs", res.Path[0].Relationship.Label)
	assert.False(t, res.Path[0].Relationship.Reversed)
	require.NotNil(t, res.Path[1].Relationship)
	assert.Equal(t, "owns", res.Path[1].Relationship.Label)
	assert.Nil(t, res.Path[2].Relationship)
	assert.Empty(t, res.Note)
}

func TestShortestPath_ReverseDirection(t *testing.T) {
	res := chainIndex().ShortestPath("C", "A")

	require.True(t, res.Found)
	assert.Equal(t, []string{"C", "B", "A"}, pathNames(res))

	first := res.Path[0].Relationship
	require.NotNil(t, first)
	assert.True(t, first.Reversed)
	assert.Equal(t, "B", first.From)
	assert.Equal(t, "C", first.To)
}

func TestShortestPath_Symmetric(t *testing.T) {
	idx := chainIndex()
	pairs := [][2]string{{"A", "B"}, {"A", "C"}, {"B", "C"}, {"A", "D"}}

	for _, p := range pairs {
		fwd := idx.ShortestPath(p[0], p[1])
		back := idx.ShortestPath(p[1], p[0])
		assert.Equal(t, fwd.Found, back.Found, "%s-%s", p[0], p[1])
		assert.Equal(t, fwd.Length, back.Length, "%s-%s", p[0], p[1])
	}
}

func TestShortestPath_SameEntity(t *testing.T) {
	res := chainIndex().ShortestPath("B", "b")

	require.True(t, res.Found)
	assert.Equal(t, 0, res.Length)
	require.Len(t, res.Path, 1)
	assert.Equal(t, "B", res.Path[0].Entity)
	assert.Nil(t, res.Path[0].Relationship)
}

func TestShortestPath_NotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		src, dst  string
		wantError string
	}{
		{
			name:      "unknown source",
			src:       "Q",
			dst:       "A",
			wantError: `Source entity not found: "Q". Available entities: A, B, C, D`,
		},
		{
			name:      "unknown target",
			src:       "A",
			dst:       "Q",
			wantError: `Target entity not found: "Q". Available entities: A, B, C, D`,
		},
		{
			name:      "disconnected",
			src:       "A",
			dst:       "D",
			wantError: "No path found between entities",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			res := chainIndex().ShortestPath(tc.src, tc.dst)
			assert.False(t, res.Found)
			assert.Equal(t, -1, res.Length)
			assert.Equal(t, tc.wantError, res.Error)
			assert.Equal(t, SearchedFor{Source: tc.src, Target: tc.dst}, res.SearchedFor)
		})
	}
}

func TestShortestPath_FuzzyNote(t *testing.T) {
	entities := []*common.Entity{
		testEntity("a", "Acme Corp", common.EntityOrganization),
		testEntity("b", "Jane Doe", common.EntityPerson),
	}
	idx := NewIndex(entities, []*common.Relationship{testRelationship("r1", "b", "a", "director_of")})

	res := idx.ShortestPath("acme corp.", "Jane Doe")

	require.True(t, res.Found)
	assert.Equal(t, "Acme Corp", res.Source)
	assert.NotEmpty(t, res.Note)
	assert.True(t, res.Path[0].Relationship.Reversed)
}

func TestShortestPath_IgnoresDanglingRelationship(t *testing.T) {
	entities := []*common.Entity{
		testEntity("a", "A", common.EntityPerson),
		testEntity("b", "B", common.EntityPerson),
	}
	idx := NewIndex(entities, []*common.Relationship{testRelationship("r1", "a", "gone", "knows")})

	res := idx.ShortestPath("A", "B")
	assert.False(t, res.Found)
}

func relatedNames(res NeighborhoodResult) map[string]int {
	out := make(map[string]int, len(res.RelatedEntities))
	for _, r := range res.RelatedEntities {
		out[r.Name] = r.Depth
	}
	return out
}

func TestNeighborhood(t *testing.T) {
	t.Parallel()

	// A - B - C - D - E with an extra shortcut A - C.
	entities := []*common.Entity{
		testEntity("a", "A", common.EntityPerson),
		testEntity("b", "B", common.EntityPerson),
		testEntity("c", "C", common.EntityPerson),
		testEntity("d", "D", common.EntityPerson),
		testEntity("e", "E", common.EntityPerson),
	}
	relationships := []*common.Relationship{
		testRelationship("r1", "a", "b", "knows"),
		testRelationship("r2", "b", "c", "knows"),
		testRelationship("r3", "c", "d", "knows"),
		testRelationship("r4", "d", "e", "knows"),
		testRelationship("r5", "c", "a", "knows"),
	}

	tests := []struct {
		name      string
		query     string
		depth     int
		wantDepth int
		want      map[string]int
	}{
		{
			name:      "default depth",
			query:     "A",
			depth:     0,
			wantDepth: 2,
			want:      map[string]int{"B": 1, "C": 1, "D": 2},
		},
		{
			name:      "depth one",
			query:     "E",
			depth:     1,
			wantDepth: 1,
			want:      map[string]int{"D": 1},
		},
		{
			name:      "capped at three",
			query:     "E",
			depth:     10,
			wantDepth: 3,
			want:      map[string]int{"D": 1, "C": 2, "B": 3, "A": 3},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			res := NewIndex(entities, relationships).Neighborhood(tc.query, tc.depth)
			require.True(t, res.Found)
			assert.Equal(t, tc.wantDepth, res.MaxDepth)
			assert.Equal(t, tc.want, relatedNames(res))
			assert.Equal(t, len(tc.want), res.TotalFound)
		})
	}
}

func TestNeighborhood_NotFound(t *testing.T) {
	res := chainIndex().Neighborhood("Q", 2)

	assert.False(t, res.Found)
	assert.Empty(t, res.RelatedEntities)
	assert.Contains(t, res.Error, "Available entities: A, B, C, D")
}

func TestEntityDetails(t *testing.T) {
	src := testEntity("s", "Company Register", common.EntitySource)
	src.Attributes[common.AttrURL] = "https://register.example/acme"

	acme := testEntity("a", "Acme Corp", common.EntityOrganization, "ACME")
	acme.Occurrences = []string{"cap_1", "cap_2"}
	acme.SourceLinks = []common.SourceLink{{SourceEntityID: "s", Description: "Registered 2001"}}

	jane := testEntity("j", "Jane Doe", common.EntityPerson)

	idx := NewIndex(
		[]*common.Entity{src, acme, jane},
		[]*common.Relationship{
			testRelationship("r1", "j", "a", "director_of"),
			testRelationship("r2", "a", "a", "subsidiary_of"),
		},
	)

	res := idx.EntityDetails("acme")

	require.True(t, res.Found)
	assert.Equal(t, "Acme Corp", res.Name)
	assert.Equal(t, 2, res.Occurrences)
	require.Len(t, res.Relationships, 2)
	assert.Equal(t, "Jane Doe", res.Relationships[0].From)
	assert.Equal(t, "Acme Corp", res.Relationships[0].To)
	assert.Equal(t, "subsidiary_of", res.Relationships[1].Type)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "Company Register", res.Sources[0].Name)
	assert.Equal(t, "https://register.example/acme", res.Sources[0].URL)
}
