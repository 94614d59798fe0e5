package graph

import (
	"testing"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntity(id, name string, typ common.EntityType, aliases ...string) *common.Entity {
	if aliases == nil {
		aliases = []string{}
	}
	return &common.Entity{
		ID:          id,
		Name:        name,
		Type:        typ,
		Aliases:     aliases,
		Attributes:  map[string]any{},
		Occurrences: []string{},
		Flags:       []string{},
		SourceLinks: []common.SourceLink{},
	}
}

func testRelationship(id, src, tgt, typ string) *common.Relationship {
	return &common.Relationship{
		ID:                id,
		SourceID:          src,
		TargetID:          tgt,
		Type:              typ,
		Label:             typ,
		Confidence:        0.7,
		Evidence:          []string{},
		Attributes:        map[string]any{},
		SourcesSupporting: []common.SupportingSource{},
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	candidates := []*common.Entity{
		testEntity("ent_1", "Acme Corporation", common.EntityOrganization, "ACME"),
		testEntity("ent_2", "John Smith", common.EntityPerson),
		testEntity("ent_3", "Müller GmbH", common.EntityOrganization),
	}

	tests := []struct {
		name      string
		query     string
		wantID    string
		wantStage MatchStage
	}{
		{name: "exact name ignores case", query: "john smith", wantID: "ent_2", wantStage: StageExact},
		{name: "exact alias", query: "acme", wantID: "ent_1", wantStage: StageExact},
		{name: "normalized folds diacritics", query: "Muller GmbH", wantID: "ent_3", wantStage: StageNormalized},
		{name: "normalized strips punctuation", query: "John-Smith!", wantID: "ent_2", wantStage: StageNormalized},
		{name: "substring", query: "Smith", wantID: "ent_2", wantStage: StageSubstring},
		{name: "similarity above threshold", query: "Jon Smyth", wantID: "ent_2", wantStage: StageSimilarity},
		{name: "no match", query: "Zeta Holdings", wantStage: StageNone},
		{name: "empty query", query: "   ", wantStage: StageNone},
		{name: "punctuation only", query: "...", wantStage: StageNone},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			m := Resolver{}.Resolve(tc.query, candidates)
			assert.Equal(t, tc.wantStage, m.Stage)
			if tc.wantID == "" {
				require.False(t, m.Found())
				assert.Equal(t, "Acme Corporation, John Smith, Müller GmbH", m.Preview)
				return
			}
			require.True(t, m.Found())
			assert.Equal(t, tc.wantID, m.Entity.ID)
		})
	}
}

func TestResolve_NormalizedPunctuation(t *testing.T) {
	candidates := []*common.Entity{testEntity("ent_1", "Acme Corp", common.EntityOrganization)}

	m := Resolver{}.Resolve("Acme Corp.", candidates)

	require.True(t, m.Found())
	assert.Equal(t, "ent_1", m.Entity.ID)
	assert.Equal(t, StageNormalized, m.Stage)
	assert.True(t, m.Fuzzy("Acme Corp."))
}

func TestResolve_Idempotent(t *testing.T) {
	candidates := []*common.Entity{
		testEntity("ent_1", "Northwind Traders", common.EntityOrganization),
		testEntity("ent_2", "Northwind Trading", common.EntityOrganization),
	}

	for _, q := range []string{"Northwind Trader", "northwind", "Nortwind Tradng", "unknown"} {
		first := Resolver{}.Resolve(q, candidates)
		second := Resolver{}.Resolve(q, candidates)
		assert.Equal(t, first, second, "query %q", q)
	}
}

func TestResolve_SimilarityTieGoesToFirst(t *testing.T) {
	candidates := []*common.Entity{
		testEntity("ent_1", "abcx", common.EntityOrganization),
		testEntity("ent_2", "abcy", common.EntityOrganization),
	}

	m := Resolver{}.Resolve("abcz", candidates)

	require.True(t, m.Found())
	assert.Equal(t, "ent_1", m.Entity.ID)
	assert.Equal(t, StageSimilarity, m.Stage)
	assert.InDelta(t, 0.75, m.Score, 1e-9)
}

func TestResolve_ThresholdIsExclusive(t *testing.T) {
	// "abcde" vs "abxyz" differ in 3 of 5 runes: score 0.4.
	candidates := []*common.Entity{testEntity("ent_1", "abcde", common.EntityOrganization)}

	assert.False(t, Resolver{Threshold: 0.4}.Resolve("abxyz", candidates).Found())
	assert.True(t, Resolver{Threshold: 0.39}.Resolve("abxyz", candidates).Found())
}

func TestNamePreview(t *testing.T) {
	t.Parallel()

	entities := []*common.Entity{
		testEntity("1", "A", common.EntityPerson),
		testEntity("2", "B", common.EntityPerson),
		testEntity("3", "C", common.EntityPerson),
	}

	tests := []struct {
		name string
		n    int
		want string
	}{
		{name: "all fit", n: 10, want: "A, B, C"},
		{name: "exact fit", n: 3, want: "A, B, C"},
		{name: "truncated", n: 2, want: "A, B..."},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NamePreview(entities, tc.n))
		})
	}
	assert.Equal(t, "", NamePreview(nil, 10))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{a: "", b: "", want: 1},
		{a: "abc", b: "abc", want: 1},
		{a: "abc", b: "", want: 0},
		{a: "kitten", b: "sitting", want: 1 - 3.0/7.0},
		{a: "straße", b: "strasse", want: 1 - 2.0/7.0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			assert.InDelta(t, tc.want, Similarity(tc.a, tc.b), 1e-9)
			assert.InDelta(t, tc.want, Similarity(tc.b, tc.a), 1e-9)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "acmecorp", Normalize("  ACME Corp. "))
	assert.Equal(t, "cafe", Normalize("Café"))
	assert.Equal(t, "", Normalize("--"))
}
