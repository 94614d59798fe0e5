package graph

import (
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchStage tells which resolution step produced a match.
type MatchStage int

const (
	StageNone MatchStage = iota
	StageExact
	StageNormalized
	StageSubstring
	StageSimilarity
)

func (s MatchStage) String() string {
	switch s {
	case StageExact:
		return "exact"
	case StageNormalized:
		return "normalized"
	case StageSubstring:
		return "substring"
	case StageSimilarity:
		return "similarity"
	}
	return "none"
}

// Match is the outcome of resolving a free-text query. A failed resolution
// has a nil Entity and a Preview of the names that were available.
type Match struct {
	Entity  *common.Entity
	Stage   MatchStage
	Score   float64
	Preview string
}

// Found reports whether the query resolved to an entity.
func (m Match) Found() bool {
	return m.Entity != nil
}

// Fuzzy reports whether the resolved name differs from what was asked for.
func (m Match) Fuzzy(query string) bool {
	return m.Entity != nil && !strings.EqualFold(m.Entity.Name, strings.TrimSpace(query))
}

// Resolver maps free-text names onto entities. The zero value uses the
// default threshold and preview size.
type Resolver struct {
	Threshold   float64
	PreviewSize int
}

// Resolve runs the resolution stages in order and returns the first hit:
//
//  1. case-insensitive exact match on name or alias
//  2. equality of normalized forms
//  3. containment of one normalized form in the other
//  4. edit-distance similarity above the threshold, best score wins and
//     ties go to the earliest candidate
//
// Resolve is deterministic for a given query and candidate order.
func (r Resolver) Resolve(query string, candidates []*common.Entity) Match {
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultConfig().SimilarityThreshold
	}

	query = strings.TrimSpace(query)
	if query != "" {
		for _, e := range candidates {
			if e.MatchesName(query) {
				return Match{Entity: e, Stage: StageExact, Score: 1}
			}
		}

		q := Normalize(query)
		if q != "" {
			for _, e := range candidates {
				for _, n := range normalizedNames(e) {
					if n == q {
						return Match{Entity: e, Stage: StageNormalized, Score: 1}
					}
				}
			}

			for _, e := range candidates {
				for _, n := range normalizedNames(e) {
					if strings.Contains(n, q) || strings.Contains(q, n) {
						return Match{Entity: e, Stage: StageSubstring, Score: 1}
					}
				}
			}

			var best *common.Entity
			bestScore := 0.0
			for _, e := range candidates {
				for _, n := range normalizedNames(e) {
					if s := Similarity(q, n); s > bestScore {
						best, bestScore = e, s
					}
				}
			}
			if best != nil && bestScore > threshold {
				return Match{Entity: best, Stage: StageSimilarity, Score: bestScore}
			}
		}
	}

	return Match{Preview: r.preview(candidates)}
}

func (r Resolver) preview(candidates []*common.Entity) string {
	size := r.PreviewSize
	if size <= 0 {
		size = DefaultConfig().PreviewSize
	}
	return NamePreview(candidates, size)
}

// NamePreview lists the first n entity names, followed by "..." when more
// exist.
func NamePreview(entities []*common.Entity, n int) string {
	if len(entities) == 0 {
		return ""
	}
	limit := min(n, len(entities))
	names := common.EntityNames(entities[:limit])
	out := strings.Join(names, ", ")
	if len(entities) > limit {
		out += "..."
	}
	return out
}

// normalizedNames returns the non-empty normalized name and aliases.
func normalizedNames(e *common.Entity) []string {
	out := make([]string, 0, 1+len(e.Aliases))
	if n := Normalize(e.Name); n != "" {
		out = append(out, n)
	}
	for _, a := range e.Aliases {
		if n := Normalize(a); n != "" {
			out = append(out, n)
		}
	}
	return out
}

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s, folds diacritics and strips every rune that is not
// a letter or a digit.
func Normalize(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity returns 1 - editDistance(a, b) / max(len(a), len(b)), measured
// in runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein is the classic edit distance with unit costs, using two rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
