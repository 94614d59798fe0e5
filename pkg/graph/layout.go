package graph

import (
	"math"
	"math/rand/v2"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"
)

// LayoutOptions configures the force-directed placement.
//
// K is the ideal edge length, C the repulsion constant and Dampening scales
// the spring force of edges. Initial positions are drawn from Seed inside a
// Width x Height box centred on the origin.
type LayoutOptions struct {
	Iterations int
	K          float64
	C          float64
	Dampening  float64
	Width      float64
	Height     float64
	Seed       uint64
}

// DefaultLayoutOptions returns the reference parameters.
func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		Iterations: 100,
		K:          100,
		C:          0.01,
		Dampening:  0.1,
		Width:      800,
		Height:     600,
		Seed:       1,
	}
}

// LayoutNode is an entity placed in the plane.
type LayoutNode struct {
	ID     string            `json:"id"`
	Label  string            `json:"label"`
	Type   common.EntityType `json:"type"`
	X      float64           `json:"x"`
	Y      float64           `json:"y"`
	Radius float64           `json:"radius"`
	Color  string            `json:"color"`
}

// LayoutEdge is a relationship between two placed nodes.
type LayoutEdge struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Label  string  `json:"label"`
	Width  float64 `json:"width"`
}

// LayoutResult carries the placed graph. Residual is the largest force
// magnitude applied to any node in the final iteration; it shrinks as the
// layout settles.
type LayoutResult struct {
	Nodes    []LayoutNode `json:"nodes"`
	Edges    []LayoutEdge `json:"edges"`
	Residual float64      `json:"residual"`
}

var entityColors = map[common.EntityType]string{
	common.EntityPerson:       "#e05555",
	common.EntityOrganization: "#4a9ede",
	common.EntityLocation:     "#4caf7c",
	common.EntityFinancial:    "#e8a838",
	common.EntityDate:         "#9c6ade",
	common.EntityIdentifier:   "#6b6f8a",
	common.EntityAsset:        "#d4785c",
	common.EntityEvent:        "#57b5b5",
	common.EntitySource:       "#f4a261",
}

const defaultEntityColor = "#6b6f8a"

// EntityColor returns the display colour of an entity type.
func EntityColor(t common.EntityType) string {
	if c, ok := entityColors[t]; ok {
		return c
	}
	return defaultEntityColor
}

// Layout places entities with a simple force relaxation: every node pair
// repels with C*K*K/dist, every edge pulls its endpoints with
// (dist-K)*Dampening, and each iteration moves every node by the summed
// force. The result depends only on the inputs and opts.Seed.
func Layout(entities []*common.Entity, relationships []*common.Relationship, opts LayoutOptions) LayoutResult {
	d := DefaultLayoutOptions()
	if opts.Iterations <= 0 {
		opts.Iterations = d.Iterations
	}
	if opts.K <= 0 {
		opts.K = d.K
	}
	if opts.C <= 0 {
		opts.C = d.C
	}
	if opts.Dampening <= 0 {
		opts.Dampening = d.Dampening
	}
	if opts.Width <= 0 {
		opts.Width = d.Width
	}
	if opts.Height <= 0 {
		opts.Height = d.Height
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	nodes := make([]LayoutNode, len(entities))
	pos := make(map[string]int, len(entities))
	for i, e := range entities {
		nodes[i] = LayoutNode{
			ID:     e.ID,
			Label:  e.Name,
			Type:   e.Type,
			X:      rng.Float64()*opts.Width - opts.Width/2,
			Y:      rng.Float64()*opts.Height - opts.Height/2,
			Radius: 15 + 3*float64(len(e.Occurrences)),
			Color:  EntityColor(e.Type),
		}
		pos[e.ID] = i
	}

	edges := make([]LayoutEdge, 0, len(relationships))
	type pair struct{ a, b int }
	springs := make([]pair, 0, len(relationships))
	for _, r := range relationships {
		a, okA := pos[r.SourceID]
		b, okB := pos[r.TargetID]
		if !okA || !okB {
			continue
		}
		edges = append(edges, LayoutEdge{
			ID:     r.ID,
			Source: r.SourceID,
			Target: r.TargetID,
			Label:  r.Type,
			Width:  1 + 2*r.Confidence,
		})
		springs = append(springs, pair{a, b})
	}

	fx := make([]float64, len(nodes))
	fy := make([]float64, len(nodes))
	var residual float64

	for range opts.Iterations {
		clear(fx)
		clear(fy)

		for i := range nodes {
			for j := i + 1; j < len(nodes); j++ {
				dx := nodes[j].X - nodes[i].X
				dy := nodes[j].Y - nodes[i].Y
				dist := distance(dx, dy)
				force := opts.C * opts.K * opts.K / dist
				fx[i] -= force * dx / dist
				fy[i] -= force * dy / dist
				fx[j] += force * dx / dist
				fy[j] += force * dy / dist
			}
		}

		for _, s := range springs {
			if s.a == s.b {
				continue
			}
			dx := nodes[s.b].X - nodes[s.a].X
			dy := nodes[s.b].Y - nodes[s.a].Y
			dist := distance(dx, dy)
			force := (dist - opts.K) * opts.Dampening
			fx[s.a] += force * dx / dist
			fy[s.a] += force * dy / dist
			fx[s.b] -= force * dx / dist
			fy[s.b] -= force * dy / dist
		}

		residual = 0
		for i := range nodes {
			nodes[i].X += fx[i]
			nodes[i].Y += fy[i]
			residual = max(residual, math.Hypot(fx[i], fy[i]))
		}
	}

	return LayoutResult{Nodes: nodes, Edges: edges, Residual: residual}
}

// distance treats coincident points as one unit apart.
func distance(dx, dy float64) float64 {
	d := math.Hypot(dx, dy)
	if d == 0 {
		return 1
	}
	return d
}
