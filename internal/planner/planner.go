// Package planner turns a target schema description into an ordered tier
// list of entity types plus the per-entity set of lookup fields that must
// be written in a second pass to break reference cycles.
package planner

import (
	"sort"

	"github.com/dvmigrate/core/internal/record"
)

// Tier is one layer of the execution plan: entities in the same tier have
// no dependency on each other and may be imported in parallel.
type Tier struct {
	Number   int
	Entities []string
}

// Plan is the planner's output: an ordered tier list plus, per entity, the
// lookup attribute names that must be deferred to a second pass.
type Plan struct {
	Tiers          []Tier
	DeferredFields map[string][]string
}

type edge struct {
	from, to, field string
}

// Build computes the execution plan for schema: a directed graph of
// entity -> entity lookup edges, strongly connected components collapsed
// by deferring every intra-component edge's owning attribute, and a tier
// ordering of the resulting DAG.
func Build(schema *record.Schema) *Plan {
	edges, nodeSet := collectEdges(schema)
	nodes := sortedKeys(nodeSet)

	comp := tarjanSCC(nodes, edges)

	deferred := make(map[string][]string)
	var crossEdges []edge
	for _, e := range edges {
		if comp[e.from] == comp[e.to] {
			deferred[e.from] = append(deferred[e.from], e.field)
			continue
		}
		crossEdges = append(crossEdges, e)
	}
	for entity := range deferred {
		sort.Strings(deferred[entity])
	}

	tierOf := assignTiers(nodes, crossEdges)

	byTier := make(map[int][]string)
	maxTier := 0
	for _, n := range nodes {
		t := tierOf[n]
		byTier[t] = append(byTier[t], n)
		if t > maxTier {
			maxTier = t
		}
	}

	tiers := make([]Tier, 0, maxTier)
	for t := 1; t <= maxTier; t++ {
		entities := byTier[t]
		sort.Strings(entities)
		tiers = append(tiers, Tier{Number: t, Entities: entities})
	}

	return &Plan{Tiers: tiers, DeferredFields: deferred}
}

// collectEdges builds the entity -> entity lookup graph. Self-loops are
// included: a self-loop's SCC membership is always its own component, so
// the loop in Build always treats it as intra-component and defers it.
func collectEdges(schema *record.Schema) ([]edge, map[string]bool) {
	nodes := make(map[string]bool, len(schema.Entities))
	for name := range schema.Entities {
		nodes[name] = true
	}

	var edges []edge
	for name, es := range schema.Entities {
		for _, attr := range es.Attributes {
			if !attr.IsLookup || attr.TargetEntity == "" {
				continue
			}
			if attr.TargetEntity == name {
				edges = append(edges, edge{from: name, to: name, field: attr.Name})
				continue
			}
			if !nodes[attr.TargetEntity] {
				// Lookup targets an entity outside this schema's scope;
				// nothing to order it against.
				continue
			}
			edges = append(edges, edge{from: name, to: attr.TargetEntity, field: attr.Name})
		}
	}
	return edges, nodes
}

// tarjanSCC assigns every node a strongly-connected-component id. A
// self-loop alone makes a size-1 component its own SCC for the purposes
// of this planner regardless of Tarjan's classic single-node-no-self-loop
// convention, which collectEdges's edges already encode correctly (the
// self edge IS the intra-component edge that gets deferred below).
func tarjanSCC(nodes []string, edges []edge) map[string]int {
	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if e.from == e.to {
			continue // handled as a self-loop, not a graph traversal edge
		}
		adj[e.from] = append(adj[e.from], e.to)
	}

	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	comp := make(map[string]int)
	nextComp := 0

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp[w] = nextComp
				if w == v {
					break
				}
			}
			nextComp++
		}
	}

	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			strongconnect(n)
		}
	}

	// Self-loop-only entities would otherwise share a singleton component
	// with no intra edge recorded by the traversal above (self edges are
	// skipped from adj); the edge list itself still carries the self
	// edge, so Build's comp[e.from]==comp[e.to] check already defers it
	// correctly without any special-casing here.
	return comp
}

// assignTiers computes each node's tier on the DAG formed by crossEdges:
// tier 1 = no outgoing edges; tier(n) = 1 + max(tier(target)) over n's
// targets otherwise.
func assignTiers(nodes []string, crossEdges []edge) map[string]int {
	out := make(map[string][]string, len(nodes))
	for _, e := range crossEdges {
		out[e.from] = append(out[e.from], e.to)
	}

	tier := make(map[string]int, len(nodes))
	visiting := make(map[string]bool)

	var compute func(n string) int
	compute = func(n string) int {
		if t, ok := tier[n]; ok {
			return t
		}
		if visiting[n] {
			// A cycle reaching here would mean an SCC edge survived
			// collapsing, which Build never produces; treat it as a
			// leaf rather than recursing forever.
			return 1
		}
		visiting[n] = true
		defer delete(visiting, n)

		targets := out[n]
		if len(targets) == 0 {
			tier[n] = 1
			return 1
		}
		max := 0
		for _, t := range targets {
			if v := compute(t); v > max {
				max = v
			}
		}
		tier[n] = max + 1
		return tier[n]
	}

	for _, n := range nodes {
		compute(n)
	}
	return tier
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
