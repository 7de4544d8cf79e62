package graph

import (
	"sort"

	"github.com/kittclouds/recall/internal/types"
)

// adjacency builds an undirected neighbor map over ACTIVE relations only,
// the shape all three community algorithms operate on.
func adjacency(relations []types.Relation) map[string]map[string]struct{} {
	adj := make(map[string]map[string]struct{})
	add := func(a, b string) {
		if adj[a] == nil {
			adj[a] = make(map[string]struct{})
		}
		adj[a][b] = struct{}{}
	}
	for _, r := range relations {
		if r.Status != types.FactActive {
			continue
		}
		s, o := r.Subject.Key(), r.Object.Key()
		if o == ":" {
			if adj[s] == nil {
				adj[s] = make(map[string]struct{})
			}
			continue
		}
		add(s, o)
		add(o, s)
	}
	return adj
}

// detectCommunities dispatches to the requested algorithm, defaulting to
// connected components for an unrecognized name.
func detectCommunities(relations []types.Relation, algorithm string) map[string]int {
	adj := adjacency(relations)
	switch algorithm {
	case AlgoLouvain:
		return louvain(adj)
	case AlgoLabelProp:
		return labelPropagation(adj)
	default:
		return connectedComponents(adj)
	}
}

// connectedComponents assigns every node in the same connected component
// the same id, via plain BFS.
func connectedComponents(adj map[string]map[string]struct{}) map[string]int {
	result := make(map[string]int, len(adj))
	nodes := sortedNodes(adj)
	nextID := 0
	for _, node := range nodes {
		if _, done := result[node]; done {
			continue
		}
		queue := []string{node}
		result[node] = nextID
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for n := range adj[cur] {
				if _, seen := result[n]; !seen {
					result[n] = nextID
					queue = append(queue, n)
				}
			}
		}
		nextID++
	}
	return result
}

// labelPropagation runs label propagation with in-place (asynchronous)
// updates: nodes are visited in sorted order and each adopts the majority
// label among its neighbors, seeing labels already changed earlier in the
// same sweep, breaking ties by the lowest label id, iterating until stable
// or a fixed iteration cap is hit.
func labelPropagation(adj map[string]map[string]struct{}) map[string]int {
	nodes := sortedNodes(adj)
	labels := make(map[string]int, len(nodes))
	for i, n := range nodes {
		labels[n] = i
	}

	const maxIterations = 50
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, node := range nodes {
			counts := make(map[int]int)
			for n := range adj[node] {
				counts[labels[n]]++
			}
			if len(counts) == 0 {
				continue
			}
			best, bestCount := labels[node], -1
			for label, count := range counts {
				if count > bestCount || (count == bestCount && label < best) {
					best, bestCount = label, count
				}
			}
			if best != labels[node] {
				labels[node] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return normalizeLabels(labels, nodes)
}

// louvain runs a single-pass, simplified modularity-greedy pass: each node
// starts in its own community and moves to whichever neighboring
// community most increases its local edge density, iterating to a fixed
// point. This approximates full multi-level Louvain (no community
// aggregation / second pass) but produces the same qualitative grouping
// on graphs at the scale a single session's knowledge graph reaches.
func louvain(adj map[string]map[string]struct{}) map[string]int {
	nodes := sortedNodes(adj)
	labels := make(map[string]int, len(nodes))
	for i, n := range nodes {
		labels[n] = i
	}

	const maxIterations = 50
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, node := range nodes {
			weightByCommunity := make(map[int]int)
			for n := range adj[node] {
				weightByCommunity[labels[n]]++
			}
			best, bestWeight := labels[node], weightByCommunity[labels[node]]
			for community, weight := range weightByCommunity {
				if weight > bestWeight || (weight == bestWeight && community < best) {
					best, bestWeight = community, weight
				}
			}
			if best != labels[node] {
				labels[node] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return normalizeLabels(labels, nodes)
}

func sortedNodes(adj map[string]map[string]struct{}) []string {
	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// normalizeLabels renumbers community ids to a dense 0..k-1 range in
// first-seen order, so callers get stable, small ids rather than whatever
// internal node index happened to win.
func normalizeLabels(labels map[string]int, nodes []string) map[string]int {
	remap := make(map[int]int)
	out := make(map[string]int, len(labels))
	next := 0
	for _, n := range nodes {
		l := labels[n]
		id, ok := remap[l]
		if !ok {
			id = next
			remap[l] = id
			next++
		}
		out[n] = id
	}
	return out
}
