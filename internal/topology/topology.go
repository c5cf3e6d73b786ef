// Package topology computes block execution order for a node graph.
package topology

// Edge is a directed dependency between two node ids.
type Edge struct {
	Src string
	Dst string
}

// Sort returns a deterministic processing order covering every node and
// the set of edges that had to be treated as feedback to achieve it.
//
// The order is a topological sort of the dependency graph induced by the
// remaining edges: for every non-feedback edge the source is ordered
// before the destination. Node positions in the input slice break ties,
// so the result is stable for a given graph. When a cycle blocks all
// progress, the first still-unordered node in input order is emitted and
// its unsatisfied inbound edges become feedback edges.
func Sort(nodes []string, edges []Edge) ([]string, []Edge) {
	indegree := make(map[string]int, len(nodes))
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
		known[n] = true
	}
	adjacency := map[string][]string{}
	for _, e := range edges {
		if !known[e.Src] || !known[e.Dst] {
			continue
		}
		adjacency[e.Src] = append(adjacency[e.Src], e.Dst)
		indegree[e.Dst]++
	}

	order := make([]string, 0, len(nodes))
	emitted := make(map[string]bool, len(nodes))
	var feedback []Edge

	for len(order) < len(nodes) {
		progressed := false
		for _, n := range nodes {
			if emitted[n] || indegree[n] > 0 {
				continue
			}
			emitted[n] = true
			order = append(order, n)
			for _, dst := range adjacency[n] {
				indegree[dst]--
			}
			progressed = true
		}
		if progressed {
			continue
		}
		// Every remaining node sits on a cycle. Cut the first one in
		// input order: its inbound edges from unordered sources read the
		// previous block's output.
		for _, n := range nodes {
			if emitted[n] {
				continue
			}
			for _, e := range edges {
				if e.Dst == n && known[e.Src] && !emitted[e.Src] {
					feedback = append(feedback, e)
				}
			}
			indegree[n] = 0
			break
		}
	}
	return order, feedback
}
