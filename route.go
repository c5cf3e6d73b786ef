package graph

// TargetID identifies a modulation target declared by a node type. Node
// packages declare their targets as typed constants and use them at every
// call site, so a mismatch between the routing table and a caller is a
// compile-time error instead of a silently diverging string literal.
type TargetID string

// Route is the physical address of a modulation target: an input bus and
// a channel within that bus. It stays stable for the node instance's
// lifetime.
type Route struct {
	Bus     int
	Channel int
}

// Table maps a node's modulation targets to their routes. The same table
// serves the block path and every presentation query, there is no second
// mapping to drift out of sync.
type Table map[TargetID]Route

// Route returns the route for provided target.
func (t Table) Route(id TargetID) (Route, bool) {
	if t == nil {
		return Route{}, false
	}
	r, ok := t[id]
	return r, ok
}

// Targets returns all target ids in the table, order is not defined.
func (t Table) Targets() []TargetID {
	ids := make([]TargetID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	return ids
}
