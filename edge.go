package graph

// NodeID is the stable logical id of a node instance within a graph.
type NodeID string

// Edge is a directed connection between an output channel of one node and
// an input channel of another. Type may stay Untyped; a typed edge must
// match the pin types on both ends. A given (Dst, DstChannel) accepts at
// most one inbound edge.
type Edge struct {
	Src        NodeID
	SrcChannel int
	Dst        NodeID
	DstChannel int
	Type       PinType
}

type portKey struct {
	node    NodeID
	channel int
}

// edgeSet keeps edges in insertion order and maintains bidirectional
// adjacency for O(1) neighbor lookup. Mutated only while the graph lock
// is held.
type edgeSet struct {
	list     []Edge
	inbound  map[portKey]Edge
	outgoing map[NodeID][]Edge
	incoming map[NodeID][]Edge
}

func newEdgeSet() *edgeSet {
	return &edgeSet{
		inbound:  map[portKey]Edge{},
		outgoing: map[NodeID][]Edge{},
		incoming: map[NodeID][]Edge{},
	}
}

func (s *edgeSet) add(e Edge) {
	s.list = append(s.list, e)
	s.inbound[portKey{e.Dst, e.DstChannel}] = e
	s.outgoing[e.Src] = append(s.outgoing[e.Src], e)
	s.incoming[e.Dst] = append(s.incoming[e.Dst], e)
}

// at returns the inbound edge terminating at provided input channel.
func (s *edgeSet) at(dst NodeID, channel int) (Edge, bool) {
	e, ok := s.inbound[portKey{dst, channel}]
	return e, ok
}

// remove deletes the edge terminating at provided input channel.
func (s *edgeSet) remove(dst NodeID, channel int) (Edge, bool) {
	key := portKey{dst, channel}
	e, ok := s.inbound[key]
	if !ok {
		return Edge{}, false
	}
	delete(s.inbound, key)
	s.list = cutEdge(s.list, e)
	s.outgoing[e.Src] = cutEdge(s.outgoing[e.Src], e)
	s.incoming[e.Dst] = cutEdge(s.incoming[e.Dst], e)
	return e, true
}

// removeNode deletes every edge touching provided node and returns them
// in insertion order.
func (s *edgeSet) removeNode(id NodeID) []Edge {
	var removed []Edge
	kept := s.list[:0]
	for _, e := range s.list {
		if e.Src == id || e.Dst == id {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	s.list = kept
	for _, e := range removed {
		delete(s.inbound, portKey{e.Dst, e.DstChannel})
		s.outgoing[e.Src] = cutEdge(s.outgoing[e.Src], e)
		s.incoming[e.Dst] = cutEdge(s.incoming[e.Dst], e)
	}
	delete(s.outgoing, id)
	delete(s.incoming, id)
	return removed
}

// all returns a copy of the edge list in insertion order.
func (s *edgeSet) all() []Edge {
	out := make([]Edge, len(s.list))
	copy(out, s.list)
	return out
}

// of returns every edge touching provided node.
func (s *edgeSet) of(id NodeID) []Edge {
	var out []Edge
	out = append(out, s.incoming[id]...)
	out = append(out, s.outgoing[id]...)
	return out
}

// cutEdge removes the first occurrence of e preserving order.
func cutEdge(list []Edge, e Edge) []Edge {
	for i := range list {
		if list[i] == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
