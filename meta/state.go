package meta

import (
	"fmt"

	"pipelined.dev/graph"
)

type (
	// State is the serialized snapshot of a nested graph: internal node
	// instances, internal edges and the boundary shims with their
	// recorded external endpoints. It is produced by Collapse, carried
	// as the meta-node's extra state and consumed by Expand. Audio, CV
	// and gate boundary edges round-trip losslessly through it.
	State struct {
		SampleRate int         `json:"sample_rate"`
		BlockSize  int         `json:"block_size"`
		Nodes      []NodeState `json:"nodes,omitempty"`
		Edges      []EdgeState `json:"edges,omitempty"`
		Inlets     []ShimState `json:"inlets,omitempty"`
		Outlets    []ShimState `json:"outlets,omitempty"`
	}

	// NodeState is one serialized internal node: its stable id, type
	// tag, parameter values and opaque extra-state blob.
	NodeState struct {
		ID     string             `json:"id"`
		Tag    string             `json:"tag"`
		Params map[string]float64 `json:"params,omitempty"`
		Extra  []byte             `json:"extra,omitempty"`
	}

	// EdgeState is one serialized edge.
	EdgeState struct {
		Src        string        `json:"src"`
		SrcChannel int           `json:"src_channel"`
		Dst        string        `json:"dst"`
		DstChannel int           `json:"dst_channel"`
		Type       graph.PinType `json:"type"`
	}

	// ShimState is one serialized boundary shim together with the
	// external endpoint needed to restore the boundary edge on expand.
	ShimState struct {
		ID         string        `json:"id"`
		Name       string        `json:"name"`
		Type       graph.PinType `json:"type"`
		ExtNode    string        `json:"ext_node"`
		ExtChannel int           `json:"ext_channel"`
	}
)

func edgeOf(es EdgeState) graph.Edge {
	return graph.Edge{
		Src:        graph.NodeID(es.Src),
		SrcChannel: es.SrcChannel,
		Dst:        graph.NodeID(es.Dst),
		DstChannel: es.DstChannel,
		Type:       es.Type,
	}
}

func stateOf(e graph.Edge) EdgeState {
	return EdgeState{
		Src:        string(e.Src),
		SrcChannel: e.SrcChannel,
		Dst:        string(e.Dst),
		DstChannel: e.DstChannel,
		Type:       e.Type,
	}
}

// nestedParts bundles a hydrated nested graph with its shims in pin
// order.
type nestedParts struct {
	g         *graph.Graph
	inlets    []*Inlet
	inletIDs  []graph.NodeID
	outlets   []*Outlet
	outletIDs []graph.NodeID
}

// snapshot serializes a nested graph into a State.
func snapshot(p nestedParts) (State, error) {
	st := State{SampleRate: p.g.SampleRate(), BlockSize: p.g.BlockSize()}
	shim := make(map[graph.NodeID]bool, len(p.inletIDs)+len(p.outletIDs))
	for i, id := range p.inletIDs {
		shim[id] = true
		st.Inlets = append(st.Inlets, ShimState{
			ID:         string(id),
			Name:       p.inlets[i].name,
			Type:       p.inlets[i].typ,
			ExtNode:    string(p.inlets[i].ext.Node),
			ExtChannel: p.inlets[i].ext.Channel,
		})
	}
	for i, id := range p.outletIDs {
		shim[id] = true
		st.Outlets = append(st.Outlets, ShimState{
			ID:         string(id),
			Name:       p.outlets[i].name,
			Type:       p.outlets[i].typ,
			ExtNode:    string(p.outlets[i].ext.Node),
			ExtChannel: p.outlets[i].ext.Channel,
		})
	}
	for _, id := range p.g.Nodes() {
		if shim[id] {
			continue
		}
		n, _ := p.g.Node(id)
		tag, _ := p.g.Tag(id)
		ns := NodeState{ID: string(id), Tag: tag, Params: n.Params().Values()}
		if es, ok := n.(graph.ExtraStater); ok {
			blob, err := es.ExtraState()
			if err != nil {
				return State{}, fmt.Errorf("extra state of %v: %w", id, err)
			}
			ns.Extra = blob
		}
		st.Nodes = append(st.Nodes, ns)
	}
	for _, e := range p.g.Edges() {
		st.Edges = append(st.Edges, stateOf(e))
	}
	return st, nil
}

// build hydrates a nested graph from a State, re-instantiating internal
// nodes through the factory registry.
func build(st State) (nestedParts, error) {
	p := nestedParts{g: graph.New(st.SampleRate, st.BlockSize)}
	for _, ss := range st.Inlets {
		in := newInlet(ss.Name, ss.Type, ref{Node: graph.NodeID(ss.ExtNode), Channel: ss.ExtChannel})
		if err := p.g.Restore(graph.NodeID(ss.ID), InletTag, in); err != nil {
			return nestedParts{}, err
		}
		p.inlets = append(p.inlets, in)
		p.inletIDs = append(p.inletIDs, graph.NodeID(ss.ID))
	}
	for _, ss := range st.Outlets {
		out := newOutlet(ss.Name, ss.Type, ref{Node: graph.NodeID(ss.ExtNode), Channel: ss.ExtChannel})
		if err := p.g.Restore(graph.NodeID(ss.ID), OutletTag, out); err != nil {
			return nestedParts{}, err
		}
		p.outlets = append(p.outlets, out)
		p.outletIDs = append(p.outletIDs, graph.NodeID(ss.ID))
	}
	for _, ns := range st.Nodes {
		n, err := restoreNode(ns)
		if err != nil {
			return nestedParts{}, err
		}
		if err := p.g.Restore(graph.NodeID(ns.ID), ns.Tag, n); err != nil {
			return nestedParts{}, err
		}
	}
	for _, es := range st.Edges {
		if err := p.g.Connect(edgeOf(es)); err != nil {
			return nestedParts{}, err
		}
	}
	return p, nil
}

// restoreNode re-instantiates one serialized node through the registry.
func restoreNode(ns NodeState) (graph.Node, error) {
	n, err := graph.NewNode(ns.Tag)
	if err != nil {
		return nil, fmt.Errorf("restore %v: %w", ns.ID, err)
	}
	if len(ns.Extra) > 0 {
		es, ok := n.(graph.ExtraStater)
		if !ok {
			return nil, fmt.Errorf("restore %v: type %v does not carry extra state", ns.ID, ns.Tag)
		}
		if err := es.SetExtraState(ns.Extra); err != nil {
			return nil, fmt.Errorf("restore %v: %w", ns.ID, err)
		}
	}
	n.Params().Restore(ns.Params)
	return n, nil
}
