package meta

import (
	"fmt"

	"pipelined.dev/graph"
)

// Collapse replaces a selection of nodes with a single meta-node running
// them as a nested graph. It is applied as one compound mutation at a
// block boundary of the parent graph: the block loop never observes an
// intermediate state.
//
// For every edge with exactly one endpoint inside the selection a
// boundary shim is synthesized, recording the external endpoint so
// Expand can restore the edge. The meta-node's pins mirror the shims in
// creation order. Selected node values move into the nested graph, they
// are not copied, so live parameter cells stay valid.
func Collapse(g *graph.Graph, selection ...graph.NodeID) (graph.NodeID, error) {
	var metaID graph.NodeID
	err := g.Batch(func(tx *graph.Tx) error {
		if len(selection) == 0 {
			return ErrEmptySelection
		}
		sel := make(map[graph.NodeID]bool, len(selection))
		for _, id := range selection {
			if _, ok := tx.Node(id); !ok {
				return fmt.Errorf("%w: %v", graph.ErrUnknownNode, id)
			}
			sel[id] = true
		}

		// Classify edges against the selection border. Order within
		// each class follows the parent's insertion order, which makes
		// shim creation deterministic.
		var internal, inbound, outbound []graph.Edge
		for _, e := range tx.Edges() {
			switch {
			case sel[e.Src] && sel[e.Dst]:
				internal = append(internal, e)
			case sel[e.Dst]:
				inbound = append(inbound, e)
			case sel[e.Src]:
				outbound = append(outbound, e)
			}
		}

		nested := graph.New(g.SampleRate(), g.BlockSize(), graph.WithLogger(g.Logger()))

		var (
			inlets    []*Inlet
			inletIDs  []graph.NodeID
			outlets   []*Outlet
			outletIDs []graph.NodeID
		)
		for _, e := range inbound {
			in := newInlet(
				pinName(tx, e.Dst, e.DstChannel, graph.Input),
				boundaryType(tx, e, graph.Input),
				ref{Node: e.Src, Channel: e.SrcChannel},
			)
			id, err := nested.Insert(InletTag, in)
			if err != nil {
				return err
			}
			inlets = append(inlets, in)
			inletIDs = append(inletIDs, id)
		}
		for _, e := range outbound {
			out := newOutlet(
				pinName(tx, e.Src, e.SrcChannel, graph.Output),
				boundaryType(tx, e, graph.Output),
				ref{Node: e.Dst, Channel: e.DstChannel},
			)
			id, err := nested.Insert(OutletTag, out)
			if err != nil {
				return err
			}
			outlets = append(outlets, out)
			outletIDs = append(outletIDs, id)
		}

		// Move the selection into the nested graph, ids preserved.
		for _, id := range tx.Nodes() {
			if !sel[id] {
				continue
			}
			n, _ := tx.Node(id)
			tag, _ := tx.Tag(id)
			if err := tx.RemoveNode(id); err != nil {
				return err
			}
			if err := nested.Restore(id, tag, n); err != nil {
				return err
			}
		}

		for _, e := range internal {
			if err := nested.Connect(e); err != nil {
				return err
			}
		}
		for i, e := range inbound {
			err := nested.Connect(graph.Edge{
				Src: inletIDs[i], SrcChannel: 0,
				Dst: e.Dst, DstChannel: e.DstChannel,
				Type: e.Type,
			})
			if err != nil {
				return err
			}
		}
		for i, e := range outbound {
			err := nested.Connect(graph.Edge{
				Src: e.Src, SrcChannel: e.SrcChannel,
				Dst: outletIDs[i], DstChannel: 0,
				Type: e.Type,
			})
			if err != nil {
				return err
			}
		}

		parts := nestedParts{
			g:         nested,
			inlets:    inlets,
			inletIDs:  inletIDs,
			outlets:   outlets,
			outletIDs: outletIDs,
		}
		st, err := snapshot(parts)
		if err != nil {
			return err
		}

		m := &Node{
			nested:    nested,
			state:     st,
			pins:      pinsFor(inlets, outlets),
			inlets:    inlets,
			inletIDs:  inletIDs,
			outlets:   outlets,
			outletIDs: outletIDs,
		}
		metaID, err = tx.Insert(NodeTag, m)
		if err != nil {
			return err
		}

		// Rewire the originally-external edges onto the meta-node.
		for i, e := range inbound {
			err := tx.Connect(graph.Edge{
				Src: e.Src, SrcChannel: e.SrcChannel,
				Dst: metaID, DstChannel: i,
				Type: e.Type,
			})
			if err != nil {
				return err
			}
		}
		for i, e := range outbound {
			err := tx.Connect(graph.Edge{
				Src: metaID, SrcChannel: i,
				Dst: e.Dst, DstChannel: e.DstChannel,
				Type: e.Type,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return metaID, nil
}

// pinName derives a boundary pin name from the selection-side endpoint.
func pinName(tx *graph.Tx, id graph.NodeID, channel int, dir graph.Direction) string {
	n, ok := tx.Node(id)
	if !ok {
		return fmt.Sprintf("ch%d", channel)
	}
	var p graph.Pin
	var found bool
	if dir == graph.Input {
		p, found = n.Pins().Input(channel)
	} else {
		p, found = n.Pins().Output(channel)
	}
	if !found || p.Name == "" {
		return fmt.Sprintf("ch%d", channel)
	}
	return p.Name
}

// boundaryType picks the pin type of a boundary edge: the edge's own
// type when declared, the selection-side pin type otherwise.
func boundaryType(tx *graph.Tx, e graph.Edge, dir graph.Direction) graph.PinType {
	if e.Type != graph.Untyped {
		return e.Type
	}
	if dir == graph.Input {
		if n, ok := tx.Node(e.Dst); ok {
			if p, found := n.Pins().Input(e.DstChannel); found {
				return p.Type
			}
		}
		return graph.Raw
	}
	if n, ok := tx.Node(e.Src); ok {
		if p, found := n.Pins().Output(e.SrcChannel); found {
			return p.Type
		}
	}
	return graph.Raw
}
