package meta

import (
	"fmt"

	"pipelined.dev/graph"
)

// Expand reinstates the sub-graph of a meta-node into the parent graph
// and removes the meta-node. It is the terminal transition: the nested
// nodes are re-instantiated under their recorded ids and the boundary
// edges are restored from the endpoints recorded on the shims.
//
// Expansion is non-fatal on stale boundaries: when a recorded external
// endpoint no longer exists, that single edge is dropped with a
// diagnostic and the rest of the expansion proceeds.
func Expand(g *graph.Graph, id graph.NodeID) error {
	return g.Batch(func(tx *graph.Tx) error {
		n, ok := tx.Node(id)
		if !ok {
			return fmt.Errorf("%w: %v", graph.ErrUnknownNode, id)
		}
		m, ok := n.(*Node)
		if !ok {
			return fmt.Errorf("%w: %v", ErrNotMeta, id)
		}
		if err := m.sync(); err != nil {
			return err
		}
		st := m.state

		// Instantiate everything before touching the parent, so a bad
		// snapshot aborts with the graph unchanged.
		type restored struct {
			id   graph.NodeID
			tag  string
			node graph.Node
		}
		nodes := make([]restored, 0, len(st.Nodes))
		for _, ns := range st.Nodes {
			node, err := restoreNode(ns)
			if err != nil {
				return err
			}
			nodes = append(nodes, restored{id: graph.NodeID(ns.ID), tag: ns.Tag, node: node})
		}

		// The meta-node goes first: that frees the input channels its
		// edges occupy on external neighbors.
		if err := tx.RemoveNode(id); err != nil {
			return err
		}
		for _, r := range nodes {
			if err := tx.Restore(r.id, r.tag, r.node); err != nil {
				return err
			}
		}

		shim := make(map[string]bool, len(st.Inlets)+len(st.Outlets))
		for _, ss := range st.Inlets {
			shim[ss.ID] = true
		}
		for _, ss := range st.Outlets {
			shim[ss.ID] = true
		}
		for _, es := range st.Edges {
			if shim[es.Src] || shim[es.Dst] {
				continue
			}
			if err := tx.Connect(edgeOf(es)); err != nil {
				return err
			}
		}

		// Boundary edges come back from the shims' recorded endpoints.
		logger := g.Logger()
		for _, ss := range st.Inlets {
			for _, es := range st.Edges {
				if es.Src != ss.ID {
					continue
				}
				e := graph.Edge{
					Src: graph.NodeID(ss.ExtNode), SrcChannel: ss.ExtChannel,
					Dst: graph.NodeID(es.Dst), DstChannel: es.DstChannel,
					Type: es.Type,
				}
				if err := tx.Connect(e); err != nil {
					logger.Warnf("expand %v: dropped edge %v.%d -> %v.%d: %v",
						id, e.Src, e.SrcChannel, e.Dst, e.DstChannel, err)
				}
			}
		}
		for _, ss := range st.Outlets {
			for _, es := range st.Edges {
				if es.Dst != ss.ID {
					continue
				}
				e := graph.Edge{
					Src: graph.NodeID(es.Src), SrcChannel: es.SrcChannel,
					Dst: graph.NodeID(ss.ExtNode), DstChannel: ss.ExtChannel,
					Type: es.Type,
				}
				if err := tx.Connect(e); err != nil {
					logger.Warnf("expand %v: dropped edge %v.%d -> %v.%d: %v",
						id, e.Src, e.SrcChannel, e.Dst, e.DstChannel, err)
				}
			}
		}
		return nil
	})
}
