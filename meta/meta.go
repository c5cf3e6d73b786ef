/*
Package meta encapsulates a sub-graph as a single node.

Collapse extracts a selection of nodes out of a graph, synthesizes a
boundary shim for every edge crossing the selection border and replaces
the selection with one meta-node running the extracted nodes as a nested
graph. Expand is the terminal reverse transition: it reinstates the
nested nodes into the parent and removes the meta-node, restoring
boundary edges from the endpoints recorded on the shims.

Composition is recursive: a nested graph may itself contain meta-nodes to
arbitrary depth, because a meta-node serializes completely into an opaque
extra-state blob.
*/
package meta

import (
	"encoding/json"
	"errors"
	"fmt"

	"pipelined.dev/graph"
	"pipelined.dev/graph/transport"
)

var (
	// ErrNotMeta is returned when expanding a node that is not a
	// meta-node.
	ErrNotMeta = errors.New("node is not a meta-node")
	// ErrEmptySelection is returned when collapsing nothing.
	ErrEmptySelection = errors.New("empty selection")
)

func init() {
	graph.RegisterNodeType(NodeTag, func() graph.Node { return &Node{} })
}

// Status is the lifecycle state of a meta-node. Expand is not a status:
// it removes the meta-node entirely.
type Status uint8

const (
	// Collapsed means the nested graph is opaque and running.
	Collapsed Status = iota
	// BeingEdited means the nested graph is exposed for direct editing.
	BeingEdited
)

// Node is a meta-node: an entire sub-graph encapsulated as a single
// node. Its external pins mirror the boundary shims of the nested graph
// in shim-creation order. It carries no parameters of its own, all state
// lives in the nested graph.
type Node struct {
	nested *graph.Graph
	state  State
	pins   graph.Pins
	status Status

	inlets    []*Inlet
	inletIDs  []graph.NodeID
	outlets   []*Outlet
	outletIDs []graph.NodeID
}

// Prepare is a no-op: the nested graph carries its own rate and block
// size and its nodes are prepared when the graph is hydrated.
func (m *Node) Prepare(sampleRate, blockSize int) error { return nil }

// Process feeds the meta-node inputs into the nested inlet shims, runs
// one full nested block and drains the outlet shims into the meta-node
// outputs. The parent transport snapshot is adopted by the nested graph
// unless it claimed its own authority.
func (m *Node) Process(b graph.Block, tr transport.State) error {
	if m.nested == nil {
		return nil
	}
	m.nested.AdoptTransport(tr)
	for i, in := range m.inlets {
		copy(in.feed, b.In[i])
	}
	m.nested.Block()
	for i, out := range m.outlets {
		copy(b.Out[i], out.capture)
	}
	return nil
}

// Pins returns the boundary pins in shim-creation order.
func (m *Node) Pins() graph.Pins { return m.pins }

// Params returns nil, meta-nodes have no own parameters.
func (m *Node) Params() *graph.ParamSet { return nil }

// Routing returns nil, meta-nodes declare no modulation targets.
func (m *Node) Routing() graph.Table { return nil }

// Status returns the current lifecycle state.
func (m *Node) Status() Status { return m.status }

// BeginEdit exposes the nested graph for direct editing. The nested
// graph runs no loop of its own, so edits apply inline on the editor
// goroutine; the processing phase still only observes the structure
// fixed at each nested block boundary.
func (m *Node) BeginEdit() *graph.Graph {
	m.status = BeingEdited
	return m.nested
}

// EndEdit reseals the meta-node and refreshes its serialized state.
func (m *Node) EndEdit() error {
	m.status = Collapsed
	return m.sync()
}

// sync refreshes the serialized state from the live nested graph.
func (m *Node) sync() error {
	if m.nested == nil {
		return nil
	}
	st, err := snapshot(nestedParts{
		g:         m.nested,
		inlets:    m.inlets,
		inletIDs:  m.inletIDs,
		outlets:   m.outlets,
		outletIDs: m.outletIDs,
	})
	if err != nil {
		return err
	}
	m.state = st
	return nil
}

// ExtraState serializes the nested graph, see State.
func (m *Node) ExtraState() ([]byte, error) {
	if err := m.sync(); err != nil {
		return nil, err
	}
	return json.Marshal(m.state)
}

// SetExtraState hydrates the meta-node from a serialized State.
func (m *Node) SetExtraState(blob []byte) error {
	var st State
	if err := json.Unmarshal(blob, &st); err != nil {
		return fmt.Errorf("meta state: %w", err)
	}
	return m.hydrate(st)
}

func (m *Node) hydrate(st State) error {
	p, err := build(st)
	if err != nil {
		return err
	}
	m.nested = p.g
	m.state = st
	m.inlets = p.inlets
	m.inletIDs = p.inletIDs
	m.outlets = p.outlets
	m.outletIDs = p.outletIDs
	m.pins = pinsFor(p.inlets, p.outlets)
	m.status = Collapsed
	return nil
}

// pinsFor derives the meta-node pin list from the shims. Pin order is a
// pure function of shim-creation order, which keeps repeated
// collapse/expand cycles idempotent.
func pinsFor(inlets []*Inlet, outlets []*Outlet) graph.Pins {
	pins := make(graph.Pins, 0, len(inlets)+len(outlets))
	for i, in := range inlets {
		pins = append(pins, graph.Pin{Name: in.name, Type: in.typ, Dir: graph.Input, Bus: 0, Channel: i})
	}
	for i, out := range outlets {
		pins = append(pins, graph.Pin{Name: out.name, Type: out.typ, Dir: graph.Output, Bus: 0, Channel: i})
	}
	return pins
}
