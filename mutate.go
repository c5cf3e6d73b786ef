package graph

import (
	"fmt"

	"pipelined.dev/graph/log"
)

// mutation is a queued structural edit with a feedback channel carrying
// its result back to the requesting goroutine.
type mutation struct {
	fn   func() error
	done chan error
}

// mutate queues a structural edit and waits for its result. While the
// block loop runs, the edit applies at the next block boundary; an idle
// graph applies it immediately. Either way the graph is never mutated
// mid-block and the caller gets a synchronous error.
func (g *Graph) mutate(fn func() error) error {
	done := make(chan error, 1)
	g.mu.Lock()
	g.pending = append(g.pending, mutation{fn: fn, done: done})
	if !g.driven {
		g.applyPending()
	}
	g.mu.Unlock()
	return <-done
}

// applyPending runs queued mutations. Callers must hold mu.
func (g *Graph) applyPending() {
	for len(g.pending) > 0 {
		ms := g.pending
		g.pending = nil
		for _, m := range ms {
			m.done <- m.fn()
		}
	}
}

// Batch queues fn as one compound structural edit: everything done
// through the Tx handle applies atomically at the same block boundary.
// The meta-node subsystem uses it to collapse and expand sub-graphs
// without exposing intermediate states to the block loop.
func (g *Graph) Batch(fn func(*Tx) error) error {
	return g.mutate(func() error { return fn(&Tx{g: g}) })
}

// Tx is the structural editing handle passed to Batch callbacks. It must
// not escape the callback.
type Tx struct {
	g *Graph
}

// Insert adds a node built by the caller and returns its new id.
func (tx *Tx) Insert(tag string, n Node) (NodeID, error) {
	id := newNodeID()
	if err := tx.g.insertLocked(id, tag, n); err != nil {
		return "", err
	}
	return id, nil
}

// Restore adds a node under a known id.
func (tx *Tx) Restore(id NodeID, tag string, n Node) error {
	return tx.g.insertLocked(id, tag, n)
}

// RemoveNode deletes a node and every edge referencing it.
func (tx *Tx) RemoveNode(id NodeID) error {
	return tx.g.removeNodeLocked(id)
}

// Connect adds a validated edge.
func (tx *Tx) Connect(e Edge) error {
	return tx.g.connectLocked(e)
}

// Disconnect removes the inbound edge of provided input channel.
func (tx *Tx) Disconnect(dst NodeID, channel int) error {
	return tx.g.disconnectLocked(dst, channel)
}

// Nodes returns node ids in insertion order.
func (tx *Tx) Nodes() []NodeID {
	out := make([]NodeID, len(tx.g.order))
	copy(out, tx.g.order)
	return out
}

// Edges returns all edges in insertion order.
func (tx *Tx) Edges() []Edge {
	return tx.g.edges.all()
}

// Node returns the node value behind provided id.
func (tx *Tx) Node(id NodeID) (Node, bool) {
	inst, ok := tx.g.nodes[id]
	if !ok {
		return nil, false
	}
	return inst.node, true
}

// Tag returns the type tag of provided node.
func (tx *Tx) Tag(id NodeID) (string, bool) {
	inst, ok := tx.g.nodes[id]
	if !ok {
		return "", false
	}
	return inst.tag, true
}

func (g *Graph) insertLocked(id NodeID, tag string, n Node) error {
	if _, ok := g.nodes[id]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateID, id)
	}
	if err := n.Prepare(g.sampleRate, g.blockSize); err != nil {
		return fmt.Errorf("prepare %v: %w", tag, err)
	}
	g.nodes[id] = &instance{
		id:      id,
		tag:     tag,
		node:    n,
		pins:    clonePins(n.Pins()),
		limiter: log.NewLimiter(faultLogInterval),
	}
	g.order = append(g.order, id)
	g.dirty = true
	return nil
}

func (g *Graph) removeNodeLocked(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownNode, id)
	}
	g.edges.removeNode(id)
	delete(g.nodes, id)
	for i := range g.order {
		if g.order[i] == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	if g.authority == id {
		g.authority = ""
		g.state.AuthorityID = ""
	}
	g.dirty = true
	return nil
}

func (g *Graph) connectLocked(e Edge) error {
	src, ok := g.nodes[e.Src]
	if !ok {
		return fmt.Errorf("%w: source %v", ErrUnknownNode, e.Src)
	}
	dst, ok := g.nodes[e.Dst]
	if !ok {
		return fmt.Errorf("%w: destination %v", ErrUnknownNode, e.Dst)
	}
	srcPin, ok := src.pins.Output(e.SrcChannel)
	if !ok {
		return fmt.Errorf("%w: %v has no output channel %d", ErrDanglingEndpoint, e.Src, e.SrcChannel)
	}
	dstPin, ok := dst.pins.Input(e.DstChannel)
	if !ok {
		return fmt.Errorf("%w: %v has no input channel %d", ErrDanglingEndpoint, e.Dst, e.DstChannel)
	}
	if _, busy := g.edges.at(e.Dst, e.DstChannel); busy {
		return fmt.Errorf("%w: %v input %d", ErrChannelBusy, e.Dst, e.DstChannel)
	}
	if e.Type != Untyped && (srcPin.Type != e.Type || dstPin.Type != e.Type) {
		return fmt.Errorf("%w: %v edge between %v and %v pins", ErrTypeMismatch, e.Type, srcPin.Type, dstPin.Type)
	}
	g.edges.add(e)
	g.dirty = true
	return nil
}

func (g *Graph) disconnectLocked(dst NodeID, channel int) error {
	if _, ok := g.edges.remove(dst, channel); !ok {
		return fmt.Errorf("%w: no edge at %v input %d", ErrDanglingEndpoint, dst, channel)
	}
	g.dirty = true
	return nil
}

func (g *Graph) claimLocked(id NodeID) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownNode, id)
	}
	if g.authority != "" && g.authority != id {
		return fmt.Errorf("%w: held by %v", ErrAuthorityClaimed, g.authority)
	}
	g.authority = id
	return nil
}

func (g *Graph) releaseLocked(id NodeID) error {
	if g.authority != id {
		return fmt.Errorf("%w: %v", ErrNotAuthority, id)
	}
	g.authority = ""
	g.state.AuthorityID = ""
	return nil
}
