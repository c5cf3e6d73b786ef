package graph

import (
	"fmt"
	"time"

	"pipelined.dev/graph/internal/topology"
	"pipelined.dev/graph/transport"
)

// refreshPins picks up dynamic pin changes at the block boundary. A
// changed pin list forces a rebind; edges that no longer land on a pin
// are dropped with a diagnostic. Callers must hold mu.
func (g *Graph) refreshPins() {
	for _, id := range g.order {
		inst := g.nodes[id]
		pins := inst.node.Pins()
		if pins.equal(inst.pins) {
			continue
		}
		inst.pins = clonePins(pins)
		g.dirty = true
		for _, e := range g.edges.of(id) {
			valid := true
			if e.Src == id {
				_, valid = inst.pins.Output(e.SrcChannel)
			}
			if valid && e.Dst == id {
				_, valid = inst.pins.Input(e.DstChannel)
			}
			if !valid {
				g.edges.remove(e.Dst, e.DstChannel)
				g.logger.Warnf("graph %v: dropped edge %v.%d -> %v.%d after pin change",
					g.name, e.Src, e.SrcChannel, e.Dst, e.DstChannel)
			}
		}
	}
}

// bind rebuilds the execution schedule and buffer bindings from the
// current structure. Output buffers are reused when the channel count is
// unchanged so feedback lines keep their previous-block values across a
// rebind. Callers must hold mu.
func (g *Graph) bind() {
	ids := make([]string, len(g.order))
	for i, id := range g.order {
		ids[i] = string(id)
	}
	tedges := make([]topology.Edge, len(g.edges.list))
	for i, e := range g.edges.list {
		tedges[i] = topology.Edge{Src: string(e.Src), Dst: string(e.Dst)}
	}
	execOrder, fb := topology.Sort(ids, tedges)
	feedback := make(map[topology.Edge]bool, len(fb))
	for _, e := range fb {
		feedback[e] = true
	}

	for _, inst := range g.nodes {
		if numOut := inst.pins.NumOutputs(); inst.out.NumChannels() != numOut {
			inst.out = EmptyBuffer(numOut, g.blockSize)
		}
		inst.in = make(Buffer, inst.pins.NumInputs())
		for i := range inst.in {
			inst.in[i] = g.zero
		}
	}

	g.lines = nil
	for _, e := range g.edges.list {
		src := g.nodes[e.Src]
		dst := g.nodes[e.Dst]
		if e.SrcChannel >= len(src.out) || e.DstChannel >= len(dst.in) {
			continue
		}
		if feedback[topology.Edge{Src: string(e.Src), Dst: string(e.Dst)}] {
			l := &feedbackLine{
				edge: e,
				src:  src.out[e.SrcChannel],
				buf:  make([]float64, g.blockSize),
			}
			g.lines = append(g.lines, l)
			dst.in[e.DstChannel] = l.buf
		} else {
			dst.in[e.DstChannel] = src.out[e.SrcChannel]
		}
	}

	g.sched = make([]*instance, 0, len(execOrder))
	for _, id := range execOrder {
		inst := g.nodes[NodeID(id)]
		inst.block = Block{In: inst.in, Out: inst.out}
		g.sched = append(g.sched, inst)
	}
	g.dirty = false
}

// broadcast lets the claimed tempo authority write the transport state
// and returns the snapshot every node receives this block. Callers must
// hold mu.
func (g *Graph) broadcast() transport.State {
	if g.authority != "" {
		if inst, ok := g.nodes[g.authority]; ok {
			if w, ok := inst.node.(TempoWriter); ok {
				w.WriteTransport(&g.state)
			}
		}
		g.state.AuthorityID = string(g.authority)
	}
	return g.state
}

// process invokes one node, isolating faults to this block: on error or
// panic the node's outputs are zero-filled and the rest of the schedule
// proceeds.
func (g *Graph) process(inst *instance, snap transport.State) {
	defer func() {
		if r := recover(); r != nil {
			inst.out.Zero()
			g.fault(inst, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := inst.node.Process(inst.block, snap); err != nil {
		inst.out.Zero()
		g.fault(inst, err)
	}
}

func (g *Graph) fault(inst *instance, err error) {
	dropped, ok := inst.limiter.Allow(time.Now())
	if !ok {
		return
	}
	if dropped > 0 {
		g.logger.Warnf("node %v (%v): %v (%d more faults suppressed)", inst.id, inst.tag, err, dropped)
		return
	}
	g.logger.Warnf("node %v (%v): %v", inst.id, inst.tag, err)
}
