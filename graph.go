package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"

	"pipelined.dev/graph/log"
	"pipelined.dev/graph/transport"
)

// faultLogInterval caps per-node fault diagnostics. Faults may happen at
// block rate, logs must not.
const faultLogInterval = time.Second

// Graph owns the node table and the connection graph, schedules block
// execution and applies structural mutations at block boundaries. It is
// the single owner of its structure: nothing else mutates the node table
// or edges directly.
type Graph struct {
	name       string
	sampleRate int
	blockSize  int
	logger     log.Logger
	clock      <-chan time.Time

	// mu guards the structure: node table, edges, pending mutations,
	// transport authority. The processing phase runs outside of it on a
	// snapshot fixed at the block boundary.
	mu      sync.Mutex
	pending []mutation
	driven  bool

	nodes map[NodeID]*instance
	order []NodeID
	edges *edgeSet
	sched []*instance
	lines []*feedbackLine
	dirty bool

	// zero backs every unconnected input channel. Re-zeroed each block.
	zero []float64

	authority NodeID
	state     transport.State
}

// instance wraps a node with its identity and bound buffers.
type instance struct {
	id      NodeID
	tag     string
	node    Node
	pins    Pins
	in      Buffer
	out     Buffer
	block   Block
	limiter *log.Limiter
}

// feedbackLine is the one-block delay behind a feedback edge: buf is
// copied from the source's previous-block output before outputs are
// zero-filled, and the destination input reads buf instead of the live
// source channel.
type feedbackLine struct {
	edge Edge
	src  []float64
	buf  []float64
}

// Option provides a way to set optional parameters to the graph.
type Option func(*Graph)

// WithName sets the graph name used in diagnostics.
func WithName(name string) Option {
	return func(g *Graph) {
		g.name = name
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l log.Logger) Option {
	return func(g *Graph) {
		g.logger = l
	}
}

// WithClock replaces the internal block ticker, used by Run. Tests inject
// a channel here to drive blocks deterministically.
func WithClock(c <-chan time.Time) Option {
	return func(g *Graph) {
		g.clock = c
	}
}

// New creates an empty graph for provided sample rate and block size.
// Both are fixed for the graph's lifetime.
func New(sampleRate, blockSize int, options ...Option) *Graph {
	if sampleRate <= 0 || blockSize <= 0 {
		panic("graph: sample rate and block size must be positive")
	}
	g := &Graph{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		logger:     log.GetLogger(),
		nodes:      map[NodeID]*instance{},
		edges:      newEdgeSet(),
		zero:       make([]float64, blockSize),
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// newNodeID returns new unique node id value.
func newNodeID() NodeID {
	return NodeID(xid.New().String())
}

// SampleRate returns the graph sample rate.
func (g *Graph) SampleRate() int {
	return g.sampleRate
}

// BlockSize returns the graph block size.
func (g *Graph) BlockSize() int {
	return g.blockSize
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// Logger returns the diagnostics logger.
func (g *Graph) Logger() log.Logger {
	return g.logger
}

// Run drives the block loop until the context is done. It is the
// dedicated execution context: while it runs, every structural edit is
// queued and applied at the next block boundary. Edits queued while the
// loop is shutting down are applied before Run returns, so no caller is
// left waiting on a boundary that never comes.
func (g *Graph) Run(ctx context.Context) error {
	g.mu.Lock()
	if g.driven {
		g.mu.Unlock()
		return ErrAlreadyRunning
	}
	g.driven = true
	g.mu.Unlock()

	tick := g.clock
	if tick == nil {
		interval := time.Duration(float64(g.blockSize) / float64(g.sampleRate) * float64(time.Second))
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	defer func() {
		g.mu.Lock()
		g.driven = false
		g.applyPending()
		g.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			g.Block()
		}
	}
}

// Block processes a single block: applies queued mutations, rebuilds
// bindings if the structure or any pin list changed, broadcasts the
// transport snapshot, then walks the schedule. External drivers (audio
// callbacks, nested meta graphs) call it directly instead of Run.
func (g *Graph) Block() {
	g.mu.Lock()
	g.applyPending()
	g.refreshPins()
	if g.dirty {
		g.bind()
	}
	snap := g.broadcast()
	sched := g.sched
	lines := g.lines
	g.mu.Unlock()

	// Processing phase: no locks, no allocation. The schedule fixed above
	// stays valid until the next boundary.
	for _, l := range lines {
		copy(l.buf, l.src)
	}
	zeroFill(g.zero)
	for _, n := range sched {
		n.out.Zero()
	}
	for _, n := range sched {
		g.process(n, snap)
	}
}

// Add instantiates a registered node type and inserts it.
func (g *Graph) Add(tag string) (NodeID, error) {
	n, err := NewNode(tag)
	if err != nil {
		return "", err
	}
	return g.Insert(tag, n)
}

// Insert adds a node built by the caller and returns its new id.
func (g *Graph) Insert(tag string, n Node) (NodeID, error) {
	id := newNodeID()
	if err := g.mutate(func() error { return g.insertLocked(id, tag, n) }); err != nil {
		return "", err
	}
	return id, nil
}

// Restore adds a node under a known id, used when reinstating serialized
// graphs.
func (g *Graph) Restore(id NodeID, tag string, n Node) error {
	return g.mutate(func() error { return g.insertLocked(id, tag, n) })
}

// RemoveNode deletes a node and every edge referencing it.
func (g *Graph) RemoveNode(id NodeID) error {
	return g.mutate(func() error { return g.removeNodeLocked(id) })
}

// Connect adds an edge. The edge is validated when it is applied; an
// invalid edge leaves the graph unchanged and the error is returned to
// the caller.
func (g *Graph) Connect(e Edge) error {
	return g.mutate(func() error { return g.connectLocked(e) })
}

// Disconnect removes the inbound edge of provided input channel.
func (g *Graph) Disconnect(dst NodeID, channel int) error {
	return g.mutate(func() error { return g.disconnectLocked(dst, channel) })
}

// ClaimTempoAuthority makes provided node the single transport writer.
// The claim is explicit: a second claimant is rejected until the holder
// releases or is removed.
func (g *Graph) ClaimTempoAuthority(id NodeID) error {
	return g.mutate(func() error { return g.claimLocked(id) })
}

// ReleaseTempoAuthority gives up a previously claimed authority.
func (g *Graph) ReleaseTempoAuthority(id NodeID) error {
	return g.mutate(func() error { return g.releaseLocked(id) })
}

// AdoptTransport replaces the transport state of a graph that has no
// claimed authority. Meta-nodes propagate the parent snapshot into their
// nested graph with it.
func (g *Graph) AdoptTransport(s transport.State) {
	g.mu.Lock()
	if g.authority == "" {
		g.state = s
	}
	g.mu.Unlock()
}

// Transport returns the current transport state.
func (g *Graph) Transport() transport.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Nodes returns node ids in insertion order.
func (g *Graph) Nodes() []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]NodeID, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges.all()
}

// Node returns the node value behind provided id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return inst.node, true
}

// Tag returns the type tag of provided node.
func (g *Graph) Tag(id NodeID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	return inst.tag, true
}

// IsModulated reports whether the modulation target of provided node is
// currently driven by an edge. It resolves the target through the same
// routing table the node reads during processing.
func (g *Graph) IsModulated(id NodeID, target TargetID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.nodes[id]
	if !ok {
		return false, fmt.Errorf("%w: %v", ErrUnknownNode, id)
	}
	return g.isModulatedLocked(inst, target)
}

func (g *Graph) isModulatedLocked(inst *instance, target TargetID) (bool, error) {
	r, ok := inst.node.Routing().Route(target)
	if !ok {
		return false, fmt.Errorf("%w: %v on %v", ErrUnknownTarget, target, inst.id)
	}
	abs, ok := inst.pins.Resolve(r)
	if !ok {
		return false, nil
	}
	_, connected := g.edges.at(inst.id, abs)
	return connected, nil
}

type (
	// PinInfo describes one pin for presentation layers. The block path
	// never derives behavior from it.
	PinInfo struct {
		Name    string
		Channel int
		Type    PinType
	}

	// Description is the presentation metadata of a node instance.
	Description struct {
		ID        NodeID
		Tag       string
		Inputs    []PinInfo
		Outputs   []PinInfo
		Modulated map[TargetID]bool
	}
)

// Describe returns presentation metadata for provided node: ordered pin
// lists and the connection state of every modulation target.
func (g *Graph) Describe(id NodeID) (Description, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.nodes[id]
	if !ok {
		return Description{}, fmt.Errorf("%w: %v", ErrUnknownNode, id)
	}
	d := Description{ID: id, Tag: inst.tag}
	for _, p := range inst.pins {
		info := PinInfo{Name: p.Name, Channel: p.Channel, Type: p.Type}
		if p.Dir == Input {
			d.Inputs = append(d.Inputs, info)
		} else {
			d.Outputs = append(d.Outputs, info)
		}
	}
	targets := inst.node.Routing().Targets()
	if len(targets) > 0 {
		d.Modulated = make(map[TargetID]bool, len(targets))
		for _, target := range targets {
			driven, err := g.isModulatedLocked(inst, target)
			if err != nil {
				continue
			}
			d.Modulated[target] = driven
		}
	}
	return d, nil
}

func clonePins(ps Pins) Pins {
	out := make(Pins, len(ps))
	copy(out, ps)
	return out
}
