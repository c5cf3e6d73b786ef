package graph

import (
	"fmt"
	"sync"

	"pipelined.dev/graph/transport"
)

// PinType is the semantic type of a pin. Edges may declare a type as well;
// a typed edge must match the pin types on both ends, an untyped edge
// connects anything.
type PinType uint8

const (
	// Untyped is the zero value. Pins should always declare a concrete
	// type; edges may stay untyped.
	Untyped PinType = iota
	// Audio is a full-rate audio signal.
	Audio
	// ControlVoltage is a control-rate modulation signal.
	ControlVoltage
	// Gate is a trigger/gate signal.
	Gate
	// Raw is an untranslated numeric stream.
	Raw
)

func (t PinType) String() string {
	switch t {
	case Audio:
		return "audio"
	case ControlVoltage:
		return "cv"
	case Gate:
		return "gate"
	case Raw:
		return "raw"
	}
	return "untyped"
}

// Direction tells whether a pin consumes or produces signal.
type Direction uint8

const (
	// Input pins consume signal.
	Input Direction = iota
	// Output pins produce signal.
	Output
)

type (
	// Pin is a named, typed connection point on a node. Channel is the
	// absolute channel index within the pin's direction, Bus groups pins
	// for modulation routing.
	Pin struct {
		Name    string
		Type    PinType
		Dir     Direction
		Bus     int
		Channel int
	}

	// Pins is the ordered pin list of a node. It may change between
	// blocks; a change forces the graph to rebuild its buffer bindings
	// before the next process call.
	Pins []Pin

	// Block is the set of buffer views bound to a node for one process
	// call. In holds one channel slice per input pin, Out one per output
	// pin. Unconnected inputs read as zero. All buffers are zero-filled
	// once per block before any node runs.
	Block struct {
		In  Buffer
		Out Buffer
	}
)

// Node is a processing unit of the graph. Node types are flat siblings:
// optional capabilities are expressed with extra interfaces, not with a
// hierarchy.
//
// Process must never block and never allocate. It is invoked once per
// block with buffer views bound by the graph and a read-only transport
// snapshot. A node that faults during Process is isolated to that block:
// its outputs are zero-filled and the rest of the graph proceeds.
type Node interface {
	// Prepare is called before the node takes part in block processing,
	// and again if the node moves to another graph. All allocations
	// belong here.
	Prepare(sampleRate, blockSize int) error
	// Process handles a single block.
	Process(b Block, tr transport.State) error
	// Pins returns the current pin list. Implementations should return
	// a stable slice, it is inspected at every block boundary.
	Pins() Pins
	// Params returns the node's parameter set, nil if it has none.
	Params() *ParamSet
	// Routing returns the node's modulation routing table, nil if it
	// declares no modulation targets. The table must stay stable for
	// the node's lifetime.
	Routing() Table
}

// ExtraStater is an optional node capability: an opaque state blob
// serialized alongside parameter values. Meta-nodes carry their nested
// graph through it.
type ExtraStater interface {
	ExtraState() ([]byte, error)
	SetExtraState([]byte) error
}

// TempoWriter is an optional node capability: a node that has claimed
// tempo authority writes the transport state once per block through it.
type TempoWriter interface {
	WriteTransport(*transport.State)
}

// NumInputs returns the number of input pins.
func (ps Pins) NumInputs() int {
	n := 0
	for _, p := range ps {
		if p.Dir == Input {
			n++
		}
	}
	return n
}

// NumOutputs returns the number of output pins.
func (ps Pins) NumOutputs() int {
	n := 0
	for _, p := range ps {
		if p.Dir == Output {
			n++
		}
	}
	return n
}

// Input returns the input pin with provided absolute channel.
func (ps Pins) Input(channel int) (Pin, bool) {
	return ps.pin(Input, channel)
}

// Output returns the output pin with provided absolute channel.
func (ps Pins) Output(channel int) (Pin, bool) {
	return ps.pin(Output, channel)
}

func (ps Pins) pin(dir Direction, channel int) (Pin, bool) {
	for _, p := range ps {
		if p.Dir == dir && p.Channel == channel {
			return p, true
		}
	}
	return Pin{}, false
}

// Resolve maps a modulation route to the absolute input channel it drives.
func (ps Pins) Resolve(r Route) (int, bool) {
	i := 0
	for _, p := range ps {
		if p.Dir != Input || p.Bus != r.Bus {
			continue
		}
		if i == r.Channel {
			return p.Channel, true
		}
		i++
	}
	return 0, false
}

func (ps Pins) equal(other Pins) bool {
	if len(ps) != len(other) {
		return false
	}
	for i := range ps {
		if ps[i] != other[i] {
			return false
		}
	}
	return true
}

// registry keeps node factories mapped to their type tags.
var registry = struct {
	sync.RWMutex
	factories map[string]func() Node
}{
	factories: map[string]func() Node{},
}

// RegisterNodeType registers a node factory for provided type tag.
// Registering the same tag twice panics, it's a programming error.
func RegisterNodeType(tag string, factory func() Node) {
	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.factories[tag]; ok {
		panic(fmt.Sprintf("graph: node type %q already registered", tag))
	}
	registry.factories[tag] = factory
}

// NewNode instantiates a node of the registered type.
func NewNode(tag string) (Node, error) {
	registry.RLock()
	defer registry.RUnlock()
	factory, ok := registry.factories[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, tag)
	}
	return factory(), nil
}
