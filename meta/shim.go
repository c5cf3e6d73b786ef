package meta

import (
	"pipelined.dev/graph"
	"pipelined.dev/graph/transport"
)

// Type tags of the meta subsystem nodes. Shims are constructed by the
// subsystem itself and never go through the factory registry.
const (
	// NodeTag is the registered type tag of a meta-node.
	NodeTag = "meta.node"
	// InletTag marks boundary shims feeding external signal into a
	// nested graph.
	InletTag = "meta.inlet"
	// OutletTag marks boundary shims capturing nested signal for the
	// outside.
	OutletTag = "meta.outlet"
)

// ref records the external endpoint a boundary shim replaces, so the
// original edge can be restored on expand.
type ref struct {
	Node    graph.NodeID
	Channel int
}

// Inlet is the boundary shim synthesized for an inbound boundary edge:
// the external endpoint is upstream of the selection. Inside the nested
// graph it is a one-channel source fed by the meta-node before every
// nested block.
type Inlet struct {
	name string
	typ  graph.PinType
	ext  ref
	feed []float64
	pins graph.Pins
}

func newInlet(name string, typ graph.PinType, ext ref) *Inlet {
	return &Inlet{name: name, typ: typ, ext: ext}
}

// Prepare allocates the feed buffer.
func (in *Inlet) Prepare(sampleRate, blockSize int) error {
	if len(in.feed) != blockSize {
		in.feed = make([]float64, blockSize)
	}
	in.pins = graph.Pins{{Name: in.name, Type: in.typ, Dir: graph.Output, Bus: 0, Channel: 0}}
	return nil
}

// Process copies the staged external input into the nested graph.
func (in *Inlet) Process(b graph.Block, _ transport.State) error {
	copy(b.Out[0], in.feed)
	return nil
}

// Pins returns the single output pin.
func (in *Inlet) Pins() graph.Pins { return in.pins }

// Params returns nil, shims carry no parameters.
func (in *Inlet) Params() *graph.ParamSet { return nil }

// Routing returns nil, shims declare no modulation targets.
func (in *Inlet) Routing() graph.Table { return nil }

// Outlet is the boundary shim synthesized for an outbound boundary edge:
// the external endpoint is downstream of the selection. Inside the nested
// graph it is a one-channel sink drained by the meta-node after every
// nested block.
type Outlet struct {
	name    string
	typ     graph.PinType
	ext     ref
	capture []float64
	pins    graph.Pins
}

func newOutlet(name string, typ graph.PinType, ext ref) *Outlet {
	return &Outlet{name: name, typ: typ, ext: ext}
}

// Prepare allocates the capture buffer.
func (out *Outlet) Prepare(sampleRate, blockSize int) error {
	if len(out.capture) != blockSize {
		out.capture = make([]float64, blockSize)
	}
	out.pins = graph.Pins{{Name: out.name, Type: out.typ, Dir: graph.Input, Bus: 0, Channel: 0}}
	return nil
}

// Process captures the nested signal for the meta-node to drain.
func (out *Outlet) Process(b graph.Block, _ transport.State) error {
	copy(out.capture, b.In[0])
	return nil
}

// Pins returns the single input pin.
func (out *Outlet) Pins() graph.Pins { return out.pins }

// Params returns nil, shims carry no parameters.
func (out *Outlet) Params() *graph.ParamSet { return nil }

// Routing returns nil, shims declare no modulation targets.
func (out *Outlet) Routing() graph.Table { return nil }
