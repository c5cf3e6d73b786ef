// Package mock provides configurable nodes for testing graph behavior.
package mock

import (
	"pipelined.dev/graph"
	"pipelined.dev/graph/transport"
)

// Type tags of the registered fixed-shape mocks. Registration makes them
// restorable through the factory registry, which collapse/expand relies
// on.
const (
	ConstTag = "mock.const"
	PassTag  = "mock.pass"
	SumTag   = "mock.sum"
	SinkTag  = "mock.sink"
	FaultTag = "mock.fault"
	ClockTag = "mock.clock"
	TrigTag  = "mock.trig"
	EnvTag   = "mock.env"
)

// LevelMod is the modulation target of the Const level parameter.
const LevelMod graph.TargetID = "level_mod"

func init() {
	graph.RegisterNodeType(ConstTag, func() graph.Node { return NewConst(0) })
	graph.RegisterNodeType(PassTag, func() graph.Node { return &Pass{} })
	graph.RegisterNodeType(SumTag, func() graph.Node { return &Sum{} })
	graph.RegisterNodeType(SinkTag, func() graph.Node { return &Sink{} })
	graph.RegisterNodeType(FaultTag, func() graph.Node { return &Fault{} })
	graph.RegisterNodeType(ClockTag, func() graph.Node { return &Clock{BPM: 120} })
	graph.RegisterNodeType(TrigTag, func() graph.Node { return &Trig{} })
	graph.RegisterNodeType(EnvTag, func() graph.Node { return &Env{} })
}

// Node is a fully configurable mock. Zero value is a valid node with no
// pins that does nothing.
type Node struct {
	PinList      graph.Pins
	RoutingTable graph.Table
	ParamSet     *graph.ParamSet
	PrepareErr   error
	OnProcess    func(b graph.Block, tr transport.State) error

	Prepared   bool
	SampleRate int
	BlockSize  int
	Blocks     int
}

// Prepare records the graph dimensions and returns PrepareErr.
func (m *Node) Prepare(sampleRate, blockSize int) error {
	m.Prepared = true
	m.SampleRate = sampleRate
	m.BlockSize = blockSize
	return m.PrepareErr
}

// Process counts blocks and delegates to OnProcess when set.
func (m *Node) Process(b graph.Block, tr transport.State) error {
	m.Blocks++
	if m.OnProcess != nil {
		return m.OnProcess(b, tr)
	}
	return nil
}

// Pins returns the configured pin list.
func (m *Node) Pins() graph.Pins { return m.PinList }

// Params returns the configured parameter set.
func (m *Node) Params() *graph.ParamSet { return m.ParamSet }

// Routing returns the configured routing table.
func (m *Node) Routing() graph.Table { return m.RoutingTable }

// Const emits its level parameter plus whatever arrives on the level cv
// input. Its single parameter is modulatable, which makes it the smallest
// node that exercises the modulation router.
type Const struct {
	level  *graph.Param
	params *graph.ParamSet
}

// NewConst returns a Const with provided level.
func NewConst(level float64) *Const {
	p := graph.NewParam("level", level, LevelMod)
	return &Const{level: p, params: graph.NewParamSet(p)}
}

// Level returns the level parameter.
func (c *Const) Level() *graph.Param { return c.level }

func (c *Const) Prepare(sampleRate, blockSize int) error { return nil }

func (c *Const) Process(b graph.Block, tr transport.State) error {
	level := c.level.Value()
	for i := range b.Out[0] {
		b.Out[0][i] = level + b.In[0][i]
	}
	return nil
}

func (c *Const) Pins() graph.Pins {
	return graph.Pins{
		{Name: "level", Type: graph.ControlVoltage, Dir: graph.Input, Bus: 0, Channel: 0},
		{Name: "out", Type: graph.Audio, Dir: graph.Output, Bus: 0, Channel: 0},
	}
}

func (c *Const) Params() *graph.ParamSet { return c.params }

func (c *Const) Routing() graph.Table {
	return graph.Table{LevelMod: {Bus: 0, Channel: 0}}
}

// Pass copies its single input to its single output.
type Pass struct{}

func (p *Pass) Prepare(sampleRate, blockSize int) error { return nil }

func (p *Pass) Process(b graph.Block, tr transport.State) error {
	copy(b.Out[0], b.In[0])
	return nil
}

func (p *Pass) Pins() graph.Pins {
	return graph.Pins{
		{Name: "in", Type: graph.Audio, Dir: graph.Input, Bus: 0, Channel: 0},
		{Name: "out", Type: graph.Audio, Dir: graph.Output, Bus: 0, Channel: 0},
	}
}

func (p *Pass) Params() *graph.ParamSet { return nil }

func (p *Pass) Routing() graph.Table { return nil }

// Sum adds its two inputs sample-wise.
type Sum struct{}

func (s *Sum) Prepare(sampleRate, blockSize int) error { return nil }

func (s *Sum) Process(b graph.Block, tr transport.State) error {
	for i := range b.Out[0] {
		b.Out[0][i] = b.In[0][i] + b.In[1][i]
	}
	return nil
}

func (s *Sum) Pins() graph.Pins {
	return graph.Pins{
		{Name: "a", Type: graph.Audio, Dir: graph.Input, Bus: 0, Channel: 0},
		{Name: "b", Type: graph.Audio, Dir: graph.Input, Bus: 0, Channel: 1},
		{Name: "out", Type: graph.Audio, Dir: graph.Output, Bus: 0, Channel: 0},
	}
}

func (s *Sum) Params() *graph.ParamSet { return nil }

func (s *Sum) Routing() graph.Table { return nil }

// Sink records the last block of its input and the transport snapshot it
// arrived with.
type Sink struct {
	Last      []float64
	Transport transport.State
	Blocks    int
}

func (s *Sink) Prepare(sampleRate, blockSize int) error {
	s.Last = make([]float64, blockSize)
	return nil
}

func (s *Sink) Process(b graph.Block, tr transport.State) error {
	copy(s.Last, b.In[0])
	s.Transport = tr
	s.Blocks++
	return nil
}

func (s *Sink) Pins() graph.Pins {
	return graph.Pins{
		{Name: "in", Type: graph.Audio, Dir: graph.Input, Bus: 0, Channel: 0},
	}
}

func (s *Sink) Params() *graph.ParamSet { return nil }

func (s *Sink) Routing() graph.Table { return nil }

// Fault misbehaves on demand: it panics when Panics is set, errors when
// Err is set, passes its input through otherwise.
type Fault struct {
	Panics bool
	Err    error
}

func (f *Fault) Prepare(sampleRate, blockSize int) error { return nil }

func (f *Fault) Process(b graph.Block, tr transport.State) error {
	if f.Panics {
		panic("mock fault")
	}
	if f.Err != nil {
		return f.Err
	}
	copy(b.Out[0], b.In[0])
	return nil
}

func (f *Fault) Pins() graph.Pins {
	return graph.Pins{
		{Name: "in", Type: graph.Audio, Dir: graph.Input, Bus: 0, Channel: 0},
		{Name: "out", Type: graph.Audio, Dir: graph.Output, Bus: 0, Channel: 0},
	}
}

func (f *Fault) Params() *graph.ParamSet { return nil }

func (f *Fault) Routing() graph.Table { return nil }

// Trig emits a constantly high gate.
type Trig struct{}

func (tr *Trig) Prepare(sampleRate, blockSize int) error { return nil }

func (tr *Trig) Process(b graph.Block, _ transport.State) error {
	for i := range b.Out[0] {
		b.Out[0][i] = 1
	}
	return nil
}

func (tr *Trig) Pins() graph.Pins {
	return graph.Pins{
		{Name: "gate", Type: graph.Gate, Dir: graph.Output, Bus: 0, Channel: 0},
	}
}

func (tr *Trig) Params() *graph.ParamSet { return nil }

func (tr *Trig) Routing() graph.Table { return nil }

// Env turns its gate input into a control signal.
type Env struct{}

func (e *Env) Prepare(sampleRate, blockSize int) error { return nil }

func (e *Env) Process(b graph.Block, _ transport.State) error {
	copy(b.Out[0], b.In[0])
	return nil
}

func (e *Env) Pins() graph.Pins {
	return graph.Pins{
		{Name: "gate", Type: graph.Gate, Dir: graph.Input, Bus: 0, Channel: 0},
		{Name: "cv", Type: graph.ControlVoltage, Dir: graph.Output, Bus: 0, Channel: 0},
	}
}

func (e *Env) Params() *graph.ParamSet { return nil }

func (e *Env) Routing() graph.Table { return nil }

// Clock is a pin-less tempo source. Once it claims tempo authority, the
// graph asks it for the transport state at every block boundary.
type Clock struct {
	BPM     float64
	Playing bool
	Writes  int
}

func (c *Clock) Prepare(sampleRate, blockSize int) error { return nil }

func (c *Clock) Process(b graph.Block, tr transport.State) error { return nil }

func (c *Clock) Pins() graph.Pins { return nil }

func (c *Clock) Params() *graph.ParamSet { return nil }

func (c *Clock) Routing() graph.Table { return nil }

// WriteTransport stamps the clock's tempo onto the shared state.
func (c *Clock) WriteTransport(tr *transport.State) {
	tr.BPM = c.BPM
	tr.Playing = c.Playing
	c.Writes++
}
