package graph

import (
	"math"
	"sync/atomic"
)

// Param is a stored, automatable parameter. The value cell is atomic:
// editors write it from their own goroutines, the block path reads it
// without locks. A param with a non-empty Target can additionally be
// driven by a connected modulation edge.
type Param struct {
	Name   string
	Target TargetID
	def    float64
	bits   atomic.Uint64
}

// NewParam returns a parameter with provided default. Pass an empty
// target for parameters that cannot be modulated.
func NewParam(name string, def float64, target TargetID) *Param {
	p := &Param{Name: name, Target: target, def: def}
	p.bits.Store(math.Float64bits(def))
	return p
}

// Value returns the current parameter value.
func (p *Param) Value() float64 {
	return math.Float64frombits(p.bits.Load())
}

// SetValue stores a new parameter value.
func (p *Param) SetValue(v float64) {
	p.bits.Store(math.Float64bits(v))
}

// Default returns the value the parameter was created with.
func (p *Param) Default() float64 {
	return p.def
}

// Modulatable reports whether the parameter declares a modulation target.
func (p *Param) Modulatable() bool {
	return p.Target != ""
}

// ParamSet is an ordered set of parameters with lookup by name and by
// modulation target.
type ParamSet struct {
	params   []*Param
	byName   map[string]*Param
	byTarget map[TargetID]*Param
}

// NewParamSet builds a set from provided parameters.
func NewParamSet(params ...*Param) *ParamSet {
	s := &ParamSet{
		params:   params,
		byName:   make(map[string]*Param, len(params)),
		byTarget: make(map[TargetID]*Param, len(params)),
	}
	for _, p := range params {
		s.byName[p.Name] = p
		if p.Target != "" {
			s.byTarget[p.Target] = p
		}
	}
	return s
}

// List returns parameters in declaration order.
func (s *ParamSet) List() []*Param {
	if s == nil {
		return nil
	}
	return s.params
}

// ByName returns the parameter with provided name.
func (s *ParamSet) ByName(name string) (*Param, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.byName[name]
	return p, ok
}

// ByTarget returns the parameter owning provided modulation target.
func (s *ParamSet) ByTarget(id TargetID) (*Param, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.byTarget[id]
	return p, ok
}

// Values returns a snapshot of all parameter values keyed by name.
func (s *ParamSet) Values() map[string]float64 {
	if s == nil {
		return nil
	}
	vs := make(map[string]float64, len(s.params))
	for _, p := range s.params {
		vs[p.Name] = p.Value()
	}
	return vs
}

// Restore sets parameter values from a snapshot. Unknown names are
// ignored, missing names keep their current value.
func (s *ParamSet) Restore(vs map[string]float64) {
	if s == nil {
		return
	}
	for name, v := range vs {
		if p, ok := s.byName[name]; ok {
			p.SetValue(v)
		}
	}
}
