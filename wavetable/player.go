package wavetable

import (
	"encoding/json"
	"math"
	"sync/atomic"

	"pipelined.dev/graph"
	"pipelined.dev/graph/hotswap"
	"pipelined.dev/graph/transport"
)

// PlayerTag is the registered type tag of the Player node.
const PlayerTag = "wavetable.player"

// Modulation targets of the Player.
const (
	GainMod  graph.TargetID = "gain_mod"
	PitchMod graph.TargetID = "pitch_mod"
)

func init() {
	graph.RegisterNodeType(PlayerTag, func() graph.Node { return NewPlayer() })
}

// Player plays the active sample table, retriggered by a gate input.
// Pitch and gain come from stored params plus additive CV modulation.
// The table itself is a hot-swapped resource: Load replaces it from a
// loader goroutine while blocks keep playing the table they started
// with.
type Player struct {
	pins   graph.Pins
	params *graph.ParamSet
	gain   *graph.Param
	pitch  *graph.Param

	slot *hotswap.Slot[Table]
	gen  atomic.Uint64

	sampleRate int
	pos        float64
	lastGate   float64
	playing    bool
}

// NewPlayer returns a player with no table loaded. It stays silent
// until a Load commits.
func NewPlayer() *Player {
	gain := graph.NewParam("gain", 1, GainMod)
	pitch := graph.NewParam("pitch", 1, PitchMod)
	return &Player{
		pins: graph.Pins{
			{Name: "gate", Type: graph.Gate, Dir: graph.Input, Bus: 0, Channel: 0},
			{Name: "pitch", Type: graph.ControlVoltage, Dir: graph.Input, Bus: 0, Channel: 1},
			{Name: "gain", Type: graph.ControlVoltage, Dir: graph.Input, Bus: 0, Channel: 2},
			{Name: "out.l", Type: graph.Audio, Dir: graph.Output, Bus: 0, Channel: 0},
			{Name: "out.r", Type: graph.Audio, Dir: graph.Output, Bus: 0, Channel: 1},
		},
		params: graph.NewParamSet(gain, pitch),
		gain:   gain,
		pitch:  pitch,
		slot:   hotswap.NewSlot[Table](nil),
	}
}

// Prepare records the graph rate for pitch scaling.
func (p *Player) Prepare(sampleRate, blockSize int) error {
	p.sampleRate = sampleRate
	return nil
}

// Pins returns the player's pin list.
func (p *Player) Pins() graph.Pins { return p.pins }

// Params returns the stored gain and pitch parameters.
func (p *Player) Params() *graph.ParamSet { return p.params }

// Routing maps the modulation targets to the cv input pins.
func (p *Player) Routing() graph.Table {
	return graph.Table{
		PitchMod: {Bus: 0, Channel: 1},
		GainMod:  {Bus: 0, Channel: 2},
	}
}

// Load decodes a wav file on a loader goroutine and commits the table
// once built. A Load issued while a previous one is still decoding
// supersedes it: the older build completes, is discarded and reports
// ErrSuperseded on its result channel. The channel is buffered, the
// caller may drop it.
func (p *Player) Load(path string) <-chan error {
	result := make(chan error, 1)
	gen := p.gen.Add(1)
	go func() {
		table, err := Decode(path)
		if err != nil {
			result <- err
			return
		}
		if p.gen.Load() != gen {
			result <- ErrSuperseded
			return
		}
		p.slot.Commit(table)
		result <- nil
	}()
	return result
}

// Table peeks at the active table. Editors and persistence only.
func (p *Player) Table() *Table { return p.slot.Load() }

// Close releases the slot. Only call it after the player left the graph.
func (p *Player) Close() { p.slot.Close() }

// Process renders one block. A rising edge on the gate input resets the
// playhead. Effective pitch and gain are the stored values plus the cv
// inputs, per sample. Playback wraps at the table end.
func (p *Player) Process(b graph.Block, tr transport.State) error {
	table := p.slot.Acquire()
	if table == nil || table.Frames() == 0 || p.sampleRate == 0 {
		return nil
	}
	gate, pitchCV, gainCV := b.In[0], b.In[1], b.In[2]
	left, right := b.Out[0], b.Out[1]
	lch := table.Data[0]
	rch := lch
	if len(table.Data) > 1 {
		rch = table.Data[1]
	}

	frames := float64(table.Frames())
	rate := float64(table.SampleRate) / float64(p.sampleRate)
	basePitch := p.pitch.Value()
	baseGain := p.gain.Value()
	for i := range left {
		if gate[i] > 0.5 && p.lastGate <= 0.5 {
			p.pos = 0
			p.playing = true
		}
		p.lastGate = gate[i]
		if !p.playing {
			continue
		}
		gain := baseGain + gainCV[i]
		idx := int(p.pos)
		left[i] = lch[idx] * gain
		right[i] = rch[idx] * gain
		// the per-sample step is unbounded, the cv input may carry any
		// value, so the wrap must handle multiple table lengths at once
		p.pos += rate * (basePitch + pitchCV[i])
		if p.pos >= frames || p.pos < 0 {
			p.pos = math.Mod(p.pos, frames)
			if p.pos < 0 {
				p.pos += frames
			}
		}
	}
	return nil
}

// playerState is the serialized extra state of a player: the path of the
// loaded file. The table itself is rebuilt from the file on restore.
type playerState struct {
	Path string `json:"path,omitempty"`
}

// ExtraState serializes the path of the active table.
func (p *Player) ExtraState() ([]byte, error) {
	var st playerState
	if table := p.slot.Load(); table != nil {
		st.Path = table.Path
	}
	return json.Marshal(st)
}

// SetExtraState reloads the recorded file. Restore happens off the block
// path, so the decode is synchronous here.
func (p *Player) SetExtraState(blob []byte) error {
	var st playerState
	if err := json.Unmarshal(blob, &st); err != nil {
		return err
	}
	if st.Path == "" {
		return nil
	}
	table, err := Decode(st.Path)
	if err != nil {
		return err
	}
	p.gen.Add(1)
	p.slot.Commit(table)
	return nil
}
