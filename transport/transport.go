// Package transport defines the process-wide clock/tempo/position state
// shared by every node in a graph. One node at a time holds tempo
// authority and writes the state once per block; everyone else receives a
// read-only copy.
package transport

// Divisions is the global synchronization grid, expressed in beats per
// step. State.DivisionIndex points into it so synchronized consumers can
// be driven globally without per-node polling.
var Divisions = []float64{4, 2, 1, 0.5, 0.25, 0.125, 0.0625}

// State is the per-block transport snapshot. It is distributed by value:
// consumers cannot mutate the writer's copy.
type State struct {
	Playing         bool
	BPM             float64
	PositionBeats   float64
	PositionSeconds float64
	DivisionIndex   int
	AuthorityID     string
}

// Division returns the beats-per-step value selected by DivisionIndex.
// Out-of-range indexes clamp to the nearest valid division.
func (s State) Division() float64 {
	i := s.DivisionIndex
	if i < 0 {
		i = 0
	}
	if i >= len(Divisions) {
		i = len(Divisions) - 1
	}
	return Divisions[i]
}

// Advance moves the song position forward by provided number of frames.
// It does nothing while the transport is stopped. Tempo authorities call
// it once per block after setting BPM and play state.
func (s *State) Advance(frames, sampleRate int) {
	if !s.Playing || sampleRate <= 0 {
		return
	}
	seconds := float64(frames) / float64(sampleRate)
	s.PositionSeconds += seconds
	s.PositionBeats += seconds * s.BPM / 60
}
