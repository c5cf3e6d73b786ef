package graph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/graph"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/mock"
	"pipelined.dev/graph/transport"
)

const (
	sampleRate = 44100
	blockSize  = 8
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newGraph(t *testing.T) *graph.Graph {
	t.Helper()
	return graph.New(sampleRate, blockSize, graph.WithLogger(log.Silent()))
}

func samples(v float64) []float64 {
	out := make([]float64, blockSize)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSignalFlow(t *testing.T) {
	g := newGraph(t)

	// insertion order is the reverse of signal order on purpose: the
	// schedule must come from the edges.
	sink := &mock.Sink{}
	sinkID, err := g.Insert(mock.SinkTag, sink)
	require.NoError(t, err)
	pass := &mock.Pass{}
	passID, err := g.Insert(mock.PassTag, pass)
	require.NoError(t, err)
	c := mock.NewConst(0.5)
	constID, err := g.Insert(mock.ConstTag, c)
	require.NoError(t, err)

	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: passID}))
	require.NoError(t, g.Connect(graph.Edge{Src: passID, Dst: sinkID}))

	g.Block()
	assert.Equal(t, samples(0.5), sink.Last)

	// value edits are picked up by the next block
	c.Level().SetValue(0.25)
	g.Block()
	assert.Equal(t, samples(0.25), sink.Last)
	assert.Equal(t, 2, sink.Blocks)
}

func TestUnconnectedInputsReadZero(t *testing.T) {
	g := newGraph(t)

	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0.25))
	require.NoError(t, err)
	sumID, err := g.Insert(mock.SumTag, &mock.Sum{})
	require.NoError(t, err)
	sink := &mock.Sink{}
	sinkID, err := g.Insert(mock.SinkTag, sink)
	require.NoError(t, err)

	// only input a of the sum is driven, b stays unconnected
	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: sumID, DstChannel: 0}))
	require.NoError(t, g.Connect(graph.Edge{Src: sumID, Dst: sinkID}))

	g.Block()
	assert.Equal(t, samples(0.25), sink.Last)
}

func TestFeedbackOneBlockDelay(t *testing.T) {
	g := newGraph(t)

	constID, err := g.Insert(mock.ConstTag, mock.NewConst(1))
	require.NoError(t, err)
	sumID, err := g.Insert(mock.SumTag, &mock.Sum{})
	require.NoError(t, err)
	passID, err := g.Insert(mock.PassTag, &mock.Pass{})
	require.NoError(t, err)
	sink := &mock.Sink{}
	sinkID, err := g.Insert(mock.SinkTag, sink)
	require.NoError(t, err)

	// sum and pass form a cycle: the pass->sum edge reads the previous
	// block's output, so the sum accumulates one step per block.
	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: sumID, DstChannel: 0}))
	require.NoError(t, g.Connect(graph.Edge{Src: sumID, Dst: passID}))
	require.NoError(t, g.Connect(graph.Edge{Src: passID, Dst: sumID, DstChannel: 1}))
	require.NoError(t, g.Connect(graph.Edge{Src: sumID, Dst: sinkID}))

	for block, expected := range []float64{1, 2, 3} {
		g.Block()
		assert.Equal(t, samples(expected), sink.Last, "block %d", block)
	}
}

func TestConnectValidation(t *testing.T) {
	g := newGraph(t)
	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0))
	require.NoError(t, err)
	passID, err := g.Insert(mock.PassTag, &mock.Pass{})
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: passID}))

	tests := []struct {
		description string
		edge        graph.Edge
		expected    error
	}{
		{
			description: "unknown source",
			edge:        graph.Edge{Src: "ghost", Dst: passID},
			expected:    graph.ErrUnknownNode,
		},
		{
			description: "unknown destination",
			edge:        graph.Edge{Src: constID, Dst: "ghost"},
			expected:    graph.ErrUnknownNode,
		},
		{
			description: "missing output channel",
			edge:        graph.Edge{Src: constID, SrcChannel: 5, Dst: passID},
			expected:    graph.ErrDanglingEndpoint,
		},
		{
			description: "missing input channel",
			edge:        graph.Edge{Src: constID, Dst: passID, DstChannel: 5},
			expected:    graph.ErrDanglingEndpoint,
		},
		{
			description: "input already connected",
			edge:        graph.Edge{Src: constID, Dst: passID},
			expected:    graph.ErrChannelBusy,
		},
		{
			description: "typed edge between wrong pins",
			edge:        graph.Edge{Src: passID, Dst: constID, Type: graph.Gate},
			expected:    graph.ErrTypeMismatch,
		},
	}
	for _, test := range tests {
		t.Log(test.description)
		assert.ErrorIs(t, g.Connect(test.edge), test.expected)
	}

	// a failed connect leaves the edge table unchanged
	assert.Equal(t, 1, len(g.Edges()))

	// a typed edge between matching pins connects
	sinkID, err := g.Insert(mock.SinkTag, &mock.Sink{})
	require.NoError(t, err)
	assert.NoError(t, g.Connect(graph.Edge{Src: passID, Dst: sinkID, Type: graph.Audio}))
}

func TestDisconnect(t *testing.T) {
	g := newGraph(t)
	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0))
	require.NoError(t, err)
	passID, err := g.Insert(mock.PassTag, &mock.Pass{})
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: passID}))

	assert.NoError(t, g.Disconnect(passID, 0))
	assert.Empty(t, g.Edges())
	assert.ErrorIs(t, g.Disconnect(passID, 0), graph.ErrDanglingEndpoint)
}

func TestRemoveNode(t *testing.T) {
	g := newGraph(t)
	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0))
	require.NoError(t, err)
	passID, err := g.Insert(mock.PassTag, &mock.Pass{})
	require.NoError(t, err)
	sinkID, err := g.Insert(mock.SinkTag, &mock.Sink{})
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: passID}))
	require.NoError(t, g.Connect(graph.Edge{Src: passID, Dst: sinkID}))

	assert.NoError(t, g.RemoveNode(passID))
	assert.Equal(t, []graph.NodeID{constID, sinkID}, g.Nodes())
	assert.Empty(t, g.Edges())
	assert.ErrorIs(t, g.RemoveNode(passID), graph.ErrUnknownNode)

	// graph keeps processing after the removal
	g.Block()
}

func TestInsertPrepareError(t *testing.T) {
	g := newGraph(t)
	failed := errors.New("allocation failed")
	_, err := g.Insert("broken", &mock.Node{PrepareErr: failed})
	assert.ErrorIs(t, err, failed)
	assert.Empty(t, g.Nodes())
}

func TestRestore(t *testing.T) {
	g := newGraph(t)
	require.NoError(t, g.Restore("stable-id", mock.PassTag, &mock.Pass{}))
	assert.ErrorIs(t, g.Restore("stable-id", mock.PassTag, &mock.Pass{}), graph.ErrDuplicateID)

	tag, ok := g.Tag("stable-id")
	assert.True(t, ok)
	assert.Equal(t, mock.PassTag, tag)
}

func TestAdd(t *testing.T) {
	g := newGraph(t)
	_, err := g.Add("no.such.type")
	assert.ErrorIs(t, err, graph.ErrUnknownType)

	id, err := g.Add(mock.PassTag)
	require.NoError(t, err)
	n, ok := g.Node(id)
	assert.True(t, ok)
	assert.IsType(t, &mock.Pass{}, n)
}

func TestModulation(t *testing.T) {
	g := newGraph(t)
	c := mock.NewConst(0.5)
	constID, err := g.Insert(mock.ConstTag, c)
	require.NoError(t, err)
	lfoID, err := g.Insert(mock.ConstTag, mock.NewConst(0.1))
	require.NoError(t, err)
	sink := &mock.Sink{}
	sinkID, err := g.Insert(mock.SinkTag, sink)
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: sinkID}))

	// no edge lands on the level input yet
	modulated, err := g.IsModulated(constID, mock.LevelMod)
	require.NoError(t, err)
	assert.False(t, modulated)

	g.Block()
	assert.Equal(t, samples(0.5), sink.Last)

	// drive the level input and the same query flips
	require.NoError(t, g.Connect(graph.Edge{Src: lfoID, Dst: constID, DstChannel: 0}))
	modulated, err = g.IsModulated(constID, mock.LevelMod)
	require.NoError(t, err)
	assert.True(t, modulated)

	g.Block()
	assert.Equal(t, samples(0.6), sink.Last)

	// disconnecting restores the stored value alone
	require.NoError(t, g.Disconnect(constID, 0))
	modulated, err = g.IsModulated(constID, mock.LevelMod)
	require.NoError(t, err)
	assert.False(t, modulated)

	g.Block()
	assert.Equal(t, samples(0.5), sink.Last)
}

func TestModulationErrors(t *testing.T) {
	g := newGraph(t)
	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0))
	require.NoError(t, err)
	passID, err := g.Insert(mock.PassTag, &mock.Pass{})
	require.NoError(t, err)

	_, err = g.IsModulated("ghost", mock.LevelMod)
	assert.ErrorIs(t, err, graph.ErrUnknownNode)

	_, err = g.IsModulated(constID, "no_such_target")
	assert.ErrorIs(t, err, graph.ErrUnknownTarget)

	// nodes without a routing table have no targets at all
	_, err = g.IsModulated(passID, mock.LevelMod)
	assert.ErrorIs(t, err, graph.ErrUnknownTarget)
}

func TestDescribe(t *testing.T) {
	g := newGraph(t)
	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0))
	require.NoError(t, err)
	lfoID, err := g.Insert(mock.ConstTag, mock.NewConst(0))
	require.NoError(t, err)

	d, err := g.Describe(constID)
	require.NoError(t, err)
	assert.Equal(t, constID, d.ID)
	assert.Equal(t, mock.ConstTag, d.Tag)
	assert.Equal(t, []graph.PinInfo{{Name: "level", Channel: 0, Type: graph.ControlVoltage}}, d.Inputs)
	assert.Equal(t, []graph.PinInfo{{Name: "out", Channel: 0, Type: graph.Audio}}, d.Outputs)
	assert.Equal(t, map[graph.TargetID]bool{mock.LevelMod: false}, d.Modulated)

	require.NoError(t, g.Connect(graph.Edge{Src: lfoID, Dst: constID, DstChannel: 0}))
	d, err = g.Describe(constID)
	require.NoError(t, err)
	assert.Equal(t, map[graph.TargetID]bool{mock.LevelMod: true}, d.Modulated)

	_, err = g.Describe("ghost")
	assert.ErrorIs(t, err, graph.ErrUnknownNode)
}

func TestTempoAuthority(t *testing.T) {
	g := newGraph(t)
	clock := &mock.Clock{BPM: 99, Playing: true}
	clockID, err := g.Insert(mock.ClockTag, clock)
	require.NoError(t, err)
	sink := &mock.Sink{}
	sinkID, err := g.Insert(mock.SinkTag, sink)
	require.NoError(t, err)

	assert.ErrorIs(t, g.ClaimTempoAuthority("ghost"), graph.ErrUnknownNode)
	require.NoError(t, g.ClaimTempoAuthority(clockID))
	// re-claiming by the holder is a no-op, anyone else is rejected
	assert.NoError(t, g.ClaimTempoAuthority(clockID))
	assert.ErrorIs(t, g.ClaimTempoAuthority(sinkID), graph.ErrAuthorityClaimed)

	g.Block()
	assert.Equal(t, 99.0, sink.Transport.BPM)
	assert.True(t, sink.Transport.Playing)
	assert.Equal(t, string(clockID), sink.Transport.AuthorityID)
	assert.Equal(t, 1, clock.Writes)

	// adoption is refused while an authority holds the transport
	g.AdoptTransport(transport.State{BPM: 50})
	assert.Equal(t, 99.0, g.Transport().BPM)

	assert.ErrorIs(t, g.ReleaseTempoAuthority(sinkID), graph.ErrNotAuthority)
	require.NoError(t, g.ReleaseTempoAuthority(clockID))

	// snapshots stop advertising the departed authority
	g.Block()
	assert.Equal(t, "", sink.Transport.AuthorityID)
	assert.Equal(t, 99.0, sink.Transport.BPM)

	// without an authority the transport is adoptable again
	g.AdoptTransport(transport.State{BPM: 50})
	assert.Equal(t, 50.0, g.Transport().BPM)
}

func TestAuthorityClearedOnRemove(t *testing.T) {
	g := newGraph(t)
	clockID, err := g.Insert(mock.ClockTag, &mock.Clock{BPM: 120})
	require.NoError(t, err)
	sink := &mock.Sink{}
	_, err = g.Insert(mock.SinkTag, sink)
	require.NoError(t, err)
	require.NoError(t, g.ClaimTempoAuthority(clockID))
	g.Block()
	assert.Equal(t, string(clockID), sink.Transport.AuthorityID)

	require.NoError(t, g.RemoveNode(clockID))
	g.Block()
	assert.Equal(t, "", sink.Transport.AuthorityID)

	otherID, err := g.Insert(mock.ClockTag, &mock.Clock{BPM: 80})
	require.NoError(t, err)
	assert.NoError(t, g.ClaimTempoAuthority(otherID))
}

func TestFaultIsolation(t *testing.T) {
	g := newGraph(t)
	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0.7))
	require.NoError(t, err)
	fault := &mock.Fault{Panics: true}
	faultID, err := g.Insert(mock.FaultTag, fault)
	require.NoError(t, err)
	sink := &mock.Sink{}
	sinkID, err := g.Insert(mock.SinkTag, sink)
	require.NoError(t, err)

	// independent chain that must survive the fault untouched
	otherID, err := g.Insert(mock.ConstTag, mock.NewConst(0.3))
	require.NoError(t, err)
	other := &mock.Sink{}
	otherSinkID, err := g.Insert(mock.SinkTag, other)
	require.NoError(t, err)

	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: faultID}))
	require.NoError(t, g.Connect(graph.Edge{Src: faultID, Dst: sinkID}))
	require.NoError(t, g.Connect(graph.Edge{Src: otherID, Dst: otherSinkID}))

	// panicking node emits silence, the rest of the graph proceeds
	g.Block()
	assert.Equal(t, samples(0), sink.Last)
	assert.Equal(t, samples(0.3), other.Last)

	// erroring node behaves the same
	fault.Panics = false
	fault.Err = errors.New("processing failed")
	g.Block()
	assert.Equal(t, samples(0), sink.Last)
	assert.Equal(t, samples(0.3), other.Last)

	// recovered node passes signal again
	fault.Err = nil
	g.Block()
	assert.Equal(t, samples(0.7), sink.Last)
}

func TestDynamicPins(t *testing.T) {
	g := newGraph(t)
	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0.5))
	require.NoError(t, err)
	n := &mock.Node{
		PinList: graph.Pins{
			{Name: "in", Type: graph.Audio, Dir: graph.Input, Channel: 0},
			{Name: "out", Type: graph.Audio, Dir: graph.Output, Channel: 0},
		},
	}
	nodeID, err := g.Insert("dynamic", n)
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.Edge{Src: constID, Dst: nodeID}))
	g.Block()
	assert.Equal(t, 1, len(g.Edges()))

	// the input pin disappears: the edge landing on it is dropped at the
	// next boundary
	n.PinList = graph.Pins{
		{Name: "out", Type: graph.Audio, Dir: graph.Output, Channel: 0},
	}
	g.Block()
	assert.Empty(t, g.Edges())
}

func TestBatch(t *testing.T) {
	g := newGraph(t)
	var constID, sinkID graph.NodeID
	err := g.Batch(func(tx *graph.Tx) error {
		var err error
		if constID, err = tx.Insert(mock.ConstTag, mock.NewConst(0.5)); err != nil {
			return err
		}
		if sinkID, err = tx.Insert(mock.SinkTag, &mock.Sink{}); err != nil {
			return err
		}
		return tx.Connect(graph.Edge{Src: constID, Dst: sinkID})
	})
	require.NoError(t, err)
	assert.Equal(t, []graph.NodeID{constID, sinkID}, g.Nodes())
	assert.Equal(t, 1, len(g.Edges()))
}

func TestRun(t *testing.T) {
	clock := make(chan time.Time)
	g := graph.New(sampleRate, blockSize, graph.WithLogger(log.Silent()), graph.WithClock(clock))
	constID, err := g.Insert(mock.ConstTag, mock.NewConst(0.5))
	require.NoError(t, err)
	sink := &mock.Sink{}
	sinkID, err := g.Insert(mock.SinkTag, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx)
	}()

	// a consumed tick proves the loop is running
	clock <- time.Now()
	assert.ErrorIs(t, g.Run(ctx), graph.ErrAlreadyRunning)

	// edits of a driven graph land at a block boundary and still report
	// synchronously
	connected := make(chan error, 1)
	go func() {
		connected <- g.Connect(graph.Edge{Src: constID, Dst: sinkID})
	}()
	err = driveUntil(t, clock, connected)
	assert.NoError(t, err)

	invalid := make(chan error, 1)
	go func() {
		invalid <- g.Connect(graph.Edge{Src: "ghost", Dst: sinkID})
	}()
	err = driveUntil(t, clock, invalid)
	assert.ErrorIs(t, err, graph.ErrUnknownNode)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// the stopped graph applies edits inline again
	assert.NoError(t, g.Disconnect(sinkID, 0))
}

// driveUntil feeds block ticks until the pending edit reports back.
func driveUntil(t *testing.T, clock chan<- time.Time, result <-chan error) error {
	t.Helper()
	for {
		select {
		case err := <-result:
			return err
		case clock <- time.Now():
		case <-time.After(5 * time.Second):
			t.Fatal("edit never applied")
		}
	}
}

func TestRunDrainsPendingOnExit(t *testing.T) {
	clock := make(chan time.Time)
	g := graph.New(sampleRate, blockSize, graph.WithLogger(log.Silent()), graph.WithClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx)
	}()
	clock <- time.Now()

	// queue an edit, then stop the loop without another tick: the edit
	// must still be applied and reported before Run returns
	inserted := make(chan error, 1)
	go func() {
		_, err := g.Insert(mock.PassTag, &mock.Pass{})
		inserted <- err
	}()
	// the mutation must be queued before cancellation to be meaningful;
	// there is no boundary between here and exit
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.NoError(t, <-inserted)
}

func TestNewPanicsOnInvalidSizes(t *testing.T) {
	assert.Panics(t, func() { graph.New(0, blockSize) })
	assert.Panics(t, func() { graph.New(sampleRate, -1) })
}

func TestAccessors(t *testing.T) {
	g := graph.New(sampleRate, blockSize, graph.WithName("main"), graph.WithLogger(log.Silent()))
	assert.Equal(t, sampleRate, g.SampleRate())
	assert.Equal(t, blockSize, g.BlockSize())
	assert.Equal(t, "main", g.Name())
	assert.NotNil(t, g.Logger())

	_, ok := g.Node("ghost")
	assert.False(t, ok)
	_, ok = g.Tag("ghost")
	assert.False(t, ok)
}
