package graph_test

import (
	"fmt"

	"pipelined.dev/graph"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/mock"
)

// Build a small patch, process one block and observe the result.
func Example() {
	g := graph.New(44100, 4, graph.WithLogger(log.Silent()))

	source, _ := g.Insert(mock.ConstTag, mock.NewConst(0.5))
	sink := &mock.Sink{}
	sinkID, _ := g.Insert(mock.SinkTag, sink)
	if err := g.Connect(graph.Edge{Src: source, Dst: sinkID}); err != nil {
		fmt.Println(err)
		return
	}

	g.Block()
	fmt.Printf("%.1f\n", sink.Last[0])
	// Output: 0.5
}

// Modulation targets resolve through the node's own routing table, so a
// query and the block path can never disagree.
func Example_modulation() {
	g := graph.New(44100, 4, graph.WithLogger(log.Silent()))

	osc, _ := g.Insert(mock.ConstTag, mock.NewConst(0.5))
	lfo, _ := g.Insert(mock.ConstTag, mock.NewConst(0.1))

	modulated, _ := g.IsModulated(osc, mock.LevelMod)
	fmt.Println("before:", modulated)

	g.Connect(graph.Edge{Src: lfo, Dst: osc, DstChannel: 0})
	modulated, _ = g.IsModulated(osc, mock.LevelMod)
	fmt.Println("after:", modulated)
	// Output:
	// before: false
	// after: true
}
