package topology_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/internal/topology"
)

func TestSort(t *testing.T) {
	tests := []struct {
		description string
		nodes       []string
		edges       []topology.Edge
		order       []string
		feedback    []topology.Edge
	}{
		{
			description: "empty",
			order:       []string{},
		},
		{
			description: "no edges keeps input order",
			nodes:       []string{"c", "a", "b"},
			order:       []string{"c", "a", "b"},
		},
		{
			description: "chain",
			nodes:       []string{"sink", "source", "proc"},
			edges: []topology.Edge{
				{Src: "proc", Dst: "sink"},
				{Src: "source", Dst: "proc"},
			},
			order: []string{"source", "proc", "sink"},
		},
		{
			description: "diamond breaks ties by input order",
			nodes:       []string{"a", "b", "c", "d"},
			edges: []topology.Edge{
				{Src: "a", Dst: "b"},
				{Src: "a", Dst: "c"},
				{Src: "b", Dst: "d"},
				{Src: "c", Dst: "d"},
			},
			order: []string{"a", "b", "c", "d"},
		},
		{
			description: "two-node cycle",
			nodes:       []string{"a", "b"},
			edges: []topology.Edge{
				{Src: "a", Dst: "b"},
				{Src: "b", Dst: "a"},
			},
			order:    []string{"a", "b"},
			feedback: []topology.Edge{{Src: "b", Dst: "a"}},
		},
		{
			description: "self loop",
			nodes:       []string{"a"},
			edges:       []topology.Edge{{Src: "a", Dst: "a"}},
			order:       []string{"a"},
			feedback:    []topology.Edge{{Src: "a", Dst: "a"}},
		},
		{
			description: "cycle reached through a chain",
			nodes:       []string{"source", "a", "b"},
			edges: []topology.Edge{
				{Src: "source", Dst: "a"},
				{Src: "a", Dst: "b"},
				{Src: "b", Dst: "a"},
			},
			order:    []string{"source", "a", "b"},
			feedback: []topology.Edge{{Src: "b", Dst: "a"}},
		},
		{
			description: "edges to unknown nodes are ignored",
			nodes:       []string{"a", "b"},
			edges: []topology.Edge{
				{Src: "ghost", Dst: "b"},
				{Src: "a", Dst: "b"},
			},
			order: []string{"a", "b"},
		},
	}
	for _, test := range tests {
		t.Log(test.description)
		order, feedback := topology.Sort(test.nodes, test.edges)
		assert.Equal(t, test.order, append([]string{}, order...))
		assert.Equal(t, test.feedback, feedback)
	}
}
