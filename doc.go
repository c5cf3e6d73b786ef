/*
Package graph implements a real-time modular signal-processing graph.

Concept

A Graph owns a table of nodes and the directed connections between their
pins. Signals move through the graph in fixed-size blocks: once per block
the graph distributes a transport snapshot, walks the nodes in topological
order and invokes every node with its bound buffer views. Cyclic
connections are legal and resolve with exactly one block of delay.

Nodes

A node is anything that implements the Node interface: it declares typed
pins, exposes a parameter set and a modulation routing table, and processes
one block at a time. Node types are registered with RegisterNodeType and
instantiated by tag, so the graph itself stays agnostic to concrete DSP.

Editing

The graph structure may be edited from any goroutine. While the block loop
runs, structural edits are queued and applied only at block boundaries, so
the processing path never contends with editing. Every edit is validated
when it is applied and its result is reported back to the caller.
*/
package graph
