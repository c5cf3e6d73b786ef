package graph

import "errors"

var (
	// ErrUnknownType is returned when no factory is registered for a tag.
	ErrUnknownType = errors.New("unknown node type")
	// ErrUnknownNode is returned when a node id is not in the graph.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateID is returned when restoring a node under a taken id.
	ErrDuplicateID = errors.New("node id already in use")
	// ErrDanglingEndpoint is returned when an edge endpoint does not
	// resolve to an existing pin.
	ErrDanglingEndpoint = errors.New("dangling edge endpoint")
	// ErrChannelBusy is returned when an input channel already has an
	// inbound edge.
	ErrChannelBusy = errors.New("input channel already connected")
	// ErrTypeMismatch is returned when a typed edge does not match the
	// pin types on both ends.
	ErrTypeMismatch = errors.New("edge type mismatch")
	// ErrUnknownTarget is returned when a node does not declare the
	// queried modulation target.
	ErrUnknownTarget = errors.New("unknown modulation target")
	// ErrAuthorityClaimed is returned when tempo authority is already
	// held by another node.
	ErrAuthorityClaimed = errors.New("tempo authority already claimed")
	// ErrNotAuthority is returned when a node releases an authority it
	// does not hold.
	ErrNotAuthority = errors.New("node does not hold tempo authority")
	// ErrAlreadyRunning is returned when the block loop is started twice.
	ErrAlreadyRunning = errors.New("block loop already running")
)
