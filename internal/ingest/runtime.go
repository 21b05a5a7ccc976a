// Package ingest drives the registry from a container-runtime event
// stream: a bootstrap enumeration of already-running containers followed
// by an incremental event loop (start/die/rename), exactly as described
// in spec.md §4.C. It depends only on the RuntimeClient interface below,
// so it stays a pure, fake-testable state machine; internal/dockerrt
// supplies the real implementation on top of the Docker Engine API.
package ingest

import "context"

// ContainerSummary is the minimal listing entry returned by bootstrap
// enumeration.
type ContainerSummary struct {
	ID string
	// NetworkMode is the HostConfig-selected network. addresses() looks
	// it up in the inspect document's Networks map as its last step.
	NetworkMode string
}

// InspectResult is the subset of a container-runtime inspect document
// that the ingestor derives container records from.
type InspectResult struct {
	ID   string
	Name string // as reported by the runtime, e.g. "/foo"

	Env    []string          // Config.Env
	Labels map[string]string // Config.Labels
	Running bool             // State.Running

	// Networks maps network name -> that network's IPAddress, mirroring
	// NetworkSettings.Networks.*.IPAddress.
	Networks map[string]string
	// IPAddress is the legacy top-level NetworkSettings.IPAddress,
	// consulted when Networks is empty.
	IPAddress string
}

// RuntimeEvent is the untyped event shape the runtime's event stream
// emits, matching spec.md §6's {Type, id, status, Actor.Attributes}.
type RuntimeEvent struct {
	Type   string
	ID     string
	Status string

	// ActorAttributes carries rename events' oldName/name.
	ActorAttributes map[string]string
}

// RuntimeClient is the external container-runtime collaborator described
// by interface in spec.md §6. internal/dockerrt implements it on top of
// github.com/docker/docker/client.
type RuntimeClient interface {
	Containers(ctx context.Context) ([]ContainerSummary, error)
	InspectContainer(ctx context.Context, id string) (InspectResult, error)
	// Events returns a channel of events and a channel of stream-level
	// errors; it must already be subscribed by the time it returns, so
	// that Bootstrap can enumerate Containers afterward without missing
	// any event raised in between (spec.md §9's bootstrap-ordering note).
	// Bootstrap calls Events before Containers and buffers anything that
	// arrives during enumeration; Run drains that buffer before resuming
	// the live stream.
	Events(ctx context.Context) (<-chan RuntimeEvent, <-chan error)
}
