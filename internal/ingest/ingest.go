package ingest

import (
	"context"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/lidio601/docker-dns-rest/internal/registry"
)

// Ingestor drives a Registry from a RuntimeClient's container listing and
// event stream.
type Ingestor struct {
	client   RuntimeClient
	registry *registry.Registry
	domain   string

	// events/errs are the live subscription handed back by Bootstrap's
	// call to client.Events, kept open for Run to read from afterward.
	events <-chan RuntimeEvent
	errs   <-chan error

	mu         sync.Mutex
	pending    []RuntimeEvent
	pendingErr error
}

// New returns an Ingestor that will derive container records using
// domain as the global DNS suffix (may be empty).
func New(client RuntimeClient, reg *registry.Registry, domain string) *Ingestor {
	return &Ingestor{client: client, registry: reg, domain: domain}
}

// Bootstrap subscribes to the runtime event stream, then enumerates
// currently-running containers and adds/activates their derived mappings,
// then buffers any events that arrived during that enumeration. This order
// -- subscribe, enumerate, read -- is mandated by spec.md §9: subscribing
// only after Containers() returns would drop any container that starts in
// between, since it would appear in neither the bootstrap listing nor the
// (not yet open) event stream. The caller must call Bootstrap before Run;
// Run drains the buffered events before resuming the live stream.
func (in *Ingestor) Bootstrap(ctx context.Context) error {
	events, errs := in.client.Events(ctx)
	in.events = events
	in.errs = errs

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					return
				}
				in.mu.Lock()
				in.pending = append(in.pending, evt)
				in.mu.Unlock()
			case err, ok := <-errs:
				if !ok {
					return
				}
				in.mu.Lock()
				if in.pendingErr == nil {
					in.pendingErr = err
				}
				in.mu.Unlock()
				return
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	containers, err := in.client.Containers(ctx)
	if err != nil {
		return err
	}
	dlog.Infof(ctx, "[ingest] %d containers found", len(containers))

	for i := range containers {
		summary := containers[i]
		rec, err := in.client.InspectContainer(ctx, summary.ID)
		if err != nil {
			dlog.Errorf(ctx, "[ingest] error inspecting %s: %v", summary.ID, err)
			continue
		}
		for _, c := range deriveContainers(rec, &summary, in.domain) {
			c := c
			in.registry.Add(ctx, "name:/"+c.Name, c.Names)
			if c.Running {
				in.registry.Activate(ctx, &c)
			}
		}
	}
	return nil
}

// Run drains any events buffered during Bootstrap's enumeration window,
// then consumes the live runtime event stream until ctx is canceled. The
// caller must have already called Bootstrap, which performs the
// subscription this method continues reading from. Malformed or
// irrelevant events are skipped with a debug log and never abort the
// loop. An error reported by the event stream itself is not retried: Run
// returns it (unless ctx is already canceled).
func (in *Ingestor) Run(ctx context.Context) error {
	in.mu.Lock()
	pending := in.pending
	in.pending = nil
	pendingErr := in.pendingErr
	in.mu.Unlock()

	for _, evt := range pending {
		in.handleEvent(ctx, evt)
	}
	if pendingErr != nil && ctx.Err() == nil {
		return pendingErr
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-in.errs:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		case evt, ok := <-in.events:
			if !ok {
				return nil
			}
			in.handleEvent(ctx, evt)
		}
	}
}

func (in *Ingestor) handleEvent(ctx context.Context, evt RuntimeEvent) {
	if evt.Type != "" && evt.Type != "container" {
		dlog.Debugf(ctx, "[ingest] skipped event due wrong type: [type=%s]", evt.Type)
		return
	}
	if evt.ID == "" {
		dlog.Debugf(ctx, "[ingest] skipped event due missing id")
		return
	}
	switch evt.Status {
	case "start", "die", "rename":
	default:
		dlog.Debugf(ctx, "[ingest] skipped event due wrong status: [status=%s]", evt.Status)
		return
	}

	dlog.Infof(ctx, "[ingest] got event [status=%s] [id=%s]", evt.Status, evt.ID)

	if evt.Status == "rename" {
		in.registry.Rename(ctx, evt.ActorAttributes["oldName"], evt.ActorAttributes["name"])
		return
	}

	rec, err := in.client.InspectContainer(ctx, evt.ID)
	if err != nil {
		dlog.Errorf(ctx, "[ingest] error inspecting %s: %v", evt.ID, err)
		return
	}

	for _, c := range deriveContainers(rec, nil, in.domain) {
		c := c
		switch evt.Status {
		case "start":
			in.registry.Add(ctx, "name:/"+c.Name, c.Names)
			in.registry.Activate(ctx, &c)
		case "die":
			in.registry.Deactivate(ctx, &c)
		}
	}
}
