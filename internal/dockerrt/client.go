// Package dockerrt implements ingest.RuntimeClient on top of the Docker
// Engine API, grounded on the client-construction idiom in
// pkg/client/docker/{context,daemon}.go (FromEnv + API version
// negotiation) and on the event-translation shape shown in
// envoyage's internal/docker watcher (events.Message, ActionStart/Die/
// Rename, container.ListOptions, filters.NewArgs).
package dockerrt

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"

	"github.com/datawire/dlib/dlog"

	"github.com/lidio601/docker-dns-rest/internal/ingest"
)

// Client adapts a github.com/docker/docker/client.Client to
// ingest.RuntimeClient.
type Client struct {
	cli *dockerclient.Client
}

// New connects to the Docker daemon at endpoint (empty uses DOCKER_HOST /
// the default socket), negotiating the API version automatically so it
// works across daemon versions.
func New(endpoint string) (*Client, error) {
	opts := []dockerclient.Opt{dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation()}
	if endpoint != "" {
		opts = append(opts, dockerclient.WithHost(endpoint))
	}
	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	return &Client{cli: cli}, nil
}

// Containers implements ingest.RuntimeClient.
func (c *Client) Containers(ctx context.Context) ([]ingest.ContainerSummary, error) {
	cs, err := c.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	out := make([]ingest.ContainerSummary, len(cs))
	for i, cn := range cs {
		mode := ""
		if cn.HostConfig.NetworkMode != "" {
			mode = cn.HostConfig.NetworkMode
		}
		out[i] = ingest.ContainerSummary{ID: cn.ID, NetworkMode: mode}
	}
	return out, nil
}

// InspectContainer implements ingest.RuntimeClient.
func (c *Client) InspectContainer(ctx context.Context, id string) (ingest.InspectResult, error) {
	info, err := c.cli.ContainerInspect(ctx, id)
	if err != nil {
		return ingest.InspectResult{}, fmt.Errorf("inspecting %s: %w", shortID(id), err)
	}

	res := ingest.InspectResult{
		ID:   info.ID,
		Name: info.Name,
	}
	if info.Config != nil {
		res.Env = info.Config.Env
		res.Labels = info.Config.Labels
	}
	if info.State != nil {
		res.Running = info.State.Running
	}
	if info.NetworkSettings != nil {
		res.IPAddress = info.NetworkSettings.IPAddress
		if len(info.NetworkSettings.Networks) > 0 {
			res.Networks = make(map[string]string, len(info.NetworkSettings.Networks))
			for name, n := range info.NetworkSettings.Networks {
				res.Networks[name] = n.IPAddress
			}
		}
	}
	return res, nil
}

// Events implements ingest.RuntimeClient, translating the Docker SDK's
// typed events.Message stream into the ingestor's untyped RuntimeEvent
// shape. It subscribes before returning, closing the race window spec.md
// §9 calls out between enumeration and subscription.
func (c *Client) Events(ctx context.Context) (<-chan ingest.RuntimeEvent, <-chan error) {
	f := filters.NewArgs()
	f.Add("type", string(events.ContainerEventType))

	raw, rawErrs := c.cli.Events(ctx, events.ListOptions{Filters: f})

	out := make(chan ingest.RuntimeEvent)
	outErrs := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-rawErrs:
				if !ok {
					return
				}
				outErrs <- err
				return
			case evt, ok := <-raw:
				if !ok {
					return
				}
				re, ok := translate(evt)
				if !ok {
					continue
				}
				select {
				case out <- re:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, outErrs
}

func translate(evt events.Message) (ingest.RuntimeEvent, bool) {
	status := statusFor(evt.Action)
	if status == "" {
		dlog.Debugf(context.Background(), "[dockerrt] ignoring action %s", evt.Action)
		return ingest.RuntimeEvent{}, false
	}
	return ingest.RuntimeEvent{
		Type:            string(evt.Type),
		ID:              evt.Actor.ID,
		Status:          status,
		ActorAttributes: evt.Actor.Attributes,
	}, true
}

func statusFor(action events.Action) string {
	switch {
	case action == events.ActionStart:
		return "start"
	case action == events.ActionDie:
		return "die"
	case strings.HasPrefix(string(action), "rename"):
		return "rename"
	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
