package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidio601/docker-dns-rest/internal/registry"
)

type fakeRuntime struct {
	containers []ContainerSummary
	inspect    map[string]InspectResult
	events     chan RuntimeEvent
	errs       chan error

	// onInspect, if set, runs synchronously inside InspectContainer --
	// used to simulate an event arriving mid-enumeration.
	onInspect func(id string)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		inspect: make(map[string]InspectResult),
		events:  make(chan RuntimeEvent, 16),
		errs:    make(chan error, 1),
	}
}

func (f *fakeRuntime) Containers(ctx context.Context) ([]ContainerSummary, error) {
	return f.containers, nil
}

func (f *fakeRuntime) InspectContainer(ctx context.Context, id string) (InspectResult, error) {
	if f.onInspect != nil {
		f.onInspect(id)
	}
	return f.inspect[id], nil
}

func (f *fakeRuntime) Events(ctx context.Context) (<-chan RuntimeEvent, <-chan error) {
	return f.events, f.errs
}

func TestBootstrapThenStartResolves(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.inspect["c1"] = InspectResult{
		ID:       "c1",
		Name:     "/foo",
		Running:  true,
		Networks: map[string]string{"bridge": "10.0.0.2"},
	}
	rt.containers = []ContainerSummary{{ID: "c1"}}

	reg := registry.New("docker")
	in := New(rt, reg, "docker")
	require.NoError(t, in.Bootstrap(ctx))

	assert.Equal(t, []string{"10.0.0.2"}, reg.Resolve(ctx, "foo.docker"))
	assert.Empty(t, reg.Resolve(ctx, "bar.docker"))
}

func TestComposeDerivation(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.inspect["c1"] = InspectResult{
		ID:      "c1",
		Name:    "/shop_web_1",
		Running: true,
		Labels: map[string]string{
			labelComposeNumber:  "1",
			labelComposeService: "web",
			labelComposeProject: "shop",
		},
		Networks: map[string]string{"bridge": "10.0.0.5"},
	}
	rt.containers = []ContainerSummary{{ID: "c1"}}

	reg := registry.New("docker")
	require.NoError(t, New(rt, reg, "docker").Bootstrap(ctx))

	for _, name := range []string{"shop_web_1.docker", "1.web.shop.docker", "web.shop.docker"} {
		assert.Equal(t, []string{"10.0.0.5"}, reg.Resolve(ctx, name), name)
	}
}

func TestVirtualHost(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.inspect["c1"] = InspectResult{
		ID:       "c1",
		Name:     "/api",
		Running:  true,
		Env:      []string{"VIRTUAL_HOST=api.example.com,*.api.example.com"},
		Networks: map[string]string{"bridge": "10.0.0.9"},
	}
	rt.containers = []ContainerSummary{{ID: "c1"}}

	reg := registry.New("")
	require.NoError(t, New(rt, reg, "").Bootstrap(ctx))

	assert.Equal(t, []string{"10.0.0.9"}, reg.Resolve(ctx, "api.example.com"))
	assert.Equal(t, []string{"10.0.0.9"}, reg.Resolve(ctx, "x.api.example.com"))
}

func TestStartThenDie(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.inspect["c1"] = InspectResult{
		ID:       "c1",
		Name:     "/foo",
		Running:  true,
		Networks: map[string]string{"bridge": "10.0.0.2"},
	}

	reg := registry.New("docker")
	in := New(rt, reg, "docker")
	require.NoError(t, in.Bootstrap(ctx))

	ctx2, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx2) }()

	rt.events <- RuntimeEvent{Type: "container", ID: "c1", Status: "start"}
	require.Eventually(t, func() bool {
		return len(reg.Resolve(ctx, "foo.docker")) == 1
	}, time.Second, time.Millisecond)

	rt.inspect["c1"] = InspectResult{ID: "c1", Name: "/foo", Running: false}
	rt.events <- RuntimeEvent{Type: "container", ID: "c1", Status: "die"}
	require.Eventually(t, func() bool {
		return len(reg.Resolve(ctx, "foo.docker")) == 0
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestRenameEvent(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.inspect["c1"] = InspectResult{
		ID:       "c1",
		Name:     "/foo",
		Running:  true,
		Networks: map[string]string{"bridge": "10.0.0.2"},
	}

	reg := registry.New("docker")
	in := New(rt, reg, "docker")
	require.NoError(t, in.Bootstrap(ctx))

	ctx2, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx2) }()
	defer func() { cancel(); <-done }()

	rt.events <- RuntimeEvent{Type: "container", ID: "c1", Status: "start"}
	require.Eventually(t, func() bool {
		return len(reg.Resolve(ctx, "foo.docker")) == 1
	}, time.Second, time.Millisecond)

	rt.events <- RuntimeEvent{
		Type: "container", ID: "c1", Status: "rename",
		ActorAttributes: map[string]string{"oldName": "foo", "name": "bar"},
	}
	require.Eventually(t, func() bool {
		return reg.Get("name:/foo") == nil
	}, time.Second, time.Millisecond)
}

// TestEventDuringBootstrapEnumerationIsNotLost exercises spec.md §9's
// subscribe-then-enumerate-then-read order: a container that starts while
// Bootstrap is still inspecting the initial listing must not be dropped.
func TestEventDuringBootstrapEnumerationIsNotLost(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.containers = []ContainerSummary{{ID: "c1"}}
	rt.inspect["c1"] = InspectResult{ID: "c1", Name: "/foo", Running: true, Networks: map[string]string{"bridge": "10.0.0.2"}}
	rt.inspect["c2"] = InspectResult{ID: "c2", Name: "/bar", Running: true, Networks: map[string]string{"bridge": "10.0.0.3"}}

	// Simulate "c2" starting in the window between subscription and the
	// end of enumeration, while Bootstrap is busy inspecting "c1".
	rt.onInspect = func(id string) {
		if id == "c1" {
			rt.events <- RuntimeEvent{Type: "container", ID: "c2", Status: "start"}
		}
	}

	reg := registry.New("docker")
	in := New(rt, reg, "docker")
	require.NoError(t, in.Bootstrap(ctx))

	assert.Equal(t, []string{"10.0.0.2"}, reg.Resolve(ctx, "foo.docker"))
	assert.Empty(t, reg.Resolve(ctx, "bar.docker"), "buffered event must not apply before Run drains it")

	ctx2, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx2) }()
	defer func() { cancel(); <-done }()

	require.Eventually(t, func() bool {
		return len(reg.Resolve(ctx, "bar.docker")) == 1
	}, time.Second, time.Millisecond, "event buffered during bootstrap enumeration was lost")
}
