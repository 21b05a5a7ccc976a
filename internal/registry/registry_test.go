package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidio601/docker-dns-rest/internal/nametree"
)

func labels(names ...string) []nametree.Label {
	out := make([]nametree.Label, len(names))
	for i, n := range names {
		out[i] = nametree.NewLabel(n)
	}
	return out
}

func TestAddActivateResolve(t *testing.T) {
	ctx := context.Background()
	r := New("docker")

	r.Add(ctx, "name:/foo", labels("foo.docker"))
	r.Activate(ctx, &Container{ID: "c1", Name: "foo.docker", Running: true, Addrs: []string{"10.0.0.2", "10.0.0.2"}})

	assert.Equal(t, []string{"10.0.0.2"}, r.Resolve(ctx, "foo.docker"))
}

func TestAddAfterActivateReconciles(t *testing.T) {
	ctx := context.Background()
	r := New("docker")

	r.Activate(ctx, &Container{ID: "c1", Name: "foo.docker", Running: true, Addrs: []string{"10.0.0.2"}})
	r.Add(ctx, "name:/foo", labels("foo.docker"))

	assert.Equal(t, []string{"10.0.0.2"}, r.Resolve(ctx, "foo.docker"))
}

func TestDeactivateRemovesResolution(t *testing.T) {
	ctx := context.Background()
	r := New("docker")
	c := &Container{ID: "c1", Name: "foo.docker", Running: true, Addrs: []string{"10.0.0.2"}}

	r.Add(ctx, "name:/foo", labels("foo.docker"))
	r.Activate(ctx, c)
	r.Deactivate(ctx, c)

	assert.Empty(t, r.Resolve(ctx, "foo.docker"))
}

func TestRemoveMappingClearsTree(t *testing.T) {
	ctx := context.Background()
	r := New("docker")
	c := &Container{ID: "c1", Name: "foo.docker", Running: true, Addrs: []string{"10.0.0.2"}}

	r.Add(ctx, "name:/foo", labels("foo.docker"))
	r.Activate(ctx, c)
	r.Remove(ctx, "name:/foo")

	assert.Empty(t, r.Get("name:/foo"))
	assert.Empty(t, r.Resolve(ctx, "foo.docker"))
}

func TestRenamePreservesNamesAndSwapsKey(t *testing.T) {
	ctx := context.Background()
	r := New("docker")

	r.Add(ctx, "name:/old", labels("old.docker"))
	require.Equal(t, []string{"old.docker"}, r.Get("name:/old"))

	r.Rename(ctx, "old", "new")

	assert.Empty(t, r.Get("name:/old"))
	assert.Equal(t, []string{"old.docker"}, r.Get("name:/new"))
}

func TestActivateTwiceIsIdempotentForResolve(t *testing.T) {
	ctx := context.Background()
	r := New("docker")
	c := &Container{ID: "c1", Name: "foo.docker", Running: true, Addrs: []string{"10.0.0.2"}}

	r.Add(ctx, "name:/foo", labels("foo.docker"))
	r.Activate(ctx, c)
	r.Activate(ctx, c)

	assert.Equal(t, []string{"10.0.0.2"}, r.Resolve(ctx, "foo.docker"))
}

func TestStaticPinSurvivesMappingRemoval(t *testing.T) {
	ctx := context.Background()
	r := New("")

	r.ActivateStatic(ctx, "static.example", "9.9.9.9")
	r.Add(ctx, "name:/static.example", labels("static.example"))
	r.Remove(ctx, "name:/static.example")

	assert.Equal(t, []string{"9.9.9.9"}, r.Resolve(ctx, "static.example"))

	r.DeactivateStatic(ctx, "static.example", "9.9.9.9")
	assert.Empty(t, r.Resolve(ctx, "static.example"))
}
