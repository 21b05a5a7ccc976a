package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	env, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ":53", env.Bind)
	assert.Equal(t, "", env.Domain)
	assert.Nil(t, env.ResolverList())
}

func TestLoadStripsLeadingDotFromDomain(t *testing.T) {
	t.Setenv("DNSDOCK_DOMAIN", ".docker")
	env, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "docker", env.Domain)
}

func TestResolverListDefaultsPort(t *testing.T) {
	t.Setenv("DNSDOCK_RESOLVERS", "8.8.8.8, 10.0.0.1:5353")
	env, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"8.8.8.8:53", "10.0.0.1:5353"}, env.ResolverList())
}

func TestQuietAndVerboseFlags(t *testing.T) {
	t.Setenv("DNSDOCK_QUIET", "true")
	env, err := Load(context.Background())
	require.NoError(t, err)
	assert.True(t, env.Quiet)
	assert.False(t, env.Verbose)
}
