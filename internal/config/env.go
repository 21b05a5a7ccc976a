// Package config loads dnsdock's environment-driven configuration,
// grounded on cmd/traffic/cmd/manager/envconfig.go's use of
// github.com/sethvargo/go-envconfig.
package config

import (
	"context"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Env holds every recognized configuration option from spec.md §6:
// domain, bind, resolvers, runtime_endpoint, plus the logging and
// optional-REST-surface ambient options this repository adds.
type Env struct {
	// Domain is the optional suffix appended to all container-derived
	// names. A leading "." is tolerated and stripped.
	Domain string `env:"DNSDOCK_DOMAIN,default="`

	// Bind is the UDP listen address for the DNS responder.
	Bind string `env:"DNSDOCK_BIND,default=:53"`

	// Resolvers is a comma-separated list of upstream DNS servers for
	// recursive fallback. Empty disables recursion.
	Resolvers string `env:"DNSDOCK_RESOLVERS,default="`

	// RuntimeEndpoint is the container runtime socket/URL. Empty uses
	// the Docker SDK's own DOCKER_HOST-driven default.
	RuntimeEndpoint string `env:"DNSDOCK_RUNTIME_ENDPOINT,default="`

	// RestBind is the optional REST control surface's listen address.
	// Empty disables it.
	RestBind string `env:"DNSDOCK_REST_BIND,default="`

	// Quiet suppresses info/debug logging, leaving only errors.
	Quiet bool `env:"DNSDOCK_QUIET,default=false"`
	// Verbose enables debug-level logging.
	Verbose bool `env:"DNSDOCK_VERBOSE,default=false"`
}

// Load reads Env from the process environment.
func Load(ctx context.Context) (Env, error) {
	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return Env{}, err
	}
	env.Domain = strings.TrimPrefix(env.Domain, ".")
	return env, nil
}

// ResolverList splits Resolvers into a slice of "host:port" addresses,
// defaulting the port to 53 when omitted.
func (e Env) ResolverList() []string {
	if e.Resolvers == "" {
		return nil
	}
	parts := strings.Split(e.Resolvers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, ":") {
			p += ":53"
		}
		out = append(out, p)
	}
	return out
}
