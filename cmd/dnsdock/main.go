// Command dnsdock is the process entrypoint: it wires configuration,
// logging, the Docker runtime client, the registry, the event ingestor,
// the DNS responder, and the optional REST control surface together and
// supervises them as a dgroup.Group, grounded on cmd/podd/main.go and
// cmd/traffic/cmd/manager/manager.go's Main(ctx) shape.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/lidio601/docker-dns-rest/internal/config"
	"github.com/lidio601/docker-dns-rest/internal/dnsserver"
	"github.com/lidio601/docker-dns-rest/internal/dockerrt"
	"github.com/lidio601/docker-dns-rest/internal/ingest"
	"github.com/lidio601/docker-dns-rest/internal/logging"
	"github.com/lidio601/docker-dns-rest/internal/registry"
	"github.com/lidio601/docker-dns-rest/internal/restapi"
)

const processName = "dnsdock"

func main() {
	ctx := context.Background()
	ctx = dgroup.WithGoroutineName(ctx, "/"+processName)

	cmd := &cobra.Command{
		Use:   processName,
		Short: "DNS responder that resolves container names from the Docker event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Main(cmd.Context())
		},
	}

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", processName, err)
		os.Exit(1)
	}
}

// Main loads configuration, builds every component, and supervises them
// until ctx is canceled or one of them fails.
func Main(ctx context.Context) error {
	env, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	ctx = logging.WithLogger(ctx, env.Quiet, env.Verbose)
	dlog.Infof(ctx, "%s starting (domain=%q bind=%s)", processName, env.Domain, env.Bind)

	runtime, err := dockerrt.New(env.RuntimeEndpoint)
	if err != nil {
		return fmt.Errorf("connecting to container runtime: %w", err)
	}

	reg := registry.New(env.Domain)
	ingestor := ingest.New(runtime, reg, env.Domain)

	// Bootstrap subscribes to the event stream before it enumerates the
	// running container list, buffering anything that arrives meanwhile;
	// the "ingest" goroutine's Run call below drains that buffer before
	// resuming the live stream. See ingest.Ingestor.Bootstrap.
	if err := ingestor.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping from running containers: %w", err)
	}

	dnsSrv := dnsserver.New(ctx, []string{env.Bind}, reg, env.ResolverList())

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
		SoftShutdownTimeout:  5 * time.Second,
	})

	g.Go("ingest", func(ctx context.Context) error {
		return ingestor.Run(ctx)
	})

	var dnsInit sync.WaitGroup
	dnsInit.Add(1)
	g.Go("dns", func(ctx context.Context) error {
		return dnsSrv.Run(ctx, &dnsInit)
	})

	if env.RestBind != "" {
		restSrv := restapi.New(env.RestBind, reg)
		var restInit sync.WaitGroup
		restInit.Add(1)
		g.Go("restapi", func(ctx context.Context) error {
			return restSrv.Run(ctx, &restInit)
		})
	}

	return g.Wait()
}
