// Package restapi implements the optional static-name control surface from
// SPEC_FULL.md §4.F: PUT/DELETE under /names/ let an operator pin or
// unpin a name outside the container event stream, mirroring
// original_source's activate_static/deactivate_static helpers. Grounded on
// the teacher's plain net/http sidecar pattern (cmd/traffic's metrics
// server) rather than a router library -- see DESIGN.md.
package restapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/datawire/dlib/dcontext"
	"github.com/datawire/dlib/dlog"
)

// Activator is the subset of *registry.Registry the REST surface needs.
type Activator interface {
	ActivateStatic(ctx context.Context, label, address string)
	DeactivateStatic(ctx context.Context, label, address string)
}

// Server is a thin net/http front end over an Activator.
type Server struct {
	addr     string
	registry Activator
}

// New returns a Server that will listen on addr (host:port) once Run is
// called.
func New(addr string, registry Activator) *Server {
	return &Server{addr: addr, registry: registry}
}

type pinRequest struct {
	Address string `json:"address"`
}

// ServeHTTP implements http.Handler. Routes are a static two-entry
// dispatch: PUT/DELETE on /names/{label}.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimPrefix(r.URL.Path, "/names/")
	if label == "" || label == r.URL.Path {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req pinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
			http.Error(w, "body must be {\"address\": \"...\"}", http.StatusBadRequest)
			return
		}
		s.registry.ActivateStatic(r.Context(), label, req.Address)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		address := r.URL.Query().Get("address")
		s.registry.DeactivateStatic(r.Context(), label, address)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "PUT, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Run listens and serves until ctx is canceled, then shuts down gracefully.
// initDone, if non-nil, is signaled once the listener is bound.
func (s *Server) Run(ctx context.Context, initDone *sync.WaitGroup) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		if initDone != nil {
			initDone.Done()
		}
		return err
	}

	httpSrv := &http.Server{Handler: s}
	go func() {
		<-ctx.Done()
		_ = httpSrv.Shutdown(dcontext.HardContext(ctx))
	}()

	dlog.Infof(ctx, "[restapi] listening on %s", s.addr)
	if initDone != nil {
		initDone.Done()
	}
	if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
