// Package dnsserver implements the UDP DNS responder: it consults the
// registry for authoritative answers and falls back to a recursive
// resolver for unknown names. Grounded on
// pkg/client/daemon/dns/dns.go and internal/pkg/dns/dns.go from the
// telepresence client, generalized from a single address per name to the
// registry's round-robin address lists and a 15-answer cap per
// spec.md §4.D / §6.
package dnsserver

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/datawire/dlib/dcontext"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
)

// MaxAnswers is the number of A records returned per reply, per
// spec.md §6's "Response limit: 15 A RRs per answer".
const MaxAnswers = 15

const resolverTimeout = 3 * time.Second

// Resolver looks up name's addresses via an authoritative registry.
type Resolver interface {
	Resolve(ctx context.Context, name string) []string
}

// Server is a miekg/dns Handler that answers from a Resolver and falls
// back to recursive resolvers for misses.
type Server struct {
	ctx       context.Context // threaded through so ServeDNS can log
	listeners []string
	registry  Resolver
	resolvers []string
}

// New returns a Server bound to each of listeners (UDP host:port
// addresses). resolvers, if non-empty, are tried in order for recursive
// fallback; an empty list disables recursion (ra=false in replies).
func New(ctx context.Context, listeners []string, registry Resolver, resolvers []string) *Server {
	return &Server{ctx: ctx, listeners: listeners, registry: registry, resolvers: resolvers}
}

// ServeDNS implements dns.Handler.
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	ctx := s.ctx
	if len(r.Question) == 0 {
		dlog.Debug(ctx, "dropping query with no question")
		return
	}
	q := r.Question[0]
	name := strings.ToLower(q.Name)

	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.RecursionAvailable = len(s.resolvers) > 0

	switch q.Qtype {
	case dns.TypeA, dns.TypeAAAA, dns.TypeANY:
		if addrs := s.registry.Resolve(ctx, strings.TrimSuffix(name, ".")); len(addrs) > 0 {
			msg.Authoritative = true
			if q.Qtype != dns.TypeAAAA {
				s.appendAnswers(msg, q.Name, addrs)
			}
			_ = w.WriteMsg(msg)
			return
		}
	}

	if len(s.resolvers) == 0 {
		_ = w.WriteMsg(msg)
		return
	}

	addr, err := s.resolveRecursive(strings.TrimSuffix(name, "."))
	if err != nil {
		dlog.Debugf(ctx, "recursive lookup of %s failed: %v", name, err)
		_ = w.WriteMsg(msg)
		return
	}
	if addr != "" {
		msg.Answer = append(msg.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.ParseIP(addr),
		})
	}
	_ = w.WriteMsg(msg)
}

func (s *Server) appendAnswers(msg *dns.Msg, qname string, addrs []string) {
	if len(addrs) > MaxAnswers {
		addrs = addrs[:MaxAnswers]
	}
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		msg.Answer = append(msg.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: qname, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   ip,
		})
	}
}

// resolveRecursive forwards name to each configured resolver in turn with
// a hard timeout and a single retry, per spec.md §5's Timeouts
// paragraph. An upstream reply without an A record (including NXDOMAIN)
// yields "" and a nil error; if every attempt fails (e.g. times out), the
// last error is returned. ServeDNS answers both cases with an empty reply.
func (s *Server) resolveRecursive(name string) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	c := dns.Client{Timeout: resolverTimeout}

	var lastErr error
	for _, server := range s.resolvers {
		for attempt := 0; attempt < 2; attempt++ {
			in, _, err := c.Exchange(m, server)
			if err != nil {
				lastErr = err
				continue
			}
			for _, rr := range in.Answer {
				if a, ok := rr.(*dns.A); ok {
					return a.A.String(), nil
				}
			}
			return "", nil
		}
	}
	return "", lastErr
}

// Run starts a UDP listener per configured address and serves until ctx
// is canceled, at which point each server stops accepting new datagrams
// after its current one. initDone, if non-nil, is signaled once every
// listener is bound.
func (s *Server) Run(ctx context.Context, initDone *sync.WaitGroup) error {
	s.ctx = ctx

	type bound struct {
		addr     string
		listener net.PacketConn
	}
	listeners := make([]bound, len(s.listeners))
	for i, addr := range s.listeners {
		lc := net.ListenConfig{}
		pc, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			if initDone != nil {
				initDone.Done()
			}
			return err
		}
		listeners[i] = bound{addr: addr, listener: pc}
		dlog.Infof(ctx, "listening on %s", addr)
	}

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	wg := &sync.WaitGroup{}
	wg.Add(len(listeners))
	for _, b := range listeners {
		b := b
		srv := &dns.Server{PacketConn: b.listener, Handler: s}
		g.Go(b.addr, func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				_ = srv.ShutdownContext(dcontext.HardContext(ctx))
			}()
			wg.Done()
			return srv.ActivateAndServe()
		})
	}
	wg.Wait()
	if initDone != nil {
		initDone.Done()
	}
	return g.Wait()
}
