package dnsserver

import (
	"context"
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	addrs map[string][]string
}

func (f *fakeResolver) Resolve(ctx context.Context, name string) []string {
	return f.addrs[name]
}

type fakeWriter struct {
	written *dns.Msg
}

func (f *fakeWriter) LocalAddr() net.Addr         { return &net.UDPAddr{} }
func (f *fakeWriter) RemoteAddr() net.Addr        { return &net.UDPAddr{} }
func (f *fakeWriter) WriteMsg(m *dns.Msg) error   { f.written = m; return nil }
func (f *fakeWriter) Write(b []byte) (int, error) { return len(b), nil }
func (f *fakeWriter) Close() error                { return nil }
func (f *fakeWriter) TsigStatus() error           { return nil }
func (f *fakeWriter) TsigTimersOnly(bool)         {}
func (f *fakeWriter) Hijack()                     {}

func query(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	return m
}

func TestKnownNameIsAuthoritative(t *testing.T) {
	s := New(context.Background(), nil, &fakeResolver{addrs: map[string][]string{
		"foo.docker": {"10.0.0.2"},
	}}, nil)

	w := &fakeWriter{}
	s.ServeDNS(w, query("foo.docker", dns.TypeA))

	require.NotNil(t, w.written)
	assert.True(t, w.written.Authoritative)
	require.Len(t, w.written.Answer, 1)
	a, ok := w.written.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", a.A.String())
}

func TestAAAAKnownNameIsEmptySuccess(t *testing.T) {
	s := New(context.Background(), nil, &fakeResolver{addrs: map[string][]string{
		"foo.docker": {"10.0.0.2"},
	}}, nil)

	w := &fakeWriter{}
	s.ServeDNS(w, query("foo.docker", dns.TypeAAAA))

	require.NotNil(t, w.written)
	assert.True(t, w.written.Authoritative)
	assert.Empty(t, w.written.Answer)
}

func TestUnknownNameWithoutResolverIsEmptyNonAuthoritative(t *testing.T) {
	s := New(context.Background(), nil, &fakeResolver{}, nil)

	w := &fakeWriter{}
	s.ServeDNS(w, query("unknown.example", dns.TypeA))

	require.NotNil(t, w.written)
	assert.False(t, w.written.Authoritative)
	assert.False(t, w.written.RecursionAvailable)
	assert.Empty(t, w.written.Answer)
}

func TestAnswersAreCappedAtFifteen(t *testing.T) {
	addrs := make([]string, 20)
	for i := range addrs {
		addrs[i] = "10.0.0.1"
	}
	s := New(context.Background(), nil, &fakeResolver{addrs: map[string][]string{
		"many.docker": addrs,
	}}, nil)

	w := &fakeWriter{}
	s.ServeDNS(w, query("many.docker", dns.TypeA))

	require.NotNil(t, w.written)
	assert.Len(t, w.written.Answer, MaxAnswers)
}

// startFakeUpstream runs a real miekg/dns UDP server on loopback with the
// given handler, for exercising resolveRecursive's actual wire exchange
// rather than a stubbed Resolver.
func startFakeUpstream(t *testing.T, handler dns.HandlerFunc) (addr string, stop func()) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = srv.ActivateAndServe() }()
	return pc.LocalAddr().String(), func() { _ = srv.Shutdown() }
}

func TestRecursiveFallbackForwardsUpstreamAnswer(t *testing.T) {
	addr, stop := startFakeUpstream(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
			A:   net.ParseIP("93.184.216.34"),
		})
		_ = w.WriteMsg(m)
	})
	defer stop()

	s := New(context.Background(), nil, &fakeResolver{}, []string{addr})

	w := &fakeWriter{}
	s.ServeDNS(w, query("upstream.example", dns.TypeA))

	require.NotNil(t, w.written)
	assert.False(t, w.written.Authoritative)
	assert.True(t, w.written.RecursionAvailable)
	require.Len(t, w.written.Answer, 1)
	a, ok := w.written.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "93.184.216.34", a.A.String())
}

func TestRecursiveFallbackSwallowsNXDOMAIN(t *testing.T) {
	addr, stop := startFakeUpstream(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Rcode = dns.RcodeNameError
		_ = w.WriteMsg(m)
	})
	defer stop()

	s := New(context.Background(), nil, &fakeResolver{}, []string{addr})

	w := &fakeWriter{}
	s.ServeDNS(w, query("missing.example", dns.TypeA))

	require.NotNil(t, w.written)
	assert.True(t, w.written.RecursionAvailable)
	assert.Empty(t, w.written.Answer)
}

func TestRecursiveFallbackSwallowsUnreachableResolver(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	s := New(context.Background(), nil, &fakeResolver{}, []string{addr})

	w := &fakeWriter{}
	s.ServeDNS(w, query("unreachable.example", dns.TypeA))

	require.NotNil(t, w.written)
	assert.True(t, w.written.RecursionAvailable)
	assert.Empty(t, w.written.Answer)
}
