// internal/target/resolver_test.go
// Tests for target resolution against an in-process DNS server

package target

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspnmy/recon_reporter/internal/models"
)

// startDNS serves A records from zone and NXDOMAIN for everything else
func startDNS(t *testing.T, zone map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			name := strings.TrimSuffix(strings.ToLower(q.Name), ".")
			ip, ok := zone[name]
			switch {
			case !ok:
				m.Rcode = dns.RcodeNameError
			case q.Qtype == dns.TypeA:
				m.Answer = append(m.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.ParseIP(ip).To4(),
				})
			}
			_ = w.WriteMsg(m)
		}),
	}

	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestResolve_IPLiteral(t *testing.T) {
	r := NewResolver("", time.Second)

	tests := []struct {
		target string
		want   string
	}{
		{"192.0.2.10", "192.0.2.10"},
		{"::1", "::1"},
		{"[2001:db8::1]", "2001:db8::1"},
		{" 10.0.0.1 ", "10.0.0.1"},
	}

	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), models.ScanTarget(tt.target))
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", tt.target, err)
			continue
		}
		if got != netip.MustParseAddr(tt.want) {
			t.Errorf("Resolve(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestResolve_Nameserver(t *testing.T) {
	ns := startDNS(t, map[string]string{"scanme.test": "198.51.100.7"})
	r := NewResolver(ns, time.Second)

	got, err := r.Resolve(context.Background(), "scanme.test")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("198.51.100.7"), got)
}

func TestResolve_NXDomain(t *testing.T) {
	ns := startDNS(t, map[string]string{})
	r := NewResolver(ns, time.Second)

	_, err := r.Resolve(context.Background(), "nonexistent.invalid")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResolve), "error %v should wrap ErrResolve", err)
}

func TestResolve_Empty(t *testing.T) {
	r := NewResolver("", time.Second)
	_, err := r.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrResolve)
}

func TestNewResolver_DefaultPort(t *testing.T) {
	r := NewResolver("192.0.2.53", 0)
	assert.Equal(t, "192.0.2.53:53", r.nameserver)
	assert.Equal(t, 5*time.Second, r.client.Timeout)
}
