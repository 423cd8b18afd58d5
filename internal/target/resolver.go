// internal/target/resolver.go
// Target name resolution: IP literals pass through, names go to the
// configured nameserver via miekg/dns or to the system resolver

package target

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/pkg/logger"
)

// ErrResolve marks a target that cannot be turned into an address
var ErrResolve = errors.New("target resolution failed")

// Resolver turns a ScanTarget into a single address, IPv4 preferred
type Resolver struct {
	nameserver string
	client     *dns.Client
}

// NewResolver creates a resolver. An empty nameserver uses the system resolver.
func NewResolver(nameserver string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if nameserver != "" {
		if _, _, err := net.SplitHostPort(nameserver); err != nil {
			nameserver = net.JoinHostPort(nameserver, "53")
		}
	}
	return &Resolver{
		nameserver: nameserver,
		client:     &dns.Client{Timeout: timeout},
	}
}

// Resolve returns the address to scan for t
func (r *Resolver) Resolve(ctx context.Context, t models.ScanTarget) (netip.Addr, error) {
	host := strings.TrimSpace(t.String())
	if host == "" {
		return netip.Addr{}, fmt.Errorf("%w: empty target", ErrResolve)
	}

	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}

	var (
		addr netip.Addr
		err  error
	)
	if r.nameserver != "" {
		addr, err = r.lookupDNS(ctx, host)
	} else {
		addr, err = lookupSystem(ctx, host)
	}
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: %v", ErrResolve, host, err)
	}

	logger.Debug("Target resolved",
		logger.String("target", host),
		logger.String("address", addr.String()),
		logger.String("nameserver", r.nameserver),
	)
	return addr, nil
}

// lookupDNS asks the configured nameserver for A records, then AAAA
func (r *Resolver) lookupDNS(ctx context.Context, host string) (netip.Addr, error) {
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addr, err := r.query(ctx, host, qtype)
		if err == nil {
			return addr, nil
		}
		lastErr = err
	}
	return netip.Addr{}, lastErr
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, r.nameserver)
	if err != nil {
		return netip.Addr{}, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("%s lookup returned %s", dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
	}

	for _, ans := range resp.Answer {
		switch rr := ans.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(rr.A); ok {
				return addr.Unmap(), nil
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(rr.AAAA); ok {
				return addr, nil
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("no %s records", dns.TypeToString[qtype])
}

func lookupSystem(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("no addresses")
	}
	for _, a := range addrs {
		if a.Unmap().Is4() {
			return a.Unmap(), nil
		}
	}
	return addrs[0], nil
}
