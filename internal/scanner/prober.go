// internal/scanner/prober.go
// TCP connect prober: full handshake, bounded timeout, socket always closed

package scanner

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/aspnmy/recon_reporter/internal/models"
)

// TCPProber implements Prober with a full TCP handshake
type TCPProber struct {
	dialer *net.Dialer
}

// NewTCPProber creates a prober with the given per-port timeout
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &TCPProber{
		dialer: &net.Dialer{
			Timeout:   timeout,
			KeepAlive: -1, // Disable keep-alive for scanning
		},
	}
}

// Probe dials addr and classifies the outcome
func (p *TCPProber) Probe(ctx context.Context, addr netip.AddrPort) models.PortState {
	if ctx.Err() != nil {
		return models.PortUnknown
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", addr.String())
	if err == nil {
		conn.Close()
		return models.PortOpen
	}

	return classifyDialError(ctx, err)
}

func classifyDialError(ctx context.Context, err error) models.PortState {
	switch {
	case ctx.Err() != nil:
		// the run or the probe deadline ended, not the per-port timeout
		return models.PortUnknown
	case errors.Is(err, syscall.ECONNREFUSED):
		return models.PortClosed
	default:
		return models.PortUnreachable
	}
}
