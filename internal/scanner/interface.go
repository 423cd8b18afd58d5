// internal/scanner/interface.go
// Connectivity probe interfaces and errors

package scanner

import (
	"context"
	"net/netip"

	"github.com/aspnmy/recon_reporter/internal/models"
)

// Prober decides the state of a single TCP port.
// Implementations never return an error: every failure maps to a PortState.
type Prober interface {
	Probe(ctx context.Context, addr netip.AddrPort) models.PortState
}

// ProberFunc adapts a plain function to Prober
type ProberFunc func(ctx context.Context, addr netip.AddrPort) models.PortState

// Probe calls f
func (f ProberFunc) Probe(ctx context.Context, addr netip.AddrPort) models.PortState {
	return f(ctx, addr)
}

// ErrInvalidAddress is returned when the pool is asked to scan a zero address
var ErrInvalidAddress = &ScannerError{Message: "invalid target address"}

// ScannerError represents a scanner-specific error
type ScannerError struct {
	Message string
	Cause   error
}

func (e *ScannerError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ScannerError) Unwrap() error {
	return e.Cause
}
