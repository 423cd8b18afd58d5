// internal/notify/notifier.go
// Report delivery to an external destination. Delivery is best effort:
// callers log failures and carry on, nothing here retries.

package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aspnmy/recon_reporter/internal/core"
)

var (
	// ErrDeliveryFailed is matched by every delivery failure
	ErrDeliveryFailed = errors.New("report delivery failed")
	// ErrNotConfigured means the destination lacks credentials or recipients
	ErrNotConfigured = errors.New("notifier not configured")
	// ErrUnknownKind is returned by New for unsupported notify kinds
	ErrUnknownKind = errors.New("unknown notifier kind")
)

// Notifier hands a formatted report to a destination
type Notifier interface {
	Kind() string
	Deliver(ctx context.Context, report string) error
}

// DeliveryError is a rejection from the destination endpoint
type DeliveryError struct {
	Status int
	Reason string
}

func (e *DeliveryError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("report delivery failed: status %d", e.Status)
	}
	return fmt.Sprintf("report delivery failed: status %d: %s", e.Status, e.Reason)
}

// Is lets errors.Is(err, ErrDeliveryFailed) match
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

// Noop discards reports
type Noop struct{}

// Kind returns notifier kind
func (Noop) Kind() string { return "none" }

// Deliver does nothing
func (Noop) Deliver(context.Context, string) error { return nil }

// New builds the notifier selected by cfg.Kind
func New(cfg core.NotifyConfig) (Notifier, error) {
	switch cfg.Kind {
	case "telegram":
		return NewTelegramNotifier(cfg.Telegram, cfg.Timeout), nil
	case "email":
		return NewEmailNotifier(cfg.Email, cfg.Timeout), nil
	case "none", "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, cfg.Kind)
	}
}
