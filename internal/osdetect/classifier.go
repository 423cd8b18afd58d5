// internal/osdetect/classifier.go
// OS family inference for a scan target

package osdetect

import (
	"context"
	"net/netip"

	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/pkg/logger"
)

// Classifier infers a coarse OS family from the echo reply TTL
type Classifier struct {
	pinger Pinger
}

// NewClassifier creates a classifier around pinger
func NewClassifier(pinger Pinger) *Classifier {
	return &Classifier{pinger: pinger}
}

// Classify never fails: any ICMP problem yields OSUnknown and a warning
func (c *Classifier) Classify(ctx context.Context, addr netip.Addr) models.OSLabel {
	ttl, err := c.pinger.Ping(ctx, addr)
	if err != nil {
		logger.Warn("OS detection failed",
			logger.String("address", addr.String()),
			logger.Err(err),
		)
		return models.OSUnknown
	}

	label := ClassifyTTL(ttl)
	logger.Debug("OS detection complete",
		logger.String("address", addr.String()),
		logger.Int("ttl", ttl),
		logger.String("os", string(label)),
	)
	return label
}
