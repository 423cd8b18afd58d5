// internal/history/ledger.go
// Ledger adapts the store to the run output pipeline

package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aspnmy/recon_reporter/internal/core"
	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/pkg/logger"
)

const recordTimeout = 5 * time.Second

// Ledger records one summary row per finished run
type Ledger struct {
	store *Store
}

// NewLedger opens the ledger. Returns nil when history is disabled.
func NewLedger(cfg core.HistoryConfig) (*Ledger, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	store, err := NewStore(cfg.DB)
	if err != nil {
		return nil, err
	}
	return &Ledger{store: store}, nil
}

// Name returns sink name
func (l *Ledger) Name() string {
	return "history"
}

// Write stores the summary of result. Only the digest is kept.
func (l *Ledger) Write(result *models.ScanResult, delivery models.DeliveryStatus) error {
	if l == nil || l.store == nil {
		return nil
	}

	run := models.Summarize(result, delivery)
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := l.store.Record(ctx, run); err != nil {
		return err
	}

	logger.Debug("Run recorded",
		logger.String("run_id", run.ID),
		logger.String("target", run.Target),
	)
	return nil
}

// Close closes the ledger
func (l *Ledger) Close() error {
	if l == nil || l.store == nil {
		return nil
	}
	return l.store.Close()
}
