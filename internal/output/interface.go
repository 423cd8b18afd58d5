// internal/output/interface.go
// Local run outputs that sit beside the delivered report

package output

import (
	"errors"
	"fmt"

	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/pkg/logger"
)

// ErrOutputFileNotWritable is returned when a sidecar file cannot be created
var ErrOutputFileNotWritable = errors.New("output file is not writable")

// Sink receives the finished result once per run
type Sink interface {
	// Name identifies the sink in logs
	Name() string

	// Write records one result together with its delivery outcome
	Write(result *models.ScanResult, delivery models.DeliveryStatus) error

	// Close releases resources
	Close() error
}

// MultiSink fans a result out to several sinks. A failing sink never
// stops the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink, skipping nil entries
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Name returns sink name
func (m *MultiSink) Name() string {
	return "multi"
}

// Write writes to every sink and joins the failures
func (m *MultiSink) Write(result *models.ScanResult, delivery models.DeliveryStatus) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(result, delivery); err != nil {
			logger.Warn("Output sink failed",
				logger.String("sink", s.Name()),
				logger.Err(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins the failures
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
