// internal/service/detector.go
// Service/version detection engines and their registry

package service

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoMatch means the engine ran but could not classify the port
var ErrNoMatch = errors.New("no service match")

// ErrEngineNotFound is returned when engine name is not registered
var ErrEngineNotFound = errors.New("service engine not found")

// Service is the classification of one open port
type Service struct {
	Name    string `json:"name"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
}

// Descriptor joins the non-empty name, product and version with spaces
func (s *Service) Descriptor() string {
	if s == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Name, s.Product, s.Version} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Detector classifies the service listening on host:port
type Detector interface {
	// Name returns the engine name (nmap, banner)
	Name() string

	// Detect returns ErrNoMatch when the engine ran without a classification
	// and any other error when the engine itself failed
	Detect(ctx context.Context, host string, port int) (*Service, error)
}

// EngineConfig carries settings shared by all engines
type EngineConfig struct {
	Timeout  time.Duration
	NmapPath string
}

// EngineFactory creates detection engines
type EngineFactory func(cfg EngineConfig) (Detector, error)

// Registry holds available detection engines
var Registry = make(map[string]EngineFactory)

// Register registers a detection engine
func Register(name string, factory EngineFactory) {
	Registry[name] = factory
}

// Get creates a detection engine by name
func Get(name string, cfg EngineConfig) (Detector, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, ErrEngineNotFound
	}
	return factory(cfg)
}
