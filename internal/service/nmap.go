// internal/service/nmap.go
// nmap -sV engine for a single host/port

package service

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/Ullaakut/nmap/v3"

	"github.com/aspnmy/recon_reporter/pkg/logger"
)

// NmapDetector runs nmap service/version detection through Ullaakut/nmap
type NmapDetector struct {
	binaryPath string
}

// NewNmapDetector creates the nmap engine. An empty path uses $PATH.
func NewNmapDetector(binaryPath string) *NmapDetector {
	return &NmapDetector{binaryPath: binaryPath}
}

// Name returns engine name
func (d *NmapDetector) Name() string {
	return "nmap"
}

// Detect runs "nmap -sV -Pn -n -p <port> <host>"
func (d *NmapDetector) Detect(ctx context.Context, host string, port int) (*Service, error) {
	opts := []nmap.Option{
		nmap.WithTargets(host),
		nmap.WithPorts(strconv.Itoa(port)),
		nmap.WithServiceInfo(),           // -sV
		nmap.WithSkipHostDiscovery(),     // -Pn
		nmap.WithDisabledDNSResolution(), // -n
	}
	if addr, err := netip.ParseAddr(host); err == nil && addr.Unmap().Is6() {
		opts = append(opts, nmap.WithIPv6Scanning())
	}
	if d.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(d.binaryPath))
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("run nmap: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		logger.Debug("Nmap produced warnings",
			logger.Int("port", port),
			logger.Strings("warnings", *warnings),
		)
	}

	return serviceFromRun(result, port)
}

// serviceFromRun picks the entry for port out of an nmap run.
// A missing host, a missing port or an empty classification is ErrNoMatch.
func serviceFromRun(run *nmap.Run, port int) (*Service, error) {
	if run == nil {
		return nil, ErrNoMatch
	}

	for _, h := range run.Hosts {
		for _, p := range h.Ports {
			if int(p.ID) != port || !strings.EqualFold(p.Protocol, "tcp") {
				continue
			}
			svc := &Service{
				Name:    p.Service.Name,
				Product: p.Service.Product,
				Version: p.Service.Version,
			}
			if svc.Descriptor() == "" {
				return nil, ErrNoMatch
			}
			return svc, nil
		}
	}
	return nil, ErrNoMatch
}

func init() {
	Register("nmap", func(cfg EngineConfig) (Detector, error) {
		return NewNmapDetector(cfg.NmapPath), nil
	})
}
