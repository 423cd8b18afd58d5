// internal/models/types.go
// Core data models for the recon reporter

package models

import (
	"net/netip"
	"time"
)

// ScanTarget is the operator-supplied host, either a name or an IP literal
type ScanTarget string

func (t ScanTarget) String() string {
	return string(t)
}

// PortState is the outcome of a single connectivity probe
type PortState string

const (
	PortOpen        PortState = "open"
	PortClosed      PortState = "closed"      // connection refused
	PortUnreachable PortState = "unreachable" // timeout, no route
	PortUnknown     PortState = "unknown"     // abandoned by deadline or cancellation
)

// ProbeResult is one probe outcome flowing from the worker pool to the aggregation point
type ProbeResult struct {
	Port    int           `json:"port"`
	State   PortState     `json:"state"`
	Latency time.Duration `json:"latency"`
}

// PortFinding pairs an open port with its service descriptor
type PortFinding struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
}

// OSLabel is the coarse operating system family inferred from ICMP TTL
type OSLabel string

const (
	OSLinux   OSLabel = "Linux/Unix-based OS"
	OSWindows OSLabel = "Windows OS"
	OSCisco   OSLabel = "Cisco OS/Router"
	OSUnknown OSLabel = "Unknown"
)

// ScanResult is the complete outcome of one run against one target
type ScanResult struct {
	ID          string        `json:"id"`
	Target      ScanTarget    `json:"target"`
	Address     netip.Addr    `json:"address"`
	OS          OSLabel       `json:"os"`
	Findings    []PortFinding `json:"findings"`
	Abandoned   int           `json:"abandoned"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// OpenPorts returns the ports of all findings in report order
func (r *ScanResult) OpenPorts() []int {
	ports := make([]int, 0, len(r.Findings))
	for _, f := range r.Findings {
		ports = append(ports, f.Port)
	}
	return ports
}

// DeliveryStatus records what happened to the outbound report
type DeliveryStatus string

const (
	DeliverySent     DeliveryStatus = "sent"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliverySkipped  DeliveryStatus = "skipped"
	DeliveryCanceled DeliveryStatus = "canceled"
)

// RunSummary is the persisted digest of a ScanResult
type RunSummary struct {
	ID          string         `json:"id"`
	Target      string         `json:"target"`
	Address     string         `json:"address"`
	OS          OSLabel        `json:"os"`
	OpenPorts   []int          `json:"open_ports"`
	Abandoned   int            `json:"abandoned"`
	Duration    time.Duration  `json:"duration"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Delivery    DeliveryStatus `json:"delivery"`
}

// Summarize reduces a result to its persisted digest
func Summarize(r *ScanResult, delivery DeliveryStatus) RunSummary {
	addr := ""
	if r.Address.IsValid() {
		addr = r.Address.String()
	}
	return RunSummary{
		ID:          r.ID,
		Target:      r.Target.String(),
		Address:     addr,
		OS:          r.OS,
		OpenPorts:   r.OpenPorts(),
		Abandoned:   r.Abandoned,
		Duration:    r.Duration,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Delivery:    delivery,
	}
}
