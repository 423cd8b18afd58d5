// internal/report/formatter.go
// Fixed-layout scan report. Column widths, borders and labels are a
// contract for downstream parsers: do not change them casually.

package report

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/internal/service"
)

const (
	// Border frames the port table: 11 dashes for the port column, 46 for the service column
	Border = "+-----------+----------------------------------------------+"

	// InvalidPlaceholder replaces a report that is not valid UTF-8
	InvalidPlaceholder = "report contains invalid characters"

	// TimeLayout renders CompletedAt at minute precision
	TimeLayout = "2006-01-02 15:04 UTC"

	banner   = "\U0001F4E1 **Port Scan Completed** \U0001F680"
	advisory = "\U0001F50E *Review possible vulnerabilities for the detected services.*"
)

// Format renders r. It is pure: the same result always yields the same text.
func Format(r *models.ScanResult) string {
	var b strings.Builder

	b.WriteString(banner + "\n\n")
	fmt.Fprintf(&b, "**Target:** %s\n", r.Target)
	fmt.Fprintf(&b, "**Operating System:** %s\n", r.OS)
	fmt.Fprintf(&b, "**Date/Time:** %s\n\n", r.CompletedAt.UTC().Format(TimeLayout))

	b.WriteString("**Open Ports and Services:**\n")
	b.WriteString(Border + "\n")
	fmt.Fprintf(&b, "  %-13s%-46s\n", "Port", "Service and Version")
	b.WriteString(Border + "\n")
	for _, f := range r.Findings {
		fmt.Fprintf(&b, " %-9d \t %-46s\n", f.Port, service.Truncate(f.Service, service.MaxDescriptorRunes))
	}
	b.WriteString(Border + "\n")

	fmt.Fprintf(&b, "\n**Scan Duration:** %s\n\n", Seconds(r.Duration))
	b.WriteString(advisory)

	out := b.String()
	if !utf8.ValidString(out) {
		return InvalidPlaceholder
	}
	return out
}

// Seconds renders d floored to whole seconds, e.g. "42s"
func Seconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%ds", int64(d/time.Second))
}
