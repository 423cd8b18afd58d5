// internal/output/console.go
// Styled run summary for the operator terminal

package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/internal/report"
)

// ConsoleSink renders a short summary box, normally on stderr
type ConsoleSink struct {
	w        io.Writer
	title    lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	box      lipgloss.Style
	statuses map[models.DeliveryStatus]lipgloss.Style
}

// NewConsoleSink creates a summary sink writing to w.
// Colors follow the terminal capabilities of w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	r := lipgloss.NewRenderer(w)
	value := r.NewStyle()

	return &ConsoleSink{
		w: w,
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		label: r.NewStyle().Bold(true).Width(12),
		value: value,
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		statuses: map[models.DeliveryStatus]lipgloss.Style{
			models.DeliverySent:     value.Foreground(lipgloss.Color("#04B575")),
			models.DeliveryFailed:   value.Foreground(lipgloss.Color("#FF6B6B")),
			models.DeliverySkipped:  value.Foreground(lipgloss.Color("#FFD93D")),
			models.DeliveryCanceled: value.Foreground(lipgloss.Color("#FFD93D")),
		},
	}
}

// Name returns sink name
func (c *ConsoleSink) Name() string {
	return "summary"
}

// Write renders the summary box
func (c *ConsoleSink) Write(result *models.ScanResult, delivery models.DeliveryStatus) error {
	_, err := fmt.Fprintln(c.w, c.Render(result, delivery))
	return err
}

// Render builds the summary box without writing it
func (c *ConsoleSink) Render(result *models.ScanResult, delivery models.DeliveryStatus) string {
	address := "-"
	if result.Address.IsValid() {
		address = result.Address.String()
	}

	status, ok := c.statuses[delivery]
	if !ok {
		status = c.value
	}

	rows := []string{
		c.title.Render("Scan summary"),
		"",
		c.row("Target", c.value.Render(result.Target.String())),
		c.row("Address", c.value.Render(address)),
		c.row("OS", c.value.Render(string(result.OS))),
		c.row("Open ports", c.value.Render(joinPorts(result.OpenPorts()))),
		c.row("Abandoned", c.value.Render(strconv.Itoa(result.Abandoned))),
		c.row("Duration", c.value.Render(report.Seconds(result.Duration))),
		c.row("Report", status.Render(string(delivery))),
	}

	return c.box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (c *ConsoleSink) row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, c.label.Render(label), value)
}

// Close is a no-op
func (c *ConsoleSink) Close() error {
	return nil
}

func joinPorts(ports []int) string {
	if len(ports) == 0 {
		return "none"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}
