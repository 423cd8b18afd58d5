// cmd/recon/history.go
// Lists runs recorded in the SQLite ledger

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/aspnmy/recon_reporter/internal/history"
	"github.com/aspnmy/recon_reporter/internal/models"
	"github.com/aspnmy/recon_reporter/internal/report"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, newest first, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			// do not create an empty ledger just to list it
			if _, err := os.Stat(cfg.History.DB); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "No runs recorded (%s not found)\n", cfg.History.DB)
				return nil
			}

			store, err := history.NewStore(cfg.History.DB)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				run, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s\n", run.ID)
				return renderRuns(cmd.OutOrStdout(), []models.RunSummary{*run})
			}

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			return renderRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 = all)")
	return cmd
}

func renderRuns(w io.Writer, runs []models.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		ports := make([]string, len(r.OpenPorts))
		for j, p := range r.OpenPorts {
			ports[j] = strconv.Itoa(p)
		}
		rows[i] = []string{
			r.CompletedAt.UTC().Format(report.TimeLayout),
			r.Target,
			r.Address,
			string(r.OS),
			strings.Join(ports, ","),
			strconv.Itoa(r.Abandoned),
			report.Seconds(r.Duration),
			string(r.Delivery),
		}
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))).
		Headers("COMPLETED", "TARGET", "ADDRESS", "OS", "OPEN PORTS", "ABANDONED", "DURATION", "REPORT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style { return cell })

	_, err := fmt.Fprintln(w, t.Render())
	return err
}
