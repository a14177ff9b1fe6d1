package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/VTimofeenko/connect-autoapprove/internal/ledger"
)

var (
	ledgerStatus string
	ledgerLimit  int
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show recorded processing outcomes",
	Args:  cobra.NoArgs,
	RunE:  runLedger,
}

func init() {
	ledgerCmd.Flags().StringVar(&ledgerStatus, "status", "", "Only entries with this status (approved, skipped, failed)")
	ledgerCmd.Flags().IntVar(&ledgerLimit, "limit", 20, "Maximum entries to list (0 = all)")
}

func runLedger(cmd *cobra.Command, args []string) error {
	switch ledgerStatus {
	case "", ledger.StatusApproved, ledger.StatusSkipped, ledger.StatusFailed:
	default:
		return fmt.Errorf("unknown status %q (valid: approved, skipped, failed)", ledgerStatus)
	}

	ctx, cancel := commandContext()
	defer cancel()

	a := newApp(cfg, logs)
	defer a.Close()

	l, err := a.openLedger()
	if err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("ledger is disabled in %s", configPath)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		return err
	}
	entries, err := l.List(ctx, ledgerStatus, ledgerLimit)
	if err != nil {
		return err
	}

	printLedger(cmd.OutOrStdout(), stats, entries)
	return nil
}

func printLedger(w io.Writer, stats map[string]int, entries []ledger.Entry) {
	statuses := make([]string, 0, len(stats))
	for s := range stats {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	rows := make([][2]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, [2]string{s, statusStyle(s).Render(strconv.Itoa(stats[s]))})
	}
	if len(rows) == 0 {
		printBox(w, "Ledger", mutedStyle.Render("no requests recorded yet"))
		return
	}
	printBox(w, "Ledger", kv(rows...))

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s %-10s %s",
			e.ProcessedAt.Local().Format(time.DateTime),
			e.RequestType,
			statusStyle(e.Status).Render(e.Status),
			e.RequestID)
		if e.TemplateID != "" {
			line += mutedStyle.Render("  template " + e.TemplateID)
		}
		if e.Attempts > 1 {
			line += mutedStyle.Render(fmt.Sprintf("  attempts %d", e.Attempts))
		}
		if e.Error != "" {
			line += "\n    " + errorStyle.Render(e.Error)
		}
		fmt.Fprintln(w, line)
	}
}
