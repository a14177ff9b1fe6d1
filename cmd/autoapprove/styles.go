package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/VTimofeenko/connect-autoapprove/internal/extension"
	"github.com/VTimofeenko/connect-autoapprove/internal/ledger"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7c3aed"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")).Bold(true)
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4b5563")).
			Padding(0, 1)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(extension.StatusSuccess), ledger.StatusApproved:
		return successStyle
	case string(extension.StatusSkip), ledger.StatusSkipped:
		return skipStyle
	default:
		return errorStyle
	}
}

// kv renders aligned "label value" rows.
func kv(rows ...[2]string) string {
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r[0]))
	}
	label := labelStyle.Width(width + 2)

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, label.Render(r[0])+r[1])
	}
	return strings.Join(lines, "\n")
}

func printBox(w io.Writer, title, body string) {
	fmt.Fprintln(w, boxStyle.Render(titleStyle.Render(title)+"\n"+body))
}

func renderResult(requestID string, res extension.Result) string {
	rows := [][2]string{
		{"request", requestID},
		{"status", statusStyle(string(res.Status)).Render(string(res.Status))},
	}
	if res.Message != "" {
		rows = append(rows, [2]string{"message", res.Message})
	}
	return kv(rows...)
}
