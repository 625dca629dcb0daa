package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/andy/tally/internal/domain"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("76")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

const dateLayout = "2006-01-02"

func ok(format string, args ...any) string {
	return successStyle.Render("✓") + " " + fmt.Sprintf(format, args...)
}

func money(cents int64) string {
	return "$" + domain.FormatCents(cents)
}

// formatSeconds renders a duration as "1h 30m" or "45s".
func formatSeconds(secs int64) string {
	d := time.Duration(secs) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	} else if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, domain.BadRequestf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func statusLabel(s domain.SessionStatus) string {
	switch s {
	case domain.SessionRunning:
		return successStyle.Render(string(s))
	case domain.SessionPaused:
		return warnStyle.Render(string(s))
	}
	return mutedStyle.Render(string(s))
}

func invoiceStatusLabel(s domain.InvoiceStatus) string {
	switch s {
	case domain.InvoiceStatusPaid:
		return successStyle.Render(string(s))
	case domain.InvoiceStatusOverdue:
		return errorStyle.Render(string(s))
	case domain.InvoiceStatusSent:
		return warnStyle.Render(string(s))
	}
	return mutedStyle.Render(string(s))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func rule(width int) string {
	return mutedStyle.Render(strings.Repeat("-", width))
}
