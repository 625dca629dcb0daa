package tui

import (
	"fmt"
	"strings"

	"github.com/andy/tally/internal/domain"
)

// formatElapsed formats seconds as HH:MM:SS
func formatElapsed(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// formatMoney renders cents with thousands separators, e.g. "$1,234.50"
func formatMoney(cents int64) string {
	sign := "$"
	if cents < 0 {
		sign, cents = "-$", -cents
	}
	whole, frac, _ := strings.Cut(domain.FormatCents(cents), ".")

	var b strings.Builder
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + b.String() + "." + frac
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
