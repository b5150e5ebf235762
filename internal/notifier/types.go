package notifier

import "pharmalert/internal/alert"

// Config controls the outbound delivery pipeline.
type Config struct {
	Enabled bool
	// MinSeverity is the lowest severity forwarded. Default "critical":
	// out-of-band pings are for things a pharmacist must act on.
	MinSeverity string
	QueueSize   int
	RatePerSec  int

	Telegram TelegramConfig
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

// severityLevel orders severities for the MinSeverity cutoff.
func severityLevel(s alert.Severity) int {
	switch s {
	case alert.SeverityCritical:
		return 3
	case alert.SeverityWarning:
		return 2
	default:
		return 1
	}
}
