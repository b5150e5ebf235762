package app

import (
	"fmt"
	"strings"
	"time"

	"pharmalert/internal/config"
	"pharmalert/internal/httpapi"
	"pharmalert/internal/notifier"
	"pharmalert/internal/rules"
	"pharmalert/internal/scheduler"
	"pharmalert/internal/snapshot"
	"pharmalert/internal/storage"
	"pharmalert/pkg/logx"
)

// The config file deals in strings (duration fields, severity names);
// the services deal in typed values. Mapping lives here so a bad value
// is rejected in one place, both at startup and on hot reload.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	interval, err := config.ParseDurationOrDefault("engine.interval", cfg.Engine.Interval, 5*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	fetchTimeout, err := config.ParseDurationOrDefault("engine.fetch_timeout", cfg.Engine.FetchTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	retention, err := config.ParseDurationOrDefault("engine.retention", cfg.Engine.Retention, 30*24*time.Hour)
	if err != nil {
		return scheduler.Config{}, err
	}
	if cfg.Engine.ExpiryHorizonDays < 0 {
		return scheduler.Config{}, fmt.Errorf("engine.expiry_horizon_days must be >= 0")
	}
	if cfg.Engine.RecentSales < 0 {
		return scheduler.Config{}, fmt.Errorf("engine.recent_sales must be >= 0")
	}
	if cfg.Engine.HighValueThreshold < 0 {
		return scheduler.Config{}, fmt.Errorf("engine.high_value_threshold must be >= 0")
	}
	return scheduler.Config{
		Interval:         interval,
		FetchTimeout:     fetchTimeout,
		Retention:        retention,
		RefreshPerMinute: cfg.Engine.RefreshPerMinute,
		Rules: rules.Config{
			ExpiryHorizonDays:  cfg.Engine.ExpiryHorizonDays,
			RecentSales:        cfg.Engine.RecentSales,
			HighValueThreshold: cfg.Engine.HighValueThreshold,
		},
	}, nil
}

func mapSnapshotConfig(cfg *config.Config) (snapshot.Config, error) {
	busy, err := config.ParseDurationField("database.busy_timeout", cfg.Database.BusyTimeout)
	if err != nil {
		return snapshot.Config{}, err
	}
	return snapshot.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: busy,
		Events:      mapSystemEvents(cfg),
	}, nil
}

func mapSystemEvents(cfg *config.Config) []rules.SystemEvent {
	if len(cfg.SystemEvents) == 0 {
		return nil
	}
	out := make([]rules.SystemEvent, 0, len(cfg.SystemEvents))
	for _, ev := range cfg.SystemEvents {
		if strings.TrimSpace(ev.Slug) == "" {
			continue
		}
		out = append(out, rules.SystemEvent{
			Slug:     ev.Slug,
			Severity: ev.Severity,
			Title:    ev.Title,
			Message:  ev.Message,
		})
	}
	return out
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver is %q", driver)
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{}, nil
	}
	n := cfg.Notifier
	if n.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if n.QueueSize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	}
	if n.Enabled && strings.TrimSpace(n.Telegram.Token) == "" {
		return notifier.Config{}, fmt.Errorf("notifier.telegram.token is required when the notifier is enabled")
	}
	return notifier.Config{
		Enabled:     n.Enabled,
		MinSeverity: n.MinSeverity,
		RatePerSec:  n.RatePerSec,
		QueueSize:   n.QueueSize,
		Telegram: notifier.TelegramConfig{
			Token:  n.Telegram.Token,
			ChatID: n.Telegram.ChatID,
		},
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	readTimeout, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	writeTimeout, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Enabled:      cfg.HTTP.Enabled,
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}, nil
}
