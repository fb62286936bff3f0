package cmd

import (
	"fmt"
	"strings"
	"time"
)

const (
	backendMemory   = "memory"
	backendSQLite   = "sqlite"
	backendUpstash  = "upstash"
	backendPostgres = "postgres"
)

// AppConfig is read from CLINIC_* variables.
type AppConfig struct {
	IterationBudget   int           `split_words:"true" default:"6"`
	ToolTimeout       time.Duration `split_words:"true" default:"5s"`
	SlotMinutes       int           `split_words:"true" default:"30"`
	Timezone          string        `default:"UTC"`
	StateBackend      string        `split_words:"true" default:"memory"`
	ScheduleBackend   string        `split_words:"true" default:"memory"`
	SQLitePath        string        `envconfig:"SQLITE_PATH" default:"clinic.db"`
	PostgresDSN       string        `envconfig:"POSTGRES_DSN"`
	FAQPath           string        `envconfig:"FAQ_PATH"`
	CatalogPath       string        `split_words:"true"`
	NotifyDestination string        `split_words:"true"`
}

func (c *AppConfig) validate() error {
	switch c.StateBackend {
	case backendMemory, backendSQLite, backendUpstash:
	default:
		return fmt.Errorf("unknown state backend %q", c.StateBackend)
	}
	switch c.ScheduleBackend {
	case backendMemory, backendSQLite, backendPostgres:
	default:
		return fmt.Errorf("unknown schedule backend %q", c.ScheduleBackend)
	}
	if c.ScheduleBackend == backendPostgres && strings.TrimSpace(c.PostgresDSN) == "" {
		return fmt.Errorf("CLINIC_POSTGRES_DSN is required for the postgres schedule backend")
	}
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("slot minutes must be positive, got %d", c.SlotMinutes)
	}
	return nil
}

func (c *AppConfig) location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}
