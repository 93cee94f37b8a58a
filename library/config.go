package library

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy holds the lending rules.
type Policy struct {
	MaxBorrowed       int     // borrowing cap across all Active loans of a member
	MaxRenewals       int     // renewal cap per loan
	FinePerDay        float64 // charged per day late at return
	LoanPeriodDays    int     // dueDate = borrowDate + LoanPeriodDays
	MinPasswordLength int
}

// DefaultPolicy is the reference lending policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxBorrowed:       5,
		MaxRenewals:       2,
		FinePerDay:        1.0,
		LoanPeriodDays:    14,
		MinPasswordLength: 6,
	}
}

// Validate rejects policies no loan could be created under.
func (p Policy) Validate() error {
	switch {
	case p.MaxBorrowed <= 0:
		return fmt.Errorf("borrowing cap must be positive, got %d", p.MaxBorrowed)
	case p.MaxRenewals < 0:
		return fmt.Errorf("renewal cap must not be negative, got %d", p.MaxRenewals)
	case p.FinePerDay < 0:
		return fmt.Errorf("fine per day must not be negative, got %g", p.FinePerDay)
	case p.LoanPeriodDays <= 0:
		return fmt.Errorf("loan period must be positive, got %d", p.LoanPeriodDays)
	case p.MinPasswordLength < 1:
		return fmt.Errorf("minimum password length must be positive, got %d", p.MinPasswordLength)
	}
	return nil
}

// Config is everything needed to open a library.
type Config struct {
	DBPath   string
	LogLevel string
	Policy   Policy
}

const defaultDBFile = "library.db"

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:   defaultDBFile,
		LogLevel: "info",
		Policy:   DefaultPolicy(),
	}
}

// ConfigFromEnv applies LIBRARY_* environment overrides on top of the
// defaults. Unparseable numbers are an error rather than silently ignored.
func ConfigFromEnv() (Config, error) {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	if v, ok := lookup("LIBRARY_DB"); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := lookup("LIBRARY_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"LIBRARY_MAX_BORROWED", &cfg.Policy.MaxBorrowed},
		{"LIBRARY_MAX_RENEWALS", &cfg.Policy.MaxRenewals},
		{"LIBRARY_LOAN_DAYS", &cfg.Policy.LoanPeriodDays},
		{"LIBRARY_MIN_PASSWORD", &cfg.Policy.MinPasswordLength},
	}
	for _, it := range ints {
		v, ok := lookup(it.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", it.key, err)
		}
		*it.dst = n
	}

	if v, ok := lookup("LIBRARY_FINE_PER_DAY"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("LIBRARY_FINE_PER_DAY: %w", err)
		}
		cfg.Policy.FinePerDay = f
	}
	return cfg, nil
}

// Validate checks the policy and log level.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path is empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.Policy.Validate()
}

// NewLogger builds the logrus logger used by the façade and the CLI.
func NewLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetOutput(os.Stderr)
	return logger, nil
}

// libraryEpoch anchors day numbers. Day 0 is 2000-01-01 UTC.
var libraryEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// DayOf converts a wall-clock time into a library day number.
func DayOf(t time.Time) int {
	return int(math.Floor(t.UTC().Sub(libraryEpoch).Hours() / 24))
}

// Today is the library day number for the current date.
func Today() int { return DayOf(time.Now()) }

// DateOf converts a day number back to a calendar date for display.
func DateOf(day int) time.Time { return libraryEpoch.AddDate(0, 0, day) }
