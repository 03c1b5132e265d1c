// Package config holds the run configuration shared by every modelconv
// command. Values start from Default, are overridden by MODELCONV_*
// environment variables in FromEnv, and finally by command-line flags bound
// in cmd/modelconv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Invalid-entity policies.
const (
	OnInvalidFail = "fail"
	OnInvalidSkip = "skip"
)

// Run is the configuration of one modelconv invocation.
type Run struct {
	// CatalogPath is the entity catalog YAML; empty uses the bundled catalog.
	CatalogPath string

	LogLevel  string
	LogFormat string

	// OnInvalid is OnInvalidFail or OnInvalidSkip.
	OnInvalid    string
	OmitDefaults bool

	DBKind      string
	DSN         string
	DBSchema    string
	BatchSize   int
	ForeignKeys bool

	// MetricsBackend is "none" or "datadog".
	MetricsBackend string
	MetricsTags    string
	MetricsJob     string

	PackageName  string
	PackageTitle string
}

// Default returns the built-in configuration.
func Default() Run {
	return Run{
		LogLevel:       "info",
		LogFormat:      "text",
		OnInvalid:      OnInvalidFail,
		DBKind:         "sqlite",
		BatchSize:      10000,
		ForeignKeys:    true,
		MetricsBackend: "none",
		MetricsJob:     "modelconv",
	}
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "1" || v == "true" || v == "yes" {
			return true
		}
		if v == "0" || v == "false" || v == "no" {
			return false
		}
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	if v, ok := os.LookupEnv(k); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// FromEnv returns base with MODELCONV_* environment overrides applied.
func FromEnv(base Run) Run {
	cfg := base
	cfg.CatalogPath = getenv("MODELCONV_CATALOG", cfg.CatalogPath)
	cfg.LogLevel = getenv("MODELCONV_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("MODELCONV_LOG_FORMAT", cfg.LogFormat)
	cfg.OnInvalid = getenv("MODELCONV_ON_INVALID", cfg.OnInvalid)
	cfg.OmitDefaults = getenvBool("MODELCONV_OMIT_DEFAULTS", cfg.OmitDefaults)

	cfg.DBKind = getenv("MODELCONV_DB_KIND", cfg.DBKind)
	cfg.DSN = getenv("MODELCONV_DB_DSN", cfg.DSN)
	cfg.DBSchema = getenv("MODELCONV_DB_SCHEMA", cfg.DBSchema)
	cfg.BatchSize = getenvInt("MODELCONV_BATCH_SIZE", cfg.BatchSize)
	cfg.ForeignKeys = getenvBool("MODELCONV_FOREIGN_KEYS", cfg.ForeignKeys)

	cfg.MetricsBackend = getenv("MODELCONV_METRICS_BACKEND", cfg.MetricsBackend)
	cfg.MetricsTags = getenv("MODELCONV_METRICS_TAGS", cfg.MetricsTags)
	cfg.MetricsJob = getenv("MODELCONV_METRICS_JOB", cfg.MetricsJob)

	cfg.PackageName = getenv("MODELCONV_PACKAGE_NAME", cfg.PackageName)
	cfg.PackageTitle = getenv("MODELCONV_PACKAGE_TITLE", cfg.PackageTitle)
	return cfg
}

// Validate reports the first invalid field.
func (r Run) Validate() error {
	switch r.OnInvalid {
	case OnInvalidFail, OnInvalidSkip:
	default:
		return fmt.Errorf("config: on-invalid must be %q or %q, got %q", OnInvalidFail, OnInvalidSkip, r.OnInvalid)
	}
	switch r.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format must be text or json, got %q", r.LogFormat)
	}
	switch r.MetricsBackend {
	case "", "none", "datadog":
	default:
		return fmt.Errorf("config: unknown metrics backend %q", r.MetricsBackend)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", r.BatchSize)
	}
	if strings.TrimSpace(r.DBKind) == "" {
		return fmt.Errorf("config: db kind is required")
	}
	if strings.Contains(r.DBSchema, ".") {
		return fmt.Errorf("config: db schema %q must not contain '.'", r.DBSchema)
	}
	return nil
}

// SkipInvalid reports whether invalid entities are dropped rather than fatal.
func (r Run) SkipInvalid() bool { return r.OnInvalid == OnInvalidSkip }
