package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trialsnap/internal/kpi"
	"trialsnap/internal/loader"
	"trialsnap/internal/reconcile"
	"trialsnap/internal/util"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	LogLevel  string
	LogFormat string

	LateUploadDays int
	LateTaskDays   int
	LateFormDays   int
	// LateDays overrides the three category thresholds when set (> 0).
	LateDays int

	ExpectedVisitRows    int
	UnmatchedUploadDelay string
	VisitWindowsFile     string
	BaselineAssessment   string

	HeaderMarkers    []string
	HeaderRequireAll []string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string
	// GmailRequestsPerSecond throttles Gmail API calls.
	GmailRequestsPerSecond int

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailFetchMax int
	MailLabel    string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		LateUploadDays: getEnvInt("LATE_UPLOAD_DAYS", 3),
		LateTaskDays:   getEnvInt("LATE_TASK_DAYS", 5),
		LateFormDays:   getEnvInt("LATE_FORM_DAYS", 7),
		LateDays:       getEnvInt("LATE_DAYS", 0),

		ExpectedVisitRows:    getEnvInt("EXPECTED_VISIT_ROWS", 6),
		UnmatchedUploadDelay: strings.ToLower(getEnv("UNMATCHED_UPLOAD_DELAY", "zero")),
		VisitWindowsFile:     getEnv("VISIT_WINDOWS_FILE", ""),
		BaselineAssessment:   getEnv("BASELINE_ASSESSMENT", "Baseline"),

		HeaderMarkers:    getEnvList("HEADER_MARKERS", loader.DefaultMarkers),
		HeaderRequireAll: getEnvList("HEADER_REQUIRE_ALL", nil),

		GmailClientID:          getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret:      getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:       getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken:      getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailRequestsPerSecond: getEnvInt("GMAIL_REQUESTS_PER_SECOND", 5),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailFetchMax: getEnvInt("MAIL_FETCH_MAX", 20),
		MailLabel:    getEnv("MAIL_LABEL", "INBOX"),
	}

	switch cfg.UnmatchedUploadDelay {
	case "zero", "missing":
	default:
		return Config{}, fmt.Errorf("UNMATCHED_UPLOAD_DELAY must be zero or missing, got %q", cfg.UnmatchedUploadDelay)
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) Thresholds() kpi.Thresholds {
	if c.LateDays > 0 {
		return kpi.UniformThresholds(c.LateDays)
	}
	return kpi.Thresholds{Upload: c.LateUploadDays, Task: c.LateTaskDays, Form: c.LateFormDays}
}

// KPI builds the engine configuration, reading the visit-window file if one is set.
func (c Config) KPI() (kpi.Config, error) {
	out := kpi.DefaultConfig()
	out.Thresholds = c.Thresholds()
	if c.ExpectedVisitRows > 0 {
		out.ExpectedVisitRows = c.ExpectedVisitRows
	}
	if strings.TrimSpace(c.BaselineAssessment) != "" {
		out.BaselineAssessment = c.BaselineAssessment
	}
	if c.VisitWindowsFile != "" {
		windows, err := LoadVisitWindows(c.VisitWindowsFile)
		if err != nil {
			return kpi.Config{}, err
		}
		out.Windows = windows
	}
	return out, nil
}

func (c Config) LoaderOptions() loader.Options {
	opts := loader.DefaultOptions()
	if len(c.HeaderMarkers) > 0 {
		opts.Markers = append([]string(nil), c.HeaderMarkers...)
	}
	opts.RequireAll = append([]string(nil), c.HeaderRequireAll...)
	return opts
}

func (c Config) ReconcileOptions() reconcile.Options {
	if c.UnmatchedUploadDelay == "missing" {
		return reconcile.Options{}
	}
	return reconcile.Options{UnmatchedUploadDelay: util.IntPtr(0)}
}

type visitWindowFile struct {
	Visits []kpi.VisitWindow `yaml:"visits"`
}

// LoadVisitWindows reads a visit-offset table:
//
//	visits:
//	  - name: Week 4
//	    offset_days: 28
//	    tolerance_days: 3
func LoadVisitWindows(path string) ([]kpi.VisitWindow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read visit windows: %w", err)
	}
	var file visitWindowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse visit windows %s: %w", path, err)
	}
	if len(file.Visits) == 0 {
		return nil, fmt.Errorf("visit windows %s: no visits defined", path)
	}
	for i, w := range file.Visits {
		if strings.TrimSpace(w.Name) == "" {
			return nil, fmt.Errorf("visit windows %s: entry %d has no name", path, i+1)
		}
		if w.ToleranceDays < 0 {
			return nil, fmt.Errorf("visit windows %s: %s has negative tolerance", path, w.Name)
		}
	}
	return file.Visits, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
