package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database drivers understood by the store.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Mail transport security modes.
const (
	MailTLSImplicit = "tls"
	MailTLSStart    = "starttls"
	MailTLSNone     = "none"
)

// Reminder scheduling modes. In split mode every scan runs on its own
// cadence; in single mode one job runs all scans on each tick.
const (
	ModeSplit  = "split"
	ModeSingle = "single"
)

// Job names used by the scheduler and the HTTP trigger endpoint.
const (
	JobOverdueTasks         = "overdue_tasks"
	JobUpcomingTasks        = "upcoming_tasks"
	JobOverdueInvoices      = "overdue_invoices"
	JobUpcomingAppointments = "upcoming_appointments"
	JobLedger               = "ledger"
	JobAll                  = "all"
)

// DatabaseConfig selects the SQL driver and data source.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Addr        string   `mapstructure:"addr" yaml:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is a zap level name (debug, info, warn, error).
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "json" for production output or "console" for humans.
	Format string `mapstructure:"format" yaml:"format"`
}

// MailConfig holds the outbound SMTP settings. An empty Host leaves
// email delivery unconfigured.
type MailConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	From       string `mapstructure:"from" yaml:"from"`
	TLS        string `mapstructure:"tls" yaml:"tls"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Configured reports whether an SMTP host has been set.
func (c MailConfig) Configured() bool {
	return strings.TrimSpace(c.Host) != ""
}

// Timeout returns the per-send timeout.
func (c MailConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// RedisConfig enables a cross-process scan lock when Addr is set.
type RedisConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	Password   string `mapstructure:"password" yaml:"password"`
	DB         int    `mapstructure:"db" yaml:"db"`
	LockTTLSec int    `mapstructure:"lock_ttl_sec" yaml:"lock_ttl_sec"`
}

// JobConfig holds the cadence of one scheduled scan.
type JobConfig struct {
	IntervalSec int  `mapstructure:"interval_sec" yaml:"interval_sec"`
	Enabled     bool `mapstructure:"enabled" yaml:"enabled"`
	RunOnStart  bool `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// Interval returns the job cadence as a duration.
func (j JobConfig) Interval() time.Duration {
	return time.Duration(j.IntervalSec) * time.Second
}

// ReminderConfig holds the scan windows and job cadences.
type ReminderConfig struct {
	Mode                   string               `mapstructure:"mode" yaml:"mode"`
	TaskWindowHours        int                  `mapstructure:"task_window_hours" yaml:"task_window_hours"`
	AppointmentWindowHours int                  `mapstructure:"appointment_window_hours" yaml:"appointment_window_hours"`
	InvoiceCooldownDays    int                  `mapstructure:"invoice_cooldown_days" yaml:"invoice_cooldown_days"`
	LedgerTaskDays         int                  `mapstructure:"ledger_task_days" yaml:"ledger_task_days"`
	LedgerInvoiceDays      int                  `mapstructure:"ledger_invoice_days" yaml:"ledger_invoice_days"`
	ScanTimeoutSec         int                  `mapstructure:"scan_timeout_sec" yaml:"scan_timeout_sec"`
	Jobs                   map[string]JobConfig `mapstructure:"jobs" yaml:"jobs"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database  DatabaseConfig `mapstructure:"database" yaml:"database"`
	HTTP      HTTPConfig     `mapstructure:"http" yaml:"http"`
	Log       LogConfig      `mapstructure:"log" yaml:"log"`
	Mail      MailConfig     `mapstructure:"mail" yaml:"mail"`
	Redis     RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Reminders ReminderConfig `mapstructure:"reminders" yaml:"reminders"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/bizops/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "bizops", "config.yaml")
}

// DefaultDatabasePath returns the default SQLite database location.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "bizops.db")
	}
	return filepath.Join(home, ".local", "share", "bizops", "bizops.db")
}

// defaultJobs returns the stock cadences: overdue tasks hourly, upcoming
// tasks and appointments every six hours, overdue invoices daily.
func defaultJobs() map[string]JobConfig {
	return map[string]JobConfig{
		JobOverdueTasks:         {IntervalSec: 3600, Enabled: true},
		JobUpcomingTasks:        {IntervalSec: 6 * 3600, Enabled: true},
		JobOverdueInvoices:      {IntervalSec: 24 * 3600, Enabled: true},
		JobUpcomingAppointments: {IntervalSec: 6 * 3600, Enabled: true},
		JobLedger:               {IntervalSec: 3600, Enabled: false},
	}
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    DefaultDatabasePath(),
		},
		HTTP: HTTPConfig{
			Addr:        ":5000",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Mail: MailConfig{
			Port:       587,
			TLS:        MailTLSStart,
			TimeoutSec: 30,
		},
		Redis: RedisConfig{
			LockTTLSec: 900,
		},
		Reminders: ReminderConfig{
			Mode:                   ModeSplit,
			TaskWindowHours:        24,
			AppointmentWindowHours: 24,
			InvoiceCooldownDays:    7,
			LedgerTaskDays:         2,
			LedgerInvoiceDays:      3,
			ScanTimeoutSec:         600,
			Jobs:                   defaultJobs(),
		},
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment without overriding variables that are already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with BIZOPS_ override file values
// (for example BIZOPS_MAIL_HOST). If the file does not exist, defaults
// plus environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BIZOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values and so
	// AutomaticEnv knows which keys exist.
	def := defaultAppConfig()
	v.SetDefault("database.driver", def.Database.Driver)
	v.SetDefault("database.dsn", def.Database.DSN)
	v.SetDefault("http.addr", def.HTTP.Addr)
	v.SetDefault("http.cors_origins", def.HTTP.CORSOrigins)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", def.Mail.Port)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.tls", def.Mail.TLS)
	v.SetDefault("mail.timeout_sec", def.Mail.TimeoutSec)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl_sec", def.Redis.LockTTLSec)
	v.SetDefault("reminders.mode", def.Reminders.Mode)
	v.SetDefault("reminders.task_window_hours", def.Reminders.TaskWindowHours)
	v.SetDefault("reminders.appointment_window_hours", def.Reminders.AppointmentWindowHours)
	v.SetDefault("reminders.invoice_cooldown_days", def.Reminders.InvoiceCooldownDays)
	v.SetDefault("reminders.ledger_task_days", def.Reminders.LedgerTaskDays)
	v.SetDefault("reminders.ledger_invoice_days", def.Reminders.LedgerInvoiceDays)
	v.SetDefault("reminders.scan_timeout_sec", def.Reminders.ScanTimeoutSec)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Fill in jobs the file left out, and cadences it left at zero.
	for name, job := range defaultJobs() {
		got, ok := cfg.Reminders.Jobs[name]
		if !ok {
			cfg.Reminders.Jobs[name] = job
			continue
		}
		if got.IntervalSec <= 0 {
			got.IntervalSec = job.IntervalSec
		}
		// Viper unmarshals missing bools as false; treat unset as the default.
		key := fmt.Sprintf("reminders.jobs.%s.enabled", name)
		if !v.IsSet(key) {
			got.Enabled = job.Enabled
		}
		cfg.Reminders.Jobs[name] = got
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks enumerated settings.
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Mail.TLS {
	case MailTLSImplicit, MailTLSStart, MailTLSNone:
	default:
		return fmt.Errorf("unknown mail tls mode %q", c.Mail.TLS)
	}
	switch c.Reminders.Mode {
	case ModeSplit, ModeSingle:
	default:
		return fmt.Errorf("unknown reminders mode %q", c.Reminders.Mode)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("http", cfg.HTTP)
	v.Set("log", cfg.Log)
	v.Set("mail", cfg.Mail)
	v.Set("redis", cfg.Redis)
	v.Set("reminders", cfg.Reminders)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
