package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/mock"
)

// Defaults.
const (
	DefaultAdminHost          = "127.0.0.1"
	DefaultAdminPort          = 4290
	DefaultReadTimeout        = 30
	DefaultWriteTimeout       = 30
	DefaultShutdownTimeout    = 5
	DefaultEvalTimeout        = 2 * time.Second
	DefaultMaxBodySize        = 10 << 20
	DefaultMaxUnmatchedEvents = 1000
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfiguration holds the settings of a running mock server.
type ServerConfiguration struct {
	// Admin configures the admin API listener.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin" json:"admin"`

	// BindHost is the interface mock listeners bind to. Empty binds all interfaces.
	BindHost string `mapstructure:"bind_host" yaml:"bind_host" json:"bindHost"`

	// ReadTimeout is the mock listener read timeout in seconds.
	ReadTimeout int `mapstructure:"read_timeout" yaml:"read_timeout" json:"readTimeout"`

	// WriteTimeout is the mock listener write timeout in seconds.
	WriteTimeout int `mapstructure:"write_timeout" yaml:"write_timeout" json:"writeTimeout"`

	// ShutdownTimeout bounds connection draining when a listener is unbound, in seconds.
	ShutdownTimeout int `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdownTimeout"`

	// EvalTimeout bounds a single predicate or response evaluation.
	EvalTimeout time.Duration `mapstructure:"eval_timeout" yaml:"eval_timeout" json:"evalTimeout"`

	// MaxBodySize is the largest request body read for matching, in bytes.
	MaxBodySize int64 `mapstructure:"max_body_size" yaml:"max_body_size" json:"maxBodySize"`

	// MaxEventsPerMock bounds each mock's event log. Zero keeps every event.
	MaxEventsPerMock int `mapstructure:"max_events_per_mock" yaml:"max_events_per_mock" json:"maxEventsPerMock"`

	// MaxUnmatchedEvents bounds the unmatched bucket. Zero keeps every event.
	MaxUnmatchedEvents int `mapstructure:"max_unmatched_events" yaml:"max_unmatched_events" json:"maxUnmatchedEvents"`

	// ArchivePath enables the SQLite event archive when set.
	ArchivePath string `mapstructure:"archive_path" yaml:"archive_path" json:"archivePath,omitempty"`

	// MocksFile is a mock collection registered at startup.
	MocksFile string `mapstructure:"mocks_file" yaml:"mocks_file" json:"mocksFile,omitempty"`

	// Log configures operational logging.
	Log LogConfig `mapstructure:"log" yaml:"log" json:"log"`
}

// AdminConfig configures the admin API listener.
type AdminConfig struct {
	Host string `mapstructure:"host" yaml:"host" json:"host"`
	Port int    `mapstructure:"port" yaml:"port" json:"port"`
}

// Addr returns the admin listen address.
func (a AdminConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// LogConfig configures operational logging.
type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level" json:"level"`
	Format string        `mapstructure:"format" yaml:"format" json:"format"`
	File   LogFileConfig `mapstructure:"file" yaml:"file" json:"file"`
}

// LogFileConfig configures the rotating log file.
type LogFileConfig struct {
	Path       string `mapstructure:"path" yaml:"path" json:"path,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"maxSizeMb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"maxBackups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress" yaml:"compress" json:"compress"`
}

// Logging converts the log settings to a logging.Config.
func (c LogConfig) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.Level)
	cfg.Format = logging.ParseFormat(c.Format)
	cfg.File = logging.FileConfig{
		Path:       c.File.Path,
		MaxSizeMB:  c.File.MaxSizeMB,
		MaxBackups: c.File.MaxBackups,
		MaxAgeDays: c.File.MaxAgeDays,
		Compress:   c.File.Compress,
	}
	return cfg
}

// DefaultServerConfiguration returns the built-in defaults.
func DefaultServerConfiguration() *ServerConfiguration {
	return &ServerConfiguration{
		Admin:              AdminConfig{Host: DefaultAdminHost, Port: DefaultAdminPort},
		ReadTimeout:        DefaultReadTimeout,
		WriteTimeout:       DefaultWriteTimeout,
		ShutdownTimeout:    DefaultShutdownTimeout,
		EvalTimeout:        DefaultEvalTimeout,
		MaxBodySize:        DefaultMaxBodySize,
		MaxUnmatchedEvents: DefaultMaxUnmatchedEvents,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   LogFileConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *ServerConfiguration) Validate() error {
	if !mock.ValidPort(c.Admin.Port) {
		return fmt.Errorf("%w: admin port %d out of range", ErrInvalidConfig, c.Admin.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if c.EvalTimeout < 0 {
		return fmt.Errorf("%w: eval timeout must not be negative", ErrInvalidConfig)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("%w: max body size must not be negative", ErrInvalidConfig)
	}
	if c.MaxEventsPerMock < 0 || c.MaxUnmatchedEvents < 0 {
		return fmt.Errorf("%w: event limits must not be negative", ErrInvalidConfig)
	}
	return nil
}
