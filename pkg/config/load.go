package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "MOCKSERVER"

// Load reads the server configuration. When configPath is empty the file
// "mockserver.{yaml,yml,json,toml}" is searched in the working directory,
// $HOME/.mockserver and /etc/mockserver; a missing file is not an error.
// If v is nil, a new viper instance is created.
func Load(configPath string, v *viper.Viper) (*ServerConfiguration, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mockserver")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mockserver")
		v.AddConfigPath("/etc/mockserver")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &ServerConfiguration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultServerConfiguration()

	v.SetDefault("admin.host", d.Admin.Host)
	v.SetDefault("admin.port", d.Admin.Port)
	v.SetDefault("bind_host", d.BindHost)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("eval_timeout", d.EvalTimeout)
	v.SetDefault("max_body_size", d.MaxBodySize)
	v.SetDefault("max_events_per_mock", d.MaxEventsPerMock)
	v.SetDefault("max_unmatched_events", d.MaxUnmatchedEvents)
	v.SetDefault("archive_path", d.ArchivePath)
	v.SetDefault("mocks_file", d.MocksFile)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file.path", d.Log.File.Path)
	v.SetDefault("log.file.max_size_mb", d.Log.File.MaxSizeMB)
	v.SetDefault("log.file.max_backups", d.Log.File.MaxBackups)
	v.SetDefault("log.file.max_age_days", d.Log.File.MaxAgeDays)
	v.SetDefault("log.file.compress", d.Log.File.Compress)
}
