// Package config holds the node configuration, merged from flags,
// environment (TREE_ prefix), and an optional config file.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	DataDir       string              `mapstructure:"data_dir"`
	Root          string              `mapstructure:"root"`
	Keys          KeysConfig          `mapstructure:"keys"`
	Salts         SaltsConfig         `mapstructure:"salts"`
	Labels        LabelsConfig        `mapstructure:"labels"`
	State         BackendConfig       `mapstructure:"state"`
	Journal       JournalConfig       `mapstructure:"journal"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// KeysConfig selects the signing key used for relayed requests.
type KeysConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// SaltsConfig holds the salts used when deriving identifiers.
type SaltsConfig struct {
	User    string `mapstructure:"user"`
	Carving string `mapstructure:"carving"`
}

// LabelsConfig bounds the to/from labels on submitted content.
type LabelsConfig struct {
	MaxRunes int `mapstructure:"max_runes"`
}

// BackendConfig selects a state backend and its backend-specific settings.
type BackendConfig struct {
	Backend string            `mapstructure:"backend"`
	Config  map[string]string `mapstructure:"config"`
}

// JournalConfig controls the append-only event journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPProtocol   string `mapstructure:"otlp_protocol"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// DefaultDataDir returns the default data directory (~/.tree).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tree"
	}
	return filepath.Join(home, ".tree")
}

// JournalPath resolves the journal file location.
func (c Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.DataDir, "events.jsonl")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("root", "")

	v.SetDefault("keys.name", "default")
	v.SetDefault("keys.path", "")

	v.SetDefault("salts.user", "")
	v.SetDefault("salts.carving", "")

	v.SetDefault("labels.max_runes", 64)

	v.SetDefault("state.backend", "badger")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "text")
	v.SetDefault("observability.metrics_addr", ":9090")
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http")
	v.SetDefault("observability.service_name", "tree-node")
	v.SetDefault("observability.service_version", "dev")
}

// BindCommonFlags binds the flags every command carries.
func BindCommonFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("data-dir", "", "data directory (default ~/.tree)")
	f.String("config", "", "config file path")
	f.String("key", "", "key name to sign with")
	f.String("key-path", "", "path to key file (overrides --key)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")

	_ = v.BindPFlag("data_dir", f.Lookup("data-dir"))
	_ = v.BindPFlag("config", f.Lookup("config"))
	_ = v.BindPFlag("keys.name", f.Lookup("key"))
	_ = v.BindPFlag("keys.path", f.Lookup("key-path"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
}

// BindServeFlags binds the flags specific to the serve command.
func BindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("state-backend", "", "state backend (badger, memory, sqlite, redis, s3)")
	f.String("metrics-addr", "", "metrics HTTP listen address")
	f.String("root", "", "principal appointed as first officiant on an empty store")

	_ = v.BindPFlag("state.backend", f.Lookup("state-backend"))
	_ = v.BindPFlag("observability.metrics_addr", f.Lookup("metrics-addr"))
	_ = v.BindPFlag("root", f.Lookup("root"))
}

// Load reads config from flags, env, and file, returning the merged Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("TREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tree")
		v.SetConfigType("hcl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tree")
		v.AddConfigPath("/etc/tree")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configFile != "" {
			return Config{}, err
		}
		// A missing config file is fine unless one was named explicitly.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
