package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override flags, e.g. EMLMETA_INPUT_DIR.
const EnvPrefix = "EMLMETA"

// Config holds application configuration
type Config struct {
	// Batch settings
	InputDir     string
	ProcessedDir string
	CSVPath      string
	Workers      int
	StorageHosts []string

	// Output settings
	Report    bool
	Progress  bool
	LogLevel  string
	LogFormat string

	// Server settings
	Host           string
	Port           string
	MaxUploadBytes int64
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		InputDir:       "./not_processed",
		ProcessedDir:   "./processed",
		CSVPath:        filepath.Join("data_metadata", "email_metadata.csv"),
		Workers:        1,
		Report:         true,
		LogLevel:       "info",
		LogFormat:      "console",
		Host:           "localhost",
		Port:           "8080",
		MaxUploadBytes: 25 << 20,
	}
}

// Address returns the full server address
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}

// RegisterFlags attaches the configuration flags to cmd and its subcommands.
func RegisterFlags(cmd *cobra.Command) {
	d := Default()

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Optional YAML config file")
	flags.String("input-dir", d.InputDir, "Directory containing .eml files to process")
	flags.String("processed-dir", d.ProcessedDir, "Directory processed .eml files are moved to")
	flags.String("csv", d.CSVPath, "Metadata log (CSV) to append to")
	flags.Int("workers", d.Workers, "Number of files processed in parallel")
	flags.StringSlice("storage-host", nil, "File-storage host fragment (repeatable, defaults to drive.google.com, box.com, dropbox.com)")
	flags.Bool("report", d.Report, "Print a receipt for every processed message")
	flags.Bool("progress", d.Progress, "Show a progress bar")
	flags.String("log-level", d.LogLevel, "Logging level: debug, info, warn, error")
	flags.String("log-format", d.LogFormat, "Log encoding: console or json")
	flags.String("host", d.Host, "HTTP listen host (serve)")
	flags.String("port", d.Port, "HTTP listen port (serve)")
	flags.Int64("max-upload-bytes", d.MaxUploadBytes, "Largest message accepted by POST /parse (serve)")
}

// Load resolves the configuration from flags, EMLMETA_* environment
// variables and the optional config file, in that order of precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		InputDir:       filepath.Clean(v.GetString("input-dir")),
		ProcessedDir:   filepath.Clean(v.GetString("processed-dir")),
		CSVPath:        filepath.Clean(v.GetString("csv")),
		Workers:        v.GetInt("workers"),
		StorageHosts:   splitList(v.GetStringSlice("storage-host")),
		Report:         v.GetBool("report"),
		Progress:       v.GetBool("progress"),
		LogLevel:       strings.ToLower(v.GetString("log-level")),
		LogFormat:      strings.ToLower(v.GetString("log-format")),
		Host:           v.GetString("host"),
		Port:           v.GetString("port"),
		MaxUploadBytes: v.GetInt64("max-upload-bytes"),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input directory is required")
	}
	if c.ProcessedDir == "" {
		return fmt.Errorf("processed directory is required")
	}
	if filepath.Clean(c.InputDir) == filepath.Clean(c.ProcessedDir) {
		return fmt.Errorf("input and processed directories must differ")
	}
	if c.CSVPath == "" {
		return fmt.Errorf("csv path is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %q", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	return nil
}

// splitList flattens comma-separated entries, as produced by environment variables.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
