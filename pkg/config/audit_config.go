// pkg/config/audit_config.go

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CIS_AUDIT_WORKERS=4
const EnvPrefix = "CIS_AUDIT"

// AuditConfig holds the settings of an audit run
type AuditConfig struct {
	Include      []string       `mapstructure:"include"`
	Skip         []string       `mapstructure:"skip"`
	Checks       []string       `mapstructure:"checks"`
	Workers      int            `mapstructure:"workers"`
	CheckTimeout time.Duration  `mapstructure:"check_timeout"`
	ManualPolicy string         `mapstructure:"manual_policy"`
	Output       OutputConfig   `mapstructure:"output"`
	Log          LogConfig      `mapstructure:"log"`
	Compress     CompressConfig `mapstructure:"compress"`
}

// OutputConfig selects where and how reports are written
type OutputConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// LogConfig configures the diagnostic log
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CompressConfig controls the password protected report archive
type CompressConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Password string `mapstructure:"password"`
}

// Report formats understood by the audit command
var knownFormats = map[string]bool{
	"console": true,
	"adoc":    true,
	"json":    true,
	"yaml":    true,
}

// NewViper returns a viper instance carrying the audit defaults and
// environment bindings
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("include", []string{})
	v.SetDefault("skip", []string{})
	v.SetDefault("checks", []string{})
	v.SetDefault("workers", 1)
	v.SetDefault("check_timeout", time.Duration(0))
	v.SetDefault("manual_policy", "fail")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.formats", []string{"console"})
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("compress.enabled", false)
	v.SetDefault("compress.password", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadAuditConfig reads the optional config file at path into v and decodes
// the result. An empty path uses defaults and environment only.
func LoadAuditConfig(v *viper.Viper, path string) (*AuditConfig, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg AuditConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse audit config: %w", err)
	}
	cfg.Include = splitList(cfg.Include)
	cfg.Skip = splitList(cfg.Skip)
	cfg.Checks = splitList(cfg.Checks)
	cfg.Output.Formats = splitList(cfg.Output.Formats)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the audit cannot run with
func (c *AuditConfig) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.CheckTimeout < 0 {
		errs = append(errs, fmt.Errorf("check_timeout must not be negative, got %s", c.CheckTimeout))
	}
	for _, format := range c.Output.Formats {
		if !knownFormats[format] {
			errs = append(errs, fmt.Errorf("unknown output format %q", format))
		}
	}
	if c.Compress.Enabled && c.Compress.Password == "" {
		errs = append(errs, errors.New("compress.password is required when compression is enabled"))
	}
	return errors.Join(errs...)
}

// WantsFormat reports whether the named output format is selected
func (c *AuditConfig) WantsFormat(format string) bool {
	for _, f := range c.Output.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// splitList accepts both list values and comma separated strings, as
// environment variables only carry the latter
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			item = strings.ToLower(strings.TrimSpace(item))
			if item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
