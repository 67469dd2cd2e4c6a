// Package config loads and validates the scraper configuration.
//
// Values are layered by viper: command-line flags, CARMAT_* environment
// variables (a .env file is loaded into the environment first), an optional
// .carmat.yaml file and finally the defaults below.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jmylchreest/carmat/internal/output"
	"github.com/jmylchreest/carmat/internal/portal"
	"github.com/jmylchreest/carmat/pkg/fetcher"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "CARMAT"

// CSV modes.
const (
	CSVModeConvert     = "convert"
	CSVModeIncremental = "incremental"
	CSVModeNone        = "none"
)

// Config is the scraper configuration.
type Config struct {
	// SessionCookie is an existing JSESSIONID. Required unless Bootstrap is set.
	SessionCookie string `mapstructure:"session_cookie" validate:"required_without=Bootstrap"`

	// Bootstrap acquires a fresh session and launches the search before crawling.
	Bootstrap bool `mapstructure:"bootstrap"`

	// Filtered restricts the search to active sites.
	Filtered bool `mapstructure:"filtered"`

	// EnrichWithHistory fetches each site's detail page for its most recent authorization.
	EnrichWithHistory bool `mapstructure:"enrich_with_history"`

	FlushEveryNPages int    `mapstructure:"flush_every_n_pages" validate:"gte=0"`
	OutputPath       string `mapstructure:"output_path" validate:"required"`
	CSVMode          string `mapstructure:"csv_mode" validate:"oneof=convert incremental none"`

	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent" validate:"required"`
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	DetailURL string        `mapstructure:"detail_url" validate:"required,url"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("session_cookie", "")
	v.SetDefault("bootstrap", false)
	v.SetDefault("filtered", false)
	v.SetDefault("enrich_with_history", true)
	v.SetDefault("flush_every_n_pages", 10)
	v.SetDefault("output_path", "output/details_results")
	v.SetDefault("csv_mode", CSVModeConvert)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("user_agent", fetcher.DefaultUserAgent)
	v.SetDefault("base_url", portal.DefaultBaseURL)
	v.SetDefault("detail_url", portal.DefaultDetailURL)
}

// Setup prepares v: defaults, environment binding and the config file.
// An empty configFile searches for .carmat.yaml in the working and home
// directories; a missing file is not an error.
func Setup(v *viper.Viper, configFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(".carmat")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments it reads ./.env.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", filepath.Clean(p), err)
		}
	}
	return nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", keyName(e.StructField()), formatValidationError(e)))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// keyName maps a struct field to its configuration key.
func keyName(field string) string {
	switch field {
	case "SessionCookie":
		return "session_cookie"
	case "FlushEveryNPages":
		return "flush_every_n_pages"
	case "OutputPath":
		return "output_path"
	case "CSVMode":
		return "csv_mode"
	case "UserAgent":
		return "user_agent"
	case "BaseURL":
		return "base_url"
	case "DetailURL":
		return "detail_url"
	default:
		return strings.ToLower(field)
	}
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required unless bootstrap is enabled"
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(e.Param(), " ", ", "))
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// JSONPath returns the timestamped JSON output path for a run started at now.
func (c *Config) JSONPath(now time.Time) string {
	return output.TimestampedPath(c.OutputPath, "json", now)
}

// CSVPath returns the timestamped CSV output path for a run started at now.
func (c *Config) CSVPath(now time.Time) string {
	return output.TimestampedPath(c.OutputPath, "csv", now)
}
