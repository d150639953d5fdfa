package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every environment override, e.g. FIRMGEN_SERVER_PORT.
	EnvPrefix = "FIRMGEN"

	// EnvConfigFile names an explicit config file, bypassing the search path.
	EnvConfigFile = "FIRMGEN_CONFIG"
)

// Source is a loaded configuration backend that can be re-read when its file changes.
type Source struct {
	mu sync.Mutex
	v  *viper.Viper
}

// NewSource prepares viper with defaults, the optional config file and environment overrides.
// When path is empty, config.yaml is searched for in the working directory and /etc/firmgen;
// a missing file is not an error in that case.
func NewSource(path string) (*Source, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/firmgen")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return &Source{v: v}, nil
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	src, err := NewSource(os.Getenv(EnvConfigFile))
	if err != nil {
		return nil, err
	}
	return src.Config()
}

// Config unmarshals and validates the current settings.
func (s *Source) Config() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// File returns the config file in use, or "" when running from defaults and environment only.
func (s *Source) File() string {
	return s.v.ConfigFileUsed()
}

// Watch calls onChange with the re-read configuration whenever the config file is written.
// It returns false when there is no file to watch.
func (s *Source) Watch(onChange func(*Config, error)) bool {
	if s.File() == "" {
		return false
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		onChange(s.Config())
	})
	s.v.WatchConfig()
	return true
}

// Redacted returns a copy safe for printing: the API key is masked and the
// database password is replaced with "xxxxx".
func (c Config) Redacted() Config {
	out := c
	if out.LLM.GeminiAPIKey != "" {
		out.LLM.GeminiAPIKey = "****"
	}
	if out.Archive.DatabaseURL != "" {
		if u, err := url.Parse(out.Archive.DatabaseURL); err == nil {
			out.Archive.DatabaseURL = u.Redacted()
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.output_dir", "outputs")
	v.SetDefault("server.max_upload_mb", 50)

	v.SetDefault("scheduler.max_concurrent", 3)
	v.SetDefault("scheduler.retention", "24h")
	v.SetDefault("scheduler.reap_interval", "1h")

	v.SetDefault("pipeline.spec_char_limit", 50000)
	v.SetDefault("pipeline.diagram_char_limit", 30000)
	v.SetDefault("pipeline.dpi", 300)
	v.SetDefault("pipeline.debug_dir", "debug")
	v.SetDefault("pipeline.temp_dir", "temp")
	v.SetDefault("pipeline.prompt_dir", "")

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.text_model", "gemini-2.0-flash")
	v.SetDefault("llm.vision_model", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay", "2s")
	v.SetDefault("llm.attempt_timeout", "120s")
	v.SetDefault("llm.breaker_failures", 0)
	v.SetDefault("llm.breaker_cooldown", "30s")

	v.SetDefault("tools.magick", "magick")
	v.SetDefault("tools.ghostscript", "gs")
	v.SetDefault("tools.pdftoppm", "pdftoppm")
	v.SetDefault("tools.pdftotext", "pdftotext")
	v.SetDefault("tools.tesseract", "tesseract")

	v.SetDefault("archive.database_url", "")
}
