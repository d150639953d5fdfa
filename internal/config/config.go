package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler" validate:"required"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm" validate:"required"`
	Tools     ToolsConfig     `mapstructure:"tools" yaml:"tools" validate:"required"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port        int    `mapstructure:"port" yaml:"port" validate:"required,gt=0,lt=65536"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" yaml:"log_format" validate:"required,oneof=json text"`
	UploadDir   string `mapstructure:"upload_dir" yaml:"upload_dir" validate:"required"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir" validate:"required"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb" validate:"gt=0"`
}

// SchedulerConfig bounds task concurrency and controls how long finished tasks are kept.
type SchedulerConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent" validate:"gte=1"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention" validate:"gt=0"`
	ReapInterval  time.Duration `mapstructure:"reap_interval" yaml:"reap_interval" validate:"gt=0"`
}

// PipelineConfig contains the input limits and working directories of the generation pipeline.
type PipelineConfig struct {
	SpecCharLimit    int    `mapstructure:"spec_char_limit" yaml:"spec_char_limit" validate:"gt=0"`
	DiagramCharLimit int    `mapstructure:"diagram_char_limit" yaml:"diagram_char_limit" validate:"gt=0"`
	DPI              int    `mapstructure:"dpi" yaml:"dpi" validate:"gte=72,lte=1200"`
	DebugDir         string `mapstructure:"debug_dir" yaml:"debug_dir" validate:"required"`
	TempDir          string `mapstructure:"temp_dir" yaml:"temp_dir" validate:"required"`
	// PromptDir optionally overrides the built-in prompt templates
	PromptDir string `mapstructure:"prompt_dir" yaml:"prompt_dir"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	// GeminiAPIKey may be empty; model-backed stages then fail at call time
	GeminiAPIKey    string        `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	TextModel       string        `mapstructure:"text_model" yaml:"text_model" validate:"required"`
	VisionModel     string        `mapstructure:"vision_model" yaml:"vision_model" validate:"required"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" validate:"gte=0"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout" validate:"gt=0"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown" validate:"gt=0"`
}

// ToolsConfig names the external binaries used for document conversion and text extraction.
type ToolsConfig struct {
	Magick      string `mapstructure:"magick" yaml:"magick" validate:"required"`
	Ghostscript string `mapstructure:"ghostscript" yaml:"ghostscript" validate:"required"`
	Pdftoppm    string `mapstructure:"pdftoppm" yaml:"pdftoppm" validate:"required"`
	Pdftotext   string `mapstructure:"pdftotext" yaml:"pdftotext" validate:"required"`
	Tesseract   string `mapstructure:"tesseract" yaml:"tesseract" validate:"required"`
}

// ArchiveConfig configures the optional Postgres history of finished tasks.
type ArchiveConfig struct {
	// DatabaseURL disables the archive when empty
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url" validate:"omitempty,url"`
}

// Enabled reports whether finished tasks should be archived.
func (a ArchiveConfig) Enabled() bool {
	return a.DatabaseURL != ""
}
