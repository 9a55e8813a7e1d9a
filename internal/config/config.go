package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Queue         QueueConfig         `yaml:"queue"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Address       string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxChunkBytes int           `yaml:"max_chunk_bytes"`
	// StopWait bounds how long a stop request waits for post-processing.
	StopWait time.Duration `yaml:"stop_wait"`
}

// StorageConfig holds chunk store and session store settings.
type StorageConfig struct {
	RootDir      string `yaml:"root_dir"`
	SessionStore string `yaml:"session_store"` // "memory" or "file"
}

// QueueConfig holds background job settings.
type QueueConfig struct {
	Workers       int           `yaml:"workers"`
	Capacity      int           `yaml:"capacity"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBase     time.Duration `yaml:"retry_base"`
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`
}

// TranscriptionConfig selects and configures the speech-to-text backend.
type TranscriptionConfig struct {
	Backend        string        `yaml:"backend"` // "whisper-cli" or "openai"
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	WhisperPath    string        `yaml:"whisper_path"`
	ModelPath      string        `yaml:"model_path"`
	Language       string        `yaml:"language"`
	OpenAIAPIKey   string        `yaml:"openai_api_key"`
	OpenAIModel    string        `yaml:"openai_model"`
	OpenAIEndpoint string        `yaml:"openai_endpoint"`
	Timeout        time.Duration `yaml:"timeout"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:       ":8081",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  60 * time.Second,
			MaxChunkBytes: 32 << 20,
			StopWait:      10 * time.Second,
		},
		Storage: StorageConfig{
			RootDir:      "recorded_videos",
			SessionStore: "file",
		},
		Queue: QueueConfig{
			Workers:       4,
			Capacity:      1024,
			MaxAttempts:   5,
			RetryBase:     time.Second,
			RetryMaxDelay: 30 * time.Second,
		},
		Transcription: TranscriptionConfig{
			Backend:     "whisper-cli",
			FFmpegPath:  "ffmpeg",
			WhisperPath: "whisper-cli",
			ModelPath:   "~/.local/share/whisper/models",
			Language:    "auto",
			OpenAIModel: "gpt-4o-mini-transcribe",
			Timeout:     10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults. OPENAI_API_KEY fills transcription.openai_api_key when the
// file leaves it empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if cfg.Transcription.OpenAIAPIKey == "" {
		cfg.Transcription.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Storage.RootDir = expandTilde(cfg.Storage.RootDir)
	cfg.Transcription.ModelPath = expandTilde(cfg.Transcription.ModelPath)

	return cfg, nil
}

// Validate checks every section and reports all failures at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server config: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage config: %w", err))
	}
	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("queue config: %w", err))
	}
	if err := c.Transcription.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transcription config: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging config: %w", err))
	}
	return errors.Join(errs...)
}

func (s *ServerConfig) Validate() error {
	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if s.MaxChunkBytes <= 0 {
		return fmt.Errorf("max_chunk_bytes must be > 0, got %d", s.MaxChunkBytes)
	}
	if s.StopWait < 0 {
		return fmt.Errorf("stop_wait must not be negative, got %s", s.StopWait)
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	if s.RootDir == "" {
		return fmt.Errorf("root_dir cannot be empty")
	}
	switch s.SessionStore {
	case "memory", "file":
	default:
		return fmt.Errorf("session_store must be \"memory\" or \"file\", got %q", s.SessionStore)
	}
	return nil
}

func (q *QueueConfig) Validate() error {
	if q.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", q.Workers)
	}
	if q.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", q.Capacity)
	}
	if q.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", q.MaxAttempts)
	}
	if q.RetryBase <= 0 {
		return fmt.Errorf("retry_base must be > 0")
	}
	if q.RetryMaxDelay < q.RetryBase {
		return fmt.Errorf("retry_max_delay (%s) must be >= retry_base (%s)", q.RetryMaxDelay, q.RetryBase)
	}
	return nil
}

func (t *TranscriptionConfig) Validate() error {
	if t.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}
	switch t.Backend {
	case "whisper-cli":
		if t.WhisperPath == "" {
			return fmt.Errorf("whisper_path cannot be empty")
		}
		if t.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty")
		}
	case "openai":
		if t.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key (or OPENAI_API_KEY) is required for the openai backend")
		}
	default:
		return fmt.Errorf("backend must be \"whisper-cli\" or \"openai\", got %q", t.Backend)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be debug, info, warn, or error, got %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be \"text\" or \"json\", got %q", l.Format)
	}
	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
