package scriba

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Phone         PhoneConfig         `mapstructure:"phone"`
	Lexicon       LexiconConfig       `mapstructure:"lexicon"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	HealthPath     string   `mapstructure:"health_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type EngineConfig struct {
	MaxSessions        int     `mapstructure:"max_sessions"`
	MaxConcurrentCalls int     `mapstructure:"max_concurrent_transcriptions"`
	ChunkSeconds       float64 `mapstructure:"chunk_seconds"`
	CallTimeoutMS      int     `mapstructure:"transcription_timeout_ms"`
	EndGraceMS         int     `mapstructure:"end_grace_ms"`
	WarmupRetries      int     `mapstructure:"warmup_retries"`
	WarmupBackoffMS    int     `mapstructure:"warmup_backoff_ms"`
	BreakerThreshold   int     `mapstructure:"breaker_threshold"`
	BreakerCooldownMS  int     `mapstructure:"breaker_cooldown_ms"`
	DefaultLanguage    string  `mapstructure:"default_language"`
	QualityThreshold   float64 `mapstructure:"quality_threshold"`
	SampleRate         int     `mapstructure:"sample_rate"`
	FlushRemainder     bool    `mapstructure:"flush_remainder"`
}

type BackendConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type PhoneConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Addr               string `mapstructure:"addr"`
	PublicURL          string `mapstructure:"public_url"`
	AuthToken          string `mapstructure:"auth_token"`
	AccountSID         string `mapstructure:"account_sid"`
	VoicePath          string `mapstructure:"voice_path"`
	WebsocketPath      string `mapstructure:"ws_path"`
	StatusCallbackPath string `mapstructure:"status_callback_path"`
	Greeting           string `mapstructure:"greeting"`
}

type LexiconConfig struct {
	Path string `mapstructure:"path"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.health_path", "/healthz")
	v.SetDefault("engine.max_sessions", 64)
	v.SetDefault("engine.max_concurrent_transcriptions", 4)
	v.SetDefault("engine.chunk_seconds", 2.0)
	v.SetDefault("engine.transcription_timeout_ms", 30000)
	v.SetDefault("engine.end_grace_ms", 5000)
	v.SetDefault("engine.warmup_retries", 3)
	v.SetDefault("engine.warmup_backoff_ms", 500)
	v.SetDefault("engine.breaker_threshold", 5)
	v.SetDefault("engine.breaker_cooldown_ms", 15000)
	v.SetDefault("engine.default_language", "auto")
	v.SetDefault("engine.quality_threshold", 0.001)
	v.SetDefault("engine.sample_rate", 16000)
	v.SetDefault("engine.flush_remainder", false)
	v.SetDefault("backend.provider", "fake")
	v.SetDefault("phone.enabled", false)
	v.SetDefault("phone.addr", ":8081")
	v.SetDefault("phone.voice_path", "/voice")
	v.SetDefault("phone.ws_path", "/media")
	v.SetDefault("phone.status_callback_path", "/status")
	v.SetDefault("lexicon.path", "")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)
	cfg.Backend.Settings = expandSettings(cfg.Backend.Settings)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.Provider) == "" {
		return fmt.Errorf("backend.provider is required")
	}
	if c.Engine.ChunkSeconds <= 0 {
		return fmt.Errorf("engine.chunk_seconds must be positive")
	}
	if c.Engine.QualityThreshold < 0 || c.Engine.QualityThreshold > 1 {
		return fmt.Errorf("engine.quality_threshold must be within [0,1]")
	}
	if c.Engine.SampleRate <= 0 {
		return fmt.Errorf("engine.sample_rate must be positive")
	}
	if c.Phone.Enabled && strings.TrimSpace(c.Phone.AuthToken) == "" {
		return fmt.Errorf("phone.auth_token is required when the phone gateway is enabled")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
