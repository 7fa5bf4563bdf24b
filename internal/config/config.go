// Package config resolves runtime settings from flags, environment, an
// optional config file and the roster file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"kusanagi/internal/query"
)

const (
	ApplicationName = "kusanagi"
	EnvPrefix       = "KUSANAGI"
)

// Keys shared by viper, the config file and the environment
// (KUSANAGI_<KEY> upper-cased).
const (
	KeyBackend          = "backend"
	KeyModel            = "model"
	KeyOllamaURL        = "ollama_url"
	KeyOpenAIBaseURL    = "openai_base_url"
	KeyOpenAIAPIKey     = "openai_api_key"
	KeyTemperature      = "temperature"
	KeyTimeout          = "timeout"
	KeyBreakerThreshold = "breaker_threshold"
	KeyBreakerRecovery  = "breaker_recovery"
	KeyScriptedLatency  = "scripted_latency"
	KeyRoster           = "roster"
	KeyDocument         = "document"
	KeyLogFile          = "log_file"
	KeyLogLevel         = "log_level"
	KeyAltScreen        = "alt_screen"
)

type Config struct {
	Backend          string        `mapstructure:"backend" validate:"required,oneof=ollama openai scripted"`
	Model            string        `mapstructure:"model" validate:"required"`
	OllamaURL        string        `mapstructure:"ollama_url" validate:"required,url"`
	OpenAIBaseURL    string        `mapstructure:"openai_base_url" validate:"omitempty,url"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	Temperature      float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"min=1s"`
	BreakerThreshold int           `mapstructure:"breaker_threshold" validate:"gte=1,lte=10"`
	BreakerRecovery  time.Duration `mapstructure:"breaker_recovery" validate:"min=1s"`
	ScriptedLatency  time.Duration `mapstructure:"scripted_latency" validate:"gte=0"`
	RosterPath       string        `mapstructure:"roster"`
	DocumentPath     string        `mapstructure:"document"`
	LogFile          string        `mapstructure:"log_file"`
	LogLevel         string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	AltScreen        bool          `mapstructure:"alt_screen"`

	Roster   []query.Participant `mapstructure:"-" validate:"min=1,dive"`
	Document string              `mapstructure:"-"`
}

// SetDefaults registers the baseline values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, "ollama")
	v.SetDefault(KeyModel, "llama3.2:3b")
	v.SetDefault(KeyOllamaURL, query.DefaultOllamaAPI)
	v.SetDefault(KeyOpenAIBaseURL, "")
	v.SetDefault(KeyOpenAIAPIKey, "")
	v.SetDefault(KeyTemperature, 0.2)
	v.SetDefault(KeyTimeout, 120*time.Second)
	v.SetDefault(KeyBreakerThreshold, 3)
	v.SetDefault(KeyBreakerRecovery, 30*time.Second)
	v.SetDefault(KeyScriptedLatency, 800*time.Millisecond)
	v.SetDefault(KeyRoster, "")
	v.SetDefault(KeyDocument, "")
	v.SetDefault(KeyLogFile, filepath.Join(Dir(), ApplicationName+".log"))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAltScreen, true)
}

// Dir is the per-user config directory, following XDG_CONFIG_HOME.
func Dir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "." + ApplicationName
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Clean(filepath.Join(configHome, ApplicationName))
}

// Prepare wires environment lookup and the config file into v. A missing
// config file is not an error; explicitFile is read when set.
func Prepare(v *viper.Viper, explicitFile string) error {
	_ = godotenv.Load()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	} else {
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load decodes v, reads the roster and document, and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.Backend == "openai" && cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.RosterPath != "" {
		roster, err := LoadRoster(cfg.RosterPath)
		if err != nil {
			return nil, err
		}
		cfg.Roster = roster
	} else {
		cfg.Roster = DefaultRoster()
	}

	if cfg.DocumentPath != "" {
		data, err := os.ReadFile(cfg.DocumentPath)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		cfg.Document = string(data)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its field rules and reports every violation.
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}
