package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dialect selects the payload shape the model endpoint expects. It is
// resolved once at configuration time; components never inspect the model
// identifier to pick a shape.
type Dialect string

const (
	// DialectMessages is the chat-style shape: a structured message list in,
	// a content-block list out.
	DialectMessages Dialect = "messages"
	// DialectCompletion is the plain completion shape: flat prompt plus
	// generation config in, a results list out.
	DialectCompletion Dialect = "completion"
)

// Config holds the application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Model  ModelConfig  `mapstructure:"model"`
	Store  StoreConfig  `mapstructure:"store"`
	CORS   CORSConfig   `mapstructure:"cors"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// ModelConfig holds the model endpoint configuration.
type ModelConfig struct {
	Provider       Dialect       `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ID             string        `mapstructure:"id"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	TopP           float64       `mapstructure:"top_p"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

// StoreConfig holds the conversation store configuration.
type StoreConfig struct {
	Path              string `mapstructure:"path"`
	ConversationTable string `mapstructure:"conversation_table"`
	FAQTable          string `mapstructure:"faq_table"`
}

// CORSConfig holds the cross-origin policy. Origins, methods and headers
// are either "*" or a comma-separated explicit list.
type CORSConfig struct {
	Origins          string `mapstructure:"origins"`
	Methods          string `mapstructure:"methods"`
	Headers          string `mapstructure:"headers"`
	AllowCredentials bool   `mapstructure:"allow_credentials"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AllowedOrigins returns the parsed origin list.
func (c CORSConfig) AllowedOrigins() []string {
	return splitList(c.Origins)
}

// Wildcard reports whether any origin is allowed.
func (c CORSConfig) Wildcard() bool {
	origins := c.AllowedOrigins()
	return len(origins) == 1 && origins[0] == "*"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load loads the configuration from config.yaml (or CONFIG_PATH) with
// environment variable overrides such as SERVER_PORT and MODEL_API_KEY.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("model.provider", string(DialectCompletion))
	// Empty defaults so AutomaticEnv can surface env-only values on Unmarshal.
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.id", "titan-text-express-v1")
	v.SetDefault("model.max_tokens", 2000)
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.top_p", 0.9)
	v.SetDefault("model.connect_timeout", 5*time.Second)
	v.SetDefault("model.read_timeout", 45*time.Second)
	v.SetDefault("store.path", "gateway.db")
	v.SetDefault("store.conversation_table", "conversations")
	v.SetDefault("store.faq_table", "faqs")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("cors.methods", "*")
	v.SetDefault("cors.headers", "*")
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	switch config.Model.Provider {
	case DialectMessages, DialectCompletion:
	default:
		return nil, fmt.Errorf("unknown model provider %q (want %q or %q)",
			config.Model.Provider, DialectMessages, DialectCompletion)
	}

	return &config, nil
}
