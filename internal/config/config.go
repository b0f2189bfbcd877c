package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Registration RegistrationConfig `mapstructure:"registration"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Log          LogConfig          `mapstructure:"log"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// LLMConfig selects the chat-completion provider. Provider is one of
// openai, ark, qwen or langchain.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	TextURL     string        `mapstructure:"text_url"`
	ImageURL    string        `mapstructure:"image_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FallbackURL string        `mapstructure:"fallback_url"`
}

type KnowledgeConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Path     string        `mapstructure:"path"`
	Dir      string        `mapstructure:"dir"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
}

type AuthConfig struct {
	AdminSecret string        `mapstructure:"admin_secret"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

type RegistrationConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	ToEmail    string        `mapstructure:"to_email"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type StorageConfig struct {
	Type        string `mapstructure:"type"`
	DataDir     string `mapstructure:"data_dir"`
	CacheSize   int    `mapstructure:"cache_size"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisURL    string `mapstructure:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.mistral.ai/v1")
	v.SetDefault("llm.model", "mistral-large-latest")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.timeout", 2*time.Minute)

	v.SetDefault("gemini.text_url", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent")
	v.SetDefault("gemini.image_url", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-preview-image-generation:generateContent")
	v.SetDefault("gemini.fallback_url", "https://image.pollinations.ai/prompt/")
	v.SetDefault("gemini.timeout", time.Minute)

	v.SetDefault("knowledge.base_url", "http://localhost:8080")
	v.SetDefault("knowledge.path", "/knowledge")
	v.SetDefault("knowledge.cache_ttl", 5*time.Minute)
	v.SetDefault("knowledge.timeout", 10*time.Second)

	v.SetDefault("retry.max_attempts", 10)
	v.SetDefault("retry.initial_delay", time.Second)

	v.SetDefault("auth.session_ttl", 24*time.Hour)

	v.SetDefault("registration.to_email", "walter@ledmkt.com")
	v.SetDefault("registration.timeout", 15*time.Second)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("storage.type", "disk")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.cache_size", 64)
	v.SetDefault("storage.sqlite_path", "./data/ledchat.db")
	v.SetDefault("storage.redis_prefix", "ledchat:")
}

// Load reads the YAML file at configPath. An empty path loads defaults and
// environment only.
func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}

	// 配置文件优先，其次是常用环境变量
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstEnv("MISTRAL_API_KEY", "OPENAI_API_KEY", "ARK_API_KEY", "DASHSCOPE_API_KEY")
	}
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_AI_API_KEY")
	}
	if c.Registration.WebhookURL == "" {
		c.Registration.WebhookURL = os.Getenv("ZAPIER_WEBHOOK_URL")
	}
	if c.Auth.AdminSecret == "" {
		c.Auth.AdminSecret = os.Getenv("LEDCHAT_ADMIN_SECRET")
	}

	cfg = c
	return c, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func Get() *Config {
	return cfg
}
