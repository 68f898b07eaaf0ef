package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
)

// Config represents the application configuration. Every recognized field
// is enumerated here; unknown keys in the config file are ignored.
type Config struct {
	App      AppConfig       `mapstructure:"app"`
	Server   ServerConfig    `mapstructure:"server"`
	Store    StoreConfig     `mapstructure:"store"`
	Polling  PollingConfig   `mapstructure:"polling"`
	Accounts []AccountConfig `mapstructure:"accounts"`
	Voice    VoiceConfig     `mapstructure:"voice"`
	AI       AIConfig        `mapstructure:"ai"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name  string `mapstructure:"name"`
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type PollingConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	MisfireGrace time.Duration `mapstructure:"misfire_grace"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// AccountConfig describes one mailbox: its identity, inbound retrieval
// endpoint and outbound SMTP endpoint.
type AccountConfig struct {
	Email       string `mapstructure:"email"`
	Password    string `mapstructure:"password"`
	DisplayName string `mapstructure:"display_name"`
	ServiceTag  string `mapstructure:"service_tag"`

	InboundType string `mapstructure:"inbound_type"` // imap, imaps, pop3, pop3s
	InboundHost string `mapstructure:"inbound_host"`
	InboundPort int    `mapstructure:"inbound_port"`
	IMAPFolder  string `mapstructure:"imap_folder"`

	OutboundHost string `mapstructure:"outbound_host"`
	OutboundPort int    `mapstructure:"outbound_port"`
	OutboundTLS  bool   `mapstructure:"outbound_tls"`

	DKIMSelector string `mapstructure:"dkim_selector"`
}

// VoiceConfig is the per-deployment voice injected into the reply prompt.
type VoiceConfig struct {
	CompanyName        string `mapstructure:"company_name"`
	CompanyDescription string `mapstructure:"company_description"`
	Services           string `mapstructure:"services"`
	Tone               string `mapstructure:"tone"`
	Signature          string `mapstructure:"signature"`
}

type AIConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "replykit")
	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8002)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("store.path", "replykit.db")
	v.SetDefault("polling.interval", 2*time.Minute)
	v.SetDefault("polling.misfire_grace", 30*time.Second)
	v.SetDefault("polling.dial_timeout", 5*time.Second)
	v.SetDefault("voice.tone", "professional")
	v.SetDefault("ai.model", "gpt-4")
	v.SetDefault("ai.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("metrics.enabled", true)
}

// Load initializes the configuration with hot reload support.
func Load(configPath string) error {
	var err error
	once.Do(func() {
		v := viper.New()
		v.SetConfigType("yaml")
		setDefaults(v)

		if ext := filepath.Ext(configPath); ext == ".yaml" || ext == ".yml" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.AddConfigPath(configPath)
		}
		if err = v.ReadInConfig(); err != nil {
			// Defaults plus environment variables are enough to run.
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !os.IsNotExist(err) {
				err = fmt.Errorf("failed to read config: %w", err)
				return
			}
			err = nil
		}

		v.SetEnvPrefix("REPLYKIT")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}

		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			mu.Lock()
			defer mu.Unlock()

			newCfg := &Config{}
			if err := v.Unmarshal(newCfg); err != nil {
				fmt.Printf("Failed to reload config: %v\n", err)
				return
			}
			cfg = newCfg
		})
	})

	return err
}

// Get returns the current configuration (thread-safe).
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadFromFile loads configuration from a specific file (useful for testing).
func LoadFromFile(configFile string) error {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// MustLoad loads configuration and panics on error.
func MustLoad(configPath string) {
	if err := Load(configPath); err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
}

// GetServerAddr returns the server listen address.
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if running in production mode.
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}
