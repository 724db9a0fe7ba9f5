package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Vision      VisionConfig              `json:"vision"`
	OCR         OCRConfig                 `json:"ocr"`
	Speech      SpeechConfig              `json:"speech"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Quota       QuotaConfig               `json:"quota"`
	Log         LogConfig                 `json:"log"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress       string `json:"server_address"`
	APIKey              string `json:"api_key"`
	Database            string `json:"database"`
	StageTimeoutSeconds int    `json:"stage_timeout_seconds"`
	SessionIdleMinutes  int    `json:"session_idle_minutes"`
	MaxUploadMB         int    `json:"max_upload_mb"`
	MaxImageDimension   int    `json:"max_image_dimension"`
	QueueSize           int    `json:"queue_size"`
}

// VisionConfig selects the provider used for image analysis and summarization.
type VisionConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

type OCRConfig struct {
	Languages   []string `json:"languages"`
	TessdataDir string   `json:"tessdata_dir"`
}

type SpeechConfig struct {
	Provider string `json:"provider"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
	Engine   string `json:"engine"`
	Region   string `json:"region"`
	Model    string `json:"model"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// QuotaConfig caps collaborator calls per window. Zero disables the limit.
type QuotaConfig struct {
	CallsPerWindow int `json:"calls_per_window"`
	WindowSeconds  int `json:"window_seconds"`
}

type LogConfig struct {
	FilePath   string `json:"file_path"`
	Production bool   `json:"production"`
}

const (
	defaultServerAddress     = ":8090"
	defaultStageTimeout      = 60
	defaultSessionIdle       = 30
	defaultMaxUploadMB       = 10
	defaultMaxImageDimension = 2048
	defaultQueueSize         = 4
	defaultSpeechLanguage    = "en"
	defaultSpeechProvider    = "polly"
	defaultQuotaWindow       = 60
	defaultLogPath           = "./data/logs/visionaid.log"
)

// Load reads configuration from the provided path (defaults to config.json).
// A .env file next to the working directory is loaded first so that secrets
// can be supplied through the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dbCfg, ok := cfg.Databases["sqlite3"]; ok && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) {
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases["sqlite3"] = dbCfg
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	for name, prov := range c.Providers {
		key := "VISIONAID_" + strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			prov.APIKey = v
			c.Providers[name] = prov
		}
	}
	if v := os.Getenv("VISIONAID_API_KEY"); v != "" {
		c.BasicConfig.APIKey = v
	}
	if v := os.Getenv("VISIONAID_DB"); v != "" {
		c.BasicConfig.Database = v
	}
	if v := os.Getenv("VISIONAID_ADDR"); v != "" {
		c.BasicConfig.ServerAddress = v
	}
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = defaultServerAddress
	}
	if b.StageTimeoutSeconds <= 0 {
		b.StageTimeoutSeconds = defaultStageTimeout
	}
	if b.SessionIdleMinutes <= 0 {
		b.SessionIdleMinutes = defaultSessionIdle
	}
	if b.MaxUploadMB <= 0 {
		b.MaxUploadMB = defaultMaxUploadMB
	}
	if b.MaxImageDimension <= 0 {
		b.MaxImageDimension = defaultMaxImageDimension
	}
	if b.QueueSize <= 0 {
		b.QueueSize = defaultQueueSize
	}
	if c.Speech.Provider == "" {
		c.Speech.Provider = defaultSpeechProvider
	}
	if c.Speech.Language == "" {
		c.Speech.Language = defaultSpeechLanguage
	}
	if c.Quota.CallsPerWindow > 0 && c.Quota.WindowSeconds <= 0 {
		c.Quota.WindowSeconds = defaultQuotaWindow
	}
	if c.Log.FilePath == "" {
		c.Log.FilePath = defaultLogPath
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
}

func (c *Config) validate() error {
	provider := strings.TrimSpace(c.Vision.Provider)
	if provider == "" {
		return fmt.Errorf("vision.provider must be configured")
	}
	if _, ok := c.Providers[provider]; !ok {
		return fmt.Errorf("vision provider %s not configured", provider)
	}
	switch c.Speech.Provider {
	case "polly":
	case "openai":
		if _, ok := c.Providers["openai"]; !ok {
			return fmt.Errorf("speech provider openai requires providers.openai")
		}
	default:
		return fmt.Errorf("unsupported speech provider: %s", c.Speech.Provider)
	}
	if db := c.BasicConfig.Database; db != "" {
		if _, ok := c.Databases[db]; !ok {
			return fmt.Errorf("database config for %s not found", db)
		}
	}
	return nil
}

// Provider returns the named provider entry.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}
