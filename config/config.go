package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/config.yaml"

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	LoanSourceFile = "file"
	LoanSourceAPI  = "api"
)

type ServerConfig struct {
	Port                int `yaml:"port"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For
	// header is honoured. Empty means the peer address is the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// OllamaConfig points at the locally hosted model server.
type OllamaConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
}

type RiskConfig struct {
	Enabled             bool    `yaml:"enabled"`
	RulesPath           string  `yaml:"rules_path"`
	// ReferenceAnnualRate is the yearly rate, in percent, used to estimate
	// installments since loan records carry no rate of their own.
	ReferenceAnnualRate float64 `yaml:"reference_annual_rate"`
}

type LoansConfig struct {
	Source     string `yaml:"source"`
	FilePath   string `yaml:"file_path"`
	APIBaseURL string `yaml:"api_base_url"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

type RateLimitConfig struct {
	Capacity      int `yaml:"capacity"`
	RefillSeconds int `yaml:"refill_seconds"`
}

// AppConfig is the main config struct that holds all configs.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LogConfig       `yaml:"logging"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Risk      RiskConfig      `yaml:"risk"`
	Loans     LoansConfig     `yaml:"loans"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ReadTimeout returns the server read timeout.
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c OllamaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c RateLimitConfig) Refill() time.Duration {
	return time.Duration(c.RefillSeconds) * time.Second
}

func assignDefaultConfigValues(cfg *AppConfig) *AppConfig {
	// server
	cfg.Server.Port = GetEnvOrDefaultAsInt("SERVER_PORT", orInt(cfg.Server.Port, 8000))
	cfg.Server.ReadTimeoutSeconds = orInt(cfg.Server.ReadTimeoutSeconds, 15)
	// model calls are slow; the write timeout has to cover them
	cfg.Server.WriteTimeoutSeconds = orInt(cfg.Server.WriteTimeoutSeconds, 180)

	cfg.Logging.Level = GetEnvOrDefaultAsString("LOGGING_LEVEL", orString(cfg.Logging.Level, "info"))

	// ollama
	cfg.Ollama.BaseURL = GetEnvOrDefaultAsString("OLLAMA_BASE_URL", orString(cfg.Ollama.BaseURL, "http://localhost:11434"))
	cfg.Ollama.Model = GetEnvOrDefaultAsString("OLLAMA_MODEL", orString(cfg.Ollama.Model, "deepseek-r1:1.5b"))
	cfg.Ollama.TimeoutSeconds = GetEnvOrDefaultAsInt("OLLAMA_TIMEOUT_SECONDS", orInt(cfg.Ollama.TimeoutSeconds, 120))

	// risk
	cfg.Risk.RulesPath = GetEnvOrDefaultAsString("RISK_RULES_PATH", orString(cfg.Risk.RulesPath, "configs/rules.yaml"))
	cfg.Risk.Enabled = GetEnvOrDefaultAsBool("RISK_ENABLED", cfg.Risk.Enabled)

	// loans
	cfg.Loans.Source = GetEnvOrDefaultAsString("LOANS_SOURCE", orString(cfg.Loans.Source, LoanSourceFile))
	cfg.Loans.FilePath = GetEnvOrDefaultAsString("LOANS_FILE_PATH", orString(cfg.Loans.FilePath, "testdata/loans.json"))
	cfg.Loans.APIBaseURL = GetEnvOrDefaultAsString("LOANS_API_BASE_URL", cfg.Loans.APIBaseURL)

	// store
	cfg.Store.Driver = GetEnvOrDefaultAsString("STORE_DRIVER", orString(cfg.Store.Driver, StoreMemory))
	cfg.Store.DSN = GetEnvOrDefaultAsString("STORE_DSN", cfg.Store.DSN)

	// redis
	cfg.Redis.Enabled = GetEnvOrDefaultAsBool("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = GetEnvOrDefaultAsString("REDIS_ADDR", orString(cfg.Redis.Addr, "localhost:6379"))
	cfg.Redis.Password = GetEnvOrDefaultAsString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = GetEnvOrDefaultAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TTLMinutes = GetEnvOrDefaultAsInt("REDIS_TTL_MINUTES", orInt(cfg.Redis.TTLMinutes, 60))

	// rate limit
	cfg.RateLimit.Capacity = orInt(cfg.RateLimit.Capacity, 5)
	cfg.RateLimit.RefillSeconds = orInt(cfg.RateLimit.RefillSeconds, 60)

	return cfg
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Default returns the configuration used when no config file exists.
func Default() *AppConfig {
	return assignDefaultConfigValues(&AppConfig{})
}

// LoadFromConfigFilePath loads and parses a config file into AppConfig.
func LoadFromConfigFilePath(configPath string) (*AppConfig, error) {
	// #nosec G304 -- path comes from operator-configured CONFIG_PATH.
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	defaultCfg := assignDefaultConfigValues(&cfg)

	if err := validateConfig(defaultCfg); err != nil {
		return nil, err
	}

	return defaultCfg, nil
}

// LoadFromConfig loads the file named by CONFIG_PATH, falling back to
// configs/config.yaml.
func LoadFromConfig() (*AppConfig, error) {
	configPath := GetEnvOrDefaultAsString("CONFIG_PATH", defaultConfigPath)

	cfg, err := LoadFromConfigFilePath(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %s", configPath)
	}

	return cfg, nil
}

func validateConfig(cfg *AppConfig) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	for _, p := range cfg.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return errors.Errorf("server.trusted_proxies: %q is neither an IP nor a CIDR", p)
			}
		}
	}
	if cfg.Ollama.Model == "" {
		return errors.New("ollama.model is required")
	}
	if cfg.Ollama.TimeoutSeconds <= 0 {
		return errors.Errorf("ollama.timeout_seconds must be positive, got %d", cfg.Ollama.TimeoutSeconds)
	}
	if cfg.Ollama.Temperature < 0 || cfg.Ollama.Temperature > 2 {
		return errors.Errorf("ollama.temperature must be between 0 and 2, got %.2f", cfg.Ollama.Temperature)
	}
	if cfg.Risk.ReferenceAnnualRate < 0 {
		return errors.Errorf("risk.reference_annual_rate must not be negative, got %.2f", cfg.Risk.ReferenceAnnualRate)
	}

	switch cfg.Loans.Source {
	case LoanSourceFile:
		if cfg.Loans.FilePath == "" {
			return errors.New("loans.file_path is required for the file source")
		}
	case LoanSourceAPI:
		if cfg.Loans.APIBaseURL == "" {
			return errors.New("loans.api_base_url is required for the api source")
		}
	default:
		return errors.Errorf("loans.source must be %q or %q, got %q", LoanSourceFile, LoanSourceAPI, cfg.Loans.Source)
	}

	switch cfg.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if cfg.Store.DSN == "" {
			return errors.Errorf("store.dsn is required for the %s driver", cfg.Store.Driver)
		}
	default:
		return errors.Errorf("store.driver must be one of memory, sqlite, postgres, got %q", cfg.Store.Driver)
	}

	if cfg.RateLimit.Capacity <= 0 {
		return errors.Errorf("rate_limit.capacity must be positive, got %d", cfg.RateLimit.Capacity)
	}

	return nil
}

// GetEnvOrDefaultAsInt returns the value of the given env variable
// as an int or the default value if not set or invalid.
func GetEnvOrDefaultAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvOrDefaultAsBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvOrDefaultAsString(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return defaultVal
}
