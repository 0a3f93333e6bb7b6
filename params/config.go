package params

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Node configures the process itself.
type Node struct {
	ListenAddr  string `yaml:"listen_addr"`
	DataDir     string `yaml:"data_dir"`
	LogFile     string `yaml:"log_file"`
	EnableAgent bool   `yaml:"enable_agent"`
}

// Authorities carries the two governing identities used to initialize a fresh
// ledger (hex addresses).
type Authorities struct {
	Vault   string `yaml:"vault"`
	Backend string `yaml:"backend"`
}

// Feed configures the price-quoting gateway clients.
type Feed struct {
	// Stock market data (Alpaca-style REST)
	StockBaseURL   string `yaml:"stock_base_url"`
	StockAPIKey    string `yaml:"stock_api_key"`
	StockAPISecret string `yaml:"stock_api_secret"`

	// Collateral coin quotes (OKX-style signed REST)
	QuoteBaseURL    string `yaml:"quote_base_url"`
	QuoteAPIKey     string `yaml:"quote_api_key"`
	QuoteAPISecret  string `yaml:"quote_api_secret"`
	QuotePassphrase string `yaml:"quote_passphrase"`
	QuoteProjectID  string `yaml:"quote_project_id"`

	CacheTTL          time.Duration `yaml:"cache_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// Agent configures the settlement agent loop.
type Agent struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PriceMaxAge  time.Duration `yaml:"price_max_age"`
}

// Config is the full node configuration.
type Config struct {
	Node        Node        `yaml:"node"`
	Authorities Authorities `yaml:"authorities"`
	Feed        Feed        `yaml:"feed"`
	Agent       Agent       `yaml:"agent"`
}

// Default returns devnet defaults.
func Default() Config {
	return Config{
		Node: Node{
			ListenAddr:  ":8080",
			DataDir:     "data/ledger",
			LogFile:     "data/node.log",
			EnableAgent: false,
		},
		Feed: Feed{
			StockBaseURL:      "https://paper-api.alpaca.markets",
			QuoteBaseURL:      "https://www.okx.com",
			CacheTTL:          5 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Agent: Agent{
			PollInterval: 5 * time.Second,
			PriceMaxAge:  30 * time.Second,
		},
	}
}

// LoadFile overlays a YAML config file onto defaults. A missing file is not an
// error; a malformed one is.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load resolves configuration with priority ENV > .env file > YAML > defaults.
func Load(yamlPath, envPath string) (Config, error) {
	cfg, err := LoadFile(yamlPath)
	if err != nil {
		return cfg, err
	}

	// .env is optional.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Node.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.Node.DataDir, "DATA_DIR")
	setString(&cfg.Node.LogFile, "LOG_FILE")
	setBool(&cfg.Node.EnableAgent, "ENABLE_AGENT")

	setString(&cfg.Authorities.Vault, "VAULT_AUTHORITY")
	setString(&cfg.Authorities.Backend, "BACKEND_AUTHORITY")

	setString(&cfg.Feed.StockBaseURL, "ALPACA_API_BASE_URL")
	setString(&cfg.Feed.StockAPIKey, "ALPACA_API_KEY_ID")
	setString(&cfg.Feed.StockAPISecret, "ALPACA_API_SECRET_KEY")
	setString(&cfg.Feed.QuoteBaseURL, "OKX_API_BASE_URL")
	setString(&cfg.Feed.QuoteAPIKey, "OKX_API_KEY")
	setString(&cfg.Feed.QuoteAPISecret, "OKX_SECRET_KEY")
	setString(&cfg.Feed.QuotePassphrase, "OKX_API_PASSPHRASE")
	setString(&cfg.Feed.QuoteProjectID, "OKX_PROJECT_ID")
	setDurationMS(&cfg.Feed.CacheTTL, "FEED_CACHE_TTL_MS")

	setDurationMS(&cfg.Agent.PollInterval, "AGENT_POLL_INTERVAL_MS")
	setDurationMS(&cfg.Agent.PriceMaxAge, "AGENT_PRICE_MAX_AGE_MS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true"
	}
}

func setDurationMS(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
}
