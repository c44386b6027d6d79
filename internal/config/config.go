package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeSimulated = "simulated"
	ModeLive      = "live"
)

type StrategyConfig struct {
	Enabled         bool     `yaml:"enabled"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	Symbols         []string `yaml:"symbols"`
	BaseQuantity    float64  `yaml:"base_quantity"`
	MaxPositions    int      `yaml:"max_positions"`
	MaxPositionSize float64  `yaml:"max_position_size"`
}

type WithdrawalConfig struct {
	MinAmountUSD         float64            `yaml:"min_amount_usd"`
	AssetRatesUSD        map[string]float64 `yaml:"asset_rates_usd"`
	DrainIntervalSeconds int                `yaml:"drain_interval_seconds"`
	MaxRetries           int                `yaml:"max_retries"`
	RetryBackoffSeconds  int                `yaml:"retry_backoff_seconds"`
	WalletRef            string             `yaml:"wallet_ref"`
	TargetAddress        string             `yaml:"target_address"`
	Asset                string             `yaml:"asset"`
	Network              string             `yaml:"network"`
	DestinationTag       string             `yaml:"destination_tag"`
	MinProfit            float64            `yaml:"min_profit"`
	ConversionRate       float64            `yaml:"conversion_rate"`
}

type Config struct {
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Quotes struct {
		Mode              string  `yaml:"mode"` // simulated | rest | stream
		RESTEndpoint      string  `yaml:"rest_endpoint"`
		WSEndpoint        string  `yaml:"ws_endpoint"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		SecondaryEndpoint string  `yaml:"secondary_endpoint"` // arbitrage comparison venue
	} `yaml:"quotes"`
	Execution struct {
		Mode        string  `yaml:"mode"` // simulated | live
		Endpoint    string  `yaml:"endpoint"`
		SlippagePct float64 `yaml:"slippage_pct"`
		APIKey      string  `yaml:"-"` // env only, never in the file
		APISecret   string  `yaml:"-"`
	} `yaml:"execution"`
	Transfer struct {
		Mode     string `yaml:"mode"` // simulated | live, never mixed
		Endpoint string `yaml:"endpoint"`
	} `yaml:"transfer"`
	Withdrawal WithdrawalConfig `yaml:"withdrawal"`
	Strategies struct {
		Arbitrage            StrategyConfig `yaml:"arbitrage"`
		Momentum             StrategyConfig `yaml:"momentum"`
		Grid                 StrategyConfig `yaml:"grid"`
		DefiYield            StrategyConfig `yaml:"defi_yield"`
		Web3Bot              StrategyConfig `yaml:"web3_bot"`
		SpreadThresholdPct   float64        `yaml:"spread_threshold_pct"`
		StatusIntervalSecond int            `yaml:"status_interval_seconds"`
	} `yaml:"strategies"`
}

// Load reads the yaml config and overlays secrets from the environment
// (optionally a .env file). Validation errors are collected so operators see
// every problem at once.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Secrets live in the environment, never in the config file.
	_ = godotenv.Load()
	cfg.Execution.APIKey = os.Getenv("EXCHANGE_API_KEY")
	cfg.Execution.APISecret = os.Getenv("EXCHANGE_API_SECRET")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []string

	switch c.Transfer.Mode {
	case "", ModeSimulated, ModeLive:
	default:
		errs = append(errs, fmt.Sprintf("transfer.mode must be %q or %q, got %q", ModeSimulated, ModeLive, c.Transfer.Mode))
	}
	switch c.Execution.Mode {
	case "", ModeSimulated, ModeLive:
	default:
		errs = append(errs, fmt.Sprintf("execution.mode must be %q or %q, got %q", ModeSimulated, ModeLive, c.Execution.Mode))
	}
	if c.Execution.Mode == ModeLive {
		if c.Execution.APIKey == "" {
			errs = append(errs, "EXCHANGE_API_KEY must be set for live execution")
		}
		if c.Execution.APISecret == "" {
			errs = append(errs, "EXCHANGE_API_SECRET must be set for live execution")
		}
		if c.Execution.Endpoint == "" {
			errs = append(errs, "execution.endpoint must be set for live execution")
		}
	}
	if c.Withdrawal.MinAmountUSD < 0 {
		errs = append(errs, "withdrawal.min_amount_usd must not be negative")
	}
	if c.Withdrawal.TargetAddress == "" {
		errs = append(errs, "withdrawal.target_address must be set")
	}
	if c.Withdrawal.MaxRetries < 0 {
		errs = append(errs, "withdrawal.max_retries must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Path == "" {
		c.Storage.Path = "profitpilot.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Quotes.Mode == "" {
		c.Quotes.Mode = ModeSimulated
	}
	if c.Execution.Mode == "" {
		c.Execution.Mode = ModeSimulated
	}
	if c.Transfer.Mode == "" {
		c.Transfer.Mode = ModeSimulated
	}
	if c.Withdrawal.DrainIntervalSeconds <= 0 {
		c.Withdrawal.DrainIntervalSeconds = 15
	}
	if c.Withdrawal.MaxRetries == 0 {
		c.Withdrawal.MaxRetries = 3
	}
	if c.Withdrawal.RetryBackoffSeconds <= 0 {
		c.Withdrawal.RetryBackoffSeconds = 60
	}
	if c.Withdrawal.Asset == "" {
		c.Withdrawal.Asset = "USDT"
	}
	if c.Withdrawal.ConversionRate <= 0 {
		c.Withdrawal.ConversionRate = 1
	}
	if c.Strategies.StatusIntervalSecond <= 0 {
		c.Strategies.StatusIntervalSecond = 60
	}
}

// DrainInterval returns the drain loop interval as a duration.
func (c *Config) DrainInterval() time.Duration {
	return time.Duration(c.Withdrawal.DrainIntervalSeconds) * time.Second
}

// RetryBackoff returns the withdrawal retry backoff as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Withdrawal.RetryBackoffSeconds) * time.Second
}
