package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/clobcore/matching-engine/internal/domain/amount"
)

// MustLoad loads the configuration from environment variables and .env file.
func MustLoad[T any](cfg T) {
	_ = godotenv.Load() // Load environment variables from .env file

	env.Must(cfg, env.Parse(cfg))
}

// Load loads the configuration from environment variables and .env file.
func Load[T any](cfg T) error {
	if err := godotenv.Load(); err != nil {
		return err // Return error if .env file loading fails
	}

	if err := env.Parse(cfg); err != nil {
		return err // Return error if environment variable parsing fails
	}

	return nil // Return nil if everything is successful
}

// Config holds the configuration for the application
type Config struct {
	CommandKafka `envPrefix:"COMMAND_KAFKA_"` // command-queue Kafka configuration
	AuditKafka   `envPrefix:"AUDIT_KAFKA_"`   // mandatory audit Kafka configuration
	RedisConfig  `envPrefix:"REDIS_"`         // snapshot store Redis configuration
	NATSConfig   `envPrefix:"NATS_"`          // best-effort market-data configuration
	EngineConfig `envPrefix:"ENGINE_"`        // per-symbol engine tuning

	// SymbolsFile points at a YAML document describing every traded
	// symbol's tick size, lot size, min notional, max order quantity
	// and protection band, plus the named risk tiers. Loaded
	// separately from LoadMarketConfig since its shape is a list, not
	// a flat env-var record.
	SymbolsFile string `env:"SYMBOLS_FILE" envDefault:"symbols.yaml"`
}

// CommandKafka holds the Kafka settings for the per-symbol inbound
// command queue.
type CommandKafka struct {
	Topic   string   `env:"TOPIC,required"`
	GroupID string   `env:"GROUP_ID" envDefault:"default_group"`
	Brokers []string `env:"BROKER,required"`
}

// AuditKafka holds the Kafka settings for the mandatory, ordered audit
// event stream.
type AuditKafka struct {
	Topic   string   `env:"TOPIC,required"`
	Brokers []string `env:"BROKER,required"`
}

// NATSConfig holds the connection settings for the best-effort
// market-data fan-out.
type NATSConfig struct {
	URL string `env:"URL" envDefault:"nats://127.0.0.1:4222"`
}

// EngineConfig holds the per-symbol tuning knobs from spec §9's
// recognized `engine` options.
type EngineConfig struct {
	PerSymbolQueueDepth int     `env:"PER_SYMBOL_QUEUE_DEPTH" envDefault:"4096"`
	EventRingDepth      int     `env:"EVENT_RING_DEPTH" envDefault:"8192"`
	RateLimitDefault    float64 `env:"RATE_LIMIT_DEFAULT" envDefault:"50"`
	SelfTradePolicy     string  `env:"SELF_TRADE_POLICY" envDefault:"cancel_maker"`
	SessionStart        string  `env:"SESSION_START" envDefault:"00:00"`
	SessionEnd          string  `env:"SESSION_END" envDefault:"23:59"`
	SessionTimezone     string  `env:"SESSION_TIMEZONE" envDefault:"UTC"`
}

// RedisConfig holds the configuration for Redis client.
type RedisConfig struct {
	Addrs          string `env:"ADDRESS,required"` // Comma-separated list of Redis addresses
	Password       string `env:"PASSWORD" envDefault:""`
	Username       string `env:"USERNAME" envDefault:""`
	DB             int    `env:"DB" envDefault:"0"`
	DefaultChannel string `env:"DEFAULT_CHANNEL" envDefault:"exchange"`
}

// SymbolConfig is one traded symbol's market parameters, as recognized
// by spec §9's `symbols` option.
type SymbolConfig struct {
	Symbol            string `yaml:"symbol"`
	TickSize          string `yaml:"tick_size"`
	LotSize           string `yaml:"lot_size"`
	MinNotional       string `yaml:"min_notional"`
	MaxOrderQty       string `yaml:"max_order_qty"`
	ProtectionBandBps int64  `yaml:"protection_band_bps"`
}

// RiskTierConfig is one named risk tier, as recognized by spec §9's
// `risk.tiers` option.
type RiskTierConfig struct {
	Name            string  `yaml:"name"`
	MaxPosition     string  `yaml:"max_position"`
	MaxDailyLoss    string  `yaml:"max_daily_loss"`
	MaxOrderSize    string  `yaml:"max_order_size"`
	MaxLeverage     string  `yaml:"max_leverage"`
	MaxOpenOrders   int     `yaml:"max_open_orders"`
	MaxDailyTrades  int     `yaml:"max_daily_trades"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// MarketConfig is the full document loaded from Config.SymbolsFile.
type MarketConfig struct {
	Symbols []SymbolConfig   `yaml:"symbols"`
	Tiers   []RiskTierConfig `yaml:"risk_tiers"`
}

// LoadMarketConfig reads and parses the symbols/tiers YAML document
// referenced by path.
func LoadMarketConfig(path string) (*MarketConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var mc MarketConfig
	if err := yaml.Unmarshal(data, &mc); err != nil {
		return nil, err
	}
	return &mc, nil
}

// Amount parses a SymbolConfig field into a fixed-point Amount, used by
// callers translating MarketConfig into market.Config/risk.Tier values.
func Amount(s string) (amount.Amount, error) {
	return amount.FromString(s)
}
