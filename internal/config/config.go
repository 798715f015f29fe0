package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds configuration for the simulator services.
type Config struct {
	// Service name
	ServiceName string

	// HTTP server port (order API + health)
	HTTPPort int

	// Log level: debug, info, warn, error
	LogLevel string

	// Tick source: "ws" or "kafka"
	FeedSource string

	// Websocket endpoint base delivering level-2 order book updates;
	// the symbol is appended as the last path segment
	FeedURLBase string

	// Symbols to simulate
	Symbols []string

	// Kafka brokers (comma-separated)
	KafkaBrokers string

	// Directory for the journal database
	DataDir string

	// Starting cash balance for the portfolio
	StartingCash float64

	// Fee tier name, resolved against FeeTiers
	FeeTier string

	// Apply impact-model slippage to limit fills instead of
	// filling at the limit price
	ImpactOnLimit bool

	// Impact model parameters
	Impact ImpactConfig

	// Websocket reconnect policy
	WSReconnectDelaySeconds int
	WSMaxReconnectAttempts  int

	// Rolling window size for latency metrics
	PerfWindow int

	// Maximum equity-curve points kept in memory
	EquityCurveLimit int
}

// ImpactConfig holds the market impact model parameter set.
type ImpactConfig struct {
	PermanentImpact float64
	TemporaryImpact float64
	TemporaryDecay  float64
	RiskAversion    float64
	Volatility      float64
	BaseSlippageBps float64
	MaxImpactBps    float64
	DepthLevels     int
}

// FeeRates holds maker/taker fee rates as fractions of notional.
type FeeRates struct {
	Maker float64
	Taker float64
}

// FeeTiers maps tier names to their maker/taker rates.
var FeeTiers = map[string]FeeRates{
	"tier1": {Maker: 0.0008, Taker: 0.001},
	"tier2": {Maker: 0.0007, Taker: 0.0009},
	"tier3": {Maker: 0.0006, Taker: 0.0008},
}

// LoadConfig loads configuration from environment variables with defaults.
// A .env file in the working directory is loaded first if present.
func LoadConfig(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:   serviceName,
		HTTPPort:      getEnvAsInt("PORT_HTTP", 8080),
		LogLevel:      getEnvAsString("LOG_LEVEL", "info"),
		FeedSource:    getEnvAsString("FEED_SOURCE", "ws"),
		FeedURLBase:   getEnvAsString("FEED_URL_BASE", "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx"),
		Symbols:       getEnvAsList("SYMBOLS", []string{"BTC-USDT-SWAP"}),
		KafkaBrokers:  getEnvAsString("KAFKA_BROKERS", "127.0.0.1:9092"),
		DataDir:       getEnvAsString("DATA_DIR", "./data"),
		StartingCash:  getEnvAsFloat("STARTING_CASH", 100000.0),
		FeeTier:       getEnvAsString("FEE_TIER", "tier1"),
		ImpactOnLimit: getEnvAsBool("IMPACT_ON_LIMIT", false),
		Impact: ImpactConfig{
			PermanentImpact: getEnvAsFloat("IMPACT_PERMANENT", 0.15),
			TemporaryImpact: getEnvAsFloat("IMPACT_TEMPORARY", 0.2),
			TemporaryDecay:  getEnvAsFloat("IMPACT_DECAY", 0.6),
			RiskAversion:    getEnvAsFloat("IMPACT_RISK_AVERSION", 1.5),
			Volatility:      getEnvAsFloat("IMPACT_VOLATILITY", 0.03),
			BaseSlippageBps: getEnvAsFloat("IMPACT_BASE_SLIPPAGE_BPS", 1.0),
			MaxImpactBps:    getEnvAsFloat("IMPACT_MAX_BPS", 500.0),
			DepthLevels:     getEnvAsInt("IMPACT_DEPTH_LEVELS", 10),
		},
		WSReconnectDelaySeconds: getEnvAsInt("WS_RECONNECT_DELAY", 5),
		WSMaxReconnectAttempts:  getEnvAsInt("WS_MAX_RECONNECT_ATTEMPTS", 5),
		PerfWindow:              getEnvAsInt("PERF_WINDOW", 1000),
		EquityCurveLimit:        getEnvAsInt("EQUITY_CURVE_LIMIT", 10000),
	}

	return cfg
}

// HTTPAddr returns the HTTP server address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// FeedURLFor returns the websocket endpoint for a symbol's level-2 feed.
func (c *Config) FeedURLFor(symbol string) string {
	return strings.TrimRight(c.FeedURLBase, "/") + "/" + symbol
}

// Fees resolves the configured fee tier, falling back to tier1 for
// unknown tier names.
func (c *Config) Fees() FeeRates {
	if rates, ok := FeeTiers[c.FeeTier]; ok {
		return rates
	}
	return FeeTiers["tier1"]
}

// Brokers returns the Kafka broker list with whitespace trimmed.
func (c *Config) Brokers() []string {
	brokers := strings.Split(c.KafkaBrokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	return brokers
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
