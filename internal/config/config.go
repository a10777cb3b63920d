package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/shopspring/decimal"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers          []string
	KafkaFulfillmentTopic string
	KafkaEventsTopic      string
	KafkaGroupID          string
	HTTPAddr              string
	LogLevel              string
	LogFormat             string
	ShutdownTimeout       time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Settlement rules.
	MinPolicyAmount  decimal.Decimal
	DefaultDailyRate decimal.Decimal
	TemperatureBias  int
	FrostThreshold   int
	DroughtThreshold int
	// SettleTimeout bounds payouts for one fulfillment, which outlive the
	// caller that delivered it.
	SettleTimeout time.Duration

	// Oracle job configuration. ORACLE_URL enables dispatch to an oracle node.
	OracleAddress string
	OracleSpecID  string
	OracleFee     decimal.Decimal
	OracleURL     string
	OracleToken   string
	OracleTimeout time.Duration
	CallbackURL   string

	// Funding gateway. Without FUNDING_URL transfers are only logged.
	FundingURL     string
	FundingToken   string
	FundingTimeout time.Duration

	// SQLite event journal. Empty disables the journal.
	JournalPath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	oracleTimeout, err := parsePositiveDuration("ORACLE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	fundingTimeout, err := parsePositiveDuration("FUNDING_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	settleTimeout, err := parsePositiveDuration("SETTLE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	minAmount, err := parseDecimal("MIN_POLICY_AMOUNT", "1")
	if err != nil {
		return nil, err
	}
	dailyRate, err := parseDecimal("DEFAULT_DAILY_RATE", "0.2")
	if err != nil {
		return nil, err
	}
	oracleFee, err := parseDecimal("ORACLE_FEE", "0.1")
	if err != nil {
		return nil, err
	}

	bias, err := parseInt("TEMPERATURE_BIAS", 273)
	if err != nil {
		return nil, err
	}
	frost, err := parseInt("FROST_THRESHOLD", 0)
	if err != nil {
		return nil, err
	}
	drought, err := parseInt("DROUGHT_THRESHOLD", 35)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:          sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaFulfillmentTopic: sharedcfg.EnvOrDefault("KAFKA_FULFILLMENT_TOPIC", "oracle-fulfillments"),
		KafkaEventsTopic:      sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "insurance-events"),
		KafkaGroupID:          sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "weather-hedge"),
		HTTPAddr:              sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:              sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:       shutdownTimeout,
		BatchSize:             batchSize,
		BatchFlushInterval:    flushInterval,

		MinPolicyAmount:  minAmount,
		DefaultDailyRate: dailyRate,
		TemperatureBias:  bias,
		FrostThreshold:   frost,
		DroughtThreshold: drought,
		SettleTimeout:    settleTimeout,

		OracleAddress: os.Getenv("ORACLE_ADDRESS"),
		OracleSpecID:  os.Getenv("ORACLE_SPEC_ID"),
		OracleFee:     oracleFee,
		OracleURL:     os.Getenv("ORACLE_URL"),
		OracleToken:   os.Getenv("ORACLE_TOKEN"),
		OracleTimeout: oracleTimeout,
		CallbackURL:   sharedcfg.EnvOrDefault("CALLBACK_URL", "http://localhost:8080/v1/oracle/fulfillments"),

		FundingURL:     os.Getenv("FUNDING_URL"),
		FundingToken:   os.Getenv("FUNDING_TOKEN"),
		FundingTimeout: fundingTimeout,

		JournalPath: os.Getenv("JOURNAL_PATH"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaFulfillmentTopic == "" {
		return nil, errors.New("KAFKA_FULFILLMENT_TOPIC is required")
	}
	if cfg.KafkaEventsTopic == "" {
		return nil, errors.New("KAFKA_EVENTS_TOPIC is required")
	}
	if !cfg.MinPolicyAmount.IsPositive() {
		return nil, errors.New("MIN_POLICY_AMOUNT must be positive")
	}
	if !cfg.DefaultDailyRate.IsPositive() {
		return nil, errors.New("DEFAULT_DAILY_RATE must be positive")
	}
	if cfg.OracleFee.IsNegative() {
		return nil, errors.New("ORACLE_FEE must not be negative")
	}
	if cfg.TemperatureBias < 0 || cfg.TemperatureBias > 999 {
		return nil, errors.New("TEMPERATURE_BIAS must be within [0, 999]")
	}

	return cfg, nil
}

// OracleConfigured reports whether the oracle job is fully described by the
// environment, so the engine can be configured at start-up.
func (c *Config) OracleConfigured() bool {
	return c.OracleAddress != "" && c.OracleSpecID != ""
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseDecimal(key, def string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
