// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"deposit-service/internal/chains/tron"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const (
	MinPollInterval = 3 * time.Second
	MaxSuffixDigits = 4
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Deposit  DepositConfig
	Ledger   LedgerConfig
	Paycode  PaycodeConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	InternalAPIKey string // empty disables the API key check
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	Addr     string // empty disables redis
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers   []string // empty disables kafka
	UserTopic string
	OpsTopic  string
}

type DepositConfig struct {
	ReceiveAddress   string
	Network          string
	Token            string
	TronNetwork      string
	Contract         string
	TokenDecimals    int32
	MinAmount        decimal.Decimal
	Validity         time.Duration
	PollInterval     time.Duration
	SuffixDigits     int
	MatchTolerance   time.Duration
	SweepBatch       int
	SweepConcurrency int
}

type LedgerConfig struct {
	TronGridURL  string
	TronGridKeys []string
	TronscanURL  string
	OKLinkURL    string // empty disables OKLink
	OKLinkAPIKey string
	Timeout      time.Duration
	FetchLimit   int
	CacheTTL     time.Duration
}

type PaycodeConfig struct {
	QREnabled bool
	Timezone  *time.Location
	Language  language.Tag
}

func Load(logger *zap.Logger) (*Config, error) {
	// ============================================================================
	// TRON Configuration
	// ============================================================================
	tronNetwork := getEnv("TRON_NETWORK", "mainnet")

	var tronGridURL, tronscanURL, oklinkChain string
	switch tronNetwork {
	case "mainnet":
		tronGridURL = "https://api.trongrid.io"
		tronscanURL = "https://apilist.tronscanapi.com"
		oklinkChain = "TRON"
	case "shasta":
		tronGridURL = "https://api.shasta.trongrid.io"
		tronscanURL = "https://shastapi.tronscan.org"
	case "nile":
		tronGridURL = "https://nile.trongrid.io"
		tronscanURL = "https://nileapi.tronscan.org"
	default:
		return nil, fmt.Errorf("unsupported TRON_NETWORK %q", tronNetwork)
	}

	// ============================================================================
	// Deposit Configuration
	// ============================================================================
	minAmount, err := getEnvAsDecimal("DEPOSIT_MIN_AMOUNT", decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}

	pollInterval := getEnvAsDuration("DEPOSIT_POLL_INTERVAL", 10*time.Second)
	if pollInterval < MinPollInterval {
		logger.Warn("poll interval below floor, clamping",
			zap.Duration("requested", pollInterval),
			zap.Duration("floor", MinPollInterval))
		pollInterval = MinPollInterval
	}

	digits := getEnvAsInt("DEPOSIT_SUFFIX_DIGITS", MaxSuffixDigits)
	if digits < 1 || digits > MaxSuffixDigits {
		return nil, fmt.Errorf("DEPOSIT_SUFFIX_DIGITS must be between 1 and %d, got %d", MaxSuffixDigits, digits)
	}

	validity := getEnvAsDuration("DEPOSIT_VALIDITY", 10*time.Minute)
	if validity <= 0 {
		return nil, fmt.Errorf("DEPOSIT_VALIDITY must be positive")
	}

	receiveAddress := strings.TrimSpace(os.Getenv("DEPOSIT_RECEIVE_ADDRESS"))
	if receiveAddress == "" {
		logger.Warn("DEPOSIT_RECEIVE_ADDRESS not set, order creation will be refused")
	} else if err := tron.ValidateAddress(receiveAddress); err != nil {
		logger.Warn("DEPOSIT_RECEIVE_ADDRESS does not look like a TRON address",
			zap.String("address", receiveAddress),
			zap.Error(err))
	}

	// ============================================================================
	// Paycode Configuration
	// ============================================================================
	tzName := getEnv("DEPOSIT_DISPLAY_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		logger.Warn("unknown display timezone, falling back to UTC",
			zap.String("timezone", tzName),
			zap.Error(err))
		loc = time.UTC
	}

	langName := getEnv("PAYCODE_LANGUAGE", "en")
	lang, err := language.Parse(langName)
	if err != nil {
		logger.Warn("unknown caption language, falling back to English",
			zap.String("language", langName),
			zap.Error(err))
		lang = language.English
	}

	oklinkURL := getEnv("OKLINK_URL", "")
	if oklinkURL != "" && oklinkChain == "" {
		logger.Warn("OKLink only indexes TRON mainnet, disabling", zap.String("network", tronNetwork))
		oklinkURL = ""
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8035"),
			Env:            getEnv("ENVIRONMENT", "development"),
			InternalAPIKey: os.Getenv("INTERNAL_API_KEY"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "deposits"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 20)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:   getEnvSlice("KAFKA_BROKERS"),
			UserTopic: getEnv("DEPOSIT_USER_TOPIC", "deposit.user.notifications"),
			OpsTopic:  getEnv("DEPOSIT_OPS_TOPIC", "deposit.ops.events"),
		},
		Deposit: DepositConfig{
			ReceiveAddress:   receiveAddress,
			Network:          getEnv("DEPOSIT_NETWORK", "TRON"),
			Token:            getEnv("DEPOSIT_TOKEN", "USDT"),
			TronNetwork:      tronNetwork,
			Contract:         getEnv("DEPOSIT_TOKEN_CONTRACT", tron.GetUSDTContract(tronNetwork)),
			TokenDecimals:    int32(getEnvAsInt("DEPOSIT_TOKEN_DECIMALS", tron.USDTDecimals)),
			MinAmount:        minAmount,
			Validity:         validity,
			PollInterval:     pollInterval,
			SuffixDigits:     digits,
			MatchTolerance:   getEnvAsDuration("DEPOSIT_MATCH_TOLERANCE", 5*time.Minute),
			SweepBatch:       max(getEnvAsInt("DEPOSIT_SWEEP_BATCH", 50), 1),
			SweepConcurrency: max(getEnvAsInt("DEPOSIT_SWEEP_CONCURRENCY", 4), 1),
		},
		Ledger: LedgerConfig{
			TronGridURL:  getEnv("TRONGRID_URL", tronGridURL),
			TronGridKeys: getEnvSlice("TRONGRID_API_KEYS"),
			TronscanURL:  getEnv("TRONSCAN_URL", tronscanURL),
			OKLinkURL:    oklinkURL,
			OKLinkAPIKey: os.Getenv("OKLINK_API_KEY"),
			Timeout:      getEnvAsDuration("LEDGER_TIMEOUT", 8*time.Second),
			FetchLimit:   min(max(getEnvAsInt("LEDGER_FETCH_LIMIT", 50), 1), 200),
			CacheTTL:     getEnvAsDuration("LEDGER_CACHE_TTL", 3*time.Second),
		},
		Paycode: PaycodeConfig{
			QREnabled: getEnvAsBool("PAYCODE_QR_ENABLED", true),
			Timezone:  loc,
			Language:  lang,
		},
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("tron_network", tronNetwork),
		zap.String("contract", cfg.Deposit.Contract),
		zap.Int("trongrid_keys", len(cfg.Ledger.TronGridKeys)),
		zap.Bool("oklink_enabled", cfg.Ledger.OKLinkURL != ""),
		zap.Duration("poll_interval", pollInterval),
		zap.Int("suffix_digits", digits))

	return cfg, nil
}

// DSN builds the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// ============================================================================
// Helper Functions
// ============================================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getEnvSlice(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
