package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "ChatPay"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultPendingTTL      = 5 * time.Minute
	defaultTransferTimeout = 60 * time.Second
	defaultLLMTimeout      = 8 * time.Second
	defaultSweepInterval   = time.Minute
	defaultAdminTokenTTL   = 12 * time.Hour
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Wallet backends.
const (
	WalletModeSimulated = "simulated"
	WalletModeEVM       = "evm"
)

// Pending action store backends.
const (
	PendingStoreMemory = "memory"
	PendingStoreRedis  = "redis"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	PendingTTL    time.Duration
	PendingStore  string
	SweepInterval time.Duration

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	WalletMode     string
	WalletMnemonic string
	EVMRPCURL      string
	SignerURL      string
	TokenContract  string
	TokenSymbol    string
	TokenDecimals  int32
	Network        string
	NativeSymbol   string
	ExplorerURL    string
	PriceFeedURL   string
	DailyLimit     string
	InitialBalance string
	// TransferTimeout bounds a single chain transfer; zero leaves it unbounded.
	TransferTimeout time.Duration

	AdminJWTSecret       string
	AdminTokenTTL        time.Duration
	InboundRatePerMinute int
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,

		PendingStore: strings.ToLower(getEnv("PENDING_STORE", PendingStoreMemory)),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM"),

		WalletMode:     strings.ToLower(getEnv("WALLET_MODE", WalletModeSimulated)),
		WalletMnemonic: os.Getenv("WALLET_MNEMONIC"),
		EVMRPCURL:      os.Getenv("EVM_RPC_URL"),
		SignerURL:      os.Getenv("SIGNER_URL"),
		TokenContract:  os.Getenv("TOKEN_CONTRACT"),
		TokenSymbol:    strings.ToUpper(getEnv("TOKEN_SYMBOL", "USDC")),
		Network:        getEnv("NETWORK", "base-sepolia"),
		NativeSymbol:   strings.ToUpper(getEnv("NATIVE_SYMBOL", "ETH")),
		ExplorerURL:    strings.TrimRight(getEnv("EXPLORER_URL", "https://sepolia.basescan.org"), "/"),
		PriceFeedURL:   getEnv("PRICE_FEED_URL", "https://api.coingecko.com"),
		DailyLimit:     getEnv("DAILY_LIMIT", "1000"),
		InitialBalance: getEnv("SIMULATED_INITIAL_BALANCE", "0"),

		AdminJWTSecret:       os.Getenv("ADMIN_JWT_SECRET"),
		InboundRatePerMinute: getEnvInt("INBOUND_RATE_PER_MINUTE", 30),
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.PendingTTL, err = duration("PENDING_ACTION_TTL", defaultPendingTTL); err != nil {
		return Config{}, err
	}
	if cfg.LLMTimeout, err = duration("LLM_TIMEOUT", defaultLLMTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = duration("SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.AdminTokenTTL, err = duration("ADMIN_TOKEN_TTL", defaultAdminTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.TransferTimeout, err = duration("TRANSFER_TIMEOUT", defaultTransferTimeout); err != nil {
		return Config{}, err
	}

	decimals, err := strconv.Atoi(getEnv("TOKEN_DECIMALS", "6"))
	if err != nil || decimals < 0 || decimals > 36 {
		return Config{}, fmt.Errorf("invalid TOKEN_DECIMALS")
	}
	cfg.TokenDecimals = int32(decimals)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces cross-field requirements.
func (c Config) Validate() error {
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.AdminJWTSecret == "" {
			return fmt.Errorf("ADMIN_JWT_SECRET must be set when APP_ENV=%s", c.AppEnv)
		}
	}

	switch c.PendingStore {
	case PendingStoreMemory:
	case PendingStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("PENDING_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown PENDING_STORE %q", c.PendingStore)
	}

	switch c.WalletMode {
	case WalletModeSimulated:
	case WalletModeEVM:
		if c.EVMRPCURL == "" || c.SignerURL == "" || c.TokenContract == "" {
			return fmt.Errorf("WALLET_MODE=evm requires EVM_RPC_URL, SIGNER_URL and TOKEN_CONTRACT")
		}
		if c.WalletMnemonic == "" {
			return fmt.Errorf("WALLET_MODE=evm requires WALLET_MNEMONIC")
		}
	default:
		return fmt.Errorf("unknown WALLET_MODE %q", c.WalletMode)
	}

	if c.PendingTTL <= 0 {
		return fmt.Errorf("PENDING_ACTION_TTL must be positive")
	}
	return nil
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// LLMEnabled reports whether an LLM collaborator is configured.
func (c Config) LLMEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// TwilioEnabled reports whether outbound SMS delivery is configured.
func (c Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

func secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(durationKey, fallback)
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
