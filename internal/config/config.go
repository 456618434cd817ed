package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/symposium/internal/provider/openai"
)

// Config represents the service configuration.
type Config struct {
	Server  ServerConfig
	CORS    CORSConfig
	Redis   RedisConfig
	Billing BillingConfig
	Council CouncilConfig
	OpenAI  openai.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"120"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RedisConfig contains Redis connection settings for the ledger and
// conversation stores. An empty Addr selects the in-memory backends.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// BillingConfig contains metering policy settings. Amounts are in minor
// units (tenths of a cent).
type BillingConfig struct {
	StartingBalanceMinorUnits int64   `env:"BILLING_STARTING_BALANCE" envDefault:"1000"`
	FloorMinorUnits           int64   `env:"BILLING_FLOOR"            envDefault:"-10"`
	MarginMultiplier          float64 `env:"BILLING_MARGIN"           envDefault:"1.0"`
}

// CouncilConfig contains orchestration settings.
type CouncilConfig struct {
	MaxVoices         int    `env:"COUNCIL_MAX_VOICES"        envDefault:"5"`
	TurnTimeout       int    `env:"COUNCIL_TURN_TIMEOUT"      envDefault:"120"`
	HistoryDepth      int    `env:"COUNCIL_HISTORY_DEPTH"     envDefault:"5"`
	SanitizerEnabled  bool   `env:"COUNCIL_SANITIZER_ENABLED" envDefault:"true"`
	SelectorModel     string `env:"COUNCIL_SELECTOR_MODEL"     envDefault:"gpt-4o-mini"`
	VoiceModel        string `env:"COUNCIL_VOICE_MODEL"        envDefault:"gpt-4o-mini"`
	ConsolidatorModel string `env:"COUNCIL_CONSOLIDATOR_MODEL" envDefault:"gpt-4o-mini"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*RedisConfig
	*BillingConfig
	*CouncilConfig
	*openai.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Redis,
		&cfg.Billing,
		&cfg.Council,
		&cfg.OpenAI,
	}
}
