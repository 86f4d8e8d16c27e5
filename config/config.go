package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeMock = "mock"
	ModeLive = "live"
)

// Config es la configuración completa del bot.
type Config struct {
	Decision  DecisionConfig  `yaml:"decision"`
	Execution ExecutionConfig `yaml:"execution"`
	Paper     PaperConfig     `yaml:"paper"`
	Chain     ChainConfig     `yaml:"chain"`
	Feed      FeedConfig      `yaml:"feed"`
	Price     PriceConfig     `yaml:"price"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// DecisionConfig son los umbrales del motor de decisión.
type DecisionConfig struct {
	BullishThreshold   float64 `yaml:"bullish_threshold"`
	BearishThreshold   float64 `yaml:"bearish_threshold"`
	MinSampleVolume    int     `yaml:"min_sample_volume"`
	MaxPositionSize    float64 `yaml:"max_position_size"`
	MaxFreshAgeMinutes float64 `yaml:"max_fresh_age_minutes"` // 0 = sin decaimiento
}

// ExecutionConfig controla el pipeline de ejecución.
type ExecutionConfig struct {
	Mode               string `yaml:"mode"` // mock | live
	SlippageBps        int    `yaml:"slippage_bps"`
	CallTimeoutSeconds int    `yaml:"call_timeout_seconds"`
	BaseAsset          string `yaml:"base_asset"`
	QuoteAsset         string `yaml:"quote_asset"`
}

// PaperConfig son los balances y precio simulados del modo mock.
type PaperConfig struct {
	BaseBalance  float64 `yaml:"base_balance"`
	QuoteBalance float64 `yaml:"quote_balance"`
	Price        float64 `yaml:"price"` // 0 = usar el oráculo de precio
}

// ChainConfig son los contratos y el RPC del modo live.
type ChainConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	ChainID       int64  `yaml:"chain_id"` // 0 = preguntar al nodo
	LedgerAddress string `yaml:"ledger_address"`
	RouterAddress string `yaml:"router_address"`
	BaseToken     string `yaml:"base_token"`
	QuoteToken    string `yaml:"quote_token"`
	BaseDecimals  int32  `yaml:"base_decimals"`
	QuoteDecimals int32  `yaml:"quote_decimals"`
	PrivateKey    string `yaml:"-"` // solo desde SENTIBOT_PRIVATE_KEY
}

// FeedConfig indica de dónde vienen los items puntuados. URL tiene prioridad.
type FeedConfig struct {
	URL  string `yaml:"url"`
	File string `yaml:"file"`
}

// PriceConfig configura el oráculo de precio.
type PriceConfig struct {
	BaseURL      string `yaml:"base_url"`
	CoinID       string `yaml:"coin_id"`
	VsCurrency   string `yaml:"vs_currency"`
	CacheSeconds int    `yaml:"cache_seconds"`
	APIKey       string `yaml:"-"` // COINGECKO_API_KEY
}

// SchedulerConfig controla la frecuencia de los ciclos.
type SchedulerConfig struct {
	Spec string `yaml:"spec"` // cron de 5 campos o "@every 5m"
}

// FeedbackConfig controla dónde se publica el resumen de cada ciclo.
type FeedbackConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	TelegramToken  string `yaml:"-"` // TELEGRAM_BOT_TOKEN
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN                    string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	SentimentRetentionDays int    `yaml:"sentiment_retention_days"` // 0 = no purgar
}

// MetricsConfig expone /metrics si Addr no está vacío.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// CallTimeout devuelve el timeout por llamada como time.Duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Execution.CallTimeoutSeconds) * time.Second
}

// PriceCacheTTL devuelve el TTL de la caché de precio.
func (c *Config) PriceCacheTTL() time.Duration {
	return time.Duration(c.Price.CacheSeconds) * time.Second
}

// SentimentRetention devuelve 0 si el histórico de sentimiento no se purga.
func (c *Config) SentimentRetention() time.Duration {
	return time.Duration(c.Storage.SentimentRetentionDays) * 24 * time.Hour
}

// IsLive indica si el pipeline usa adapters on-chain.
func (c *Config) IsLive() bool {
	return c.Execution.Mode == ModeLive
}

// Validate comprueba coherencia de umbrales y los requisitos del modo live.
func (c *Config) Validate() error {
	d := c.Decision
	if d.BullishThreshold < -1 || d.BullishThreshold > 1 || d.BearishThreshold < -1 || d.BearishThreshold > 1 {
		return fmt.Errorf("decision thresholds must be inside [-1, 1] (bullish %.2f, bearish %.2f)",
			d.BullishThreshold, d.BearishThreshold)
	}
	if d.BearishThreshold >= d.BullishThreshold {
		return fmt.Errorf("bearish_threshold (%.2f) must be below bullish_threshold (%.2f)",
			d.BearishThreshold, d.BullishThreshold)
	}
	if d.MaxPositionSize < 0 || d.MaxFreshAgeMinutes < 0 {
		return fmt.Errorf("max_position_size and max_fresh_age_minutes must not be negative")
	}

	switch c.Execution.Mode {
	case ModeMock:
	case ModeLive:
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("live mode requires chain.rpc_url")
		}
		if c.Chain.PrivateKey == "" {
			return fmt.Errorf("live mode requires SENTIBOT_PRIVATE_KEY")
		}
		for name, addr := range map[string]string{
			"router_address": c.Chain.RouterAddress,
			"base_token":     c.Chain.BaseToken,
			"quote_token":    c.Chain.QuoteToken,
		} {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("live mode requires a valid chain.%s (got %q)", name, addr)
			}
		}
		if c.Chain.LedgerAddress != "" && !common.IsHexAddress(c.Chain.LedgerAddress) {
			return fmt.Errorf("invalid chain.ledger_address %q", c.Chain.LedgerAddress)
		}
	default:
		return fmt.Errorf("execution.mode must be %q or %q (got %q)", ModeMock, ModeLive, c.Execution.Mode)
	}

	if c.Feed.URL == "" && c.Feed.File == "" {
		return fmt.Errorf("feed.url or feed.file is required")
	}
	if c.Execution.SlippageBps < 0 || c.Execution.SlippageBps >= 10_000 {
		return fmt.Errorf("slippage_bps must be in [0, 10000)")
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SENTIBOT_MODE"); v != "" {
		cfg.Execution.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("SENTIBOT_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("SENTIBOT_LEDGER_ADDRESS"); v != "" {
		cfg.Chain.LedgerAddress = v
	}
	// secretos: nunca en el YAML
	cfg.Chain.PrivateKey = os.Getenv("SENTIBOT_PRIVATE_KEY")
	cfg.Feedback.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Price.APIKey = os.Getenv("COINGECKO_API_KEY")
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Decision.BullishThreshold == 0 && cfg.Decision.BearishThreshold == 0 {
		cfg.Decision.BullishThreshold = 0.3
		cfg.Decision.BearishThreshold = -0.3
	}
	if cfg.Decision.MinSampleVolume <= 0 {
		cfg.Decision.MinSampleVolume = 10
	}
	if cfg.Decision.MaxPositionSize == 0 {
		cfg.Decision.MaxPositionSize = 100
	}
	if cfg.Execution.Mode == "" {
		cfg.Execution.Mode = ModeMock
	}
	if cfg.Execution.SlippageBps == 0 {
		cfg.Execution.SlippageBps = 50 // 0.5%
	}
	if cfg.Execution.CallTimeoutSeconds <= 0 {
		cfg.Execution.CallTimeoutSeconds = 30
	}
	if cfg.Execution.BaseAsset == "" {
		cfg.Execution.BaseAsset = "WETH"
	}
	if cfg.Execution.QuoteAsset == "" {
		cfg.Execution.QuoteAsset = "USDC"
	}
	if cfg.Paper.QuoteBalance == 0 && cfg.Paper.BaseBalance == 0 {
		cfg.Paper.QuoteBalance = 1000
	}
	if cfg.Chain.BaseDecimals == 0 {
		cfg.Chain.BaseDecimals = 18
	}
	if cfg.Chain.QuoteDecimals == 0 {
		cfg.Chain.QuoteDecimals = 6
	}
	if cfg.Price.BaseURL == "" {
		cfg.Price.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Price.CoinID == "" {
		cfg.Price.CoinID = "ethereum"
	}
	if cfg.Price.VsCurrency == "" {
		cfg.Price.VsCurrency = "usd"
	}
	if cfg.Price.CacheSeconds <= 0 {
		cfg.Price.CacheSeconds = 60
	}
	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = "@every 5m"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "sentibot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
