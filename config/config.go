package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	Poll     PollConfig     `yaml:"poll"`
	Window   WindowConfig   `yaml:"window"`
	Staking  StakingConfig  `yaml:"staking"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Trading  TradingConfig  `yaml:"trading"`
	TradeLog TradeLogConfig `yaml:"trade_log"`
	Control  ControlConfig  `yaml:"control"`
	Log      LogConfig      `yaml:"log"`
}

// FeedConfig apunta al feed de señales y sus parámetros de consulta.
type FeedConfig struct {
	BaseURL                string  `yaml:"base_url"`
	APIKey                 string  `yaml:"api_key"`
	WindowMinutes          int     `yaml:"window_minutes"`
	MinGrade               string  `yaml:"min_grade"`
	RequireMicrostructure  bool    `yaml:"require_microstructure"`
	MarketQualityThreshold float64 `yaml:"market_quality_threshold"`
	FreshnessSeconds       int     `yaml:"freshness_seconds"`
}

// PollConfig controla la cadencia del loop de polling.
type PollConfig struct {
	IntervalSeconds    int     `yaml:"interval_seconds"`
	JitterRatio        float64 `yaml:"jitter_ratio"`
	BackoffBaseSeconds int     `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds  int     `yaml:"backoff_max_seconds"`
	MaxCallsPerHour    int     `yaml:"max_calls_per_hour"`
	StopOnBlock        *bool   `yaml:"stop_on_block"` // default true
	MaxBetsPerCycle    int     `yaml:"max_bets_per_cycle"`
}

// WindowConfig es la ventana horaria de operación. Vacía = siempre.
type WindowConfig struct {
	Start    string `yaml:"start"` // "HH:MM"
	End      string `yaml:"end"`
	Timezone string `yaml:"timezone"`
}

// StakingConfig son los parámetros del sizing Kelly.
type StakingConfig struct {
	Bankroll        float64 `yaml:"bankroll"`
	KellyFraction   float64 `yaml:"kelly_fraction"`
	MinStake        float64 `yaml:"min_stake"`
	MaxStake        float64 `yaml:"max_stake"`
	FixedStake      float64 `yaml:"fixed_stake"` // >0 anula el Kelly
	LowROIThreshold float64 `yaml:"low_roi_threshold"`
}

// LedgerConfig controla el dedupe persistido.
type LedgerConfig struct {
	DSN               string `yaml:"dsn"` // ruta SQLite, o ":memory:"
	TTLSeconds        int    `yaml:"ttl_seconds"`
	EventGraceSeconds int    `yaml:"event_grace_seconds"`
}

// TradingConfig controla el executor. DryRun true = simulado.
type TradingConfig struct {
	DryRun     *bool  `yaml:"dry_run"` // default true
	CLOBBase   string `yaml:"clob_base"`
	GammaBase  string `yaml:"gamma_base"`
	PrivateKey string `yaml:"private_key"` // normalmente viene de env
	ChainID    int64  `yaml:"chain_id"`
}

// TradeLogConfig apunta al archivo JSONL de auditoría.
type TradeLogConfig struct {
	Path string `yaml:"path"`
}

// ControlConfig controla el plano de control HTTP.
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Token   string `yaml:"token"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env
// si existe. Las variables de entorno sobreescriben el YAML: son la
// vía para secretos (API key, private key) y para toggles rápidos.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval devuelve la cadencia base como time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// BackoffBase devuelve el primer escalón del backoff exponencial.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Poll.BackoffBaseSeconds) * time.Second
}

// BackoffMax devuelve el tope del backoff exponencial.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Poll.BackoffMaxSeconds) * time.Second
}

// LedgerTTL devuelve la vida mínima de una entrada del ledger.
func (c *Config) LedgerTTL() time.Duration {
	return time.Duration(c.Ledger.TTLSeconds) * time.Second
}

// EventGrace devuelve el margen postevento de las entradas del ledger.
func (c *Config) EventGrace() time.Duration {
	return time.Duration(c.Ledger.EventGraceSeconds) * time.Second
}

// Freshness devuelve la antigüedad máxima aceptada de una señal.
func (c *Config) Freshness() time.Duration {
	return time.Duration(c.Feed.FreshnessSeconds) * time.Second
}

// StopOnBlock devuelve la política ante un bloqueo del upstream.
func (c *Config) StopOnBlock() bool {
	return c.Poll.StopOnBlock == nil || *c.Poll.StopOnBlock
}

// DryRun devuelve true si el bot opera en modo simulado.
func (c *Config) DryRun() bool {
	return c.Trading.DryRun == nil || *c.Trading.DryRun
}

// FetchLimit devuelve cuántos candidatos pedir por ciclo: un margen
// sobre el tope de apuestas para que el dedupe no deje el ciclo corto.
func (c *Config) FetchLimit() int {
	return c.Poll.MaxBetsPerCycle * 3
}

// applyEnvOverrides sobreescribe valores con variables de entorno si
// están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOT_BASE_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv("BOT_API_KEY"); v != "" {
		cfg.Feed.APIKey = v
	}
	if v := os.Getenv("BOT_MIN_GRADE"); v != "" {
		cfg.Feed.MinGrade = v
	}
	if v := os.Getenv("BOT_POLL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.IntervalSeconds = n
		}
	}
	if v := os.Getenv("BOT_MAX_BETS_PER_CYCLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.MaxBetsPerCycle = n
		}
	}
	if v := os.Getenv("BOT_DRY_RUN"); v != "" {
		b := parseBool(v)
		cfg.Trading.DryRun = &b
	}
	if v := os.Getenv("BOT_STOP_ON_BLOCK"); v != "" {
		b := parseBool(v)
		cfg.Poll.StopOnBlock = &b
	}
	if v := os.Getenv("BOT_BANKROLL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Staking.Bankroll = f
		}
	}
	if v := os.Getenv("BOT_FIXED_STAKE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Staking.FixedStake = f
		}
	}
	if v := os.Getenv("BOT_WINDOW_START"); v != "" {
		cfg.Window.Start = v
	}
	if v := os.Getenv("BOT_WINDOW_END"); v != "" {
		cfg.Window.End = v
	}
	if v := os.Getenv("BOT_TIMEZONE"); v != "" {
		cfg.Window.Timezone = v
	}
	if v := os.Getenv("POLY_PRIVATE_KEY"); v != "" {
		cfg.Trading.PrivateKey = v
	}
	if v := os.Getenv("CONTROL_TOKEN"); v != "" {
		cfg.Control.Token = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Feed.WindowMinutes <= 0 {
		cfg.Feed.WindowMinutes = 5
	}
	if cfg.Feed.MinGrade == "" {
		cfg.Feed.MinGrade = "A"
	}
	if cfg.Feed.FreshnessSeconds <= 0 {
		cfg.Feed.FreshnessSeconds = 300
	}
	if cfg.Poll.IntervalSeconds <= 0 {
		cfg.Poll.IntervalSeconds = 20
	}
	if cfg.Poll.JitterRatio <= 0 {
		cfg.Poll.JitterRatio = 0.2
	}
	if cfg.Poll.BackoffBaseSeconds <= 0 {
		cfg.Poll.BackoffBaseSeconds = 2
	}
	if cfg.Poll.BackoffMaxSeconds <= 0 {
		cfg.Poll.BackoffMaxSeconds = 120
	}
	if cfg.Poll.MaxCallsPerHour == 0 {
		cfg.Poll.MaxCallsPerHour = 120
	}
	if cfg.Poll.MaxBetsPerCycle <= 0 {
		cfg.Poll.MaxBetsPerCycle = 5
	}
	if cfg.Staking.Bankroll <= 0 {
		cfg.Staking.Bankroll = 1000
	}
	if cfg.Staking.KellyFraction <= 0 {
		cfg.Staking.KellyFraction = 0.25
	}
	if cfg.Staking.MinStake <= 0 {
		cfg.Staking.MinStake = 1
	}
	if cfg.Staking.MaxStake <= 0 {
		cfg.Staking.MaxStake = 50
	}
	if cfg.Staking.LowROIThreshold <= 0 {
		cfg.Staking.LowROIThreshold = 0.72
	}
	if cfg.Ledger.DSN == "" {
		cfg.Ledger.DSN = "polywhaler.db"
	}
	if cfg.Ledger.TTLSeconds <= 0 {
		cfg.Ledger.TTLSeconds = 21600
	}
	if cfg.Ledger.EventGraceSeconds <= 0 {
		cfg.Ledger.EventGraceSeconds = 1800
	}
	if cfg.Trading.CLOBBase == "" {
		cfg.Trading.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.Trading.GammaBase == "" {
		cfg.Trading.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Trading.ChainID == 0 {
		cfg.Trading.ChainID = 137 // Polygon mainnet
	}
	if cfg.TradeLog.Path == "" {
		cfg.TradeLog.Path = "trades.jsonl"
	}
	if cfg.Control.Addr == "" {
		cfg.Control.Addr = "127.0.0.1:8787"
	}
	if cfg.Window.Timezone == "" {
		cfg.Window.Timezone = "UTC"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate comprueba lo que no tiene default razonable: errores aquí
// son fatales en el arranque.
func validate(cfg *Config) error {
	if cfg.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required (or BOT_BASE_URL)")
	}
	if cfg.Feed.APIKey == "" {
		return fmt.Errorf("feed.api_key is required (or BOT_API_KEY)")
	}
	if !cfg.DryRun() && cfg.Trading.PrivateKey == "" {
		return fmt.Errorf("live mode needs trading.private_key (or POLY_PRIVATE_KEY)")
	}
	switch cfg.Feed.MinGrade {
	case "A+", "A", "B", "C", "D":
	default:
		return fmt.Errorf("feed.min_grade %q is not a valid grade", cfg.Feed.MinGrade)
	}
	return nil
}

func parseBool(s string) bool {
	switch s {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	}
	return false
}
