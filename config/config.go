package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polyedge/internal/application/engine/paper"
	"github.com/alejandrodnm/polyedge/internal/application/lifecycle"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Config es la configuración completa del paper trader.
// Los umbrales de política a cero toman el default del componente.
type Config struct {
	Paper     PaperConfig     `yaml:"paper"`
	Edge      EdgeConfig      `yaml:"edge"`
	Kelly     KellyConfig     `yaml:"kelly"`
	Slippage  SlippageConfig  `yaml:"slippage"`
	Liquidity LiquidityConfig `yaml:"liquidity"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Feed      FeedConfig      `yaml:"feed"`
	Audit     AuditConfig     `yaml:"audit"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// PaperConfig controla el ciclo y los límites de cartera.
type PaperConfig struct {
	InitialCapital   float64 `yaml:"initial_capital"`
	IntervalSeconds  int     `yaml:"interval_seconds"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	MaxPerCityDate   int     `yaml:"max_per_city_date"`
	MaxPerCity       int     `yaml:"max_per_city"`
	DrawdownHalt     float64 `yaml:"drawdown_halt"` // 0.10 = sin entradas nuevas con 10% de drawdown
	DrawdownSoft     float64 `yaml:"drawdown_soft"` // desde aquí el tamaño baja linealmente hasta el halt
	ReconcileEpsilon float64 `yaml:"reconcile_epsilon"`
}

// EdgeConfig son los parámetros del modelo de edge.
type EdgeConfig struct {
	FeeRate             float64 `yaml:"fee_rate"`
	MinEdge             float64 `yaml:"min_edge"`
	MediumMultiplier    float64 `yaml:"medium_multiplier"`
	HighMaxHours        float64 `yaml:"high_max_hours"`
	MediumMaxHours      float64 `yaml:"medium_max_hours"`
	MaxHorizonHours     float64 `yaml:"max_horizon_hours"`
	MaxForecastAgeHours float64 `yaml:"max_forecast_age_hours"` // negativo desactiva el chequeo
	BaseSigma           float64 `yaml:"base_sigma"`
}

// KellyConfig controla el sizing.
type KellyConfig struct {
	Fraction          float64            `yaml:"fraction"`
	MinPosition       float64            `yaml:"min_position"`
	MaxPosition       float64            `yaml:"max_position"`
	ContractStep      float64            `yaml:"contract_step"`
	TimeDecay         []domain.DecayStep `yaml:"time_decay"`
	DisagreementK     float64            `yaml:"disagreement_k"`
	DisagreementFloor float64            `yaml:"disagreement_floor"`
}

// SlippageConfig son las tasas de slippage por tier de liquidez.
type SlippageConfig struct {
	High    float64 `yaml:"high"`
	Medium  float64 `yaml:"medium"`
	Low     float64 `yaml:"low"`
	Unknown float64 `yaml:"unknown"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

// LiquidityConfig son los cortes de spread (% del mid) para clasificar tiers.
type LiquidityConfig struct {
	HighBelowPct   float64 `yaml:"high_below_pct"`
	MediumBelowPct float64 `yaml:"medium_below_pct"`
}

// LifecycleConfig controla salidas y add-ons.
type LifecycleConfig struct {
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	AddOnDropPct        float64 `yaml:"add_on_drop_pct"`
	AddOnMinImprovement float64 `yaml:"add_on_min_improvement"`
	MaxAddOns           int     `yaml:"max_add_ons"` // negativo desactiva add-ons
}

// FeedConfig dice de dónde salen señales y snapshots.
type FeedConfig struct {
	Signals   string `yaml:"signals"`   // JSONL/YAML de señales ya calculadas
	Forecasts string `yaml:"forecasts"` // JSONL/YAML de forecasts; se evalúan con el modelo de edge
	Snapshots string `yaml:"snapshots"` // fixture de snapshots; vacío = Polymarket
}

// AuditConfig controla dónde vive el audit log.
type AuditConfig struct {
	Dir string `yaml:"dir"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:" o "off"
}

// ServerConfig controla la API HTTP de estado.
type ServerConfig struct {
	Addr string `yaml:"addr"` // vacío = sin servidor
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

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// Interval devuelve el intervalo entre ciclos. 0 = un solo ciclo.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Paper.IntervalSeconds) * time.Second
}

// StorageEnabled indica si hay read model SQLite.
func (c *Config) StorageEnabled() bool {
	return c.Storage.DSN != "off"
}

// SpreadTiers devuelve los cortes de liquidez para los snapshot providers.
func (c *Config) SpreadTiers() domain.SpreadTiers {
	return domain.SpreadTiers{
		HighBelowPct:   c.Liquidity.HighBelowPct,
		MediumBelowPct: c.Liquidity.MediumBelowPct,
	}
}

// EdgeModelConfig traduce la sección edge al modelo del dominio.
func (c *Config) EdgeModelConfig() domain.EdgeConfig {
	return domain.EdgeConfig{
		FeeRate:          c.Edge.FeeRate,
		MinEdge:          c.Edge.MinEdge,
		MediumMultiplier: c.Edge.MediumMultiplier,
		HighMaxHours:     c.Edge.HighMaxHours,
		MediumMaxHours:   c.Edge.MediumMaxHours,
		MaxHorizonHours:  c.Edge.MaxHorizonHours,
		MaxForecastAge:   time.Duration(c.Edge.MaxForecastAgeHours * float64(time.Hour)),
		BaseSigma:        c.Edge.BaseSigma,
	}
}

// Engine construye la configuración del engine de paper trading.
func (c *Config) Engine() paper.Config {
	edge := c.EdgeModelConfig()

	sizing := domain.DefaultSizingParams()
	if c.Kelly.Fraction > 0 {
		sizing.KellyFraction = c.Kelly.Fraction
	}
	if c.Kelly.MinPosition > 0 {
		sizing.MinPosition = c.Kelly.MinPosition
	}
	if c.Kelly.MaxPosition > 0 {
		sizing.MaxPosition = c.Kelly.MaxPosition
	}
	if c.Kelly.ContractStep > 0 {
		sizing.ContractStep = c.Kelly.ContractStep
	}
	if len(c.Kelly.TimeDecay) > 0 {
		sizing.TimeDecay = append([]domain.DecayStep(nil), c.Kelly.TimeDecay...)
	}
	if c.Kelly.DisagreementK > 0 {
		sizing.DisagreementK = c.Kelly.DisagreementK
	}
	if c.Kelly.DisagreementFloor > 0 {
		sizing.DisagreementFloor = c.Kelly.DisagreementFloor
	}

	return paper.Config{
		InitialCapital: c.Paper.InitialCapital,
		Edge:           edge,
		Sizing:         sizing,
		Slippage: domain.SlippageConfig{
			High:         c.Slippage.High,
			Medium:       c.Slippage.Medium,
			Low:          c.Slippage.Low,
			Unknown:      c.Slippage.Unknown,
			Min:          c.Slippage.Min,
			Max:          c.Slippage.Max,
			ContractStep: sizing.ContractStep,
		},
		Lifecycle: lifecycle.Config{
			TakeProfitPct:       c.Lifecycle.TakeProfitPct,
			StopLossPct:         c.Lifecycle.StopLossPct,
			AddOnDropPct:        c.Lifecycle.AddOnDropPct,
			AddOnMinImprovement: c.Lifecycle.AddOnMinImprovement,
			MaxAddOns:           c.Lifecycle.MaxAddOns,
			MinEdge:             edge.MinEdge,
		},
		ReconcileEpsilon: c.Paper.ReconcileEpsilon,
		MaxOpenPositions: c.Paper.MaxOpenPositions,
		MaxPerCityDate:   c.Paper.MaxPerCityDate,
		MaxPerCity:       c.Paper.MaxPerCity,
		DrawdownHalt:     c.Paper.DrawdownHalt,
		DrawdownSoft:     c.Paper.DrawdownSoft,
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYEDGE_AUDIT_DIR"); v != "" {
		cfg.Audit.Dir = v
	}
	if v := os.Getenv("POLYEDGE_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("POLYEDGE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("POLYEDGE_INITIAL_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("POLYEDGE_INITIAL_CAPITAL: %w", err)
		}
		cfg.Paper.InitialCapital = f
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los umbrales del dominio se quedan a cero: cada componente pone el suyo.
func setDefaults(cfg *Config) {
	if cfg.Paper.InitialCapital <= 0 {
		cfg.Paper.InitialCapital = 1000
	}
	if cfg.Paper.IntervalSeconds < 0 {
		cfg.Paper.IntervalSeconds = 0
	}
	if cfg.Edge.MaxForecastAgeHours == 0 {
		cfg.Edge.MaxForecastAgeHours = 12
	}
	if cfg.Audit.Dir == "" {
		cfg.Audit.Dir = "data/audit"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyedge.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
