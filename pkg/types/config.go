// Package types provides configuration types for the trading core.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderTier separates required providers from no-cost fallbacks.
type ProviderTier string

const (
	TierPrimary  ProviderTier = "primary"
	TierOptional ProviderTier = "optional"
)

// ProviderConfig declares one AI provider. Declaration order is priority
// order within each tier.
type ProviderConfig struct {
	Name    string       `json:"name" mapstructure:"name"`
	Tier    ProviderTier `json:"tier" mapstructure:"tier"`
	Free    bool         `json:"free" mapstructure:"free"`
	APIKey  string       `json:"apiKey" mapstructure:"api_key"`
	Model   string       `json:"model,omitempty" mapstructure:"model"`
	BaseURL string       `json:"baseUrl,omitempty" mapstructure:"base_url"`
}

// FilterConfig holds the scanner admission filters.
type FilterConfig struct {
	MinLiquiditySOL float64 `json:"minLiquiditySol" mapstructure:"min_liquidity_sol"`
	MaxMarketCapSOL float64 `json:"maxMarketCapSol" mapstructure:"max_market_cap_sol"`
	MinVolume24hSOL float64 `json:"minVolume24hSol" mapstructure:"min_volume_24h_sol"`
	MaxTokenAgeSec  float64 `json:"maxTokenAgeSec" mapstructure:"max_token_age_sec"`
	MinHolders      int     `json:"minHolders" mapstructure:"min_holders"`
	RequireVerified bool    `json:"requireVerified" mapstructure:"require_verified"`
}

// EngineConfig configures the live scanner and trading engine.
type EngineConfig struct {
	Mode            TradingMode   `json:"mode" mapstructure:"mode"`
	Platforms       []Platform    `json:"platforms" mapstructure:"platforms"`
	ScanInterval    time.Duration `json:"scanInterval" mapstructure:"scan_interval"`
	MonitorInterval time.Duration `json:"monitorInterval" mapstructure:"monitor_interval"`
	MaxPositions    int           `json:"maxPositions" mapstructure:"max_positions"`
	BuyAmountSOL    float64       `json:"buyAmountSol" mapstructure:"buy_amount_sol"`
	StopLossFrac    float64       `json:"stopLossFrac" mapstructure:"stop_loss_frac"`
	TakeProfitFrac  float64       `json:"takeProfitFrac" mapstructure:"take_profit_frac"`
	TrailingFrac    float64       `json:"trailingStopFrac" mapstructure:"trailing_stop_frac"`
	MaxHoldMinutes  float64       `json:"maxHoldMinutes" mapstructure:"max_hold_minutes"`
	UseDatabase     bool          `json:"useDatabase" mapstructure:"use_database"`
	UseAIAnalysis   bool          `json:"useAiAnalysis" mapstructure:"use_ai_analysis"`
	UseJito         bool          `json:"useJito" mapstructure:"use_jito"`
	SigningKey      string        `json:"-" mapstructure:"signing_key"`
	ErrorBackoff    time.Duration `json:"errorBackoff" mapstructure:"error_backoff"`
	DrainTimeout    time.Duration `json:"drainTimeout" mapstructure:"drain_timeout"`
	Filters         FilterConfig  `json:"filters" mapstructure:"filters"`
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Mode:            ModeSimulation,
		Platforms:       []Platform{PlatformPumpFun, PlatformBonkFun},
		ScanInterval:    5 * time.Second,
		MonitorInterval: 2 * time.Second,
		MaxPositions:    5,
		BuyAmountSOL:    0.1,
		StopLossFrac:    0.25,
		TakeProfitFrac:  1.0,
		TrailingFrac:    0.15,
		MaxHoldMinutes:  60,
		ErrorBackoff:    5 * time.Second,
		DrainTimeout:    5 * time.Second,
		Filters: FilterConfig{
			MinLiquiditySOL: 5,
			MaxMarketCapSOL: 100,
			MinVolume24hSOL: 1,
			MaxTokenAgeSec:  3600,
			MinHolders:      10,
			RequireVerified: false,
		},
	}
}

// Validate checks fatal misconfiguration before start.
func (c *EngineConfig) Validate() error {
	if c.Mode != ModeSimulation && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.Mode == ModeLive && c.SigningKey == "" {
		return fmt.Errorf("live mode requires engine.signing_key")
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive")
	}
	if c.StopLossFrac <= 0 || c.StopLossFrac >= 1 {
		return fmt.Errorf("stop_loss_frac must be in (0,1)")
	}
	if c.TakeProfitFrac <= 0 {
		return fmt.Errorf("take_profit_frac must be positive")
	}
	return nil
}

// Strategy derives the initial strategy from the engine config.
func (c *EngineConfig) Strategy() Strategy {
	return Strategy{
		Entry: EntryThresholds{
			MinLiquiditySOL: c.Filters.MinLiquiditySOL,
			MaxMarketCapSOL: c.Filters.MaxMarketCapSOL,
			MinVolume24hSOL: c.Filters.MinVolume24hSOL,
			MaxAgeSec:       c.Filters.MaxTokenAgeSec,
		},
		Exit: ExitBands{
			StopLossFrac:     c.StopLossFrac,
			TakeProfitFrac:   c.TakeProfitFrac,
			TrailingStopFrac: c.TrailingFrac,
			MaxHoldMinutes:   c.MaxHoldMinutes,
		},
		Sizing: Sizing{
			BaseAmountSOL: c.BuyAmountSOL,
			MaxPositions:  c.MaxPositions,
			RiskPerTrade:  0.02,
		},
	}
}

// AgentConfig configures the Q-learning agent.
type AgentConfig struct {
	LearningRate       float64       `json:"learningRate" mapstructure:"learning_rate"`
	DiscountFactor     float64       `json:"discountFactor" mapstructure:"discount_factor"`
	ExplorationRate    float64       `json:"explorationRate" mapstructure:"exploration_rate"`
	MinExploration     float64       `json:"minExplorationRate" mapstructure:"min_exploration_rate"`
	ExplorationDecay   float64       `json:"explorationDecay" mapstructure:"exploration_decay"`
	DecisionInterval   time.Duration `json:"decisionInterval" mapstructure:"decision_interval"`
	StartingCapitalSOL float64       `json:"startingCapitalSol" mapstructure:"starting_capital_sol"`
}

// DefaultAgentConfig returns the agent defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		LearningRate:       0.1,
		DiscountFactor:     0.95,
		ExplorationRate:    0.3,
		MinExploration:     0.05,
		ExplorationDecay:   0.995,
		DecisionInterval:   30 * time.Second,
		StartingCapitalSOL: 10,
	}
}

// BackendConfig points at the external trade execution backend.
type BackendConfig struct {
	BaseURL string        `json:"baseUrl" mapstructure:"base_url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// MarketDataConfig points at the market data provider.
type MarketDataConfig struct {
	BaseURL string        `json:"baseUrl" mapstructure:"base_url"`
	APIKey  string        `json:"-" mapstructure:"api_key"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// CacheConfig configures the ML result cache. An empty RedisAddr selects the
// in-memory fallback.
type CacheConfig struct {
	RedisAddr     string `json:"redisAddr" mapstructure:"redis_addr"`
	RedisPassword string `json:"-" mapstructure:"redis_password"`
	RedisDB       int    `json:"redisDb" mapstructure:"redis_db"`
}

// AlertsConfig configures the alert engine.
type AlertsConfig struct {
	CheckInterval time.Duration `json:"checkInterval" mapstructure:"check_interval"`
}

// ServerConfig configures the HTTP/WebSocket API server.
type ServerConfig struct {
	Host          string        `json:"host" mapstructure:"host"`
	Port          int           `json:"port" mapstructure:"port"`
	WebSocketPath string        `json:"websocketPath" mapstructure:"websocket_path"`
	ReadTimeout   time.Duration `json:"readTimeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
	EnableMetrics bool          `json:"enableMetrics" mapstructure:"enable_metrics"`
}

// Config is the root configuration record, injected into component
// constructors at wiring time. It is not mutated after start except for the
// bounded knobs the agent is allowed to turn on its own Strategy copy.
type Config struct {
	DataDir    string           `json:"dataDir" mapstructure:"data_dir"`
	Engine     EngineConfig     `json:"engine" mapstructure:"engine"`
	Agent      AgentConfig      `json:"agent" mapstructure:"agent"`
	Providers  []ProviderConfig `json:"providers" mapstructure:"providers"`
	Backend    BackendConfig    `json:"backend" mapstructure:"backend"`
	MarketData MarketDataConfig `json:"marketData" mapstructure:"market_data"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	Alerts     AlertsConfig     `json:"alerts" mapstructure:"alerts"`
	Server     ServerConfig     `json:"server" mapstructure:"server"`
}

// LoadConfig reads configuration from an optional file plus TRADER_*
// environment variables, layered over the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", "./data")
	eng := DefaultEngineConfig()
	v.SetDefault("engine.mode", string(eng.Mode))
	v.SetDefault("engine.scan_interval", eng.ScanInterval)
	v.SetDefault("engine.monitor_interval", eng.MonitorInterval)
	v.SetDefault("engine.max_positions", eng.MaxPositions)
	v.SetDefault("engine.buy_amount_sol", eng.BuyAmountSOL)
	v.SetDefault("engine.stop_loss_frac", eng.StopLossFrac)
	v.SetDefault("engine.take_profit_frac", eng.TakeProfitFrac)
	v.SetDefault("engine.trailing_stop_frac", eng.TrailingFrac)
	v.SetDefault("engine.max_hold_minutes", eng.MaxHoldMinutes)
	v.SetDefault("engine.error_backoff", eng.ErrorBackoff)
	v.SetDefault("engine.drain_timeout", eng.DrainTimeout)
	v.SetDefault("engine.filters.min_liquidity_sol", eng.Filters.MinLiquiditySOL)
	v.SetDefault("engine.filters.max_market_cap_sol", eng.Filters.MaxMarketCapSOL)
	v.SetDefault("engine.filters.min_volume_24h_sol", eng.Filters.MinVolume24hSOL)
	v.SetDefault("engine.filters.max_token_age_sec", eng.Filters.MaxTokenAgeSec)
	v.SetDefault("engine.filters.min_holders", eng.Filters.MinHolders)

	ag := DefaultAgentConfig()
	v.SetDefault("agent.learning_rate", ag.LearningRate)
	v.SetDefault("agent.discount_factor", ag.DiscountFactor)
	v.SetDefault("agent.exploration_rate", ag.ExplorationRate)
	v.SetDefault("agent.min_exploration_rate", ag.MinExploration)
	v.SetDefault("agent.exploration_decay", ag.ExplorationDecay)
	v.SetDefault("agent.decision_interval", ag.DecisionInterval)
	v.SetDefault("agent.starting_capital_sol", ag.StartingCapitalSOL)

	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("market_data.timeout", 15*time.Second)
	v.SetDefault("alerts.check_interval", 60*time.Second)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.enable_metrics", true)

	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Engine.Platforms) == 0 {
		cfg.Engine.Platforms = eng.Platforms
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
