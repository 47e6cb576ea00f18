// Package config loads and validates the engine's YAML configuration.
package config

import (
	"time"

	"algo-engine-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string                  `yaml:"env"`
	Engine  EngineConfig            `yaml:"engine"`
	Logger  logger.Config           `yaml:"logger"`
	Metrics MetricsConfig           `yaml:"metrics"`
	Venue   VenueConfig             `yaml:"venue"`
	Markets map[string]MarketConfig `yaml:"markets"`
	Algo    AlgoDefaults            `yaml:"algo"`
}

type EngineConfig struct {
	TickIntervalMs    int     `yaml:"tickIntervalMs"`
	StalenessWindowMs int     `yaml:"stalenessWindowMs"`
	RouterShards      int     `yaml:"routerShards"`
	OverfillTolerance float64 `yaml:"overfillTolerance"`
	ShutdownTimeoutMs int     `yaml:"shutdownTimeoutMs"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the metrics server
}

type VenueConfig struct {
	Mode           string  `yaml:"mode"` // sim or live
	FeedURL        string  `yaml:"feedURL"`
	RestURL        string  `yaml:"restURL"`
	APIKey         string  `yaml:"apiKey"`
	APISecret      string  `yaml:"apiSecret"`
	RateLimitRPS   float64 `yaml:"rateLimitRPS"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`
}

// MarketConfig 保存每个市场的精度限制。
type MarketConfig struct {
	TickSize float64 `yaml:"tickSize"`
	LotSize  float64 `yaml:"lotSize"`
}

// AlgoDefaults 各算法类型的默认参数，创建实例时未显式给出的字段取这里。
type AlgoDefaults struct {
	MarketMaker MarketMakerDefaults `yaml:"marketMaker"`
	TWAP        TWAPDefaults        `yaml:"twap"`
	POV         POVDefaults         `yaml:"pov"`
	SOR         SORDefaults         `yaml:"sor"`
	Chaser      ChaserDefaults      `yaml:"chaser"`
}

type MarketMakerDefaults struct {
	Quantity        float64 `yaml:"quantity"`
	MinPosition     float64 `yaml:"minPosition"`
	MaxPosition     float64 `yaml:"maxPosition"`
	RefPolicy       string  `yaml:"refPolicy"`
	RefDistFrac     float64 `yaml:"refDistFrac"`
	ToleranceFrac   float64 `yaml:"toleranceFrac"`
	PositionTilt    float64 `yaml:"positionTilt"`
	MaxImproveBbo   float64 `yaml:"maxImproveBbo"`
	OrderLockoutMs  int     `yaml:"orderLockoutMs"`
	FillLockoutMs   int     `yaml:"fillLockoutMs"`
	RejectLockoutMs int     `yaml:"rejectLockoutMs"`
}

type TWAPDefaults struct {
	IntervalMs      int     `yaml:"intervalMs"`
	TakeThroughFrac float64 `yaml:"takeThroughFrac"`
	RejectLockoutMs int     `yaml:"rejectLockoutMs"`
}

type POVDefaults struct {
	TargetVolumeFrac float64 `yaml:"targetVolumeFrac"`
	MinOrderQuantity float64 `yaml:"minOrderQuantity"`
	MaxQuantity      float64 `yaml:"maxQuantity"`
	OrderLockoutMs   int     `yaml:"orderLockoutMs"`
}

type SORDefaults struct {
	ExecutionTimeLimitMs int `yaml:"executionTimeLimitMs"`
}

type ChaserDefaults struct {
	RepegTicks     float64 `yaml:"repegTicks"`
	OrderLockoutMs int     `yaml:"orderLockoutMs"`
}

// TickInterval engine 决策周期，未配置时取 1s。
func (e EngineConfig) TickInterval() time.Duration {
	if e.TickIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(e.TickIntervalMs) * time.Millisecond
}

// StalenessWindow 订单标记 STALE 的静默窗口，未配置时取 30s。
func (e EngineConfig) StalenessWindow() time.Duration {
	if e.StalenessWindowMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.StalenessWindowMs) * time.Millisecond
}

// ShutdownTimeout 优雅退出等待子单撤销的上限，未配置时取 5s。
func (e EngineConfig) ShutdownTimeout() time.Duration {
	if e.ShutdownTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.ShutdownTimeoutMs) * time.Millisecond
}
