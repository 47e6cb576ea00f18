package algo

import (
	"time"

	"algo-engine-go/decision"
	"algo-engine-go/market"
	"algo-engine-go/order"
	"algo-engine-go/risk"
)

// BookFn 按市场取最新快照。
type BookFn func(mkt string) (market.Snapshot, bool)

// Action 策略单轮产出：目标市场/方向加一个决策。
// DoNothing 决策也会返回，供审计与指标，Runner 只执行 Send/Cancel。
type Action struct {
	Market   string
	Side     order.Side
	Decision decision.Decision
}

// Strategy 算法变体的决策内核。Runner 保证所有方法在同一 goroutine
// 串行调用，实现无需加锁。
type Strategy interface {
	Kind() Kind
	// Markets 返回需要订阅行情的市场。
	Markets() []string
	Lockouts() LockoutDurations
	// Tick 产出本轮动作。返回错误视为致命配置问题，实例转入 DONE；
	// 瞬态条件（如行情缓存未就绪）返回空决策等待下一轮。
	Tick(now time.Time, book BookFn) ([]Action, error)
	// OnChildSubmitted 子单登记成功后回调。
	OnChildSubmitted(id string, o order.Order)
	// OnChildUpdate 子单任意回报落账后的最新状态。
	OnChildUpdate(id string, st order.State)
	// OnFill 子单成交，delta 为去重后的数量增量。
	OnFill(id string, f order.Fill, delta float64)
	// Done 目标达成（或不可达成）时为真，Runner 随即收尾。
	Done() bool
}

// Config 策略配置。创建后不可变。
type Config interface {
	Validate() error
	// TargetQuantity 目标数量，0 表示无界（做市类）。
	TargetQuantity() float64
	newStrategy(algoID string, lockouts *risk.LockoutManager) (Strategy, error)
}

// Tunables 运行中可热更的参数子集，nil 字段表示保持不变。
// 结构性参数（市场、方向、目标量）创建后不可变，不在此列。
type Tunables struct {
	RefDistFrac   *float64
	ToleranceFrac *float64
	PositionTilt  *float64
	MaxImproveBbo *float64
	OrderLockout  *time.Duration
	FillLockout   *time.Duration
	RejectLockout *time.Duration
}

// tunable 支持热更的策略实现该接口，在 Runner 串行点被调用。
type tunable interface {
	applyTunables(tn Tunables)
}

// signedDelta 换算成交增量的仓位符号：买正卖负。
func signedDelta(side order.Side, delta float64) float64 {
	if side == order.SideSell {
		return -delta
	}
	return delta
}
