package algo

import (
	"errors"
	"math"
	"time"

	"algo-engine-go/decision"
	"algo-engine-go/order"
	"algo-engine-go/risk"
)

// POVConfig 成交量占比策略参数：子单按上一张子单以来观察到的市场
// 成交量乘 TargetVolumeFrac 定量。
type POVConfig struct {
	Market   string
	Side     order.Side
	Quantity float64 // 目标总量

	TargetVolumeFrac float64
	MinOrderQuantity float64
	MaxQuantity      float64 // 单张子单上限
	// LimitPrice 可选的价格保护，0 表示不设限。
	LimitPrice   float64
	OrderLockout time.Duration
}

// Validate implements Config.
func (c POVConfig) Validate() error {
	if c.Market == "" {
		return errors.New("market is required")
	}
	if c.Side != order.SideBuy && c.Side != order.SideSell {
		return errors.New("side must be BUY or SELL")
	}
	if c.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	if c.TargetVolumeFrac <= 0 || c.TargetVolumeFrac > 1 {
		return errors.New("targetVolumeFrac must be within (0,1]")
	}
	if c.MinOrderQuantity < 0 {
		return errors.New("minOrderQuantity must be >= 0")
	}
	if c.MaxQuantity <= 0 {
		return errors.New("maxQuantity must be > 0")
	}
	if c.MaxQuantity < c.MinOrderQuantity {
		return errors.New("maxQuantity must be >= minOrderQuantity")
	}
	return nil
}

func (c POVConfig) TargetQuantity() float64 { return c.Quantity }

func (c POVConfig) newStrategy(algoID string, lockouts *risk.LockoutManager) (Strategy, error) {
	return &pov{cfg: c, algoID: algoID, lockouts: lockouts, lastVolume: -1}, nil
}

type pov struct {
	cfg      POVConfig
	algoID   string
	lockouts *risk.LockoutManager

	filled     float64
	lastVolume float64 // 上次发单时的累计成交量，-1 表示未初始化
	open       *decision.OpenOrder
}

func (p *pov) Kind() Kind        { return KindPOV }
func (p *pov) Markets() []string { return []string{p.cfg.Market} }

func (p *pov) Lockouts() LockoutDurations {
	return LockoutDurations{Order: p.cfg.OrderLockout}
}

func (p *pov) Tick(now time.Time, book BookFn) ([]Action, error) {
	if p.Done() {
		return nil, nil
	}
	snap, ok := book(p.cfg.Market)
	if !ok {
		return p.noop(decision.ReasonNoReferencePrice), nil
	}
	// 第一轮先取成交量基线。
	if p.lastVolume < 0 {
		p.lastVolume = snap.Volume
		return nil, nil
	}
	if p.open != nil {
		return nil, nil
	}
	if p.lockouts.IsLocked(p.algoID, risk.LockoutOrder) {
		return p.noop(decision.ReasonWithinOrderLockout), nil
	}

	price, err := touchPrice(p.cfg.Side, snap)
	if err != nil {
		return p.noop(refErrReason(err)), nil
	}
	if breachesLimit(p.cfg.Side, price, p.cfg.LimitPrice) {
		return nil, nil
	}

	qty := p.cfg.TargetVolumeFrac * (snap.Volume - p.lastVolume)
	qty = math.Min(qty, p.cfg.MaxQuantity)
	qty = math.Min(qty, p.cfg.Quantity-p.filled)
	if qty < p.cfg.MinOrderQuantity || qty <= 0 {
		// 市场量不足，继续累积观察窗口。
		return nil, nil
	}

	p.lastVolume = snap.Volume
	return []Action{{
		Market:   p.cfg.Market,
		Side:     p.cfg.Side,
		Decision: decision.Send(price, qty),
	}}, nil
}

func (p *pov) OnChildSubmitted(id string, o order.Order) {
	p.open = &decision.OpenOrder{ID: id, Price: o.Price}
}

func (p *pov) OnChildUpdate(id string, st order.State) {
	if p.open == nil || p.open.ID != id {
		return
	}
	if !st.Live() {
		p.open = nil
		return
	}
	p.open.Canceling = st.Canceling
}

func (p *pov) OnFill(id string, f order.Fill, delta float64) {
	p.filled += delta
}

func (p *pov) Done() bool {
	return p.filled+1e-9 >= p.cfg.Quantity
}

func (p *pov) noop(reasons ...decision.Reason) []Action {
	return []Action{{
		Market:   p.cfg.Market,
		Side:     p.cfg.Side,
		Decision: decision.DoNothing(reasons...),
	}}
}
