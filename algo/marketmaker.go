package algo

import (
	"errors"
	"time"

	"algo-engine-go/decision"
	"algo-engine-go/market"
	"algo-engine-go/order"
	"algo-engine-go/risk"
)

// MarketMakerConfig 做市/价差策略参数。BuyEnabled 与 SellEnabled 同时
// 为真即价差（Spread）形态，单边为真即单侧做市。
type MarketMakerConfig struct {
	Market      string
	BuyEnabled  bool
	SellEnabled bool
	Quantity    float64

	MinPosition     float64
	MaxPosition     float64
	InitialPosition float64

	RefPolicy     market.Policy
	Hedge         market.HedgeParams
	RefDistFrac   float64
	ToleranceFrac float64
	PositionTilt  float64
	MaxImproveBbo float64
	TickSize      float64

	OrderLockout  time.Duration
	FillLockout   time.Duration
	RejectLockout time.Duration
}

// Validate implements Config.
func (c MarketMakerConfig) Validate() error {
	if c.Market == "" {
		return errors.New("market is required")
	}
	if !c.BuyEnabled && !c.SellEnabled {
		return errors.New("at least one side must be enabled")
	}
	if c.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	if c.MaxPosition <= c.MinPosition {
		return errors.New("maxPosition must be > minPosition")
	}
	if c.RefDistFrac < 0 || c.ToleranceFrac < 0 {
		return errors.New("refDistFrac/toleranceFrac must be >= 0")
	}
	if c.RefPolicy == "" {
		return errors.New("reference price policy is required")
	}
	if c.RefPolicy == market.PolicyHedgeBidAsk {
		if c.Hedge.Market == "" {
			return errors.New("hedge market is required for HEDGE_MARKET_BID_ASK")
		}
		if c.Hedge.HedgeFrac < 0 || c.Hedge.HedgeFrac > 1 {
			return errors.New("hedgeFrac must be within [0,1]")
		}
	}
	return nil
}

// TargetQuantity 做市无目标数量。
func (c MarketMakerConfig) TargetQuantity() float64 { return 0 }

func (c MarketMakerConfig) newStrategy(algoID string, lockouts *risk.LockoutManager) (Strategy, error) {
	mm := &marketMaker{
		cfg:      c,
		algoID:   algoID,
		lockouts: lockouts,
		position: c.InitialPosition,
		open:     make(map[order.Side]*decision.OpenOrder),
		sideOf:   make(map[string]order.Side),
	}
	return mm, nil
}

// marketMaker 每个 tick 对启用的方向各跑一次决策引擎，
// 每侧最多一张在途子单。
type marketMaker struct {
	cfg      MarketMakerConfig
	algoID   string
	lockouts *risk.LockoutManager

	position float64
	open     map[order.Side]*decision.OpenOrder
	sideOf   map[string]order.Side // 子单 ID → 方向
}

func (m *marketMaker) Kind() Kind {
	if m.cfg.BuyEnabled && m.cfg.SellEnabled {
		return KindSpread
	}
	return KindMarketMaker
}

func (m *marketMaker) Markets() []string {
	if m.cfg.RefPolicy == market.PolicyHedgeBidAsk {
		return []string{m.cfg.Market, m.cfg.Hedge.Market}
	}
	return []string{m.cfg.Market}
}

func (m *marketMaker) Lockouts() LockoutDurations {
	return LockoutDurations{Order: m.cfg.OrderLockout, Fill: m.cfg.FillLockout, Reject: m.cfg.RejectLockout}
}

func (m *marketMaker) Tick(now time.Time, book BookFn) ([]Action, error) {
	snap, ok := book(m.cfg.Market)
	if !ok {
		// 缓存未收到首帧行情属瞬态，挂空决策等下一轮。
		return m.idle(decision.ReasonNoReferencePrice), nil
	}
	var hedge *market.Snapshot
	if m.cfg.RefPolicy == market.PolicyHedgeBidAsk {
		if h, ok := book(m.cfg.Hedge.Market); ok {
			hedge = &h
		}
	}

	var actions []Action
	for _, side := range []order.Side{order.SideBuy, order.SideSell} {
		if side == order.SideBuy && !m.cfg.BuyEnabled {
			continue
		}
		if side == order.SideSell && !m.cfg.SellEnabled {
			continue
		}
		actions = append(actions, Action{
			Market:   m.cfg.Market,
			Side:     side,
			Decision: m.evaluate(side, snap, hedge),
		})
	}
	return actions, nil
}

// idle 为所有启用方向给出空决策。
func (m *marketMaker) idle(reasons ...decision.Reason) []Action {
	var actions []Action
	for _, side := range []order.Side{order.SideBuy, order.SideSell} {
		if side == order.SideBuy && !m.cfg.BuyEnabled {
			continue
		}
		if side == order.SideSell && !m.cfg.SellEnabled {
			continue
		}
		actions = append(actions, Action{
			Market:   m.cfg.Market,
			Side:     side,
			Decision: decision.DoNothing(reasons...),
		})
	}
	return actions
}

func (m *marketMaker) evaluate(side order.Side, snap market.Snapshot, hedge *market.Snapshot) decision.Decision {
	ref, refErr := market.ResolveReference(m.cfg.RefPolicy, side, snap, hedge, m.cfg.Hedge)

	in := decision.Inputs{
		Side:          side,
		Position:      m.position,
		MinPosition:   m.cfg.MinPosition,
		MaxPosition:   m.cfg.MaxPosition,
		RefPrice:      ref,
		RefErr:        refErr,
		RefDistFrac:   m.cfg.RefDistFrac,
		ToleranceFrac: m.cfg.ToleranceFrac,
		PositionTilt:  m.cfg.PositionTilt,
		MaxImproveBbo: m.cfg.MaxImproveBbo,
		TickSize:      m.cfg.TickSize,
		Quantity:      m.cfg.Quantity,
		OrderLocked:   m.lockouts.IsLocked(m.algoID, risk.LockoutOrder),
		FillLocked:    m.lockouts.IsLocked(m.algoID, risk.LockoutFill),
		RejectLocked:  m.lockouts.IsLocked(m.algoID, risk.LockoutReject),
		Open:          m.open[side],
	}
	if snap.Bid != nil {
		in.BestBid = snap.Bid.Price
	}
	if snap.Ask != nil {
		in.BestAsk = snap.Ask.Price
	}
	return decision.Evaluate(in)
}

func (m *marketMaker) OnChildSubmitted(id string, o order.Order) {
	m.sideOf[id] = o.Side
	m.open[o.Side] = &decision.OpenOrder{ID: id, Price: o.Price}
}

func (m *marketMaker) OnChildUpdate(id string, st order.State) {
	side, ok := m.sideOf[id]
	if !ok {
		return
	}
	cur := m.open[side]
	if cur == nil || cur.ID != id {
		return
	}
	if !st.Live() {
		delete(m.open, side)
		return
	}
	cur.Canceling = st.Canceling
}

func (m *marketMaker) OnFill(id string, f order.Fill, delta float64) {
	if side, ok := m.sideOf[id]; ok {
		m.position += signedDelta(side, delta)
	}
}

// Done 做市无自然终点，仅由 STOP 收尾。
func (m *marketMaker) Done() bool { return false }

func (m *marketMaker) applyTunables(tn Tunables) {
	if tn.RefDistFrac != nil {
		m.cfg.RefDistFrac = *tn.RefDistFrac
	}
	if tn.ToleranceFrac != nil {
		m.cfg.ToleranceFrac = *tn.ToleranceFrac
	}
	if tn.PositionTilt != nil {
		m.cfg.PositionTilt = *tn.PositionTilt
	}
	if tn.MaxImproveBbo != nil {
		m.cfg.MaxImproveBbo = *tn.MaxImproveBbo
	}
	if tn.OrderLockout != nil {
		m.cfg.OrderLockout = *tn.OrderLockout
	}
	if tn.FillLockout != nil {
		m.cfg.FillLockout = *tn.FillLockout
	}
	if tn.RejectLockout != nil {
		m.cfg.RejectLockout = *tn.RejectLockout
	}
}
