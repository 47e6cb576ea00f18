package algo

import (
	"errors"
	"math"
	"time"

	"algo-engine-go/decision"
	"algo-engine-go/market"
	"algo-engine-go/order"
	"algo-engine-go/risk"
)

// TWAPConfig 时间加权拆单参数：在 EndTime 前把 Quantity 均匀切成
// Interval 宽度的桶，每桶一张子单。
type TWAPConfig struct {
	Market   string
	Side     order.Side
	Quantity float64
	Interval time.Duration
	EndTime  time.Time
	// TakeThroughFrac 允许穿越参考价的最大滑点比例。
	TakeThroughFrac float64
	RejectLockout   time.Duration
}

// Validate implements Config.
func (c TWAPConfig) Validate() error {
	if c.Market == "" {
		return errors.New("market is required")
	}
	if c.Side != order.SideBuy && c.Side != order.SideSell {
		return errors.New("side must be BUY or SELL")
	}
	if c.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	if c.EndTime.IsZero() {
		return errors.New("endTime is required")
	}
	if c.TakeThroughFrac < 0 {
		return errors.New("takeThroughFrac must be >= 0")
	}
	return nil
}

func (c TWAPConfig) TargetQuantity() float64 { return c.Quantity }

func (c TWAPConfig) newStrategy(algoID string, lockouts *risk.LockoutManager) (Strategy, error) {
	return &twap{cfg: c, algoID: algoID, lockouts: lockouts}, nil
}

type twap struct {
	cfg      TWAPConfig
	algoID   string
	lockouts *risk.LockoutManager

	filled    float64
	nextSlice time.Time
	open      *decision.OpenOrder
	expired   bool
}

func (t *twap) Kind() Kind        { return KindTWAP }
func (t *twap) Markets() []string { return []string{t.cfg.Market} }

func (t *twap) Lockouts() LockoutDurations {
	return LockoutDurations{Reject: t.cfg.RejectLockout}
}

func (t *twap) Tick(now time.Time, book BookFn) ([]Action, error) {
	if t.Done() {
		return nil, nil
	}
	if now.After(t.cfg.EndTime) {
		t.expired = true
		return nil, nil
	}
	// 在途子单未结束前不追加，保证同侧最多一张在飞。
	if t.open != nil {
		return nil, nil
	}
	if t.lockouts.IsLocked(t.algoID, risk.LockoutReject) {
		return t.noop(decision.ReasonWithinRejectLockout), nil
	}
	if now.Before(t.nextSlice) {
		return nil, nil
	}

	snap, ok := book(t.cfg.Market)
	if !ok {
		return t.noop(decision.ReasonNoReferencePrice), nil
	}
	price, err := sliceLimitPrice(t.cfg.Side, snap, t.cfg.TakeThroughFrac)
	if err != nil {
		return t.noop(refErrReason(err)), nil
	}

	qty := t.sliceQuantity(now)
	if qty <= 0 {
		return nil, nil
	}
	t.nextSlice = now.Add(t.cfg.Interval)
	return []Action{{
		Market:   t.cfg.Market,
		Side:     t.cfg.Side,
		Decision: decision.Send(price, qty),
	}}, nil
}

// sliceQuantity 剩余数量均摊到剩余桶数。
func (t *twap) sliceQuantity(now time.Time) float64 {
	remaining := t.cfg.Quantity - t.filled
	if remaining <= 0 {
		return 0
	}
	buckets := math.Ceil(t.cfg.EndTime.Sub(now).Seconds() / t.cfg.Interval.Seconds())
	if buckets < 1 {
		buckets = 1
	}
	return remaining / buckets
}

func (t *twap) OnChildSubmitted(id string, o order.Order) {
	t.open = &decision.OpenOrder{ID: id, Price: o.Price}
}

func (t *twap) OnChildUpdate(id string, st order.State) {
	if t.open == nil || t.open.ID != id {
		return
	}
	if !st.Live() {
		t.open = nil
		return
	}
	t.open.Canceling = st.Canceling
}

func (t *twap) OnFill(id string, f order.Fill, delta float64) {
	t.filled += delta
}

func (t *twap) Done() bool {
	return t.expired || t.filled+1e-9 >= t.cfg.Quantity
}

func (t *twap) noop(reasons ...decision.Reason) []Action {
	return []Action{{
		Market:   t.cfg.Market,
		Side:     t.cfg.Side,
		Decision: decision.DoNothing(reasons...),
	}}
}

// sliceLimitPrice 以同侧可成交价为参考，按 takeThroughFrac 放宽成
// 可立即成交的限价。
func sliceLimitPrice(side order.Side, snap market.Snapshot, takeThroughFrac float64) (float64, error) {
	if side == order.SideBuy {
		if snap.Ask == nil {
			return 0, market.ErrNoAsk
		}
		return snap.Ask.Price * (1 + takeThroughFrac), nil
	}
	if snap.Bid == nil {
		return 0, market.ErrNoBid
	}
	return snap.Bid.Price * (1 - takeThroughFrac), nil
}

func refErrReason(err error) decision.Reason {
	switch {
	case errors.Is(err, market.ErrNoBid):
		return decision.ReasonNoBid
	case errors.Is(err, market.ErrNoAsk):
		return decision.ReasonNoAsk
	default:
		return decision.ReasonNoReferencePrice
	}
}
