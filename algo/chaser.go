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

// ChaserConfig 追价策略参数：单张子单贴着本方最优价挂出，
// 盘口移动超过 RepegTicks 个 tick 时撤单重挂，直到吃满或触及限价。
type ChaserConfig struct {
	Market   string
	Side     order.Side
	Quantity float64
	// LimitPrice 追价上限（买）/下限（卖），保护不被盘口拖走。
	LimitPrice   float64
	RepegTicks   float64
	TickSize     float64
	OrderLockout time.Duration
}

// Validate implements Config.
func (c ChaserConfig) Validate() error {
	if c.Market == "" {
		return errors.New("market is required")
	}
	if c.Side != order.SideBuy && c.Side != order.SideSell {
		return errors.New("side must be BUY or SELL")
	}
	if c.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	if c.LimitPrice <= 0 {
		return errors.New("limitPrice must be > 0")
	}
	if c.TickSize <= 0 {
		return errors.New("tickSize must be > 0")
	}
	if c.RepegTicks < 1 {
		return errors.New("repegTicks must be >= 1")
	}
	return nil
}

func (c ChaserConfig) TargetQuantity() float64 { return c.Quantity }

func (c ChaserConfig) newStrategy(algoID string, lockouts *risk.LockoutManager) (Strategy, error) {
	return &chaser{cfg: c, algoID: algoID, lockouts: lockouts}, nil
}

type chaser struct {
	cfg      ChaserConfig
	algoID   string
	lockouts *risk.LockoutManager

	filled float64
	open   *decision.OpenOrder
}

func (c *chaser) Kind() Kind        { return KindChaser }
func (c *chaser) Markets() []string { return []string{c.cfg.Market} }

func (c *chaser) Lockouts() LockoutDurations {
	return LockoutDurations{Order: c.cfg.OrderLockout}
}

func (c *chaser) Tick(now time.Time, book BookFn) ([]Action, error) {
	if c.Done() {
		return nil, nil
	}
	snap, ok := book(c.cfg.Market)
	if !ok {
		return c.noop(decision.ReasonNoReferencePrice), nil
	}

	peg, err := c.pegPrice(snap)
	if err != nil {
		return c.noop(refErrReason(err)), nil
	}

	if c.open != nil {
		if c.open.Canceling {
			return c.noop(decision.ReasonCancelPending), nil
		}
		// 盘口移动不足 RepegTicks 时保持现挂。
		if math.Abs(c.open.Price-peg) < c.cfg.RepegTicks*c.cfg.TickSize {
			return c.noop(decision.ReasonOpenOrderWithinTolerance), nil
		}
		return []Action{{
			Market:   c.cfg.Market,
			Side:     c.cfg.Side,
			Decision: decision.Cancel(c.open.ID, decision.ReasonOpenOrderOutsideTolerance),
		}}, nil
	}

	if c.lockouts.IsLocked(c.algoID, risk.LockoutOrder) {
		return c.noop(decision.ReasonWithinOrderLockout), nil
	}
	return []Action{{
		Market:   c.cfg.Market,
		Side:     c.cfg.Side,
		Decision: decision.Send(peg, c.cfg.Quantity-c.filled),
	}}, nil
}

// pegPrice 贴本方最优价，被动排队；超出限价时钉在限价上。
func (c *chaser) pegPrice(snap market.Snapshot) (float64, error) {
	var peg float64
	if c.cfg.Side == order.SideBuy {
		if snap.Bid == nil {
			return 0, market.ErrNoBid
		}
		peg = snap.Bid.Price
		if peg > c.cfg.LimitPrice {
			peg = c.cfg.LimitPrice
		}
	} else {
		if snap.Ask == nil {
			return 0, market.ErrNoAsk
		}
		peg = snap.Ask.Price
		if peg < c.cfg.LimitPrice {
			peg = c.cfg.LimitPrice
		}
	}
	return peg, nil
}

func (c *chaser) OnChildSubmitted(id string, o order.Order) {
	c.open = &decision.OpenOrder{ID: id, Price: o.Price}
}

func (c *chaser) OnChildUpdate(id string, st order.State) {
	if c.open == nil || c.open.ID != id {
		return
	}
	if !st.Live() {
		c.open = nil
		return
	}
	c.open.Canceling = st.Canceling
}

func (c *chaser) OnFill(id string, f order.Fill, delta float64) {
	c.filled += delta
}

func (c *chaser) Done() bool {
	return c.filled+1e-9 >= c.cfg.Quantity
}

func (c *chaser) noop(reasons ...decision.Reason) []Action {
	return []Action{{
		Market:   c.cfg.Market,
		Side:     c.cfg.Side,
		Decision: decision.DoNothing(reasons...),
	}}
}
