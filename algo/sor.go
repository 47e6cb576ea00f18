package algo

import (
	"errors"
	"sort"
	"time"

	"algo-engine-go/decision"
	"algo-engine-go/order"
	"algo-engine-go/risk"
)

// SORConfig 智能路由参数：把一张逻辑单拆到多个市场，只路由到
// 价格不劣于 LimitPrice 的盘口。
type SORConfig struct {
	Markets    []string
	Side       order.Side
	Quantity   float64
	LimitPrice float64
	// ExecutionTimeLimit 超时后实例收尾，未成交部分放弃。
	ExecutionTimeLimit time.Duration
	// Preview 只算路由计划不真正下单。
	Preview bool
}

// Validate implements Config.
func (c SORConfig) Validate() error {
	if len(c.Markets) == 0 {
		return errors.New("at least one market is required")
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
	if c.ExecutionTimeLimit <= 0 {
		return errors.New("executionTimeLimit must be > 0")
	}
	return nil
}

func (c SORConfig) TargetQuantity() float64 { return c.Quantity }

func (c SORConfig) newStrategy(algoID string, lockouts *risk.LockoutManager) (Strategy, error) {
	return &sor{cfg: c, algoID: algoID, open: make(map[string]float64)}, nil
}

// RouteLeg 路由计划中的一腿。
type RouteLeg struct {
	Market   string
	Price    float64
	Quantity float64
}

type sor struct {
	cfg    SORConfig
	algoID string

	start    time.Time
	filled   float64
	open     map[string]float64 // 子单 ID → 在途数量
	inflight float64
	plan     []RouteLeg
	done     bool
}

func (s *sor) Kind() Kind        { return KindSOR }
func (s *sor) Markets() []string { return s.cfg.Markets }

func (s *sor) Lockouts() LockoutDurations { return LockoutDurations{} }

func (s *sor) Tick(now time.Time, book BookFn) ([]Action, error) {
	if s.done {
		return nil, nil
	}
	if s.start.IsZero() {
		s.start = now
	}
	if now.Sub(s.start) > s.cfg.ExecutionTimeLimit {
		s.done = true
		return nil, nil
	}

	remaining := s.cfg.Quantity - s.filled - s.inflight
	if remaining <= 0 {
		return nil, nil
	}

	legs := s.routePlan(remaining, book)
	if len(legs) == 0 {
		return nil, nil
	}

	if s.cfg.Preview {
		// 预览模式：记录同一套计划，不提交任何子单。
		s.plan = legs
		s.done = true
		return nil, nil
	}

	actions := make([]Action, 0, len(legs))
	for _, leg := range legs {
		actions = append(actions, Action{
			Market:   leg.Market,
			Side:     s.cfg.Side,
			Decision: decision.Send(leg.Price, leg.Quantity),
		})
	}
	return actions, nil
}

// routePlan 按价格优先把 remaining 分配到不劣于限价的市场盘口。
func (s *sor) routePlan(remaining float64, book BookFn) []RouteLeg {
	type candidate struct {
		mkt   string
		price float64
		size  float64
	}
	var candidates []candidate
	for _, mkt := range s.cfg.Markets {
		snap, ok := book(mkt)
		if !ok {
			continue
		}
		level := touchLevel(s.cfg.Side, snap)
		if level == nil || level.Size <= 0 {
			continue
		}
		if breachesLimit(s.cfg.Side, level.Price, s.cfg.LimitPrice) {
			continue
		}
		candidates = append(candidates, candidate{mkt: mkt, price: level.Price, size: level.Size})
	}
	// 买从低到高、卖从高到低吃价。
	sort.Slice(candidates, func(i, j int) bool {
		if s.cfg.Side == order.SideBuy {
			return candidates[i].price < candidates[j].price
		}
		return candidates[i].price > candidates[j].price
	})

	var legs []RouteLeg
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		qty := c.size
		if qty > remaining {
			qty = remaining
		}
		legs = append(legs, RouteLeg{Market: c.mkt, Price: c.price, Quantity: qty})
		remaining -= qty
	}
	return legs
}

// Plan 返回预览模式计算出的路由计划。
func (s *sor) Plan() []RouteLeg {
	out := make([]RouteLeg, len(s.plan))
	copy(out, s.plan)
	return out
}

func (s *sor) OnChildSubmitted(id string, o order.Order) {
	s.open[id] = o.Quantity
	s.inflight += o.Quantity
}

func (s *sor) OnChildUpdate(id string, st order.State) {
	qty, ok := s.open[id]
	if !ok {
		return
	}
	if !st.Live() {
		delete(s.open, id)
		s.inflight -= qty
	}
}

func (s *sor) OnFill(id string, f order.Fill, delta float64) {
	s.filled += delta
	if qty, ok := s.open[id]; ok {
		// 在途量按成交冲减，避免重复路由。
		remaining := qty - delta
		if remaining < 0 {
			remaining = 0
		}
		s.open[id] = remaining
		s.inflight -= qty - remaining
	}
	if s.filled+1e-9 >= s.cfg.Quantity {
		s.done = true
	}
}

func (s *sor) Done() bool { return s.done }
