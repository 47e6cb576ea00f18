package order

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrUnknownOrder   = errors.New("unknown order")
	ErrDuplicateOrder = errors.New("duplicate order")
)

// AnomalySink 接收无法正常应用的回报事件（终态后成交、未知订单等），
// 供告警/审计组件消费，绝不中断引擎。
type AnomalySink func(event string, fields map[string]interface{})

// qtyEps 数量比较容差，避免浮点累加误差导致 FILLED 判定抖动。
const qtyEps = 1e-9

// StateMachine 订单状态的唯一持有者。所有回报（ack/reject/fill/out）
// 都通过这里落账；同一订单的变更由调用方保证串行（见 gateway.Router）。
type StateMachine struct {
	mu     sync.RWMutex
	orders map[string]*entry
	sink   AnomalySink

	now func() time.Time // 可注入，便于测试
}

type entry struct {
	order     Order
	state     State
	seenFills map[string]struct{}
	notional  float64 // 已成交名义金额，用于均价
	events    []Event
}

// NewStateMachine 创建空的状态机。sink 可为 nil。
func NewStateMachine(sink AnomalySink) *StateMachine {
	return &StateMachine{
		orders: make(map[string]*entry),
		sink:   sink,
		now:    time.Now,
	}
}

// Submit 登记新订单并进入 OPEN。ID 为空时自动生成。
func (m *StateMachine) Submit(o Order) (string, error) {
	if o.ID == "" {
		o.ID = generateID(o.Source)
	}
	if o.Type == "" {
		o.Type = TypeLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
	}
	e := &entry{
		order:     o,
		state:     State{Open: true, LastUpdate: m.now()},
		seenFills: make(map[string]struct{}),
	}
	e.events = append(e.events, Event{Kind: EventSubmit, Ts: e.state.LastUpdate,
		Detail: fmt.Sprintf("%s %s %.8f@%.8f", o.Side, o.Market, o.Quantity, o.Price)})
	m.orders[o.ID] = e
	return o.ID, nil
}

// ApplyAck 交易所确认订单。
func (m *StateMachine) ApplyAck(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.orders[id]
	if !ok {
		m.anomaly("aberrant_ack", id, "ack for unknown order")
		return fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if e.state.Out || e.state.Canceled || e.state.Rejected {
		// 终态后的 ack 只留痕，不重开订单。
		e.append(Event{Kind: EventAck, Ts: m.now(), Detail: "ack after terminal", Anomaly: true})
		m.anomaly("aberrant_ack", id, "ack after terminal state")
		return nil
	}
	if e.state.Acked {
		e.append(Event{Kind: EventAck, Ts: m.now(), Detail: "duplicate ack", Anomaly: true})
		return nil
	}
	e.state.Acked = true
	e.touch(m.now())
	e.append(Event{Kind: EventAck, Ts: e.state.LastUpdate})
	return nil
}

// ApplyReject 交易所拒绝订单，进入终态 REJECTED。
func (m *StateMachine) ApplyReject(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.orders[id]
	if !ok {
		m.anomaly("aberrant_reject", id, reason)
		return fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if e.state.Terminal() {
		e.append(Event{Kind: EventReject, Ts: m.now(), Detail: "duplicate terminal: " + reason, Anomaly: true})
		return nil
	}
	e.state.Rejected = true
	e.state.Open = false
	e.state.Canceling = false
	e.state.RejectReason = reason
	e.touch(m.now())
	e.append(Event{Kind: EventReject, Ts: e.state.LastUpdate, Detail: reason})
	return nil
}

// ApplyFill 落账一笔成交，按成交 ID 幂等去重。
// 返回本次实际生效的数量增量（REVERSAL 为负，重复/CORRECTION 为 0）
// 与名义金额增量（CORRECTION 只动金额不动数量），供父单台账聚合。
func (m *StateMachine) ApplyFill(id string, f Fill) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.orders[id]
	if !ok {
		m.anomaly("aberrant_fill", id, "fill for unknown order: "+f.ID)
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if _, dup := e.seenFills[f.ID]; dup {
		e.append(Event{Kind: EventFill, Ts: m.now(), Detail: "duplicate fill " + f.ID, Anomaly: true})
		return 0, 0, nil
	}
	e.seenFills[f.ID] = struct{}{}

	afterTerminal := e.state.Out || e.state.Canceled || e.state.Rejected

	var delta, deltaNotional float64
	switch f.Kind {
	case FillReversal:
		delta = -f.Quantity
		deltaNotional = -f.Quantity * f.Price
		e.state.FilledQty -= f.Quantity
	case FillCorrection:
		// 数量不变，仅修正已记录数量的价格。
		if e.state.FilledQty > qtyEps {
			deltaNotional = f.Quantity * (f.Price - e.state.AvgFillPrice)
		}
	default:
		delta = f.Quantity
		deltaNotional = f.Quantity * f.Price
		e.state.FilledQty += f.Quantity
	}
	e.notional += deltaNotional
	if e.state.FilledQty > qtyEps {
		e.state.AvgFillPrice = e.notional / e.state.FilledQty
	} else {
		e.state.AvgFillPrice = 0
	}

	if afterTerminal {
		// 终态后的成交：更新数量/均价供对账，不重开订单。
		e.append(Event{Kind: EventFill, Ts: m.now(),
			Detail: fmt.Sprintf("fill %s after terminal %.8f@%.8f", f.ID, f.Quantity, f.Price), Anomaly: true})
		m.anomaly("aberrant_fill", id, "fill after terminal state: "+f.ID)
		return delta, deltaNotional, nil
	}

	if e.state.FilledQty+qtyEps >= e.order.Quantity {
		e.state.Filled = true
		// 成交赢得与撤单的竞争，后续撤单确认视为空操作。
		e.state.Canceling = false
	} else if e.state.Filled && e.state.FilledQty+qtyEps < e.order.Quantity {
		// REVERSAL 把已满状态拉回部分成交。
		e.state.Filled = false
	}
	e.touch(m.now())
	e.append(Event{Kind: EventFill, Ts: e.state.LastUpdate,
		Detail: fmt.Sprintf("%s %.8f@%.8f", f.ID, f.Quantity, f.Price)})
	return delta, deltaNotional, nil
}

// ApplyCancelRequest 标记撤单中。仅 OPEN/ACKED 且未成交完时有效。
func (m *StateMachine) ApplyCancelRequest(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if e.state.Terminal() || e.state.Canceled || e.state.Filled {
		e.append(Event{Kind: EventCancelRequest, Ts: m.now(), Detail: "cancel on closed order", Anomaly: true})
		return nil
	}
	if e.state.Canceling {
		return nil
	}
	e.state.Canceling = true
	e.touch(m.now())
	e.append(Event{Kind: EventCancelRequest, Ts: e.state.LastUpdate})
	return nil
}

// ApplyCancelConfirm 交易所确认撤单。若成交先到则为空操作。
func (m *StateMachine) ApplyCancelConfirm(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.orders[id]
	if !ok {
		m.anomaly("aberrant_cancel", id, "cancel confirm for unknown order")
		return fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if e.state.Filled {
		// 撤单与成交竞争失败。
		e.append(Event{Kind: EventCancelConfirm, Ts: m.now(), Detail: "lost race to fill", Anomaly: true})
		return nil
	}
	if e.state.Out || e.state.Canceled {
		e.append(Event{Kind: EventCancelConfirm, Ts: m.now(), Detail: "duplicate terminal", Anomaly: true})
		return nil
	}
	e.state.Canceled = true
	e.state.Canceling = false
	e.state.Open = false
	e.touch(m.now())
	e.append(Event{Kind: EventCancelConfirm, Ts: e.state.LastUpdate})
	return nil
}

// ApplyOut 交易所声明该订单不再有后续更新，进入终态。
func (m *StateMachine) ApplyOut(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.orders[id]
	if !ok {
		m.anomaly("aberrant_out", id, "out for unknown order")
		return fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	if e.state.Out {
		e.append(Event{Kind: EventOut, Ts: m.now(), Detail: "duplicate out", Anomaly: true})
		return nil
	}
	e.state.Out = true
	e.state.Open = false
	e.state.Canceling = false
	e.touch(m.now())
	e.append(Event{Kind: EventOut, Ts: e.state.LastUpdate})
	return nil
}

// Get 返回订单当前状态快照。
func (m *StateMachine) Get(id string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.orders[id]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	return e.state, nil
}

// GetOrder 返回订单不可变字段。
func (m *StateMachine) GetOrder(id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	return e.order, nil
}

// Log 返回订单完整审计日志（只读副本）。
func (m *StateMachine) Log(id string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out, nil
}

// MarkStaleOlderThan 给超过 window 未更新的存活订单打上 STALE 标志，
// 返回本次新标记的订单 ID。STALE 不阻塞其他转换，下次回报自动清除。
func (m *StateMachine) MarkStaleOlderThan(window time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-window)
	var marked []string
	for id, e := range m.orders {
		if !e.state.Live() || e.state.Stale {
			continue
		}
		if e.state.LastUpdate.Before(cutoff) {
			e.state.Stale = true
			marked = append(marked, id)
		}
	}
	return marked
}

// LiveOrders 返回仍可能成交的订单 ID（引擎关停时用于兜底撤单）。
func (m *StateMachine) LiveOrders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, e := range m.orders {
		if e.state.Live() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *entry) touch(now time.Time) {
	e.state.LastUpdate = now
	e.state.Stale = false
}

func (e *entry) append(ev Event) {
	e.events = append(e.events, ev)
}

func (m *StateMachine) anomaly(event, orderID, detail string) {
	if m.sink == nil {
		return
	}
	m.sink(event, map[string]interface{}{
		"order_id": orderID,
		"detail":   detail,
	})
}

// generateID 简单生成唯一 ID。生产环境应改为雪花/UUID。
func generateID(prefix string) string {
	if prefix == "" {
		prefix = "ord"
	}
	return prefix + "-" + time.Now().UTC().Format("20060102150405.000000000")
}
