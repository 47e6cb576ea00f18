package order

import (
	"fmt"
	"sync"
)

// Aggregate 父单维度的成交汇总。
type Aggregate struct {
	Qty      float64
	Notional float64
	AvgPrice float64
}

// Ledger 维护父单→子单集合关系并聚合成交进度。
// 只持有订单 ID 的弱引用，订单状态本身归 StateMachine 所有。
type Ledger struct {
	mu       sync.RWMutex
	children map[ParentRef][]string
	parentOf map[string]ParentRef
	agg      map[ParentRef]*Aggregate

	// 超出目标数量的容忍比例（如 0.01 = 1%），超过则上报异常。
	overfillTolerance float64
	sink              AnomalySink
}

// NewLedger 创建空台账。
func NewLedger(overfillTolerance float64, sink AnomalySink) *Ledger {
	return &Ledger{
		children:          make(map[ParentRef][]string),
		parentOf:          make(map[string]ParentRef),
		agg:               make(map[ParentRef]*Aggregate),
		overfillTolerance: overfillTolerance,
		sink:              sink,
	}
}

// Link 登记父子关系。一个子单只能有一个父单。
func (l *Ledger) Link(parent ParentRef, childID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.parentOf[childID]; ok {
		return fmt.Errorf("order %s already linked to %s %s", childID, prev.Kind, prev.ID)
	}
	l.parentOf[childID] = parent
	l.children[parent] = append(l.children[parent], childID)
	if _, ok := l.agg[parent]; !ok {
		l.agg[parent] = &Aggregate{}
	}
	return nil
}

// Children 返回父单名下全部子单 ID（副本）。
func (l *Ledger) Children(parent ParentRef) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.children[parent]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Parent 返回子单的父单引用。
func (l *Ledger) Parent(childID string) (ParentRef, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.parentOf[childID]
	return p, ok
}

// AddFill 按 StateMachine 去重后的增量聚合成交。
// deltaQty/deltaNotional 为 ApplyFill 的返回值，REVERSAL 时为负，
// CORRECTION 只带名义金额增量（数量为 0，改价生效到均价）。
func (l *Ledger) AddFill(childID string, deltaQty, deltaNotional, targetQty float64) {
	if deltaQty == 0 && deltaNotional == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	parent, ok := l.parentOf[childID]
	if !ok {
		return
	}
	a := l.agg[parent]
	a.Qty += deltaQty
	a.Notional += deltaNotional
	if a.Qty > qtyEps {
		a.AvgPrice = a.Notional / a.Qty
	} else {
		a.AvgPrice = 0
	}
	if targetQty > 0 && a.Qty > targetQty*(1+l.overfillTolerance) && l.sink != nil {
		l.sink("overfill", map[string]interface{}{
			"parent": parent.ID,
			"qty":    a.Qty,
			"target": targetQty,
		})
	}
}

// FillsFor 返回父单成交汇总。
func (l *Ledger) FillsFor(parent ParentRef) Aggregate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.agg[parent]; ok {
		return *a
	}
	return Aggregate{}
}

// FractionComplete 返回完成比例 filled/target，钳制到 [0,1]。
func (l *Ledger) FractionComplete(parent ParentRef, targetQty float64) float64 {
	if targetQty <= 0 {
		return 0
	}
	frac := l.FillsFor(parent).Qty / targetQty
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}
