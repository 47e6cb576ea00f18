package gateway

import (
	"fmt"
	"sync"
	"time"

	"algo-engine-go/market"
	"algo-engine-go/order"
)

// SimVenue 进程内仿真场所，dry-run 模式与测试使用。
// 行为：提交即 ACK；限价穿越最新盘口时立即全量成交并 OUT；
// 撤单即确认并 OUT。回报经 emit 投递，通常接 Router.Dispatch。
type SimVenue struct {
	cache *market.Cache
	emit  func(VenueEvent)

	mu      sync.Mutex
	fillSeq uint64
	open    map[string]order.Order
}

func NewSimVenue(cache *market.Cache, emit func(VenueEvent)) *SimVenue {
	return &SimVenue{
		cache: cache,
		emit:  emit,
		open:  make(map[string]order.Order),
	}
}

func (v *SimVenue) Submit(o order.Order) error {
	v.mu.Lock()
	v.open[o.ID] = o
	v.mu.Unlock()

	v.emit(VenueEvent{Kind: order.EventAck, OrderID: o.ID})
	v.tryCross(o)
	return nil
}

func (v *SimVenue) Cancel(orderID string) error {
	v.mu.Lock()
	_, ok := v.open[orderID]
	delete(v.open, orderID)
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("sim venue: unknown order %s", orderID)
	}
	v.emit(VenueEvent{Kind: order.EventCancelConfirm, OrderID: orderID})
	v.emit(VenueEvent{Kind: order.EventOut, OrderID: orderID})
	return nil
}

// OnSnapshot 行情推进时对全部在场订单重试撮合。
func (v *SimVenue) OnSnapshot(s market.Snapshot) {
	v.mu.Lock()
	pending := make([]order.Order, 0, len(v.open))
	for _, o := range v.open {
		if o.Market == s.Market {
			pending = append(pending, o)
		}
	}
	v.mu.Unlock()
	for _, o := range pending {
		v.tryCross(o)
	}
}

// tryCross 限价与对手价交叉即视为全量成交。
func (v *SimVenue) tryCross(o order.Order) {
	snap, ok := v.cache.Latest(o.Market)
	if !ok {
		return
	}
	var px float64
	if o.Side == order.SideBuy {
		if snap.Ask == nil || o.Price < snap.Ask.Price {
			return
		}
		px = snap.Ask.Price
	} else {
		if snap.Bid == nil || o.Price > snap.Bid.Price {
			return
		}
		px = snap.Bid.Price
	}

	v.mu.Lock()
	if _, live := v.open[o.ID]; !live {
		v.mu.Unlock()
		return
	}
	delete(v.open, o.ID)
	v.fillSeq++
	seq := v.fillSeq
	v.mu.Unlock()

	now := time.Now().UTC()
	v.emit(VenueEvent{
		Kind:    order.EventFill,
		OrderID: o.ID,
		Fill: &order.Fill{
			ID:        fmt.Sprintf("sim-fill-%d", seq),
			OrderID:   o.ID,
			Market:    o.Market,
			Side:      o.Side,
			Quantity:  o.Quantity,
			Price:     px,
			Kind:      order.FillNormal,
			TradeTime: now,
			RecvTime:  now,
		},
	})
	v.emit(VenueEvent{Kind: order.EventOut, OrderID: o.ID})
}
