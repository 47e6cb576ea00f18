package gateway

import (
	"context"
	"hash/fnv"
	"sync"

	"algo-engine-go/algo"
	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/order"
)

// VenueEvent 场所入向回报。
type VenueEvent struct {
	Kind    order.EventKind
	OrderID string
	Fill    *order.Fill
	Reason  string
}

// Notify 回报落账后的下游通知，通常接 Registry.OnChildUpdate。
type Notify func(algo.ChildUpdate)

// Router 把入向回报按订单 ID 哈希分片到固定 worker。
// 同一订单的事件始终落在同一 worker，保证按到达顺序落账；
// 不同订单互不阻塞。
type Router struct {
	sm     *order.StateMachine
	notify Notify
	log    *logger.Logger

	shards []chan VenueEvent
	wg     sync.WaitGroup
}

// NewRouter 创建 shards 个 worker 的路由器。
func NewRouter(sm *order.StateMachine, shards int, notify Notify, log *logger.Logger) *Router {
	if shards <= 0 {
		shards = 4
	}
	r := &Router{sm: sm, notify: notify, log: log}
	r.shards = make([]chan VenueEvent, shards)
	for i := range r.shards {
		r.shards[i] = make(chan VenueEvent, 1024)
	}
	return r
}

// Start 启动全部 worker。ctx 取消后各 worker 排空自己的队列退出。
func (r *Router) Start(ctx context.Context) {
	for _, ch := range r.shards {
		r.wg.Add(1)
		go r.worker(ctx, ch)
	}
}

// Dispatch 投递一条回报。满队列时阻塞，对上游形成背压。
func (r *Router) Dispatch(ev VenueEvent) {
	r.shards[r.shardOf(ev.OrderID)] <- ev
}

// Wait 阻塞到全部 worker 退出。
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) shardOf(orderID string) int {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return int(h.Sum32() % uint32(len(r.shards)))
}

func (r *Router) worker(ctx context.Context, ch chan VenueEvent) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-ch:
					r.apply(ev)
				default:
					return
				}
			}
		case ev := <-ch:
			r.apply(ev)
		}
	}
}

// apply 把回报写入状态机并通知下游。未知订单由状态机报错，
// 记日志后丢弃，不中断路由。
func (r *Router) apply(ev VenueEvent) {
	var (
		delta    float64
		notional float64
		err      error
	)
	switch ev.Kind {
	case order.EventAck:
		err = r.sm.ApplyAck(ev.OrderID)
	case order.EventReject:
		err = r.sm.ApplyReject(ev.OrderID, ev.Reason)
	case order.EventFill:
		if ev.Fill != nil {
			delta, notional, err = r.sm.ApplyFill(ev.OrderID, *ev.Fill)
		}
	case order.EventCancelConfirm:
		err = r.sm.ApplyCancelConfirm(ev.OrderID)
	case order.EventOut:
		err = r.sm.ApplyOut(ev.OrderID)
	default:
		r.log.LogAnomaly("unroutable_event", map[string]interface{}{
			"order_id": ev.OrderID, "kind": string(ev.Kind),
		})
		return
	}
	if err != nil {
		r.log.LogError(err, map[string]interface{}{
			"order_id": ev.OrderID, "kind": string(ev.Kind),
		})
		return
	}

	st, err := r.sm.Get(ev.OrderID)
	if err != nil {
		return
	}
	if r.notify != nil {
		r.notify(algo.ChildUpdate{
			OrderID:   ev.OrderID,
			Kind:      ev.Kind,
			State:     st,
			Fill:          ev.Fill,
			FillDelta:     delta,
			NotionalDelta: notional,
			Reason:        ev.Reason,
		})
	}
}
