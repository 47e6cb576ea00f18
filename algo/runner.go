package algo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"algo-engine-go/decision"
	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/market"
	"algo-engine-go/metrics"
	"algo-engine-go/order"
	"algo-engine-go/risk"
)

// Venue 下游交易所边界：只发不等，结果经回报事件异步到达。
type Venue interface {
	Submit(o order.Order) error
	Cancel(orderID string) error
}

// ChildUpdate 子单回报在状态机落账后的通知。
type ChildUpdate struct {
	OrderID       string
	Kind          order.EventKind
	State         order.State
	Fill          *order.Fill
	FillDelta     float64
	NotionalDelta float64
	Reason        string
}

type eventKind int

const (
	evControl eventKind = iota
	evUpdate
	evTunables
)

type runnerEvent struct {
	kind     eventKind
	cmd      Command
	update   ChildUpdate
	tunables Tunables
}

// RunnerDeps Runner 运行所需的共享组件。
type RunnerDeps struct {
	SM       *order.StateMachine
	Ledger   *order.Ledger
	Lockouts *risk.LockoutManager
	Venue    Venue
	Cache    *market.Cache
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Clock    risk.Clock
}

// Runner 单个算法实例的控制循环。策略回调、控制命令、子单回报
// 全部串行经过 run goroutine，循环内不持有跨 tick 的锁。
type Runner struct {
	id        string
	kind      Kind
	strategy  Strategy
	targetQty float64
	deps      RunnerDeps

	tickInterval time.Duration

	mu           sync.RWMutex
	status       Status
	statusReason string

	events chan runnerEvent
	done   chan struct{}
}

func newRunner(id string, kind Kind, s Strategy, targetQty float64, tick time.Duration, deps RunnerDeps) *Runner {
	if tick <= 0 {
		tick = time.Second
	}
	if deps.Clock == nil {
		deps.Clock = risk.NowUTC
	}
	return &Runner{
		id:           id,
		kind:         kind,
		strategy:     s,
		targetQty:    targetQty,
		deps:         deps,
		tickInterval: tick,
		status:       StatusRunning,
		events:       make(chan runnerEvent, 256),
		done:         make(chan struct{}),
	}
}

// Control 投递控制命令，在下一个安全点（两次决策之间）生效。
func (r *Runner) Control(cmd Command) error {
	switch cmd {
	case CommandStart, CommandPause, CommandStop:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidCommand, cmd)
	}
	r.enqueue(runnerEvent{kind: evControl, cmd: cmd})
	return nil
}

// EnqueueUpdate 投递子单回报。DONE 之后仍接收，用于收尾账务。
func (r *Runner) EnqueueUpdate(u ChildUpdate) {
	r.enqueue(runnerEvent{kind: evUpdate, update: u})
}

// ApplyTunables 投递热更参数，在串行点生效。不支持热更的策略忽略。
func (r *Runner) ApplyTunables(tn Tunables) {
	r.enqueue(runnerEvent{kind: evTunables, tunables: tn})
}

// enqueue 投递事件。run goroutine 已退出时直接丢弃，投递方不被卡死。
func (r *Runner) enqueue(ev runnerEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// Status 返回当前状态及原因（DONE 时说明收尾缘由）。
func (r *Runner) Status() (Status, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status, r.statusReason
}

// run 主事件循环。ctx 取消后退出；DONE 后不再处理 tick，
// 仅为迟到回报继续落账。
func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.onTick()
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Runner) onTick() {
	if st, _ := r.Status(); st != StatusRunning {
		return
	}
	if r.strategy.Done() {
		r.finish("target reached")
		return
	}

	now := r.deps.Clock.Now()
	actions, err := r.strategy.Tick(now, r.deps.Cache.Latest)
	if err != nil {
		// 策略错误只会是配置类（瞬态缺行情由策略自行挂空决策），终结实例即可。
		r.deps.Log.LogError(err, map[string]interface{}{"algo_id": r.id, "kind": string(r.kind)})
		r.finish("strategy error: " + err.Error())
		return
	}

	for _, a := range actions {
		r.recordDecision(a)
		switch a.Decision.Kind {
		case decision.KindSend:
			r.sendChild(a)
		case decision.KindCancel:
			r.cancelChild(a.Decision.TargetOrderID)
		}
	}

	if r.strategy.Done() {
		r.finish("target reached")
	}
}

func (r *Runner) handle(ev runnerEvent) {
	switch ev.kind {
	case evControl:
		r.applyControl(ev.cmd)
	case evUpdate:
		r.applyUpdate(ev.update)
	case evTunables:
		if s, ok := r.strategy.(tunable); ok {
			s.applyTunables(ev.tunables)
			r.deps.Log.LogOrder("tunables_applied", r.id, nil)
		}
	}
}

func (r *Runner) applyControl(cmd Command) {
	st, _ := r.Status()
	switch cmd {
	case CommandStart:
		if st == StatusPaused {
			r.setStatus(StatusRunning, "")
		}
	case CommandPause:
		if st == StatusRunning {
			r.setStatus(StatusPaused, "")
		}
	case CommandStop:
		r.finish("stopped by control command")
	}
}

func (r *Runner) applyUpdate(u ChildUpdate) {
	lockouts := r.strategy.Lockouts()
	switch u.Kind {
	case order.EventFill:
		if u.Fill != nil {
			ord, err := r.deps.SM.GetOrder(u.OrderID)
			if err == nil {
				r.deps.Ledger.AddFill(u.OrderID,
					signedDeltaForParent(ord.Side, r.kind, u.FillDelta),
					signedDeltaForParent(ord.Side, r.kind, u.NotionalDelta),
					r.targetQty)
			}
			r.armLockout(risk.LockoutFill, lockouts.Fill)
			r.strategy.OnFill(u.OrderID, *u.Fill, u.FillDelta)
			if r.deps.Metrics != nil {
				r.deps.Metrics.FilledQty.WithLabelValues(u.Fill.Market).Add(u.FillDelta)
				if u.State.Filled {
					r.deps.Metrics.OrdersFilled.WithLabelValues(u.Fill.Market).Inc()
				}
			}
		}
	case order.EventReject:
		r.armLockout(risk.LockoutReject, lockouts.Reject)
		if ord, err := r.deps.SM.GetOrder(u.OrderID); err == nil && r.deps.Metrics != nil {
			r.deps.Metrics.OrdersRejected.WithLabelValues(ord.Market).Inc()
		}
	case order.EventCancelConfirm:
		if ord, err := r.deps.SM.GetOrder(u.OrderID); err == nil && r.deps.Metrics != nil {
			r.deps.Metrics.OrdersCanceled.WithLabelValues(ord.Market).Inc()
		}
	}
	r.strategy.OnChildUpdate(u.OrderID, u.State)

	if st, _ := r.Status(); st == StatusRunning && r.strategy.Done() {
		r.finish("target reached")
	}
}

// sendChild 登记并下发一个子单。
func (r *Runner) sendChild(a Action) {
	o := order.Order{
		Market:      a.Market,
		Side:        a.Side,
		Price:       a.Decision.Price,
		Quantity:    a.Decision.Quantity,
		Type:        order.TypeLimit,
		TimeInForce: order.TIFGoodTilCanceled,
		Source:      "algo:" + string(r.kind),
		Parent:      &order.ParentRef{Kind: order.ParentAlgo, ID: r.id},
	}
	id, err := r.deps.SM.Submit(o)
	if err != nil {
		r.deps.Log.LogError(err, map[string]interface{}{"algo_id": r.id})
		return
	}
	o.ID = id
	if err := r.deps.Ledger.Link(order.ParentRef{Kind: order.ParentAlgo, ID: r.id}, id); err != nil {
		r.deps.Log.LogError(err, map[string]interface{}{"algo_id": r.id, "child": id})
	}
	r.strategy.OnChildSubmitted(id, o)

	if err := r.deps.Venue.Submit(o); err != nil {
		// 传输层失败按拒单落账，等锁定窗口过后重试。
		_ = r.deps.SM.ApplyReject(id, "venue submit: "+err.Error())
		r.armLockout(risk.LockoutReject, r.strategy.Lockouts().Reject)
		if st, gerr := r.deps.SM.Get(id); gerr == nil {
			r.strategy.OnChildUpdate(id, st)
		}
		return
	}
	r.armLockout(risk.LockoutOrder, r.strategy.Lockouts().Order)
	r.deps.Log.LogOrder("child_submitted", id, map[string]interface{}{
		"algo_id": r.id, "market": a.Market, "side": string(a.Side),
		"price": a.Decision.Price, "qty": a.Decision.Quantity,
	})
	if r.deps.Metrics != nil {
		r.deps.Metrics.OrdersSubmitted.WithLabelValues(a.Market).Inc()
	}
}

func (r *Runner) cancelChild(id string) {
	if err := r.deps.SM.ApplyCancelRequest(id); err != nil {
		r.deps.Log.LogError(err, map[string]interface{}{"algo_id": r.id, "child": id})
		return
	}
	if err := r.deps.Venue.Cancel(id); err != nil {
		r.deps.Log.LogError(err, map[string]interface{}{"algo_id": r.id, "child": id})
	}
	if st, err := r.deps.SM.Get(id); err == nil {
		r.strategy.OnChildUpdate(id, st)
	}
	r.deps.Log.LogOrder("child_cancel_requested", id, map[string]interface{}{"algo_id": r.id})
}

// finish 进入终态：同步请求撤掉全部在途子单，不等确认。
func (r *Runner) finish(reason string) {
	if st, _ := r.Status(); st == StatusDone {
		return
	}
	parent := order.ParentRef{Kind: order.ParentAlgo, ID: r.id}
	for _, child := range r.deps.Ledger.Children(parent) {
		st, err := r.deps.SM.Get(child)
		if err != nil || !st.Live() || st.Canceling {
			continue
		}
		r.cancelChild(child)
	}
	r.setStatus(StatusDone, reason)
	if r.deps.Metrics != nil {
		r.deps.Metrics.ActiveAlgos.Dec()
	}
	r.deps.Log.LogOrder("algo_done", r.id, map[string]interface{}{"reason": reason})
}

func (r *Runner) setStatus(st Status, reason string) {
	r.mu.Lock()
	r.status = st
	r.statusReason = reason
	r.mu.Unlock()
}

func (r *Runner) armLockout(kind risk.LockoutKind, d time.Duration) {
	if d <= 0 {
		return
	}
	r.deps.Lockouts.Arm(r.id, kind, d)
	if r.deps.Metrics != nil {
		r.deps.Metrics.LockoutsArmed.WithLabelValues(string(kind)).Inc()
	}
}

func (r *Runner) recordDecision(a Action) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.DecisionsTotal.WithLabelValues(string(r.kind), a.Decision.Kind.String()).Inc()
	}
	reasons := make([]string, len(a.Decision.Reasons))
	for i, reason := range a.Decision.Reasons {
		reasons[i] = string(reason)
	}
	r.deps.Log.LogDecision(r.id, a.Decision.Kind.String(), reasons, map[string]interface{}{
		"market": a.Market, "side": string(a.Side),
	})
}

// signedDeltaForParent 台账聚合按绝对进度记账：
// 单向执行类算法（TWAP/POV/SOR/Chaser）正向累计；做市类按净仓位记。
func signedDeltaForParent(side order.Side, kind Kind, delta float64) float64 {
	switch kind {
	case KindMarketMaker, KindSpread:
		return signedDelta(side, delta)
	default:
		return delta
	}
}
