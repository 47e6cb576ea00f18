package algo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"algo-engine-go/market"
	"algo-engine-go/order"
)

// Info 实例概要，供查询接口使用。
type Info struct {
	ID           string
	Kind         Kind
	Status       Status
	StatusReason string
	Markets      []string
}

// Registry 进程级算法实例表：创建/控制/查询的唯一入口。
// 实例记录由 Registry 独占持有，生命周期随进程启停，显式传引用，
// 不做隐式单例。
type Registry struct {
	deps         RunnerDeps
	tickInterval time.Duration

	mu      sync.RWMutex
	runners map[string]*Runner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry 创建实例表。tickInterval 为各实例的决策周期。
func NewRegistry(deps RunnerDeps, tickInterval time.Duration) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		deps:         deps,
		tickInterval: tickInterval,
		runners:      make(map[string]*Runner),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Create 校验配置并启动一个算法实例。id 为空时自动分配。
// 同一 id 已存在（无论状态）时返回 ErrDuplicateAlgo。
func (r *Registry) Create(id string, kind Kind, cfg Config) (string, error) {
	if err := checkKind(kind, cfg); err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if id == "" {
		id = allocateID(kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runners[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateAlgo, id)
	}

	strat, err := cfg.newStrategy(id, r.deps.Lockouts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	runner := newRunner(id, kind, strat, cfg.TargetQuantity(), r.tickInterval, r.deps)
	r.runners[id] = runner

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		runner.run(r.ctx)
	}()

	if r.deps.Metrics != nil {
		r.deps.Metrics.ActiveAlgos.Inc()
	}
	r.deps.Log.LogOrder("algo_created", id, map[string]interface{}{"kind": string(kind)})
	return id, nil
}

// Control 向实例转发控制命令。
func (r *Registry) Control(id string, cmd Command) error {
	runner, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlgo, id)
	}
	return runner.Control(cmd)
}

// Status 返回实例运行状态。
func (r *Registry) Status(id string) (Status, error) {
	runner, ok := r.lookup(id)
	if !ok {
		return StatusDone, fmt.Errorf("%w: %s", ErrUnknownAlgo, id)
	}
	st, _ := runner.Status()
	return st, nil
}

// List 返回全部实例概要。
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.runners))
	for id, runner := range r.runners {
		st, reason := runner.Status()
		out = append(out, Info{
			ID:           id,
			Kind:         runner.kind,
			Status:       st,
			StatusReason: reason,
			Markets:      runner.strategy.Markets(),
		})
	}
	return out
}

// ApplyTunables 向实例下发热更参数，配置热加载时调用。
func (r *Registry) ApplyTunables(id string, tn Tunables) error {
	runner, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlgo, id)
	}
	runner.ApplyTunables(tn)
	return nil
}

// FractionComplete 返回实例完成比例。
func (r *Registry) FractionComplete(id string) (float64, error) {
	runner, ok := r.lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAlgo, id)
	}
	if runner.targetQty <= 0 {
		return 0, nil
	}
	parent := order.ParentRef{Kind: order.ParentAlgo, ID: id}
	return r.deps.Ledger.FractionComplete(parent, runner.targetQty), nil
}

// OnSnapshot 行情入口：刷新快照缓存。各实例在下一个 tick 读到最新值。
func (r *Registry) OnSnapshot(s market.Snapshot) {
	r.deps.Cache.Update(s)
	if r.deps.Metrics != nil {
		r.deps.Metrics.FeedSnapshots.WithLabelValues(s.Market).Inc()
	}
}

// OnChildUpdate 回报入口：按子单找到属主实例转发。
// 找不到属主的回报已由状态机按异常留痕，这里静默丢弃。
func (r *Registry) OnChildUpdate(u ChildUpdate) {
	parent, ok := r.deps.Ledger.Parent(u.OrderID)
	if !ok || parent.Kind != order.ParentAlgo {
		return
	}
	runner, ok := r.lookup(parent.ID)
	if !ok {
		return
	}
	runner.EnqueueUpdate(u)
}

// Shutdown 停止全部实例：逐个 STOP（撤在途子单），等命令在各自的
// 安全点落地后取消上下文并等待退出。
func (r *Registry) Shutdown(timeout time.Duration) {
	for _, runner := range r.snapshotRunners() {
		_ = runner.Control(CommandStop)
	}

	deadline := time.Now().Add(timeout)
	for _, runner := range r.snapshotRunners() {
		for {
			if st, _ := runner.Status(); st == StatusDone || time.Now().After(deadline) {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	r.cancel()
	r.wg.Wait()
}

func (r *Registry) lookup(id string) (*Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[id]
	return runner, ok
}

func (r *Registry) snapshotRunners() []*Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Runner, 0, len(r.runners))
	for _, runner := range r.runners {
		out = append(out, runner)
	}
	return out
}

func checkKind(kind Kind, cfg Config) error {
	var ok bool
	switch cfg.(type) {
	case MarketMakerConfig:
		ok = kind == KindMarketMaker || kind == KindSpread
	case TWAPConfig:
		ok = kind == KindTWAP
	case POVConfig:
		ok = kind == KindPOV
	case SORConfig:
		ok = kind == KindSOR
	case ChaserConfig:
		ok = kind == KindChaser
	}
	if !ok {
		return fmt.Errorf("%w: config type does not match kind %s", ErrConfiguration, kind)
	}
	return nil
}

var idSeq struct {
	mu sync.Mutex
	n  uint64
}

// allocateID 进程内唯一的算法单 ID。
func allocateID(kind Kind) string {
	idSeq.mu.Lock()
	idSeq.n++
	n := idSeq.n
	idSeq.mu.Unlock()
	return fmt.Sprintf("%s-%d-%d", kindPrefix(kind), time.Now().UTC().Unix(), n)
}

func kindPrefix(kind Kind) string {
	switch kind {
	case KindMarketMaker:
		return "mm"
	case KindSpread:
		return "spr"
	case KindTWAP:
		return "twap"
	case KindPOV:
		return "pov"
	case KindSOR:
		return "sor"
	case KindChaser:
		return "chase"
	default:
		return "algo"
	}
}
