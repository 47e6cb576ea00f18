package risk

import (
	"sync"
	"time"
)

// LockoutKind 锁定窗口类型。
type LockoutKind string

const (
	LockoutFill   LockoutKind = "fill"
	LockoutOrder  LockoutKind = "order"
	LockoutReject LockoutKind = "reject"
)

type lockoutKey struct {
	family string
	kind   LockoutKind
}

// LockoutManager 维护按订单族划分的冷却窗口。
// 纯时间索引：Arm 记录过期时刻，IsLocked 与当前时间比较，
// 过期条目逻辑上不存在。进程重启后状态不保留。
type LockoutManager struct {
	mu      sync.Mutex
	clock   Clock
	entries map[lockoutKey]time.Time

	// 懒清理计数，Arm 每达到 sweepEvery 次扫一遍过期项。
	armCount   int
	sweepEvery int
}

// NewLockoutManager 创建锁定管理器。clock 为 nil 时使用 NowUTC。
func NewLockoutManager(clock Clock) *LockoutManager {
	if clock == nil {
		clock = NowUTC
	}
	return &LockoutManager{
		clock:      clock,
		entries:    make(map[lockoutKey]time.Time),
		sweepEvery: 256,
	}
}

// Arm 设置锁定窗口 [now, now+d)。d<=0 为空操作。
// 同族同类型重复 Arm 取较晚的过期时刻。
func (m *LockoutManager) Arm(family string, kind LockoutKind, d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := lockoutKey{family: family, kind: kind}
	expiry := m.clock.Now().Add(d)
	if cur, ok := m.entries[key]; !ok || expiry.After(cur) {
		m.entries[key] = expiry
	}
	m.armCount++
	if m.armCount%m.sweepEvery == 0 {
		m.sweepLocked()
	}
}

// IsLocked 查询当前是否处于锁定窗口内。过期时刻本身视为未锁定。
func (m *LockoutManager) IsLocked(family string, kind LockoutKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := lockoutKey{family: family, kind: kind}
	expiry, ok := m.entries[key]
	if !ok {
		return false
	}
	if !m.clock.Now().Before(expiry) {
		delete(m.entries, key)
		return false
	}
	return true
}

// Remaining 返回剩余锁定时长，未锁定时为 0。
func (m *LockoutManager) Remaining(family string, kind LockoutKind) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.entries[lockoutKey{family: family, kind: kind}]
	if !ok {
		return 0
	}
	if r := expiry.Sub(m.clock.Now()); r > 0 {
		return r
	}
	return 0
}

func (m *LockoutManager) sweepLocked() {
	now := m.clock.Now()
	for k, expiry := range m.entries {
		if !now.Before(expiry) {
			delete(m.entries, k)
		}
	}
}
