package market

import (
	"sync"
	"time"
)

// Cache 保存每个市场的最新快照，行情按至少一次投递，后到覆盖先到。
// 引擎把最新快照视为当前事实。
type Cache struct {
	mu     sync.RWMutex
	latest map[string]Snapshot
}

// NewCache 创建空缓存。
func NewCache() *Cache {
	return &Cache{latest: make(map[string]Snapshot)}
}

// Update 写入快照。时间戳早于已有快照的乱序投递被丢弃。
func (c *Cache) Update(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.latest[s.Market]; ok && s.Ts.Before(cur.Ts) {
		return
	}
	c.latest[s.Market] = s
}

// Latest 返回市场最新快照。
func (c *Cache) Latest(m string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.latest[m]
	return s, ok
}

// AddTradeVolume 累加成交量到既有快照（逐笔成交流与盘口流分开投递时用）。
func (c *Cache) AddTradeVolume(t Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.latest[t.Market]
	if !ok {
		s = Snapshot{Market: t.Market, Ts: t.Ts}
	}
	s.Volume += t.Size
	s.LastPrice = t.Price
	if t.Ts.After(s.Ts) {
		s.Ts = t.Ts
	}
	c.latest[t.Market] = s
}

// StaleMarkets 返回超过 window 未更新的市场。
func (c *Cache) StaleMarkets(now time.Time, window time.Duration) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for m, s := range c.latest {
		if now.Sub(s.Ts) > window {
			out = append(out, m)
		}
	}
	return out
}
