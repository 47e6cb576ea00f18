package market

import "time"

// Level 盘口单档：价格与挂量。
type Level struct {
	Price float64
	Size  float64
}

// Snapshot 单一市场的最新行情快照。不可变，跨 goroutine 按值共享。
// Bid/Ask 为 nil 表示该侧无报价。
type Snapshot struct {
	Market    string
	Bid       *Level
	Ask       *Level
	LastPrice float64
	// Volume 自行情源启动以来的累计成交量，POV 策略按差值取当期量。
	Volume float64
	Ts     time.Time
}

// Mid 返回中间价，任一侧缺失时第二个返回值为 false。
func (s Snapshot) Mid() (float64, bool) {
	if s.Bid == nil || s.Ask == nil {
		return 0, false
	}
	return (s.Bid.Price + s.Ask.Price) / 2, true
}

// Trade 逐笔成交行情。
type Trade struct {
	Market string
	Price  float64
	Size   float64
	Ts     time.Time
}
