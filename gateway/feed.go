package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/market"
)

// feedMessage 行情 WS 线格式。ts 为毫秒时间戳。
type feedMessage struct {
	Market  string  `json:"market"`
	Bid     float64 `json:"bid"`
	BidSize float64 `json:"bidSize"`
	Ask     float64 `json:"ask"`
	AskSize float64 `json:"askSize"`
	Last    float64 `json:"last"`
	Volume  float64 `json:"volume"`
	Ts      int64   `json:"ts"`
}

// Feed 行情 WS 客户端：连接、读消息、解析成快照推给 onSnapshot，
// 断线按指数退避重连。
type Feed struct {
	URL        string
	Dialer     *websocket.Dialer
	onSnapshot func(market.Snapshot)
	log        *logger.Logger

	// ReadTimeout 单条消息的读超时，超时视为断线重连。
	ReadTimeout time.Duration
}

func NewFeed(url string, onSnapshot func(market.Snapshot), log *logger.Logger) *Feed {
	return &Feed{
		URL:         url,
		Dialer:      websocket.DefaultDialer,
		onSnapshot:  onSnapshot,
		log:         log,
		ReadTimeout: 30 * time.Second,
	}
}

// Run 阻塞运行到 ctx 取消。
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		f.log.LogError(err, map[string]interface{}{"feed_url": f.URL, "retry_in": backoff.String()})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := f.Dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		snap, err := ParseSnapshot(raw)
		if err != nil {
			f.log.LogAnomaly("feed_bad_message", map[string]interface{}{"err": err.Error()})
			continue
		}
		f.onSnapshot(snap)
	}
}

// ParseSnapshot 解析一条行情消息。缺失的一侧报价置 nil。
func ParseSnapshot(raw []byte) (market.Snapshot, error) {
	var msg feedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return market.Snapshot{}, err
	}
	snap := market.Snapshot{
		Market:    msg.Market,
		LastPrice: msg.Last,
		Volume:    msg.Volume,
		Ts:        time.UnixMilli(msg.Ts).UTC(),
	}
	if msg.Bid > 0 {
		snap.Bid = &market.Level{Price: msg.Bid, Size: msg.BidSize}
	}
	if msg.Ask > 0 {
		snap.Ask = &market.Level{Price: msg.Ask, Size: msg.AskSize}
	}
	return snap, nil
}
