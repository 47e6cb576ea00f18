package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-engine-go/order"
)

func snap(bid, ask float64) Snapshot {
	s := Snapshot{Market: "BTC-USD", Ts: time.Now()}
	if bid > 0 {
		s.Bid = &Level{Price: bid, Size: 1}
	}
	if ask > 0 {
		s.Ask = &Level{Price: ask, Size: 1}
	}
	return s
}

func TestResolveMid(t *testing.T) {
	p, err := ResolveReference(PolicyMid, order.SideBuy, snap(99, 101), nil, HedgeParams{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, p)

	_, err = ResolveReference(PolicyMid, order.SideBuy, snap(0, 101), nil, HedgeParams{})
	assert.ErrorIs(t, err, ErrNoBid)

	_, err = ResolveReference(PolicyMid, order.SideBuy, snap(99, 0), nil, HedgeParams{})
	assert.ErrorIs(t, err, ErrNoAsk)
}

func TestResolveBidAsk(t *testing.T) {
	// 买单看卖价
	p, err := ResolveReference(PolicyBidAsk, order.SideBuy, snap(99, 101), nil, HedgeParams{})
	require.NoError(t, err)
	assert.Equal(t, 101.0, p)

	// 卖单看买价
	p, err = ResolveReference(PolicyBidAsk, order.SideSell, snap(99, 101), nil, HedgeParams{})
	require.NoError(t, err)
	assert.Equal(t, 99.0, p)

	_, err = ResolveReference(PolicyBidAsk, order.SideSell, snap(0, 101), nil, HedgeParams{})
	assert.ErrorIs(t, err, ErrNoBid)
}

func TestResolveHedgeBlend(t *testing.T) {
	local := snap(99, 101)
	hedge := snap(49, 51)
	hp := HedgeParams{ConversionRatio: 2, Premium: 0.01, HedgeFrac: 0.6}

	// 买方向：hedge ask=51 → 51*2*1.01*0.6 + 100*0.4
	p, err := ResolveReference(PolicyHedgeBidAsk, order.SideBuy, local, &hedge, hp)
	require.NoError(t, err)
	assert.InDelta(t, 51*2*1.01*0.6+100*0.4, p, 1e-9)

	// 对冲盘口缺失
	_, err = ResolveReference(PolicyHedgeBidAsk, order.SideBuy, local, nil, hp)
	assert.ErrorIs(t, err, ErrNoHedgePrice)

	empty := snap(0, 0)
	_, err = ResolveReference(PolicyHedgeBidAsk, order.SideBuy, local, &empty, hp)
	assert.ErrorIs(t, err, ErrNoHedgePrice)

	// hedgeFrac < 1 时本地中间价必须可得
	_, err = ResolveReference(PolicyHedgeBidAsk, order.SideBuy, snap(99, 0), &hedge, hp)
	assert.ErrorIs(t, err, ErrNoAsk)
}

func TestUnknownPolicy(t *testing.T) {
	_, err := ResolveReference(Policy("VWAP"), order.SideBuy, snap(99, 101), nil, HedgeParams{})
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestCacheLatestWins(t *testing.T) {
	c := NewCache()
	t0 := time.Now()

	s1 := snap(99, 101)
	s1.Ts = t0
	c.Update(s1)

	// 乱序旧快照被丢弃
	old := snap(90, 92)
	old.Ts = t0.Add(-time.Second)
	c.Update(old)

	got, ok := c.Latest("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 99.0, got.Bid.Price)

	_, ok = c.Latest("ETH-USD")
	assert.False(t, ok)
}

func TestCacheTradeVolume(t *testing.T) {
	c := NewCache()
	c.Update(snap(99, 101))
	c.AddTradeVolume(Trade{Market: "BTC-USD", Price: 100, Size: 2, Ts: time.Now()})
	c.AddTradeVolume(Trade{Market: "BTC-USD", Price: 101, Size: 3, Ts: time.Now()})

	got, ok := c.Latest("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 5.0, got.Volume)
	assert.Equal(t, 101.0, got.LastPrice)
}
