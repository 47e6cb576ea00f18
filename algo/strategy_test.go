package algo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-engine-go/decision"
	"algo-engine-go/market"
	"algo-engine-go/order"
	"algo-engine-go/risk"
)

func bookWith(snaps ...market.Snapshot) BookFn {
	byMarket := make(map[string]market.Snapshot, len(snaps))
	for _, s := range snaps {
		byMarket[s.Market] = s
	}
	return func(mkt string) (market.Snapshot, bool) {
		s, ok := byMarket[mkt]
		return s, ok
	}
}

func snap(mkt string, bid, ask float64) market.Snapshot {
	return market.Snapshot{
		Market: mkt,
		Bid:    &market.Level{Price: bid, Size: 100},
		Ask:    &market.Level{Price: ask, Size: 100},
		Ts:     time.Now(),
	}
}

func TestTWAPSliceQuantity(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := risk.NewManualClock(now)
	cfg := TWAPConfig{
		Market:   "BTC-USD",
		Side:     order.SideBuy,
		Quantity: 100,
		Interval: time.Minute,
		EndTime:  now.Add(10 * time.Minute),
	}
	require.NoError(t, cfg.Validate())
	strat, err := cfg.newStrategy("twap-1", risk.NewLockoutManager(clock))
	require.NoError(t, err)

	actions, err := strat.Tick(now, bookWith(snap("BTC-USD", 99, 100)))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, decision.KindSend, actions[0].Decision.Kind)
	// 100 剩余量摊到 10 个剩余桶。
	assert.InDelta(t, 10.0, actions[0].Decision.Quantity, 1e-9)
	assert.InDelta(t, 100.0, actions[0].Decision.Price, 1e-9)
}

func TestTWAPRejectLockoutHoldsSlices(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := risk.NewManualClock(now)
	lockouts := risk.NewLockoutManager(clock)
	cfg := TWAPConfig{
		Market:        "BTC-USD",
		Side:          order.SideBuy,
		Quantity:      100,
		Interval:      time.Minute,
		EndTime:       now.Add(10 * time.Minute),
		RejectLockout: 30 * time.Second,
	}
	strat, err := cfg.newStrategy("twap-1", lockouts)
	require.NoError(t, err)

	lockouts.Arm("twap-1", risk.LockoutReject, 30*time.Second)
	actions, err := strat.Tick(now, bookWith(snap("BTC-USD", 99, 100)))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, decision.KindDoNothing, actions[0].Decision.Kind)
	assert.Contains(t, actions[0].Decision.Reasons, decision.ReasonWithinRejectLockout)

	// 窗口过后恢复发单。
	clock.Advance(31 * time.Second)
	actions, err = strat.Tick(clock.Now(), bookWith(snap("BTC-USD", 99, 100)))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, decision.KindSend, actions[0].Decision.Kind)
}

func TestTWAPExpiresAtEndTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := TWAPConfig{
		Market:   "BTC-USD",
		Side:     order.SideSell,
		Quantity: 50,
		Interval: time.Minute,
		EndTime:  now.Add(5 * time.Minute),
	}
	strat, err := cfg.newStrategy("twap-2", risk.NewLockoutManager(risk.NewManualClock(now)))
	require.NoError(t, err)

	actions, err := strat.Tick(now.Add(6*time.Minute), bookWith(snap("BTC-USD", 99, 100)))
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.True(t, strat.Done())
}

func TestTWAPSingleInflightChild(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := TWAPConfig{
		Market:   "BTC-USD",
		Side:     order.SideBuy,
		Quantity: 100,
		Interval: time.Minute,
		EndTime:  now.Add(10 * time.Minute),
	}
	strat, _ := cfg.newStrategy("twap-3", risk.NewLockoutManager(risk.NewManualClock(now)))
	book := bookWith(snap("BTC-USD", 99, 100))

	actions, err := strat.Tick(now, book)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	strat.OnChildSubmitted("c1", order.Order{ID: "c1", Side: order.SideBuy, Price: 100, Quantity: 10})

	actions, err = strat.Tick(now.Add(time.Minute), book)
	require.NoError(t, err)
	assert.Empty(t, actions)

	// 子单结束后才继续下一片。
	strat.OnFill("c1", order.Fill{ID: "f1", Quantity: 10, Price: 100}, 10)
	strat.OnChildUpdate("c1", order.State{Filled: true, Out: true})
	actions, err = strat.Tick(now.Add(2*time.Minute), book)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, decision.KindSend, actions[0].Decision.Kind)
}

func TestPOVTracksVolumeDelta(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := POVConfig{
		Market:           "ETH-USD",
		Side:             order.SideBuy,
		Quantity:         1000,
		TargetVolumeFrac: 0.1,
		MinOrderQuantity: 5,
		MaxQuantity:      50,
	}
	require.NoError(t, cfg.Validate())
	strat, err := cfg.newStrategy("pov-1", risk.NewLockoutManager(risk.NewManualClock(now)))
	require.NoError(t, err)

	s0 := snap("ETH-USD", 99, 100)
	s0.Volume = 500
	actions, err := strat.Tick(now, bookWith(s0))
	require.NoError(t, err)
	assert.Empty(t, actions, "first tick only takes the volume baseline")

	// 市场又成交了 200，10% 参与率发 20。
	s1 := snap("ETH-USD", 99, 100)
	s1.Volume = 700
	actions, err = strat.Tick(now.Add(time.Second), bookWith(s1))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, decision.KindSend, actions[0].Decision.Kind)
	assert.InDelta(t, 20.0, actions[0].Decision.Quantity, 1e-9)
}

func TestPOVClampsAndWaits(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := POVConfig{
		Market:           "ETH-USD",
		Side:             order.SideSell,
		Quantity:         1000,
		TargetVolumeFrac: 0.1,
		MinOrderQuantity: 5,
		MaxQuantity:      50,
	}
	strat, _ := cfg.newStrategy("pov-2", risk.NewLockoutManager(risk.NewManualClock(now)))

	s0 := snap("ETH-USD", 99, 100)
	s0.Volume = 0
	_, err := strat.Tick(now, bookWith(s0))
	require.NoError(t, err)

	// 低于最小单量时继续累积观察窗口。
	s1 := snap("ETH-USD", 99, 100)
	s1.Volume = 30
	actions, err := strat.Tick(now.Add(time.Second), bookWith(s1))
	require.NoError(t, err)
	assert.Empty(t, actions)

	// 超过上限时截到 MaxQuantity。
	s2 := snap("ETH-USD", 99, 100)
	s2.Volume = 2000
	actions, err = strat.Tick(now.Add(2*time.Second), bookWith(s2))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.InDelta(t, 50.0, actions[0].Decision.Quantity, 1e-9)
}

func TestSORPreviewPlan(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := SORConfig{
		Markets:            []string{"BTC-A", "BTC-B", "BTC-C"},
		Side:               order.SideBuy,
		Quantity:           150,
		LimitPrice:         101,
		ExecutionTimeLimit: time.Minute,
		Preview:            true,
	}
	require.NoError(t, cfg.Validate())
	strat, err := cfg.newStrategy("sor-1", nil)
	require.NoError(t, err)

	a := snap("BTC-A", 99, 100.5)
	b := snap("BTC-B", 99, 100.0)
	b.Ask.Size = 80
	c := snap("BTC-C", 99, 102) // 劣于限价，剔除

	actions, err := strat.Tick(now, bookWith(a, b, c))
	require.NoError(t, err)
	assert.Empty(t, actions, "preview never submits")
	assert.True(t, strat.Done())

	plan := strat.(*sor).Plan()
	require.Len(t, plan, 2)
	assert.Equal(t, "BTC-B", plan[0].Market, "cheapest ask first")
	assert.InDelta(t, 80.0, plan[0].Quantity, 1e-9)
	assert.Equal(t, "BTC-A", plan[1].Market)
	assert.InDelta(t, 70.0, plan[1].Quantity, 1e-9)
}

func TestSORRoutesAcrossMarkets(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := SORConfig{
		Markets:            []string{"BTC-A", "BTC-B"},
		Side:               order.SideSell,
		Quantity:           120,
		LimitPrice:         98,
		ExecutionTimeLimit: time.Minute,
	}
	strat, _ := cfg.newStrategy("sor-2", nil)

	a := snap("BTC-A", 99, 100)
	b := snap("BTC-B", 99.5, 100.5)
	b.Bid.Size = 40

	actions, err := strat.Tick(now, bookWith(a, b))
	require.NoError(t, err)
	require.Len(t, actions, 2)
	// 卖从高价先吃。
	assert.Equal(t, "BTC-B", actions[0].Market)
	assert.InDelta(t, 40.0, actions[0].Decision.Quantity, 1e-9)
	assert.Equal(t, "BTC-A", actions[1].Market)
	assert.InDelta(t, 80.0, actions[1].Decision.Quantity, 1e-9)

	// 在途量冲抵，下一轮不重复路由。
	strat.OnChildSubmitted("c1", order.Order{ID: "c1", Quantity: 40})
	strat.OnChildSubmitted("c2", order.Order{ID: "c2", Quantity: 80})
	actions, err = strat.Tick(now.Add(time.Second), bookWith(a, b))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestSORTimeLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := SORConfig{
		Markets:            []string{"BTC-A"},
		Side:               order.SideBuy,
		Quantity:           10,
		LimitPrice:         200,
		ExecutionTimeLimit: time.Minute,
	}
	strat, _ := cfg.newStrategy("sor-3", nil)

	_, err := strat.Tick(now, bookWith(snap("BTC-A", 99, 100)))
	require.NoError(t, err)
	_, err = strat.Tick(now.Add(2*time.Minute), bookWith(snap("BTC-A", 99, 100)))
	require.NoError(t, err)
	assert.True(t, strat.Done())
}

func TestChaserRepegsOnTouchMove(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := risk.NewManualClock(now)
	cfg := ChaserConfig{
		Market:     "BTC-USD",
		Side:       order.SideBuy,
		Quantity:   10,
		LimitPrice: 105,
		RepegTicks: 3,
		TickSize:   0.1,
	}
	require.NoError(t, cfg.Validate())
	strat, err := cfg.newStrategy("chase-1", risk.NewLockoutManager(clock))
	require.NoError(t, err)

	actions, err := strat.Tick(now, bookWith(snap("BTC-USD", 100, 100.5)))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, decision.KindSend, actions[0].Decision.Kind)
	assert.InDelta(t, 100.0, actions[0].Decision.Price, 1e-9, "pegs to own-side touch")
	strat.OnChildSubmitted("c1", order.Order{ID: "c1", Side: order.SideBuy, Price: 100, Quantity: 10})

	// 移动 2 个 tick，不到阈值，保持现挂。
	actions, err = strat.Tick(now, bookWith(snap("BTC-USD", 100.2, 100.5)))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, decision.KindDoNothing, actions[0].Decision.Kind)
	assert.Contains(t, actions[0].Decision.Reasons, decision.ReasonOpenOrderWithinTolerance)

	// 移动 4 个 tick，撤单重挂。
	actions, err = strat.Tick(now, bookWith(snap("BTC-USD", 100.4, 100.9)))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, decision.KindCancel, actions[0].Decision.Kind)
	assert.Equal(t, "c1", actions[0].Decision.TargetOrderID)

	strat.OnChildUpdate("c1", order.State{Canceled: true, Out: true})
	actions, err = strat.Tick(now, bookWith(snap("BTC-USD", 100.4, 100.9)))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, decision.KindSend, actions[0].Decision.Kind)
	assert.InDelta(t, 100.4, actions[0].Decision.Price, 1e-9)
}

func TestChaserCapsAtLimitPrice(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := ChaserConfig{
		Market:     "BTC-USD",
		Side:       order.SideBuy,
		Quantity:   10,
		LimitPrice: 100,
		RepegTicks: 1,
		TickSize:   0.1,
	}
	strat, _ := cfg.newStrategy("chase-2", risk.NewLockoutManager(risk.NewManualClock(now)))

	actions, err := strat.Tick(now, bookWith(snap("BTC-USD", 103, 103.5)))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, decision.KindSend, actions[0].Decision.Kind)
	assert.InDelta(t, 100.0, actions[0].Decision.Price, 1e-9)
}

func TestChaserDoneAfterTargetFilled(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := ChaserConfig{
		Market:     "BTC-USD",
		Side:       order.SideSell,
		Quantity:   10,
		LimitPrice: 95,
		RepegTicks: 1,
		TickSize:   0.1,
	}
	strat, _ := cfg.newStrategy("chase-3", risk.NewLockoutManager(risk.NewManualClock(now)))

	strat.OnFill("c1", order.Fill{ID: "f1", Quantity: 10, Price: 100}, 10)
	assert.True(t, strat.Done())
	actions, err := strat.Tick(now, bookWith(snap("BTC-USD", 100, 100.5)))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestStrategiesIdleWithoutMarketData(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	lockouts := risk.NewLockoutManager(risk.NewManualClock(now))

	mmCfg := MarketMakerConfig{
		Market: "BTC-USD", BuyEnabled: true, SellEnabled: true,
		Quantity: 1, MinPosition: -10, MaxPosition: 10,
		RefPolicy: market.PolicyMid, RefDistFrac: 0.001,
	}
	mm, err := mmCfg.newStrategy("mm-1", lockouts)
	require.NoError(t, err)

	twapCfg := TWAPConfig{
		Market: "BTC-USD", Side: order.SideBuy, Quantity: 100,
		Interval: time.Minute, EndTime: now.Add(10 * time.Minute),
	}
	tw, err := twapCfg.newStrategy("twap-1", lockouts)
	require.NoError(t, err)

	povCfg := POVConfig{
		Market: "BTC-USD", Side: order.SideBuy, Quantity: 100,
		TargetVolumeFrac: 0.1, MaxQuantity: 50,
	}
	pv, err := povCfg.newStrategy("pov-1", lockouts)
	require.NoError(t, err)

	chCfg := ChaserConfig{
		Market: "BTC-USD", Side: order.SideBuy, Quantity: 10,
		LimitPrice: 105, RepegTicks: 2, TickSize: 0.5,
	}
	ch, err := chCfg.newStrategy("ch-1", lockouts)
	require.NoError(t, err)

	// 行情缓存还没收到首帧时策略挂空决策等待，不报错
	for _, strat := range []Strategy{mm, tw, pv, ch} {
		actions, err := strat.Tick(now, bookWith())
		require.NoError(t, err, "%s", strat.Kind())
		require.NotEmpty(t, actions, "%s", strat.Kind())
		for _, a := range actions {
			assert.Equal(t, decision.KindDoNothing, a.Decision.Kind)
			assert.Contains(t, a.Decision.Reasons, decision.ReasonNoReferencePrice)
		}
	}
}

func TestMarketMakerKindBySides(t *testing.T) {
	base := MarketMakerConfig{
		Market:      "BTC-USD",
		Quantity:    1,
		MinPosition: -10,
		MaxPosition: 10,
		RefPolicy:   market.PolicyMid,
	}

	oneSided := base
	oneSided.BuyEnabled = true
	require.NoError(t, oneSided.Validate())
	s, err := oneSided.newStrategy("mm-1", risk.NewLockoutManager(risk.NowUTC))
	require.NoError(t, err)
	assert.Equal(t, KindMarketMaker, s.Kind())

	twoSided := base
	twoSided.BuyEnabled = true
	twoSided.SellEnabled = true
	s, err = twoSided.newStrategy("spr-1", risk.NewLockoutManager(risk.NowUTC))
	require.NoError(t, err)
	assert.Equal(t, KindSpread, s.Kind())
}

func TestMarketMakerQuotesBothSides(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cfg := MarketMakerConfig{
		Market:      "BTC-USD",
		BuyEnabled:  true,
		SellEnabled: true,
		Quantity:    1,
		MinPosition: -10,
		MaxPosition: 10,
		RefPolicy:   market.PolicyMid,
		RefDistFrac: 0.001,
	}
	strat, err := cfg.newStrategy("spr-2", risk.NewLockoutManager(risk.NewManualClock(now)))
	require.NoError(t, err)

	actions, err := strat.Tick(now, bookWith(snap("BTC-USD", 99.9, 100.1)))
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, order.SideBuy, actions[0].Side)
	assert.Equal(t, decision.KindSend, actions[0].Decision.Kind)
	assert.Equal(t, order.SideSell, actions[1].Side)
	assert.Equal(t, decision.KindSend, actions[1].Decision.Kind)
	assert.Less(t, actions[0].Decision.Price, actions[1].Decision.Price)
}

func TestMarketMakerPositionFromFills(t *testing.T) {
	cfg := MarketMakerConfig{
		Market:      "BTC-USD",
		BuyEnabled:  true,
		SellEnabled: true,
		Quantity:    1,
		MinPosition: -2,
		MaxPosition: 2,
		RefPolicy:   market.PolicyMid,
	}
	strat, _ := cfg.newStrategy("spr-3", risk.NewLockoutManager(risk.NowUTC))
	mm := strat.(*marketMaker)

	strat.OnChildSubmitted("b1", order.Order{ID: "b1", Side: order.SideBuy, Price: 99})
	strat.OnChildSubmitted("s1", order.Order{ID: "s1", Side: order.SideSell, Price: 101})
	strat.OnFill("b1", order.Fill{ID: "f1", Quantity: 1.5, Price: 99}, 1.5)
	assert.InDelta(t, 1.5, mm.position, 1e-9)
	strat.OnFill("s1", order.Fill{ID: "f2", Quantity: 0.5, Price: 101}, 0.5)
	assert.InDelta(t, 1.0, mm.position, 1e-9)
}
