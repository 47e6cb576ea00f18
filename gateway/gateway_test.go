package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"algo-engine-go/algo"
	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/market"
	"algo-engine-go/order"
)

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func submitOrder(t *testing.T, sm *order.StateMachine, mkt string, side order.Side, price, qty float64) string {
	t.Helper()
	id, err := sm.Submit(order.Order{
		Market: mkt, Side: side, Price: price, Quantity: qty,
		Type: order.TypeLimit, TimeInForce: order.TIFGoodTilCanceled, Source: "test",
	})
	require.NoError(t, err)
	return id
}

func TestRouterPreservesPerOrderOrdering(t *testing.T) {
	sm := order.NewStateMachine(nil)
	id := submitOrder(t, sm, "BTC-USD", order.SideBuy, 100, 10)

	var mu sync.Mutex
	var got []order.EventKind
	notify := func(u algo.ChildUpdate) {
		mu.Lock()
		got = append(got, u.Kind)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRouter(sm, 4, notify, nopLogger())
	r.Start(ctx)

	r.Dispatch(VenueEvent{Kind: order.EventAck, OrderID: id})
	r.Dispatch(VenueEvent{Kind: order.EventFill, OrderID: id, Fill: &order.Fill{
		ID: "f1", OrderID: id, Market: "BTC-USD", Side: order.SideBuy, Quantity: 10, Price: 100, Kind: order.FillNormal,
	}})
	r.Dispatch(VenueEvent{Kind: order.EventOut, OrderID: id})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	r.Wait()

	assert.Equal(t, []order.EventKind{order.EventAck, order.EventFill, order.EventOut}, got)
	st, err := sm.Get(id)
	require.NoError(t, err)
	assert.True(t, st.Filled)
	assert.True(t, st.Out)
}

func TestRouterDropsUnknownOrder(t *testing.T) {
	sm := order.NewStateMachine(nil)

	var notified bool
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRouter(sm, 2, func(algo.ChildUpdate) { notified = true }, nopLogger())
	r.Start(ctx)

	r.Dispatch(VenueEvent{Kind: order.EventAck, OrderID: "ghost"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	r.Wait()
	assert.False(t, notified, "unknown order must not reach downstream")
}

func TestRouterFillDeltaDeduped(t *testing.T) {
	sm := order.NewStateMachine(nil)
	id := submitOrder(t, sm, "BTC-USD", order.SideBuy, 100, 10)
	require.NoError(t, sm.ApplyAck(id))

	var mu sync.Mutex
	var deltas, notionals []float64
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRouter(sm, 1, func(u algo.ChildUpdate) {
		mu.Lock()
		deltas = append(deltas, u.FillDelta)
		notionals = append(notionals, u.NotionalDelta)
		mu.Unlock()
	}, nopLogger())
	r.Start(ctx)

	f := &order.Fill{ID: "f1", OrderID: id, Market: "BTC-USD", Side: order.SideBuy, Quantity: 4, Price: 100, Kind: order.FillNormal}
	r.Dispatch(VenueEvent{Kind: order.EventFill, OrderID: id, Fill: f})
	r.Dispatch(VenueEvent{Kind: order.EventFill, OrderID: id, Fill: f}) // 重复回报

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deltas) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	r.Wait()

	assert.InDelta(t, 4.0, deltas[0], 1e-9)
	assert.InDelta(t, 400.0, notionals[0], 1e-9)
	assert.InDelta(t, 0.0, deltas[1], 1e-9, "duplicate fill id applies zero delta")
	assert.InDelta(t, 0.0, notionals[1], 1e-9)
}

func TestSimVenueFillsCrossingOrder(t *testing.T) {
	cache := market.NewCache()
	cache.Update(market.Snapshot{
		Market: "BTC-USD",
		Bid:    &market.Level{Price: 99.5, Size: 10},
		Ask:    &market.Level{Price: 100, Size: 10},
		Ts:     time.Now(),
	})

	var events []VenueEvent
	sim := NewSimVenue(cache, func(ev VenueEvent) { events = append(events, ev) })

	require.NoError(t, sim.Submit(order.Order{ID: "o1", Market: "BTC-USD", Side: order.SideBuy, Price: 100.5, Quantity: 3}))
	require.Len(t, events, 3)
	assert.Equal(t, order.EventAck, events[0].Kind)
	assert.Equal(t, order.EventFill, events[1].Kind)
	require.NotNil(t, events[1].Fill)
	assert.InDelta(t, 100.0, events[1].Fill.Price, 1e-9, "fills at the touch, not the limit")
	assert.InDelta(t, 3.0, events[1].Fill.Quantity, 1e-9)
	assert.Equal(t, order.EventOut, events[2].Kind)
}

func TestSimVenueRestingOrderFillsOnSnapshot(t *testing.T) {
	cache := market.NewCache()
	cache.Update(market.Snapshot{
		Market: "BTC-USD",
		Bid:    &market.Level{Price: 99, Size: 10},
		Ask:    &market.Level{Price: 100, Size: 10},
		Ts:     time.Now(),
	})

	var events []VenueEvent
	sim := NewSimVenue(cache, func(ev VenueEvent) { events = append(events, ev) })

	require.NoError(t, sim.Submit(order.Order{ID: "o1", Market: "BTC-USD", Side: order.SideBuy, Price: 99.5, Quantity: 1}))
	require.Len(t, events, 1, "passive order only acks")

	down := market.Snapshot{
		Market: "BTC-USD",
		Bid:    &market.Level{Price: 98.9, Size: 10},
		Ask:    &market.Level{Price: 99.4, Size: 10},
		Ts:     time.Now().Add(time.Second),
	}
	cache.Update(down)
	sim.OnSnapshot(down)
	require.Len(t, events, 3)
	assert.Equal(t, order.EventFill, events[1].Kind)
}

func TestSimVenueCancel(t *testing.T) {
	cache := market.NewCache()
	var events []VenueEvent
	sim := NewSimVenue(cache, func(ev VenueEvent) { events = append(events, ev) })

	require.NoError(t, sim.Submit(order.Order{ID: "o1", Market: "BTC-USD", Side: order.SideSell, Price: 101, Quantity: 1}))
	require.NoError(t, sim.Cancel("o1"))
	require.Len(t, events, 3)
	assert.Equal(t, order.EventCancelConfirm, events[1].Kind)
	assert.Equal(t, order.EventOut, events[2].Kind)

	assert.Error(t, sim.Cancel("o1"), "second cancel targets a gone order")
}

func TestParseSnapshot(t *testing.T) {
	raw := []byte(`{"market":"ETH-USD","bid":2000.5,"bidSize":3,"ask":2001,"askSize":4,"last":2000.75,"volume":1234.5,"ts":1717236000000}`)
	snap, err := ParseSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, "ETH-USD", snap.Market)
	require.NotNil(t, snap.Bid)
	assert.InDelta(t, 2000.5, snap.Bid.Price, 1e-9)
	require.NotNil(t, snap.Ask)
	assert.InDelta(t, 4.0, snap.Ask.Size, 1e-9)
	assert.InDelta(t, 1234.5, snap.Volume, 1e-9)
	assert.Equal(t, int64(1717236000000), snap.Ts.UnixMilli())

	_, err = ParseSnapshot([]byte("not json"))
	assert.Error(t, err)
}

func TestParseSnapshotMissingSide(t *testing.T) {
	raw := []byte(`{"market":"ETH-USD","ask":2001,"askSize":4,"ts":1717236000000}`)
	snap, err := ParseSnapshot(raw)
	require.NoError(t, err)
	assert.Nil(t, snap.Bid)
	require.NotNil(t, snap.Ask)
}

func TestRateLimitedVenueForwards(t *testing.T) {
	var submitted, canceled int
	inner := venueFunc{
		submit: func(order.Order) error { submitted++; return nil },
		cancel: func(string) error { canceled++; return nil },
	}
	v := NewRateLimitedVenue(context.Background(), inner, 1000, 10)

	require.NoError(t, v.Submit(order.Order{ID: "o1"}))
	require.NoError(t, v.Cancel("o1"))
	assert.Equal(t, 1, submitted)
	assert.Equal(t, 1, canceled)
}

func TestRateLimitedVenueCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := NewRateLimitedVenue(ctx, venueFunc{}, 0.001, 1)

	_ = v.Submit(order.Order{ID: "o1"}) // 吃掉突发额度
	assert.Error(t, v.Submit(order.Order{ID: "o2"}))
}

type venueFunc struct {
	submit func(order.Order) error
	cancel func(string) error
}

func (v venueFunc) Submit(o order.Order) error {
	if v.submit == nil {
		return nil
	}
	return v.submit(o)
}

func (v venueFunc) Cancel(id string) error {
	if v.cancel == nil {
		return nil
	}
	return v.cancel(id)
}
