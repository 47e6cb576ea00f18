package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algo-engine-go/market"
	"algo-engine-go/order"
)

// baseInputs 可解析参考价、无锁定、无在途单的买方输入。
func baseInputs() Inputs {
	return Inputs{
		Side:          order.SideBuy,
		Position:      0,
		MinPosition:   -10,
		MaxPosition:   10,
		RefPrice:      100,
		RefDistFrac:   0.01,
		ToleranceFrac: 0.002,
		TickSize:      0.01,
		MaxImproveBbo: 1,
		Quantity:      1,
		BestBid:       99.5,
		BestAsk:       100.5,
	}
}

func TestPausedStoppedPrecedence(t *testing.T) {
	in := baseInputs()
	in.Paused = true
	d := Evaluate(in)
	assert.Equal(t, KindDoNothing, d.Kind)
	assert.Equal(t, []Reason{ReasonAlgoPaused}, d.Reasons)

	in.Stopped = true // stopped 优先于 paused
	d = Evaluate(in)
	assert.Equal(t, []Reason{ReasonAlgoStopped}, d.Reasons)
}

func TestMaxPositionBlocksBuy(t *testing.T) {
	// Scenario A：仓位顶满时买侧永不发单
	in := baseInputs()
	in.Position = 10
	d := Evaluate(in)
	assert.Equal(t, KindDoNothing, d.Kind)
	assert.Equal(t, []Reason{ReasonMaxPosition}, d.Reasons)

	// 卖侧不受 max 限制
	in.Side = order.SideSell
	d = Evaluate(in)
	assert.Equal(t, KindSend, d.Kind)
}

func TestMinPositionBlocksSell(t *testing.T) {
	in := baseInputs()
	in.Side = order.SideSell
	in.Position = -10
	d := Evaluate(in)
	assert.Equal(t, []Reason{ReasonMinPosition}, d.Reasons)
}

func TestNoReferencePrice(t *testing.T) {
	in := baseInputs()
	in.RefErr = market.ErrNoBid
	d := Evaluate(in)
	assert.Equal(t, KindDoNothing, d.Kind)
	assert.Equal(t, []Reason{ReasonNoReferencePrice, ReasonNoBid}, d.Reasons)

	in.RefErr = market.ErrNoAsk
	d = Evaluate(in)
	assert.Equal(t, []Reason{ReasonNoReferencePrice, ReasonNoAsk}, d.Reasons)
}

func TestLockoutSuppressesCancel(t *testing.T) {
	// 锁定窗口优先于容差判断：即使在途单远离目标价也不撤
	in := baseInputs()
	in.FillLocked = true
	in.Open = &OpenOrder{ID: "c1", Price: 50}
	d := Evaluate(in)
	assert.Equal(t, KindDoNothing, d.Kind)
	assert.Equal(t, []Reason{ReasonWithinFillLockout}, d.Reasons)
}

func TestAllLockoutReasonsAccumulate(t *testing.T) {
	in := baseInputs()
	in.OrderLocked = true
	in.FillLocked = true
	in.RejectLocked = true
	d := Evaluate(in)
	assert.Equal(t, []Reason{
		ReasonWithinOrderLockout,
		ReasonWithinFillLockout,
		ReasonWithinRejectLockout,
	}, d.Reasons)
}

func TestCancelPending(t *testing.T) {
	in := baseInputs()
	in.Open = &OpenOrder{ID: "c1", Price: 50, Canceling: true}
	d := Evaluate(in)
	assert.Equal(t, KindDoNothing, d.Kind)
	assert.Equal(t, []Reason{ReasonCancelPending}, d.Reasons)
}

func TestToleranceBand(t *testing.T) {
	in := baseInputs()
	in.BestBid = 0 // 不触发 BBO 钳制
	target := 100 * (1 - 0.01)

	in.Open = &OpenOrder{ID: "c1", Price: target + 0.1}
	d := Evaluate(in)
	assert.Equal(t, KindDoNothing, d.Kind)
	assert.Equal(t, []Reason{ReasonOpenOrderWithinTolerance}, d.Reasons)

	in.Open = &OpenOrder{ID: "c1", Price: target + 1}
	d = Evaluate(in)
	require.Equal(t, KindCancel, d.Kind)
	assert.Equal(t, "c1", d.TargetOrderID)
	assert.Equal(t, []Reason{ReasonOpenOrderOutsideTolerance}, d.Reasons)
}

func TestSendTargetPrice(t *testing.T) {
	in := baseInputs()
	in.BestBid = 0
	d := Evaluate(in)
	require.Equal(t, KindSend, d.Kind)
	assert.InDelta(t, 99.0, d.Price, 1e-9)
	assert.Equal(t, 1.0, d.Quantity)
}

func TestPositionTiltShiftsPrice(t *testing.T) {
	in := baseInputs()
	in.BestBid = 0
	in.PositionTilt = 0.5
	in.Position = 5 // pos01 = 0.5

	d := Evaluate(in)
	require.Equal(t, KindSend, d.Kind)
	// 99 - 0.5*0.01*100*0.5
	assert.InDelta(t, 99.0-0.25, d.Price, 1e-9)

	// 空头时向上倾斜
	in.Position = -5
	d = Evaluate(in)
	assert.InDelta(t, 99.0+0.25, d.Price, 1e-9)
}

func TestMaxImproveBboClamp(t *testing.T) {
	in := baseInputs()
	in.RefDistFrac = 0 // 目标价等于参考价 100
	in.BestBid = 99.0
	in.MaxImproveBbo = 2
	in.TickSize = 0.01

	d := Evaluate(in)
	require.Equal(t, KindSend, d.Kind)
	// 不得超过 bestBid + 2 tick
	assert.InDelta(t, 99.02, d.Price, 1e-9)

	in.Side = order.SideSell
	in.BestAsk = 101.0
	d = Evaluate(in)
	assert.InDelta(t, 100.98, d.Price, 1e-9)
}
