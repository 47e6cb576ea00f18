package decision

import (
	"errors"
	"math"

	"algo-engine-go/market"
	"algo-engine-go/order"
)

// OpenOrder 当前在途子单的决策视图。
type OpenOrder struct {
	ID        string
	Price     float64
	Canceling bool
}

// Inputs 单边单次决策的全部输入。Evaluate 不读取任何外部状态。
type Inputs struct {
	Paused  bool
	Stopped bool

	Side        order.Side
	Position    float64
	MinPosition float64
	MaxPosition float64

	// RefErr 非 nil 表示参考价不可得，RefPrice 无意义。
	RefPrice float64
	RefErr   error

	RefDistFrac   float64 // 报价距参考价的比例
	ToleranceFrac float64 // 在途单允许偏离目标价的比例
	PositionTilt  float64 // 仓位倾斜系数，抑制继续累积
	MaxImproveBbo float64 // 最多越过对手方 BBO 的 tick 数
	TickSize      float64
	Quantity      float64

	BestBid float64 // 0 表示缺失
	BestAsk float64

	OrderLocked  bool
	FillLocked   bool
	RejectLocked bool

	Open *OpenOrder
}

// Evaluate 按严格优先级产出决策：
// 暂停 → 仓位边界 → 参考价 → 锁定窗口 → 撤单在途 → 容差 → 下单。
// 前序条件命中即返回，例如锁定窗口会压制本应触发的撤单替换。
func Evaluate(in Inputs) Decision {
	if in.Stopped {
		return DoNothing(ReasonAlgoStopped)
	}
	if in.Paused {
		return DoNothing(ReasonAlgoPaused)
	}

	// 仓位越界的一侧不再加仓。
	if in.Side == order.SideBuy && in.Position >= in.MaxPosition {
		return DoNothing(ReasonMaxPosition)
	}
	if in.Side == order.SideSell && in.Position <= in.MinPosition {
		return DoNothing(ReasonMinPosition)
	}

	if in.RefErr != nil {
		return DoNothing(refReasons(in.RefErr)...)
	}

	if locked := lockoutReasons(in); len(locked) > 0 {
		return DoNothing(locked...)
	}

	target := targetPrice(in)

	if in.Open != nil {
		if in.Open.Canceling {
			return DoNothing(ReasonCancelPending)
		}
		if math.Abs(in.Open.Price-target) <= in.ToleranceFrac*in.RefPrice {
			return DoNothing(ReasonOpenOrderWithinTolerance)
		}
		// 撤掉偏离的旧单；新单等撤单确认后的下一轮再发。
		return Cancel(in.Open.ID, ReasonOpenOrderOutsideTolerance)
	}

	return Send(target, in.Quantity)
}

func refReasons(err error) []Reason {
	reasons := []Reason{ReasonNoReferencePrice}
	switch {
	case errors.Is(err, market.ErrNoBid):
		reasons = append(reasons, ReasonNoBid)
	case errors.Is(err, market.ErrNoAsk):
		reasons = append(reasons, ReasonNoAsk)
	}
	return reasons
}

func lockoutReasons(in Inputs) []Reason {
	var reasons []Reason
	if in.OrderLocked {
		reasons = append(reasons, ReasonWithinOrderLockout)
	}
	if in.FillLocked {
		reasons = append(reasons, ReasonWithinFillLockout)
	}
	if in.RejectLocked {
		reasons = append(reasons, ReasonWithinRejectLockout)
	}
	return reasons
}

// targetPrice 参考价按 refDistFrac 退让，再按仓位倾斜整体平移，
// 最后钳制对 BBO 的最大改进。
func targetPrice(in Inputs) float64 {
	var target float64
	if in.Side == order.SideBuy {
		target = in.RefPrice * (1 - in.RefDistFrac)
	} else {
		target = in.RefPrice * (1 + in.RefDistFrac)
	}

	// pos01 ∈ [-1,1]：仓位在 [min,max] 区间内的归一化位置。
	// 多头偏满时双边报价下移，抑制继续买入。
	if in.MaxPosition > in.MinPosition && in.PositionTilt != 0 {
		pos01 := 2*(in.Position-in.MinPosition)/(in.MaxPosition-in.MinPosition) - 1
		target -= in.PositionTilt * in.RefDistFrac * in.RefPrice * pos01
	}

	if in.TickSize > 0 {
		improve := in.MaxImproveBbo * in.TickSize
		if in.Side == order.SideBuy && in.BestBid > 0 {
			target = math.Min(target, in.BestBid+improve)
		}
		if in.Side == order.SideSell && in.BestAsk > 0 {
			target = math.Max(target, in.BestAsk-improve)
		}
	}
	return target
}
