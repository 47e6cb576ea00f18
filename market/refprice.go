package market

import (
	"errors"

	"algo-engine-go/order"
)

// Policy 参考价计算策略。
type Policy string

const (
	// PolicyMid 中间价，要求双边报价齐全。
	PolicyMid Policy = "MID"
	// PolicyBidAsk 按订单方向取同侧可成交价：买看卖价，卖看买价。
	PolicyBidAsk Policy = "BID_ASK"
	// PolicyHedgeBidAsk 以对冲市场盘口换算后与本地中间价线性混合。
	PolicyHedgeBidAsk Policy = "HEDGE_MARKET_BID_ASK"
)

// 缺少必需盘口档位时返回对应原因，绝不回退到默认价格。
var (
	ErrNoBid         = errors.New("no bid")
	ErrNoAsk         = errors.New("no ask")
	ErrNoHedgePrice  = errors.New("no hedge market price")
	ErrUnknownPolicy = errors.New("unknown reference price policy")
)

// HedgeParams PolicyHedgeBidAsk 的换算参数。
type HedgeParams struct {
	Market          string  `yaml:"market"`
	ConversionRatio float64 `yaml:"conversionRatio"`
	Premium         float64 `yaml:"premium"`
	// HedgeFrac ∈ [0,1]：对冲市场价格在混合中的权重。
	HedgeFrac float64 `yaml:"hedgeFrac"`
}

// ResolveReference 依据策略从行情快照推导决策参考价。
// hedge 仅 PolicyHedgeBidAsk 需要，可为 nil。
func ResolveReference(policy Policy, side order.Side, snap Snapshot, hedge *Snapshot, hp HedgeParams) (float64, error) {
	switch policy {
	case PolicyMid:
		return mid(snap)

	case PolicyBidAsk:
		return sidePrice(snap, side)

	case PolicyHedgeBidAsk:
		if hedge == nil {
			return 0, ErrNoHedgePrice
		}
		hedgePrice, err := sidePrice(*hedge, side)
		if err != nil {
			return 0, ErrNoHedgePrice
		}
		blended := hedgePrice * hp.ConversionRatio * (1 + hp.Premium) * hp.HedgeFrac
		if hp.HedgeFrac < 1 {
			localMid, err := mid(snap)
			if err != nil {
				return 0, err
			}
			blended += localMid * (1 - hp.HedgeFrac)
		}
		return blended, nil

	default:
		return 0, ErrUnknownPolicy
	}
}

func mid(s Snapshot) (float64, error) {
	if s.Bid == nil {
		return 0, ErrNoBid
	}
	if s.Ask == nil {
		return 0, ErrNoAsk
	}
	return (s.Bid.Price + s.Ask.Price) / 2, nil
}

// sidePrice 买单看 ask，卖单看 bid。
func sidePrice(s Snapshot, side order.Side) (float64, error) {
	if side == order.SideBuy {
		if s.Ask == nil {
			return 0, ErrNoAsk
		}
		return s.Ask.Price, nil
	}
	if s.Bid == nil {
		return 0, ErrNoBid
	}
	return s.Bid.Price, nil
}
