package algo

import (
	"algo-engine-go/market"
	"algo-engine-go/order"
)

// touchPrice 同侧可成交价：买看 ask，卖看 bid。
func touchPrice(side order.Side, snap market.Snapshot) (float64, error) {
	if side == order.SideBuy {
		if snap.Ask == nil {
			return 0, market.ErrNoAsk
		}
		return snap.Ask.Price, nil
	}
	if snap.Bid == nil {
		return 0, market.ErrNoBid
	}
	return snap.Bid.Price, nil
}

// touchLevel 同侧可成交档位。
func touchLevel(side order.Side, snap market.Snapshot) *market.Level {
	if side == order.SideBuy {
		return snap.Ask
	}
	return snap.Bid
}

// breachesLimit 判断成交价是否劣于限价保护。limit 为 0 表示不设限。
func breachesLimit(side order.Side, price, limit float64) bool {
	if limit <= 0 {
		return false
	}
	if side == order.SideBuy {
		return price > limit
	}
	return price < limit
}
