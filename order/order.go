package order

import "time"

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回对手方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Type 订单类型。
type Type string

const (
	TypeLimit           Type = "LIMIT"
	TypeStopLossLimit   Type = "STOP_LOSS_LIMIT"
	TypeTakeProfitLimit Type = "TAKE_PROFIT_LIMIT"
)

// TimeInForce 订单有效期。
type TimeInForce string

const (
	TIFGoodTilCanceled TimeInForce = "GTC"
	TIFImmediateOrKill TimeInForce = "IOC"
	TIFDay             TimeInForce = "DAY"
)

// ParentKind 父单类型：算法单或普通单。
type ParentKind string

const (
	ParentAlgo  ParentKind = "ALGO"
	ParentOrder ParentKind = "ORDER"
)

// ParentRef 指向父单的引用，每个子单最多一个。
type ParentRef struct {
	Kind ParentKind
	ID   string
}

// Order 订单基本信息，提交后除撤单/改单外不可变。
type Order struct {
	ID          string
	Market      string
	Side        Side
	Price       float64
	Quantity    float64
	Account     string // 可选
	Type        Type
	TimeInForce TimeInForce
	Source      string
	Parent      *ParentRef
}

// FillKind 成交类型。REVERSAL/CORRECTION 修正已记录的成交量/价格。
type FillKind string

const (
	FillNormal     FillKind = "NORMAL"
	FillReversal   FillKind = "REVERSAL"
	FillCorrection FillKind = "CORRECTION"
)

// Fill 成交事实，只追加不修改。
type Fill struct {
	ID        string
	OrderID   string
	Market    string
	Side      Side
	Quantity  float64
	Price     float64
	Kind      FillKind
	TradeTime time.Time
	RecvTime  time.Time
}
