// Package decision 实现纯函数式的下单决策：输入行情/仓位/锁定状态，
// 输出 Send/Cancel/DoNothing 三选一及其原因码。原因码仅用于审计与
// 可观测，绝不参与控制流。
package decision

import "fmt"

// Reason 决策原因码，按判定顺序追加。
type Reason string

const (
	ReasonAlgoPaused  Reason = "ALGO_PAUSED"
	ReasonAlgoStopped Reason = "ALGO_STOPPED"

	ReasonMinPosition Reason = "MIN_POSITION"
	ReasonMaxPosition Reason = "MAX_POSITION"

	ReasonNoReferencePrice Reason = "NO_REFERENCE_PRICE"
	ReasonNoBid            Reason = "NO_BID"
	ReasonNoAsk            Reason = "NO_ASK"

	ReasonWithinOrderLockout  Reason = "WITHIN_ORDER_LOCKOUT"
	ReasonWithinFillLockout   Reason = "WITHIN_FILL_LOCKOUT"
	ReasonWithinRejectLockout Reason = "WITHIN_REJECT_LOCKOUT"
	ReasonCancelPending       Reason = "CANCEL_PENDING"

	ReasonOpenOrderWithinTolerance  Reason = "OPEN_ORDER_WITHIN_TOLERANCE"
	ReasonOpenOrderOutsideTolerance Reason = "OPEN_ORDER_OUTSIDE_TOLERANCE"
)

// Kind 决策类型。
type Kind int

const (
	KindDoNothing Kind = iota
	KindCancel
	KindSend
)

// String 返回类型名称。
func (k Kind) String() string {
	switch k {
	case KindDoNothing:
		return "DO_NOTHING"
	case KindCancel:
		return "CANCEL"
	case KindSend:
		return "SEND"
	default:
		return "UNKNOWN"
	}
}

// Decision 带负载的决策值：Kind 决定有效字段。
type Decision struct {
	Kind          Kind
	TargetOrderID string  // KindCancel
	Price         float64 // KindSend
	Quantity      float64 // KindSend
	Reasons       []Reason
}

// String 便于日志输出，如 "SEND 1.5@100.25" / "DO_NOTHING [MAX_POSITION]"。
func (d Decision) String() string {
	switch d.Kind {
	case KindSend:
		return fmt.Sprintf("SEND %.8f@%.8f", d.Quantity, d.Price)
	case KindCancel:
		return fmt.Sprintf("CANCEL %s %v", d.TargetOrderID, d.Reasons)
	default:
		return fmt.Sprintf("DO_NOTHING %v", d.Reasons)
	}
}

// DoNothing 构造空决策。
func DoNothing(reasons ...Reason) Decision {
	return Decision{Kind: KindDoNothing, Reasons: reasons}
}

// Cancel 构造撤单决策。
func Cancel(orderID string, reasons ...Reason) Decision {
	return Decision{Kind: KindCancel, TargetOrderID: orderID, Reasons: reasons}
}

// Send 构造下单决策。
func Send(price, qty float64) Decision {
	return Decision{Kind: KindSend, Price: price, Quantity: qty}
}
