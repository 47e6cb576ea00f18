package order

import (
	"strings"
	"time"
)

// State 订单生命周期标志集合。各标志非互斥，不能用单一枚举表达：
// 例如 CANCELING 和 ACKED 可以同时为真。所有变更必须经过 StateMachine
// 的单一入口，转换表见 state_machine.go。
type State struct {
	Open      bool
	Rejected  bool
	Acked     bool
	Filled    bool
	Canceling bool
	Canceled  bool
	Out       bool // 终态：交易所声明不再有后续更新
	Stale     bool // 正交标志：超过时限未收到回报，下次回报自动清除

	FilledQty    float64
	AvgFillPrice float64
	RejectReason string
	LastUpdate   time.Time
}

// Terminal 判断是否处于终态（OUT 或 REJECTED）。
func (s State) Terminal() bool {
	return s.Out || s.Rejected
}

// Live 判断订单是否仍可能产生成交。
func (s State) Live() bool {
	return !s.Terminal() && !s.Canceled && !s.Filled
}

// String 输出形如 "ACKED|CANCELING" 的标志列表，便于日志检索。
func (s State) String() string {
	flags := make([]string, 0, 4)
	if s.Open {
		flags = append(flags, "OPEN")
	}
	if s.Rejected {
		flags = append(flags, "REJECTED")
	}
	if s.Acked {
		flags = append(flags, "ACKED")
	}
	if s.Filled {
		flags = append(flags, "FILLED")
	}
	if s.Canceling {
		flags = append(flags, "CANCELING")
	}
	if s.Canceled {
		flags = append(flags, "CANCELED")
	}
	if s.Out {
		flags = append(flags, "OUT")
	}
	if s.Stale {
		flags = append(flags, "STALE")
	}
	if len(flags) == 0 {
		return "NONE"
	}
	return strings.Join(flags, "|")
}

// EventKind 审计事件类型。
type EventKind string

const (
	EventSubmit        EventKind = "SUBMIT"
	EventAck           EventKind = "ACK"
	EventReject        EventKind = "REJECT"
	EventFill          EventKind = "FILL"
	EventCancelRequest EventKind = "CANCEL_REQUEST"
	EventCancelConfirm EventKind = "CANCEL_CONFIRM"
	EventOut           EventKind = "OUT"
)

// Event 订单审计日志条目。Anomaly 为真表示该事件未改变状态，
// 仅作留痕（如终态后迟到的成交）。
type Event struct {
	Kind    EventKind
	Ts      time.Time
	Detail  string
	Anomaly bool
}
