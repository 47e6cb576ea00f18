// Package algo 实现算法单执行：每个算法实例独占一个控制循环，
// 消费行情/成交/定时事件，经决策引擎产出子单动作。
package algo

import (
	"errors"
	"time"
)

// Kind 算法类型。
type Kind string

const (
	KindMarketMaker Kind = "MARKET_MAKER"
	KindSpread      Kind = "SPREAD"
	KindTWAP        Kind = "TWAP"
	KindPOV         Kind = "POV"
	KindSOR         Kind = "SOR"
	KindChaser      Kind = "CHASER"
)

// Status 算法实例运行状态。
type Status int

const (
	// StatusRunning 运行中
	StatusRunning Status = iota
	// StatusPaused 暂停，RUNNING↔PAUSED 可双向切换
	StatusPaused
	// StatusDone 终态，任意状态单向进入
	StatusDone
)

// String 返回状态名称
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Command 控制命令。
type Command string

const (
	CommandStart Command = "START"
	CommandPause Command = "PAUSE"
	CommandStop  Command = "STOP"
)

var (
	ErrDuplicateAlgo  = errors.New("duplicate algo")
	ErrUnknownAlgo    = errors.New("unknown algo")
	ErrConfiguration  = errors.New("invalid algo configuration")
	ErrInvalidCommand = errors.New("invalid control command")
)

// LockoutDurations 各类事件触发的冷却窗口时长，0 表示不启用。
type LockoutDurations struct {
	Order  time.Duration
	Fill   time.Duration
	Reject time.Duration
}
