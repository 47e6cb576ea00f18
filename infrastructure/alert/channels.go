package alert

import (
	"fmt"

	"algo-engine-go/infrastructure/logger"
)

// ZapChannel 把告警写入结构化日志，是引擎默认的异常出口。
type ZapChannel struct {
	log  *logger.Logger
	name string
}

// NewZapChannel 创建日志告警通道
func NewZapChannel(name string, log *logger.Logger) *ZapChannel {
	return &ZapChannel{log: log, name: name}
}

// Send 发送告警到日志
func (c *ZapChannel) Send(alert Alert) error {
	fields := make(map[string]interface{}, len(alert.Fields)+1)
	for k, v := range alert.Fields {
		fields[k] = v
	}
	fields["level"] = alert.Level
	c.log.LogAnomaly(alert.Message, fields)
	return nil
}

// Name 返回通道名称
func (c *ZapChannel) Name() string {
	return c.name
}

// FuncChannel 回调式通道，测试用。
type FuncChannel struct {
	name string
	fn   func(Alert) error
}

// NewFuncChannel 创建回调通道
func NewFuncChannel(name string, fn func(Alert) error) *FuncChannel {
	return &FuncChannel{name: name, fn: fn}
}

func (c *FuncChannel) Send(alert Alert) error {
	if c.fn == nil {
		return fmt.Errorf("channel %s has no handler", c.name)
	}
	return c.fn(alert)
}

func (c *FuncChannel) Name() string {
	return c.name
}
