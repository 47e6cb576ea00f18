// Package engine 对外的同步操作面：直接下单/撤单、创建算法单、
// 控制命令与只读查询。校验通过才落账，场所交互 fire-and-forget。
package engine

import (
	"errors"
	"fmt"

	"algo-engine-go/algo"
	"algo-engine-go/gateway"
	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/order"
)

var ErrValidation = errors.New("invalid order")

// Service 执行核心的入口门面。
type Service struct {
	sm       *order.StateMachine
	registry *algo.Registry
	venue    gateway.Venue
	log      *logger.Logger
}

func New(sm *order.StateMachine, registry *algo.Registry, venue gateway.Venue, log *logger.Logger) *Service {
	return &Service{sm: sm, registry: registry, venue: venue, log: log}
}

// CreateOrder 登记并下发一张普通订单，同步返回订单 ID。
// 回报经入向路由异步落账。
func (s *Service) CreateOrder(o order.Order) (string, error) {
	if o.Market == "" {
		return "", fmt.Errorf("%w: market is required", ErrValidation)
	}
	if o.Side != order.SideBuy && o.Side != order.SideSell {
		return "", fmt.Errorf("%w: side must be BUY or SELL", ErrValidation)
	}
	if o.Quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}
	if o.Price <= 0 {
		return "", fmt.Errorf("%w: price must be > 0", ErrValidation)
	}
	if o.Source == "" {
		o.Source = "api"
	}

	id, err := s.sm.Submit(o)
	if err != nil {
		return "", err
	}
	o.ID = id
	if err := s.venue.Submit(o); err != nil {
		_ = s.sm.ApplyReject(id, "venue submit: "+err.Error())
		return id, err
	}
	s.log.LogOrder("order_submitted", id, map[string]interface{}{
		"market": o.Market, "side": string(o.Side), "price": o.Price, "qty": o.Quantity,
	})
	return id, nil
}

// CreateAlgo 创建并启动一个算法单，返回算法单 ID。
func (s *Service) CreateAlgo(id string, kind algo.Kind, cfg algo.Config) (string, error) {
	return s.registry.Create(id, kind, cfg)
}

// CancelOrder 请求撤销一张在场订单。
func (s *Service) CancelOrder(id string) error {
	if err := s.sm.ApplyCancelRequest(id); err != nil {
		return err
	}
	if err := s.venue.Cancel(id); err != nil {
		s.log.LogError(err, map[string]interface{}{"order_id": id})
		return err
	}
	return nil
}

// CancelAll 请求撤销全部在场订单；market 非空时只撤该市场。
// 返回实际发出撤单请求的数量。
func (s *Service) CancelAll(market string) int {
	var n int
	for _, id := range s.sm.LiveOrders() {
		st, err := s.sm.Get(id)
		if err != nil || st.Canceling {
			continue
		}
		if market != "" {
			ord, err := s.sm.GetOrder(id)
			if err != nil || ord.Market != market {
				continue
			}
		}
		if s.CancelOrder(id) == nil {
			n++
		}
	}
	s.log.LogOrder("cancel_all", "", map[string]interface{}{"market": market, "count": n})
	return n
}

// Control 向算法单转发 START/PAUSE/STOP。
func (s *Service) Control(id string, cmd algo.Command) error {
	return s.registry.Control(id, cmd)
}

// OrderStatus 返回订单当前状态。
func (s *Service) OrderStatus(id string) (order.State, error) {
	return s.sm.Get(id)
}

// AlgoStatus 返回算法单运行状态。
func (s *Service) AlgoStatus(id string) (algo.Status, error) {
	return s.registry.Status(id)
}

// Log 返回订单完整审计历史。
func (s *Service) Log(id string) ([]order.Event, error) {
	return s.sm.Log(id)
}
