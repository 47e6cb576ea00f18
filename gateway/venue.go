// Package gateway 是交易所边界：出向下单/撤单、入向回报路由、
// 行情接入与进程内仿真场所。
package gateway

import (
	"context"

	"golang.org/x/time/rate"

	"algo-engine-go/order"
)

// Venue 出向接口，fire-and-forget。回报经入向 Router 异步到达。
type Venue interface {
	Submit(o order.Order) error
	Cancel(orderID string) error
}

// RateLimitedVenue 在出向请求前按令牌桶限速，避免触发交易所限流。
type RateLimitedVenue struct {
	inner   Venue
	limiter *rate.Limiter
	ctx     context.Context
}

// NewRateLimitedVenue 包装 inner。rps 为每秒请求数，burst 为突发上限。
func NewRateLimitedVenue(ctx context.Context, inner Venue, rps float64, burst int) *RateLimitedVenue {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedVenue{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		ctx:     ctx,
	}
}

func (v *RateLimitedVenue) Submit(o order.Order) error {
	if err := v.limiter.Wait(v.ctx); err != nil {
		return err
	}
	return v.inner.Submit(o)
}

func (v *RateLimitedVenue) Cancel(orderID string) error {
	if err := v.limiter.Wait(v.ctx); err != nil {
		return err
	}
	return v.inner.Cancel(orderID)
}
