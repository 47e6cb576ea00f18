// Package metrics provides Prometheus metrics for the execution core
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 引擎核心指标集合。
type Metrics struct {
	OrdersSubmitted *prometheus.CounterVec // market
	OrdersFilled    *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	OrdersCanceled  *prometheus.CounterVec

	DecisionsTotal *prometheus.CounterVec // algo_kind, decision
	LockoutsArmed  *prometheus.CounterVec // kind
	AnomaliesTotal *prometheus.CounterVec // event

	ActiveAlgos   prometheus.Gauge
	StaleOrders   prometheus.Gauge
	FilledQty     *prometheus.CounterVec // market
	FeedSnapshots *prometheus.CounterVec // market
}

// New 注册并返回指标集合。reg 为 nil 时使用默认 Registerer。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		OrdersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_submitted_total",
			Help: "Child orders submitted to the venue",
		}, []string{"market"}),
		OrdersFilled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_filled_total",
			Help: "Orders fully filled",
		}, []string{"market"}),
		OrdersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_rejected_total",
			Help: "Orders rejected by the venue",
		}, []string{"market"}),
		OrdersCanceled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_canceled_total",
			Help: "Orders confirmed canceled",
		}, []string{"market"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_decisions_total",
			Help: "Per-tick strategy decisions by outcome",
		}, []string{"algo_kind", "decision"}),
		LockoutsArmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_lockouts_armed_total",
			Help: "Lockout windows armed by kind",
		}, []string{"kind"}),
		AnomaliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_anomalies_total",
			Help: "Aberrant venue events recorded for audit",
		}, []string{"event"}),
		ActiveAlgos: factory.NewGauge(prometheus.GaugeOpts{
			Name: "engine_active_algos",
			Help: "Algo instances currently running or paused",
		}),
		StaleOrders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "engine_stale_orders",
			Help: "Live orders with no venue update within the staleness window",
		}),
		FilledQty: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_filled_qty_total",
			Help: "Aggregate filled quantity",
		}, []string{"market"}),
		FeedSnapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_feed_snapshots_total",
			Help: "Market data snapshots consumed",
		}, []string{"market"}),
	}
}

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
