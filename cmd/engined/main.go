// engined 是算法执行核心的进程入口：装配配置/日志/指标/场所边界，
// 托管算法实例表，处理信号与 systemd 通知。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"algo-engine-go/algo"
	"algo-engine-go/config"
	"algo-engine-go/engine"
	"algo-engine-go/gateway"
	"algo-engine-go/infrastructure/alert"
	"algo-engine-go/infrastructure/logger"
	"algo-engine-go/market"
	"algo-engine-go/metrics"
	"algo-engine-go/order"
	"algo-engine-go/risk"
)

var (
	cfgPath   string
	dryRun    bool
	mmMarkets []string
)

func main() {
	root := &cobra.Command{
		Use:   "engined",
		Short: "algo execution engine",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "配置文件路径")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "start the engine",
		RunE:  func(cmd *cobra.Command, args []string) error { return run() },
	}
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "使用进程内仿真场所，不连真实交易所")
	runCmd.Flags().StringSliceVar(&mmMarkets, "mm", nil, "启动时按配置默认值为这些市场各起一个做市实例")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "check a config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadWithEnvOverrides(cfgPath); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}

	root.AddCommand(runCmd, validateCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(cfgPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer log.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Addr != "" {
		metrics.StartMetricsServer(cfg.Metrics.Addr)
	}

	alerts := alert.NewManager([]alert.Channel{alert.NewZapChannel("log", log)}, time.Minute)
	sink := func(event string, fields map[string]interface{}) {
		m.AnomaliesTotal.WithLabelValues(event).Inc()
		_ = alerts.SendAnomaly(event, fields)
	}

	sm := order.NewStateMachine(sink)
	ledger := order.NewLedger(cfg.Engine.OverfillTolerance, sink)
	lockouts := risk.NewLockoutManager(risk.NowUTC)
	cache := market.NewCache()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var registry *algo.Registry
	router := gateway.NewRouter(sm, cfg.Engine.RouterShards, func(u algo.ChildUpdate) {
		registry.OnChildUpdate(u)
	}, log)

	var venue gateway.Venue
	var sim *gateway.SimVenue
	if dryRun || cfg.Venue.Mode == "sim" {
		sim = gateway.NewSimVenue(cache, router.Dispatch)
		venue = sim
	} else {
		venue = &gateway.RESTVenue{
			BaseURL:    cfg.Venue.RestURL,
			APIKey:     cfg.Venue.APIKey,
			Secret:     cfg.Venue.APISecret,
			HTTPClient: gateway.NewDefaultHTTPClient(),
		}
	}
	// 限速器不挂在信号 ctx 上，优雅退出阶段的撤单仍需通过场所边界。
	venue = gateway.NewRateLimitedVenue(context.Background(), venue, cfg.Venue.RateLimitRPS, cfg.Venue.RateLimitBurst)

	registry = algo.NewRegistry(algo.RunnerDeps{
		SM:       sm,
		Ledger:   ledger,
		Lockouts: lockouts,
		Venue:    venue,
		Cache:    cache,
		Log:      log,
		Metrics:  m,
	}, cfg.Engine.TickInterval())

	router.Start(ctx)
	svc := engine.New(sm, registry, venue, log)

	onSnapshot := func(s market.Snapshot) {
		registry.OnSnapshot(s)
		if sim != nil {
			sim.OnSnapshot(s)
		}
	}
	if cfg.Venue.FeedURL != "" {
		feed := gateway.NewFeed(cfg.Venue.FeedURL, onSnapshot, log)
		go feed.Run(ctx)
	}

	for _, mkt := range mmMarkets {
		mc, ok := cfg.Markets[mkt]
		if !ok {
			return fmt.Errorf("market %s not found in config", mkt)
		}
		id, err := svc.CreateAlgo("", algo.KindMarketMaker, mmConfigFromDefaults(cfg.Algo.MarketMaker, mkt, mc))
		if err != nil {
			return err
		}
		log.LogOrder("autostart_mm", id, map[string]interface{}{"market": mkt})
	}

	go watchConfig(ctx, registry, log)
	go sweepStale(ctx, sm, m, cfg.Engine.StalenessWindow())

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go func() {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}

	log.Info("engine started")
	<-ctx.Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutting down")
	registry.Shutdown(cfg.Engine.ShutdownTimeout())
	svc.CancelAll("")
	return nil
}

// watchConfig 热加载可调参数并下发给运行中的做市实例。
func watchConfig(ctx context.Context, registry *algo.Registry, log *logger.Logger) {
	w := config.Watcher{Path: cfgPath}
	err := w.Start(ctx, func(cfg config.AppConfig) {
		mm := cfg.Algo.MarketMaker
		orderLk := time.Duration(mm.OrderLockoutMs) * time.Millisecond
		fillLk := time.Duration(mm.FillLockoutMs) * time.Millisecond
		rejectLk := time.Duration(mm.RejectLockoutMs) * time.Millisecond
		tn := algo.Tunables{
			RefDistFrac:   &mm.RefDistFrac,
			ToleranceFrac: &mm.ToleranceFrac,
			PositionTilt:  &mm.PositionTilt,
			MaxImproveBbo: &mm.MaxImproveBbo,
			OrderLockout:  &orderLk,
			FillLockout:   &fillLk,
			RejectLockout: &rejectLk,
		}
		for _, info := range registry.List() {
			if info.Kind != algo.KindMarketMaker && info.Kind != algo.KindSpread {
				continue
			}
			_ = registry.ApplyTunables(info.ID, tn)
		}
		log.Info("config reloaded")
	})
	if err != nil && ctx.Err() == nil {
		log.LogError(err, map[string]interface{}{"component": "config_watcher"})
	}
}

// sweepStale 周期性把静默超窗的在场订单标记为 STALE。
func sweepStale(ctx context.Context, sm *order.StateMachine, m *metrics.Metrics, window time.Duration) {
	t := time.NewTicker(window / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			marked := sm.MarkStaleOlderThan(window)
			m.StaleOrders.Set(float64(len(marked)))
		}
	}
}

func mmConfigFromDefaults(d config.MarketMakerDefaults, mkt string, mc config.MarketConfig) algo.MarketMakerConfig {
	return algo.MarketMakerConfig{
		Market:        mkt,
		BuyEnabled:    true,
		SellEnabled:   true,
		Quantity:      d.Quantity,
		MinPosition:   d.MinPosition,
		MaxPosition:   d.MaxPosition,
		RefPolicy:     market.Policy(d.RefPolicy),
		RefDistFrac:   d.RefDistFrac,
		ToleranceFrac: d.ToleranceFrac,
		PositionTilt:  d.PositionTilt,
		MaxImproveBbo: d.MaxImproveBbo,
		TickSize:      mc.TickSize,
		OrderLockout:  time.Duration(d.OrderLockoutMs) * time.Millisecond,
		FillLockout:   time.Duration(d.FillLockoutMs) * time.Millisecond,
		RejectLockout: time.Duration(d.RejectLockoutMs) * time.Millisecond,
	}
}
