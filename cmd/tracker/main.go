package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/coinwatch/internal/alertlog"
	"github.com/betbot/coinwatch/internal/analytics"
	"github.com/betbot/coinwatch/internal/api"
	"github.com/betbot/coinwatch/internal/metrics"
	"github.com/betbot/coinwatch/internal/pricesource"
	"github.com/betbot/coinwatch/internal/snapshot"
	"github.com/betbot/coinwatch/internal/tracker"
	"github.com/betbot/coinwatch/pkg/config"
	"github.com/betbot/coinwatch/pkg/logger"
	"github.com/betbot/coinwatch/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml），为空则只用环境变量和默认值")
	once := flag.Bool("once", false, "只轮询一次后退出")
	flag.Parse()

	// .env 不存在是正常情况
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *once); err != nil {
		logger.Errorf("运行失败: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, once bool) error {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	closers := shutdown.NewManager()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		closers.Shutdown(ctx)
	}()

	engine := analytics.NewEngine(analytics.Config{
		Window:   cfg.Metrics.Window,
		AlertPct: cfg.Metrics.AlertPct,
		StdDev:   analytics.ParseStdDevMode(cfg.Metrics.StdDev),
	})

	store := snapshot.NewCSVStore(cfg.Persistence.CSVPath)
	logger.Infof("CSV 快照: %s", store.Path())

	deps := tracker.Deps{
		Source:   pricesource.NewCoinGecko(cfg.Source.BaseURL, cfg.Source.FetchTimeout).WithRateLimit(cfg.Source.RateLimit),
		Engine:   engine,
		Snapshot: store,
	}

	mirror, err := snapshot.OpenMirror(cfg.Persistence.MirrorDriver, cfg.Persistence.MirrorDir, "prices")
	if err != nil {
		return err
	}
	if mirror != nil {
		deps.Mirror = mirror
		closers.OnShutdown("snapshot mirror", func(context.Context) error { return mirror.Close() })
	}

	var journal *alertlog.Journal
	if cfg.Persistence.AlertsDB != "" {
		journal, err = alertlog.Open(cfg.Persistence.AlertsDB)
		if err != nil {
			return err
		}
		deps.Journal = journal
		closers.OnShutdown("alert journal", func(context.Context) error { return journal.Close() })
	}

	var hub *api.Hub
	if cfg.API.Listen != "" {
		hub = api.NewHub()
		deps.Publisher = hub
	}

	t, err := tracker.New(tracker.Options{
		Assets:       cfg.Assets,
		VsCurrency:   cfg.Source.VsCurrency,
		PollInterval: cfg.PollInterval,
		MaxHistory:   cfg.MaxHistory,
		Incremental:  cfg.Metrics.Incremental,
	}, deps)
	if err != nil {
		return err
	}

	if once {
		t.RunOnce(rootCtx)
		return nil
	}

	if cfg.API.Listen != "" {
		var querier api.AlertQuerier
		if journal != nil {
			querier = journal
		}
		srv, _, err := api.New(t, querier, hub).StartAsync(rootCtx, cfg.API.Listen)
		if err != nil {
			return fmt.Errorf("启动状态 API 失败: %w", err)
		}
		closers.OnShutdown("status api", srv.Shutdown)
	}
	if cfg.API.MetricsAddr != "" {
		_, addr, err := metrics.StartAsync(rootCtx, cfg.API.MetricsAddr)
		if err != nil {
			return fmt.Errorf("启动 metrics 服务失败: %w", err)
		}
		logger.Infof("metrics: http://%s/debug/vars", addr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("收到停止信号，正在关闭...")
		rootCancel()
	}()

	logger.Info("✅ coinwatch 已启动，按 Ctrl+C 停止")
	return t.Run(rootCtx)
}
