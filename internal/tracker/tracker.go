package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/coinwatch/internal/analytics"
	"github.com/betbot/coinwatch/internal/domain"
	"github.com/betbot/coinwatch/internal/history"
	"github.com/betbot/coinwatch/internal/metrics"
	"github.com/betbot/coinwatch/internal/pricesource"
	"github.com/betbot/coinwatch/internal/snapshot"
	"github.com/betbot/coinwatch/pkg/logger"
)

// SnapshotSaver 快照落盘（CSV、镜像存储）
type SnapshotSaver interface {
	Save(f *snapshot.Frame) error
}

// AlertRecorder 告警持久化
type AlertRecorder interface {
	Record(ctx context.Context, a domain.Alert) (domain.Alert, error)
}

// AlertPublisher 告警推送（例如 websocket）
type AlertPublisher interface {
	Publish(a domain.Alert)
}

// Options 轮询参数
type Options struct {
	Assets       []string
	VsCurrency   string
	PollInterval time.Duration
	MaxHistory   int
	Incremental  bool // 告警判定走增量维护
}

// Deps 外部协作者；除 Source 与 Engine 外都可以为空
type Deps struct {
	Source    pricesource.Source
	Engine    *analytics.Engine
	Snapshot  SnapshotSaver
	Mirror    SnapshotSaver
	Journal   AlertRecorder
	Publisher AlertPublisher
	Now       func() time.Time
}

// AssetState 资产最新一行
type AssetState struct {
	ID         string           `json:"id"`
	Price      domain.NullFloat `json:"price"`
	PctChange  domain.NullFloat `json:"pct_change"`
	Volatility domain.NullFloat `json:"volatility"`
}

// State 每轮结束后发布的只读状态（供 API 读取）
type State struct {
	Time         time.Time      `json:"time"`
	Observations int            `json:"observations"`
	Assets       []AssetState   `json:"assets"`
	Alerts       []domain.Alert `json:"alerts"`
}

// Tracker 轮询循环：fetch → append → derive → alert → persist → sleep
// 缓冲区由 Tracker 独占，只在循环所在 goroutine 中读写。
type Tracker struct {
	opts Options
	deps Deps

	buf     *history.Buffer
	monitor *analytics.Monitor
	state   atomic.Pointer[State]
}

// New 创建 Tracker
func New(opts Options, deps Deps) (*Tracker, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("tracker: price source is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("tracker: metrics engine is required")
	}
	if len(opts.Assets) == 0 {
		return nil, fmt.Errorf("tracker: no assets configured")
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = history.DefaultMaxHistory
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	t := &Tracker{
		opts: opts,
		deps: deps,
		buf:  history.NewBuffer(opts.MaxHistory),
	}
	if opts.Incremental {
		t.monitor = analytics.NewMonitor(deps.Engine, opts.MaxHistory, opts.Assets)
	}
	t.state.Store(&State{})
	return t, nil
}

// State 最近一次发布的状态
func (t *Tracker) State() *State {
	return t.state.Load()
}

// Len 缓冲区当前条数
func (t *Tracker) Len() int {
	return t.buf.Len()
}

// Run 持续轮询直到 ctx 取消；拉取、持久化失败都不会让循环退出
func (t *Tracker) Run(ctx context.Context) error {
	logger.Infof("开始轮询: assets=%s vs=%s interval=%s max_history=%d",
		strings.Join(t.opts.Assets, ","), t.opts.VsCurrency, t.opts.PollInterval, t.opts.MaxHistory)

	for {
		t.RunOnce(ctx)

		logger.Debugf("Sleeping %s...", t.opts.PollInterval)
		select {
		case <-ctx.Done():
			logger.Info("轮询已停止")
			return nil
		case <-time.After(t.opts.PollInterval):
		}
	}
}

// RunOnce 执行一轮；返回本轮触发的告警，ok=false 表示本轮被跳过
func (t *Tracker) RunOnce(ctx context.Context) (alerts []domain.Alert, ok bool) {
	metrics.Polls.Add(1)
	ts := t.deps.Now()

	prices, err := t.deps.Source.Fetch(ctx, t.opts.Assets, t.opts.VsCurrency)
	if err != nil {
		metrics.FetchFailures.Add(1)
		logger.Warnf("Error fetching prices: %v. Skipping this cycle.", err)
		return nil, false
	}
	if len(prices) == 0 {
		metrics.FetchFailures.Add(1)
		logger.Warn("No prices fetched. Skipping this cycle.")
		return nil, false
	}

	obs := domain.NewObservation(ts, prices)
	t.buf.Append(obs)
	metrics.Observations.Add(1)
	metrics.HistoryLen.Set(int64(t.buf.Len()))

	// 增量模式下告警只看最新一行；全量派生列只在需要落盘时计算
	var report *analytics.Report
	evaluate := func() *analytics.Report {
		if report == nil {
			r := t.deps.Engine.Evaluate(t.buf, t.opts.Assets)
			report = &r
		}
		return report
	}
	if t.monitor != nil {
		alerts = t.monitor.Push(obs)
	} else {
		alerts = evaluate().Alerts
	}

	alerts = t.fire(ctx, alerts)
	logger.Infof("Prices: %s", formatPrices(obs, t.opts.Assets))

	if t.deps.Snapshot != nil || t.deps.Mirror != nil {
		t.persist(evaluate())
	}
	t.publish(obs, report, alerts)
	return alerts, true
}

func (t *Tracker) fire(ctx context.Context, alerts []domain.Alert) []domain.Alert {
	for i, a := range alerts {
		logger.WithFields(logrus.Fields{"asset": a.AssetID, "price": a.Price}).Info(a.Message())
		metrics.AlertsFired.Add(1)

		if t.deps.Journal != nil {
			recorded, err := t.deps.Journal.Record(ctx, a)
			if err != nil {
				logger.Errorf("记录告警失败: asset=%s err=%v", a.AssetID, err)
			} else {
				alerts[i] = recorded
			}
		}
		if t.deps.Publisher != nil {
			t.deps.Publisher.Publish(alerts[i])
		}
	}
	return alerts
}

func (t *Tracker) persist(report *analytics.Report) {
	frame := snapshot.NewFrame(t.buf.Export(), report.Derived)

	if t.deps.Snapshot != nil {
		if err := t.deps.Snapshot.Save(frame); err != nil {
			metrics.PersistFailures.Add(1)
			logger.Errorf("Error saving CSV: %v", err)
		}
	}
	if t.deps.Mirror != nil {
		if err := t.deps.Mirror.Save(frame); err != nil {
			metrics.PersistFailures.Add(1)
			logger.Errorf("Error saving snapshot mirror: %v", err)
		}
	}
}

func (t *Tracker) publish(obs domain.Observation, report *analytics.Report, alerts []domain.Alert) {
	st := &State{
		Time:         obs.Time,
		Observations: t.buf.Len(),
		Assets:       make([]AssetState, 0, len(t.opts.Assets)),
		Alerts:       alerts,
	}
	for _, id := range t.opts.Assets {
		var pct, vol domain.NullFloat
		switch {
		case t.monitor != nil:
			pct, vol = t.monitor.Latest(id)
		case report != nil:
			pct, vol = report.Derived[id].Last()
		}
		st.Assets = append(st.Assets, AssetState{
			ID:         id,
			Price:      obs.Price(id),
			PctChange:  pct,
			Volatility: vol,
		})
	}
	t.state.Store(st)
}

// formatPrices 最新价格日志，例如 {bitcoin: 67187.3, ethereum: 3512.25}
func formatPrices(obs domain.Observation, assets []string) string {
	parts := make([]string, 0, len(assets))
	for _, id := range assets {
		if p := obs.Price(id); p.Valid {
			parts = append(parts, fmt.Sprintf("%s: %s", id, p))
		}
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}
