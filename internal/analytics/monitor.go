package analytics

import (
	"math"

	"github.com/betbot/coinwatch/internal/domain"
)

// Monitor 多资产的增量告警判定，每轮对每个跟踪资产 Push 一次
type Monitor struct {
	engine   *Engine
	capacity int
	assets   []string
	trackers map[string]*Incremental
}

// NewMonitor 创建增量监控器，capacity 与 HistoryBuffer 保持一致
func NewMonitor(engine *Engine, capacity int, assets []string) *Monitor {
	m := &Monitor{
		engine:   engine,
		capacity: capacity,
		assets:   append([]string(nil), assets...),
		trackers: make(map[string]*Incremental, len(assets)),
	}
	cfg := engine.Config()
	for _, id := range assets {
		m.trackers[id] = NewIncremental(cfg.Window, capacity, cfg.StdDev)
	}
	return m
}

// Push 推入一个观测，返回本轮的告警（顺序与 assets 一致）
func (m *Monitor) Push(obs domain.Observation) []domain.Alert {
	var alerts []domain.Alert
	threshold := m.engine.Config().AlertPct
	for _, id := range m.assets {
		price := obs.Price(id)
		pct, vol := m.trackers[id].Push(price)
		if !pct.Valid || math.Abs(pct.Value) < threshold {
			continue
		}
		alerts = append(alerts, domain.Alert{
			AssetID:    id,
			PctChange:  pct.Value,
			Volatility: vol,
			Price:      price.Value,
			Time:       obs.Time,
		})
	}
	return alerts
}

// Latest 某资产最新一行的派生值
func (m *Monitor) Latest(assetID string) (pct, vol domain.NullFloat) {
	t, ok := m.trackers[assetID]
	if !ok {
		return domain.None(), domain.None()
	}
	return t.Latest()
}
