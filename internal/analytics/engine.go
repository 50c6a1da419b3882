package analytics

import (
	"math"
	"time"

	"github.com/betbot/coinwatch/internal/domain"
	"github.com/betbot/coinwatch/internal/history"
)

const (
	// DefaultWindow 滚动波动率窗口（连续 pct_change 个数）
	DefaultWindow = 5
	// DefaultAlertPct 告警阈值（百分比）
	DefaultAlertPct = 2.0
	// minUsablePrices 资产至少需要的有效价格数
	minUsablePrices = 2
)

// StdDevMode 标准差口径
type StdDevMode int

const (
	// Population 总体标准差（除以 n）
	Population StdDevMode = iota
	// Sample 样本标准差（除以 n-1）
	Sample
)

// ParseStdDevMode 解析配置值，未知值按 Population 处理
func ParseStdDevMode(s string) StdDevMode {
	if s == "sample" {
		return Sample
	}
	return Population
}

// Config 指标引擎配置
type Config struct {
	Window   int
	AlertPct float64
	StdDev   StdDevMode
}

// Derived 单个资产的派生列，与缓冲区等长
type Derived struct {
	AssetID    string
	PctChange  []domain.NullFloat
	Volatility []domain.NullFloat
}

// Last 最新一行的派生值
func (d Derived) Last() (pct, vol domain.NullFloat) {
	n := len(d.PctChange)
	if n == 0 {
		return domain.None(), domain.None()
	}
	return d.PctChange[n-1], d.Volatility[n-1]
}

// Report 一轮计算的结果
type Report struct {
	Time    time.Time
	Derived map[string]Derived
	Alerts  []domain.Alert
}

// Engine 基于 HistoryBuffer 计算涨跌幅、波动率并判定告警
type Engine struct {
	cfg Config
}

// NewEngine 创建指标引擎，非法参数回落到默认值
func NewEngine(cfg Config) *Engine {
	if cfg.Window < 2 {
		cfg.Window = DefaultWindow
	}
	if cfg.AlertPct <= 0 {
		cfg.AlertPct = DefaultAlertPct
	}
	return &Engine{cfg: cfg}
}

// Config 返回生效的配置
func (e *Engine) Config() Config {
	return e.cfg
}

// PctChange 第 i 个价格相对前一个的百分比变化
// i=0、任一价格缺失、前值为 0 或结果溢出（非有限数）时未定义
func PctChange(prices []domain.NullFloat, i int) domain.NullFloat {
	if i < 1 || i >= len(prices) {
		return domain.None()
	}
	prev, cur := prices[i-1], prices[i]
	if !prev.Valid || !cur.Valid || prev.Value == 0 {
		return domain.None()
	}
	return finite((cur.Value - prev.Value) / prev.Value * 100)
}

func finite(v float64) domain.NullFloat {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return domain.None()
	}
	return domain.Some(v)
}

// RollingVolatility pct[i-window+1..i] 的标准差，窗口内任一值未定义则未定义
func RollingVolatility(pct []domain.NullFloat, i, window int, mode StdDevMode) domain.NullFloat {
	if window < 1 || i < window-1 || i >= len(pct) {
		return domain.None()
	}
	span := pct[i-window+1 : i+1]
	for _, v := range span {
		if !v.Valid {
			return domain.None()
		}
	}
	return stdDev(span, mode)
}

func stdDev(values []domain.NullFloat, mode StdDevMode) domain.NullFloat {
	n := float64(len(values))
	div := n
	if mode == Sample {
		div = n - 1
	}
	if div <= 0 {
		return domain.None()
	}

	var sum float64
	for _, v := range values {
		sum += v.Value
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v.Value - mean
		sq += d * d
	}
	return finite(math.Sqrt(sq / div))
}

func usable(prices []domain.NullFloat) int {
	n := 0
	for _, p := range prices {
		if p.Valid {
			n++
		}
	}
	return n
}

// DeriveSeries 对价格序列做全量计算
func (e *Engine) DeriveSeries(assetID string, prices []domain.NullFloat) Derived {
	d := Derived{
		AssetID:    assetID,
		PctChange:  make([]domain.NullFloat, len(prices)),
		Volatility: make([]domain.NullFloat, len(prices)),
	}
	if usable(prices) < minUsablePrices {
		return d
	}
	for i := range prices {
		d.PctChange[i] = PctChange(prices, i)
	}
	for i := range prices {
		d.Volatility[i] = RollingVolatility(d.PctChange, i, e.cfg.Window, e.cfg.StdDev)
	}
	return d
}

// Derive 对缓冲区中某资产做全量计算
func (e *Engine) Derive(buf *history.Buffer, assetID string) Derived {
	return e.DeriveSeries(assetID, buf.Prices(assetID))
}

// EvaluateAlert 只看最新一行：pct 已定义且 |pct| >= AlertPct 时触发
// 不去重，连续满足条件的每一轮都会触发
func (e *Engine) EvaluateAlert(buf *history.Buffer, assetID string) (domain.Alert, bool) {
	return e.alertFrom(buf, e.Derive(buf, assetID))
}

func (e *Engine) alertFrom(buf *history.Buffer, d Derived) (domain.Alert, bool) {
	latest, ok := buf.Latest()
	if !ok {
		return domain.Alert{}, false
	}
	pct, vol := d.Last()
	if !pct.Valid || math.Abs(pct.Value) < e.cfg.AlertPct {
		return domain.Alert{}, false
	}
	return domain.Alert{
		AssetID:    d.AssetID,
		PctChange:  pct.Value,
		Volatility: vol,
		Price:      latest.Price(d.AssetID).Value,
		Time:       latest.Time,
	}, true
}

// Evaluate 计算所有资产并收集告警，告警顺序与 assets 一致
func (e *Engine) Evaluate(buf *history.Buffer, assets []string) Report {
	r := Report{Derived: make(map[string]Derived, len(assets))}
	if latest, ok := buf.Latest(); ok {
		r.Time = latest.Time
	}
	for _, id := range assets {
		d := e.Derive(buf, id)
		r.Derived[id] = d
		if a, ok := e.alertFrom(buf, d); ok {
			r.Alerts = append(r.Alerts, a)
		}
	}
	return r
}
