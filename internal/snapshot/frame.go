package snapshot

import (
	"github.com/betbot/coinwatch/internal/analytics"
	"github.com/betbot/coinwatch/internal/domain"
	"github.com/betbot/coinwatch/internal/history"
)

// Frame 持久化快照：价格表 + 各资产的派生列
type Frame struct {
	Table      *history.Table                `json:"table"`
	PctChange  map[string][]domain.NullFloat `json:"pct_change,omitempty"`
	Volatility map[string][]domain.NullFloat `json:"volatility,omitempty"`
}

// NewFrame 由导出表和本轮计算结果组装快照
// 派生列长度与表行数不一致的资产会被忽略。
func NewFrame(t *history.Table, derived map[string]analytics.Derived) *Frame {
	f := &Frame{
		Table:      t,
		PctChange:  make(map[string][]domain.NullFloat, len(derived)),
		Volatility: make(map[string][]domain.NullFloat, len(derived)),
	}
	for id, d := range derived {
		if len(d.PctChange) != len(t.Rows) || len(d.Volatility) != len(t.Rows) {
			continue
		}
		f.PctChange[id] = d.PctChange
		f.Volatility[id] = d.Volatility
	}
	return f
}

// HasVolatility 快照中是否有该资产的波动率列（全部未定义的列视为没有）
func (f *Frame) HasVolatility(assetID string) bool {
	return anyDefined(f.Volatility[assetID])
}

func anyDefined(values []domain.NullFloat) bool {
	for _, v := range values {
		if v.Valid {
			return true
		}
	}
	return false
}
