package history

import (
	"time"

	"github.com/betbot/coinwatch/internal/domain"
)

// Row 导出表的一行
type Row struct {
	Time   time.Time                   `json:"time"`
	Prices map[string]domain.NullFloat `json:"prices"`
}

// Table 缓冲区的表格形式：每行一个观测，列为 time + 每个见过的资产（稀疏）
type Table struct {
	Assets []string `json:"assets"`
	Rows   []Row    `json:"rows"`
}

// Export 物化整个缓冲区，供持久化使用
func (b *Buffer) Export() *Table {
	t := &Table{
		Assets: b.Assets(),
		Rows:   make([]Row, 0, b.size),
	}
	for _, obs := range b.All() {
		row := Row{Time: obs.Time, Prices: make(map[string]domain.NullFloat, len(t.Assets))}
		for _, id := range t.Assets {
			row.Prices[id] = obs.Price(id)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Column 取某个资产的整列
func (t *Table) Column(assetID string) []domain.NullFloat {
	out := make([]domain.NullFloat, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row.Prices[assetID]
	}
	return out
}

// Times 时间列
func (t *Table) Times() []time.Time {
	out := make([]time.Time, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row.Time
	}
	return out
}

// FromTable 由导出表重建缓冲区；超过 capacity 的旧行按 Append 规则被淘汰
func FromTable(t *Table, capacity int) *Buffer {
	b := NewBuffer(capacity)
	for _, id := range t.Assets {
		b.assets[id] = struct{}{}
	}
	for _, row := range t.Rows {
		prices := make(map[string]float64, len(row.Prices))
		for id, p := range row.Prices {
			if p.Valid {
				prices[id] = p.Value
			}
		}
		b.Append(domain.NewObservation(row.Time, prices))
	}
	return b
}
