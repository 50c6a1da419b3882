package analytics

import (
	"github.com/betbot/coinwatch/internal/domain"
)

// Incremental 单资产的增量维护，只计算最新一行。
// 与对同一缓冲区（相同容量）做全量计算的最后一行结果一致：
// 自己维护一份价格环（用于有效价格计数和判断缓冲区内下标），以及最近 window 个 pct_change。
type Incremental struct {
	window int
	mode   StdDevMode

	prices []domain.NullFloat
	head   int
	size   int
	usable int

	pcts []domain.NullFloat // 最近 window 个 pct_change（环形）
	next int
}

// NewIncremental 创建增量计算器，capacity 应与 HistoryBuffer 容量一致
func NewIncremental(window, capacity int, mode StdDevMode) *Incremental {
	if window < 2 {
		window = DefaultWindow
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Incremental{
		window: window,
		mode:   mode,
		prices: make([]domain.NullFloat, capacity),
		pcts:   make([]domain.NullFloat, window),
	}
}

// Push 追加一个价格（缺失也要 Push），返回最新一行的 pct_change 和波动率
func (m *Incremental) Push(price domain.NullFloat) (pct, vol domain.NullFloat) {
	var prev domain.NullFloat
	if m.size > 0 {
		prev = m.prices[(m.head+m.size-1)%len(m.prices)]
	}

	c := len(m.prices)
	if m.size < c {
		m.prices[(m.head+m.size)%c] = price
		m.size++
	} else {
		if m.prices[m.head].Valid {
			m.usable--
		}
		m.prices[m.head] = price
		m.head = (m.head + 1) % c
	}
	if price.Valid {
		m.usable++
	}

	pct = domain.None()
	if m.size >= 2 {
		pct = PctChange([]domain.NullFloat{prev, price}, 1)
	}
	m.pcts[m.next] = pct
	m.next = (m.next + 1) % m.window
	return m.Latest()
}

// Latest 当前最新一行的派生值
func (m *Incremental) Latest() (pct, vol domain.NullFloat) {
	if m.size == 0 || m.usable < minUsablePrices {
		return domain.None(), domain.None()
	}
	pct = m.pcts[(m.next-1+m.window)%m.window]
	// 窗口最早的 pct 必须落在缓冲区下标 ≥1 处
	if m.size <= m.window {
		return pct, domain.None()
	}
	span := make([]domain.NullFloat, 0, m.window)
	for i := 0; i < m.window; i++ {
		v := m.pcts[(m.next+i)%m.window]
		if !v.Valid {
			return pct, domain.None()
		}
		span = append(span, v)
	}
	return pct, stdDev(span, m.mode)
}
