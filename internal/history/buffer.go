package history

import (
	"iter"
	"slices"
	"time"

	"github.com/betbot/coinwatch/internal/domain"
)

// DefaultMaxHistory 默认最多保留的观测条数
const DefaultMaxHistory = 500

// Buffer 容量固定的观测环形缓冲区
// 插入顺序即时间顺序；超出容量时从头部（最旧）淘汰，从不重排。
// 非并发安全：由轮询循环独占。
type Buffer struct {
	items []domain.Observation
	head  int // 最旧元素的位置
	size  int

	assets map[string]struct{} // 见过的所有资产（导出列），淘汰后仍保留
}

// NewBuffer 创建缓冲区，capacity < 1 时按 1 处理
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		items:  make([]domain.Observation, capacity),
		assets: make(map[string]struct{}),
	}
}

// Append 追加观测，满了就覆盖最旧的一条
func (b *Buffer) Append(obs domain.Observation) {
	for _, id := range obs.AssetIDs() {
		b.assets[id] = struct{}{}
	}

	c := len(b.items)
	if b.size < c {
		b.items[(b.head+b.size)%c] = obs
		b.size++
		return
	}
	b.items[b.head] = obs
	b.head = (b.head + 1) % c
}

// Len 当前条数
func (b *Buffer) Len() int {
	return b.size
}

// Cap 容量
func (b *Buffer) Cap() int {
	return len(b.items)
}

// At 按时间顺序取第 i 条（0 为最旧）
func (b *Buffer) At(i int) domain.Observation {
	if i < 0 || i >= b.size {
		panic("history: index out of range")
	}
	return b.items[(b.head+i)%len(b.items)]
}

// Latest 最新一条；缓冲区为空时 ok=false
func (b *Buffer) Latest() (domain.Observation, bool) {
	if b.size == 0 {
		return domain.Observation{}, false
	}
	return b.At(b.size - 1), true
}

// All 按时间顺序遍历全部观测
func (b *Buffer) All() iter.Seq2[int, domain.Observation] {
	return func(yield func(int, domain.Observation) bool) {
		for i := 0; i < b.size; i++ {
			if !yield(i, b.At(i)) {
				return
			}
		}
	}
}

// Series 资产的惰性时间序列，长度与缓冲区一致；缺失的价格为未定义
func (b *Buffer) Series(assetID string) iter.Seq2[time.Time, domain.NullFloat] {
	return func(yield func(time.Time, domain.NullFloat) bool) {
		for _, obs := range b.All() {
			if !yield(obs.Time, obs.Price(assetID)) {
				return
			}
		}
	}
}

// Prices 资产价格序列（物化版本）
func (b *Buffer) Prices(assetID string) []domain.NullFloat {
	out := make([]domain.NullFloat, 0, b.size)
	for _, p := range b.Series(assetID) {
		out = append(out, p)
	}
	return out
}

// Assets 见过的全部资产（已排序）
func (b *Buffer) Assets() []string {
	out := make([]string, 0, len(b.assets))
	for id := range b.assets {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
