package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow 滑动窗口限流：任意 window 时长内最多 limit 次
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits []time.Time
}

// NewSlidingWindow limit <= 0 表示不限流
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, window: window, now: time.Now}
}

func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.hits) && !sw.hits[i].After(cutoff) {
		i++
	}
	sw.hits = sw.hits[i:]
}

// Allow 占用一次额度；额度用完时返回 false（不阻塞）
func (sw *SlidingWindow) Allow() bool {
	if sw == nil || sw.limit <= 0 {
		return true
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.prune(now)
	if len(sw.hits) >= sw.limit {
		return false
	}
	sw.hits = append(sw.hits, now)
	return true
}

// Remaining 当前窗口剩余次数
func (sw *SlidingWindow) Remaining() int {
	if sw == nil || sw.limit <= 0 {
		return -1
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(sw.now())
	return sw.limit - len(sw.hits)
}

// ResetTime 最早一次请求移出窗口的时间
func (sw *SlidingWindow) ResetTime() time.Time {
	if sw == nil || sw.limit <= 0 {
		return time.Time{}
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := sw.now()
	sw.prune(now)
	if len(sw.hits) == 0 {
		return now
	}
	return sw.hits[0].Add(sw.window)
}
