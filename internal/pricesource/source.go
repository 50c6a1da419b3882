package pricesource

import (
	"context"
	"errors"
	"sync"
)

// ErrFetch 拉取失败（网络/超时/非 2xx/响应格式错误），本轮应跳过
var ErrFetch = errors.New("price fetch failed")

// Source 价格源：一次请求拿到一组资产的报价
// 部分资产缺失是正常情况，返回的 map 中不包含这些资产即可。
type Source interface {
	Fetch(ctx context.Context, ids []string, vsCurrency string) (map[string]float64, error)
}

// Static 按顺序回放预设结果的价格源（测试、演练用）
// 回放完毕后一直返回最后一个结果。
type Static struct {
	mu    sync.Mutex
	steps []StaticStep
	pos   int
}

// StaticStep 一次回放：Err 非空时返回错误
type StaticStep struct {
	Prices map[string]float64
	Err    error
}

// NewStatic 创建回放价格源
func NewStatic(steps ...StaticStep) *Static {
	return &Static{steps: steps}
}

func (s *Static) Fetch(ctx context.Context, ids []string, _ string) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return map[string]float64{}, nil
	}
	step := s.steps[min(s.pos, len(s.steps)-1)]
	s.pos++
	if step.Err != nil {
		return nil, step.Err
	}

	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if p, ok := step.Prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
