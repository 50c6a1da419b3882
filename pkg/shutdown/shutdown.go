package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/coinwatch/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type entry struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器：按注册的逆序依次执行（后打开的先关闭）
type Manager struct {
	mu       sync.Mutex
	handlers []entry
	done     bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, entry{name: name, fn: fn})
}

// Shutdown 执行所有关闭回调（阻塞调用，只执行一次）
// ctx 应该带超时；超时后剩余回调不再执行，返回执行失败的回调个数。
func (m *Manager) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return 0
	}
	m.done = true
	handlers := m.handlers
	m.mu.Unlock()

	if len(handlers) == 0 {
		logger.Info("没有注册的关闭回调")
		return 0
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(handlers))

	failed := 0
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if err := ctx.Err(); err != nil {
			logger.Warnf("关闭超时，跳过剩余 %d 个回调: %v", i+1, err)
			return failed + i + 1
		}
		if err := h.fn(ctx); err != nil {
			failed++
			logger.Errorf("关闭 %s 失败: %v", h.name, err)
			continue
		}
		logger.Debugf("已关闭 %s", h.name)
	}
	logger.Info("所有关闭回调已完成")
	return failed
}
