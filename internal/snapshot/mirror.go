package snapshot

import (
	"fmt"

	"github.com/betbot/coinwatch/pkg/persistence"
)

// Mirror 把最新快照额外写一份到 persistence 存储（json 文件或 badger）
type Mirror struct {
	svc   persistence.Service
	store persistence.Store
}

// OpenMirror 按 driver 打开镜像存储；driver 为 "" 或 "none" 时返回 nil
func OpenMirror(driver, dir, name string) (*Mirror, error) {
	var svc persistence.Service
	switch driver {
	case "", "none":
		return nil, nil
	case "json":
		svc = persistence.NewJSONFileService(dir)
	case "badger":
		b, err := persistence.NewBadgerService(dir)
		if err != nil {
			return nil, fmt.Errorf("打开 badger 失败: %w", err)
		}
		svc = b
	default:
		return nil, fmt.Errorf("unknown mirror driver: %s", driver)
	}
	return NewMirror(svc, name), nil
}

// NewMirror 使用已有的 persistence 服务
func NewMirror(svc persistence.Service, name string) *Mirror {
	return &Mirror{svc: svc, store: svc.NewStore("snapshot", name, "latest")}
}

// Save 保存快照
func (m *Mirror) Save(f *Frame) error {
	return m.store.Save(f)
}

// Load 读取最近一次保存的快照
func (m *Mirror) Load() (*Frame, error) {
	var f Frame
	if err := m.store.Load(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Close 释放底层存储
func (m *Mirror) Close() error {
	return m.svc.Close()
}
