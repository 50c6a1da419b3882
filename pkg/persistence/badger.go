package persistence

import (
	"encoding/json"
	"errors"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/betbot/coinwatch/pkg/logger"
)

// BadgerService 基于 Badger KV 的持久化服务，值为 JSON
type BadgerService struct {
	db *badger.DB
}

// NewBadgerService 打开（或创建）Badger 数据目录
func NewBadgerService(dir string) (*BadgerService, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("persistence: badger dir is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerService{db: db}, nil
}

// NewStore 创建新的存储
func (s *BadgerService) NewStore(prefix, id, tag string) Store {
	return &BadgerStore{db: s.db, key: []byte(storeKey(prefix, id, tag))}
}

// Close 关闭数据库
func (s *BadgerService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BadgerStore 单个 key 的存储
type BadgerStore struct {
	db  *badger.DB
	key []byte
}

// Save 保存数据
func (s *BadgerStore) Save(data interface{}) error {
	logger.Debugf("[persistence] badger Save: key=%s", s.key)
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, b)
	})
}

// Load 加载数据
func (s *BadgerStore) Load(data interface{}) error {
	logger.Debugf("[persistence] badger Load: key=%s", s.key)
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotExists
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(raw, data)
}
