package domain

import (
	"bytes"
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"
)

// NullFloat 可空数值：Valid=false 表示“未定义”，与 0 区分开
type NullFloat struct {
	Value float64
	Valid bool
}

// Some 构造一个有值的 NullFloat
func Some(v float64) NullFloat {
	return NullFloat{Value: v, Valid: true}
}

// None 构造一个未定义的 NullFloat
func None() NullFloat {
	return NullFloat{}
}

// String 未定义时返回空串（CSV 空单元格）
func (n NullFloat) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// MarshalJSON 未定义或非有限数编码为 null
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid || math.IsInf(n.Value, 0) || math.IsNaN(n.Value) {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// Observation 一次轮询得到的价格快照（创建后不可变）
type Observation struct {
	Time   time.Time
	prices map[string]float64
}

// NewObservation 创建快照，会复制 prices，调用方之后的修改不影响快照
func NewObservation(ts time.Time, prices map[string]float64) Observation {
	cp := make(map[string]float64, len(prices))
	maps.Copy(cp, prices)
	return Observation{Time: ts, prices: cp}
}

// Price 返回资产价格；本轮响应缺失该资产时为未定义
func (o Observation) Price(assetID string) NullFloat {
	p, ok := o.prices[assetID]
	if !ok {
		return None()
	}
	return Some(p)
}

// AssetIDs 返回本次快照包含的资产（已排序）
func (o Observation) AssetIDs() []string {
	return slices.Sorted(maps.Keys(o.prices))
}

// Prices 返回价格映射的副本
func (o Observation) Prices() map[string]float64 {
	return maps.Clone(o.prices)
}

// Len 快照中的资产数量
func (o Observation) Len() int {
	return len(o.prices)
}
