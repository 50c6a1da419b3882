package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/coinwatch/internal/domain"
	"github.com/betbot/coinwatch/internal/history"
)

const (
	timeColumn      = "time"
	pctChangeSuffix = "_pct_change"
	volSuffix       = "_vol"
)

// PctChangeColumn 涨跌幅列名
func PctChangeColumn(assetID string) string { return assetID + pctChangeSuffix }

// VolatilityColumn 波动率列名
func VolatilityColumn(assetID string) string { return assetID + volSuffix }

// formatCell 未定义或非有限数写成空单元格
func formatCell(v domain.NullFloat) string {
	if !v.Valid || math.IsInf(v.Value, 0) || math.IsNaN(v.Value) {
		return ""
	}
	return decimal.NewFromFloat(v.Value).String()
}

func parseCell(s string) (domain.NullFloat, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return domain.None(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return domain.None(), err
	}
	f, _ := d.Float64()
	return domain.Some(f), nil
}

// WriteCSV 写出快照：time, <asset>..., <asset>_pct_change, <asset>_vol ...
// 有效价格不足（pct_change 全部未定义）的资产不写派生列
func WriteCSV(w io.Writer, f *Frame) error {
	derivedAssets := make([]string, 0, len(f.PctChange))
	for id, pct := range f.PctChange {
		if anyDefined(pct) {
			derivedAssets = append(derivedAssets, id)
		}
	}
	slices.Sort(derivedAssets)

	header := []string{timeColumn}
	header = append(header, f.Table.Assets...)
	for _, id := range derivedAssets {
		header = append(header, PctChangeColumn(id), VolatilityColumn(id))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("写入 CSV 头失败: %w", err)
	}

	record := make([]string, len(header))
	for i, row := range f.Table.Rows {
		record = record[:0]
		record = append(record, row.Time.Format(time.RFC3339Nano))
		for _, id := range f.Table.Assets {
			record = append(record, formatCell(row.Prices[id]))
		}
		for _, id := range derivedAssets {
			record = append(record, formatCell(f.PctChange[id][i]), formatCell(f.Volatility[id][i]))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("写入 CSV 数据失败: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("刷新 CSV 数据失败: %w", err)
	}
	return nil
}

// timeLayouts 依次尝试；第二种是 pandas 默认的 ISO 格式（空格分隔）
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999"}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var ts time.Time
		if ts, err = time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}

// ReadCSV 读回快照；缺失单元格为未定义
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("CSV 为空")
		}
		return nil, fmt.Errorf("读取 CSV 头失败: %w", err)
	}

	timeIdx := -1
	priceCols := map[int]string{}
	pctCols := map[int]string{}
	volCols := map[int]string{}
	f := &Frame{
		Table:      &history.Table{},
		PctChange:  map[string][]domain.NullFloat{},
		Volatility: map[string][]domain.NullFloat{},
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == timeColumn:
			timeIdx = i
		case strings.HasSuffix(name, pctChangeSuffix):
			pctCols[i] = strings.TrimSuffix(name, pctChangeSuffix)
		case strings.HasSuffix(name, volSuffix):
			volCols[i] = strings.TrimSuffix(name, volSuffix)
		case name != "":
			priceCols[i] = name
			f.Table.Assets = append(f.Table.Assets, name)
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("CSV 缺少 %q 列", timeColumn)
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 第 %d 行失败: %w", line, err)
		}
		if timeIdx >= len(rec) {
			return nil, fmt.Errorf("CSV 第 %d 行缺少时间", line)
		}
		ts, err := parseTime(strings.TrimSpace(rec[timeIdx]))
		if err != nil {
			return nil, fmt.Errorf("CSV 第 %d 行时间格式错误: %w", line, err)
		}

		row := history.Row{Time: ts, Prices: make(map[string]domain.NullFloat, len(priceCols))}
		cell := func(i int) (domain.NullFloat, error) {
			if i >= len(rec) {
				return domain.None(), nil
			}
			v, err := parseCell(rec[i])
			if err != nil {
				return v, fmt.Errorf("CSV 第 %d 行第 %d 列数值错误: %w", line, i+1, err)
			}
			return v, nil
		}
		for i, id := range priceCols {
			v, err := cell(i)
			if err != nil {
				return nil, err
			}
			row.Prices[id] = v
		}
		for i, id := range pctCols {
			v, err := cell(i)
			if err != nil {
				return nil, err
			}
			f.PctChange[id] = append(f.PctChange[id], v)
		}
		for i, id := range volCols {
			v, err := cell(i)
			if err != nil {
				return nil, err
			}
			f.Volatility[id] = append(f.Volatility[id], v)
		}
		f.Table.Rows = append(f.Table.Rows, row)
	}
	return f, nil
}

// CSVStore 固定路径的快照文件，每轮整体覆盖
type CSVStore struct {
	path string
}

// NewCSVStore 创建 CSV 快照存储
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path 快照文件路径
func (s *CSVStore) Path() string {
	return s.path
}

// Save 先写临时文件再 rename，写失败时旧快照保持不变
func (s *CSVStore) Save(f *Frame) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建快照目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load 读取快照文件
func (s *CSVStore) Load() (*Frame, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}
