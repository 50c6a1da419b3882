package snapshot

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/betbot/coinwatch/internal/analytics"
	"github.com/betbot/coinwatch/internal/domain"
	"github.com/betbot/coinwatch/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleBuffer() *history.Buffer {
	b := history.NewBuffer(10)
	rows := []map[string]float64{
		{"bitcoin": 67187.3, "ethereum": 3512.25},
		{"bitcoin": 67190.125},
		{"bitcoin": 68000, "ethereum": 3400.1},
		{"bitcoin": 0.1 + 0.2, "ethereum": 3401},
	}
	for i, r := range rows {
		b.Append(domain.NewObservation(t0.Add(time.Duration(i)*30*time.Second), r))
	}
	return b
}

func sampleFrame(b *history.Buffer) *Frame {
	e := analytics.NewEngine(analytics.Config{Window: 2})
	derived := map[string]analytics.Derived{}
	for _, id := range b.Assets() {
		derived[id] = e.Derive(b, id)
	}
	return NewFrame(b.Export(), derived)
}

func TestWriteCSV_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleFrame(sampleBuffer())))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "time,bitcoin,ethereum,bitcoin_pct_change,bitcoin_vol,ethereum_pct_change,ethereum_vol", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2025-03-01T12:00:00Z,67187.3,3512.25,,,,"), lines[1])
	// ethereum 缺失的单元格为空
	assert.True(t, strings.HasPrefix(lines[2], "2025-03-01T12:00:30Z,67190.125,,"), lines[2])
}

func TestCSV_RoundTrip(t *testing.T) {
	b := sampleBuffer()
	in := sampleFrame(b)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))
	out, err := ReadCSV(&buf)
	require.NoError(t, err)

	assert.Equal(t, in.Table.Assets, out.Table.Assets)
	require.Len(t, out.Table.Rows, len(in.Table.Rows))
	for i := range in.Table.Rows {
		assert.True(t, in.Table.Rows[i].Time.Equal(out.Table.Rows[i].Time))
	}

	rebuilt := history.FromTable(out.Table, b.Cap())
	for _, id := range b.Assets() {
		assert.Equal(t, b.Prices(id), rebuilt.Prices(id), id)
		assert.Equal(t, in.PctChange[id], out.PctChange[id], id)
		assert.Equal(t, in.Volatility[id], out.Volatility[id], id)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)

	_, err = ReadCSV(strings.NewReader("bitcoin\n1\n"))
	require.Error(t, err)

	_, err = ReadCSV(strings.NewReader("time,bitcoin\nyesterday,1\n"))
	require.Error(t, err)

	_, err = ReadCSV(strings.NewReader("time,bitcoin\n2025-03-01T12:00:00Z,abc\n"))
	require.Error(t, err)
}

func TestReadCSV_ShortRowsAndNaN(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("time,bitcoin,solana\n2025-03-01T12:00:00Z,NaN\n"))
	require.NoError(t, err)
	require.Len(t, f.Table.Rows, 1)
	assert.False(t, f.Table.Rows[0].Prices["bitcoin"].Valid)
	assert.False(t, f.Table.Rows[0].Prices["solana"].Valid)
	assert.False(t, f.HasVolatility("bitcoin"))
}

func TestWriteCSV_NonFiniteCellsAreEmpty(t *testing.T) {
	table := &history.Table{
		Assets: []string{"bitcoin"},
		Rows: []history.Row{
			{Time: t0, Prices: map[string]domain.NullFloat{"bitcoin": domain.Some(1e-300)}},
			{Time: t0.Add(time.Minute), Prices: map[string]domain.NullFloat{"bitcoin": domain.Some(1e300)}},
		},
	}
	f := &Frame{
		Table:      table,
		PctChange:  map[string][]domain.NullFloat{"bitcoin": {domain.Some(1), domain.Some(math.Inf(1))}},
		Volatility: map[string][]domain.NullFloat{"bitcoin": {domain.None(), domain.Some(math.NaN())}},
	}

	var buf bytes.Buffer
	require.NotPanics(t, func() { require.NoError(t, WriteCSV(&buf, f)) })
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[2], ",,"), lines[2])
}

func TestWriteCSV_SkipsEmptyDerivedColumns(t *testing.T) {
	b := history.NewBuffer(10)
	b.Append(domain.NewObservation(t0, map[string]float64{"bitcoin": 100, "solana": 20}))
	b.Append(domain.NewObservation(t0.Add(time.Minute), map[string]float64{"bitcoin": 101}))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleFrame(b)))
	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, "time,bitcoin,solana,bitcoin_pct_change,bitcoin_vol", header)

	f, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.False(t, f.HasVolatility("solana"))
	assert.False(t, f.HasVolatility("bitcoin"), "window not filled yet")
}

func TestReadCSV_PandasTimestamps(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("time,bitcoin\n2025-01-01 12:00:00.123456,67187.3\n2025-01-01 12:00:30,67190\n"))
	require.NoError(t, err)
	require.Len(t, f.Table.Rows, 2)
	assert.True(t, f.Table.Rows[0].Time.Equal(time.Date(2025, 1, 1, 12, 0, 0, 123456000, time.UTC)))
	assert.True(t, f.Table.Rows[1].Time.Equal(time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)))
}

func TestCSVStore_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "price_history.csv")
	store := NewCSVStore(path)
	assert.Equal(t, path, store.Path())

	b := sampleBuffer()
	require.NoError(t, store.Save(sampleFrame(b)))
	b.Append(domain.NewObservation(t0.Add(time.Hour), map[string]float64{"bitcoin": 1}))
	require.NoError(t, store.Save(sampleFrame(b)))

	f, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, f.Table.Rows, 5)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestCSVStore_SaveFailureKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// 父路径是普通文件，无法创建目录
	store := NewCSVStore(filepath.Join(blocker, "price_history.csv"))
	require.Error(t, store.Save(sampleFrame(sampleBuffer())))
}

func TestMirror_JSONAndBadger(t *testing.T) {
	for _, driver := range []string{"json", "badger"} {
		t.Run(driver, func(t *testing.T) {
			m, err := OpenMirror(driver, t.TempDir(), "price_history")
			require.NoError(t, err)
			require.NotNil(t, m)
			defer m.Close()

			in := sampleFrame(sampleBuffer())
			require.NoError(t, m.Save(in))
			out, err := m.Load()
			require.NoError(t, err)
			assert.Equal(t, in.Table.Assets, out.Table.Assets)
			assert.Equal(t, in.PctChange["bitcoin"], out.PctChange["bitcoin"])
			require.Len(t, out.Table.Rows, 4)
			assert.Equal(t, in.Table.Rows[1].Prices, out.Table.Rows[1].Prices)
		})
	}

	m, err := OpenMirror("none", "", "x")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = OpenMirror("redis", "", "x")
	require.Error(t, err)
}
