package analytics

import (
	"math/rand"
	"testing"
	"time"

	"github.com/betbot/coinwatch/internal/domain"
	"github.com/betbot/coinwatch/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func some(vs ...float64) []domain.NullFloat {
	out := make([]domain.NullFloat, len(vs))
	for i, v := range vs {
		out[i] = domain.Some(v)
	}
	return out
}

func bufferOf(capacity int, rows ...map[string]float64) *history.Buffer {
	b := history.NewBuffer(capacity)
	for i, r := range rows {
		b.Append(domain.NewObservation(t0.Add(time.Duration(i)*30*time.Second), r))
	}
	return b
}

func TestPctChange(t *testing.T) {
	prices := []domain.NullFloat{domain.Some(100), domain.Some(103), domain.None(), domain.Some(0), domain.Some(5), domain.Some(6)}

	assert.False(t, PctChange(prices, 0).Valid, "index 0 is always undefined")
	got := PctChange(prices, 1)
	require.True(t, got.Valid)
	assert.InDelta(t, 3.0, got.Value, 1e-9)
	assert.False(t, PctChange(prices, 2).Valid, "current missing")
	assert.False(t, PctChange(prices, 3).Valid, "previous missing")
	assert.False(t, PctChange(prices, 4).Valid, "previous is zero")
	assert.InDelta(t, 20.0, PctChange(prices, 5).Value, 1e-9)
	assert.False(t, PctChange(prices, 6).Valid)
}

func TestRollingVolatility(t *testing.T) {
	pct := append([]domain.NullFloat{domain.None()}, some(1, -1, 1, -1, 1)...)

	for i := 0; i < 5; i++ {
		assert.False(t, RollingVolatility(pct, i, 5, Population).Valid, "i=%d", i)
	}
	pop := RollingVolatility(pct, 5, 5, Population)
	require.True(t, pop.Valid)
	assert.InDelta(t, 0.9797958971, pop.Value, 1e-9)

	sample := RollingVolatility(pct, 5, 5, Sample)
	require.True(t, sample.Valid)
	assert.InDelta(t, 1.0954451150, sample.Value, 1e-9)
}

func TestRollingVolatility_RequiresWholeWindow(t *testing.T) {
	pct := some(1, 2, 3, 4, 5, 6)
	pct[3] = domain.None()
	for i := 3; i <= 5; i++ {
		assert.False(t, RollingVolatility(pct, i, 5, Population).Valid, "i=%d", i)
	}
	pct[3] = domain.Some(4)
	assert.True(t, RollingVolatility(pct, 5, 5, Population).Valid)
}

func TestEngine_AlertFiresAtThreshold(t *testing.T) {
	e := NewEngine(Config{})

	b := bufferOf(500, map[string]float64{"x": 100}, map[string]float64{"x": 103})
	a, ok := e.EvaluateAlert(b, "x")
	require.True(t, ok)
	assert.InDelta(t, 3.0, a.PctChange, 1e-9)
	assert.False(t, a.Volatility.Valid)
	assert.Equal(t, 103.0, a.Price)
	assert.Equal(t, "[ALERT] X moved +3.00% (vol n/a)", a.Message())

	b = bufferOf(500, map[string]float64{"x": 100}, map[string]float64{"x": 101})
	_, ok = e.EvaluateAlert(b, "x")
	assert.False(t, ok)

	b = bufferOf(500, map[string]float64{"x": 100}, map[string]float64{"x": 98})
	a, ok = e.EvaluateAlert(b, "x")
	require.True(t, ok, "exactly -2% fires")
	assert.InDelta(t, -2.0, a.PctChange, 1e-9)
}

func TestEngine_AlertRefiresEveryCycle(t *testing.T) {
	e := NewEngine(Config{})
	b := bufferOf(500, map[string]float64{"x": 100}, map[string]float64{"x": 110})
	_, ok := e.EvaluateAlert(b, "x")
	require.True(t, ok)

	b.Append(domain.NewObservation(t0.Add(time.Hour), map[string]float64{"x": 121}))
	_, ok = e.EvaluateAlert(b, "x")
	assert.True(t, ok)
}

func TestEngine_AlertIgnoresOlderRows(t *testing.T) {
	e := NewEngine(Config{})
	b := bufferOf(500,
		map[string]float64{"x": 100},
		map[string]float64{"x": 150},
		map[string]float64{"x": 150.1},
	)
	_, ok := e.EvaluateAlert(b, "x")
	assert.False(t, ok)

	_, ok = e.EvaluateAlert(history.NewBuffer(5), "x")
	assert.False(t, ok)
}

func TestEngine_MissingAssetMidSeries(t *testing.T) {
	e := NewEngine(Config{})
	b := bufferOf(500,
		map[string]float64{"bitcoin": 100, "ethereum": 10},
		map[string]float64{"ethereum": 11},
		map[string]float64{"bitcoin": 102, "ethereum": 12},
		map[string]float64{"bitcoin": 103, "ethereum": 13},
	)

	btc := e.Derive(b, "bitcoin")
	assert.False(t, btc.PctChange[1].Valid)
	assert.False(t, btc.PctChange[2].Valid)
	assert.True(t, btc.PctChange[3].Valid)

	eth := e.Derive(b, "ethereum")
	for i := 1; i < 4; i++ {
		assert.True(t, eth.PctChange[i].Valid, "i=%d", i)
	}
}

func TestEngine_MinimumData(t *testing.T) {
	e := NewEngine(Config{})
	b := bufferOf(500,
		map[string]float64{"bitcoin": 100},
		map[string]float64{"ethereum": 1},
		map[string]float64{"ethereum": 2},
	)
	d := e.Derive(b, "bitcoin")
	require.Len(t, d.PctChange, 3)
	for i := range d.PctChange {
		assert.False(t, d.PctChange[i].Valid)
		assert.False(t, d.Volatility[i].Valid)
	}

	d = e.Derive(b, "dogecoin")
	assert.Len(t, d.PctChange, 3)
}

func TestEngine_VolatilityAfterWindow(t *testing.T) {
	e := NewEngine(Config{Window: 5})
	rows := make([]map[string]float64, 0, 7)
	p := 100.0
	for i := 0; i < 7; i++ {
		rows = append(rows, map[string]float64{"x": p})
		p *= 1.01
	}
	d := e.Derive(bufferOf(500, rows...), "x")
	for i := 0; i < 5; i++ {
		assert.False(t, d.Volatility[i].Valid, "i=%d", i)
	}
	require.True(t, d.Volatility[5].Valid)
	assert.InDelta(t, 0, d.Volatility[5].Value, 1e-9)
	assert.True(t, d.Volatility[6].Valid)
}

func TestEngine_EvaluateOrdersAlerts(t *testing.T) {
	e := NewEngine(Config{AlertPct: 2})
	b := bufferOf(500,
		map[string]float64{"bitcoin": 100, "ethereum": 100, "solana": 100},
		map[string]float64{"bitcoin": 90, "ethereum": 100.5, "solana": 105},
	)
	r := e.Evaluate(b, []string{"solana", "ethereum", "bitcoin"})
	require.Len(t, r.Alerts, 2)
	assert.Equal(t, "solana", r.Alerts[0].AssetID)
	assert.Equal(t, "bitcoin", r.Alerts[1].AssetID)
	assert.Len(t, r.Derived, 3)
	assert.Equal(t, t0.Add(30*time.Second), r.Time)
}

func TestMonitor_MatchesFullRecompute(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	assets := []string{"a", "b"}

	for _, capacity := range []int{1, 2, 3, 5, 6, 8, 40} {
		for _, mode := range []StdDevMode{Population, Sample} {
			e := NewEngine(Config{Window: 5, AlertPct: 1, StdDev: mode})
			m := NewMonitor(e, capacity, assets)
			b := history.NewBuffer(capacity)

			for step := 0; step < 120; step++ {
				prices := map[string]float64{}
				for _, id := range assets {
					switch r := rng.Intn(10); {
					case r == 0:
						// 缺失
					case r == 1:
						prices[id] = 0
					default:
						prices[id] = 50 + rng.Float64()*10
					}
				}
				obs := domain.NewObservation(t0.Add(time.Duration(step)*time.Second), prices)
				b.Append(obs)
				incAlerts := m.Push(obs)
				fullAlerts := e.Evaluate(b, assets).Alerts
				require.Equal(t, len(fullAlerts), len(incAlerts), "capacity=%d step=%d", capacity, step)

				for _, id := range assets {
					wantPct, wantVol := e.Derive(b, id).Last()
					gotPct, gotVol := m.Latest(id)
					require.Equal(t, wantPct.Valid, gotPct.Valid, "pct capacity=%d step=%d", capacity, step)
					require.Equal(t, wantVol.Valid, gotVol.Valid, "vol capacity=%d step=%d", capacity, step)
					assert.InDelta(t, wantPct.Value, gotPct.Value, 1e-9)
					assert.InDelta(t, wantVol.Value, gotVol.Value, 1e-9)
				}
			}
		}
	}
}

func TestParseStdDevMode(t *testing.T) {
	assert.Equal(t, Sample, ParseStdDevMode("sample"))
	assert.Equal(t, Population, ParseStdDevMode("population"))
	assert.Equal(t, Population, ParseStdDevMode(""))
}

func TestPctChange_OverflowIsUndefined(t *testing.T) {
	prices := some(1e-300, 1e300, -1e300)
	assert.False(t, PctChange(prices, 1).Valid)

	e := NewEngine(Config{Window: 2})
	b := bufferOf(10, map[string]float64{"bitcoin": 1e-300}, map[string]float64{"bitcoin": 1e300})
	d := e.Derive(b, "bitcoin")
	assert.False(t, d.PctChange[1].Valid)
	_, ok := e.EvaluateAlert(b, "bitcoin")
	assert.False(t, ok)

	m := NewIncremental(2, 10, Population)
	m.Push(domain.Some(1e-300))
	pct, vol := m.Push(domain.Some(1e300))
	assert.False(t, pct.Valid)
	assert.False(t, vol.Valid)
}

func TestRollingVolatility_OverflowIsUndefined(t *testing.T) {
	pct := some(1e308, -1e308, 1e308)
	assert.False(t, RollingVolatility(pct, 2, 3, Population).Valid)
}
