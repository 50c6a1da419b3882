package chart

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/coinwatch/internal/domain"
)

func times(n int) []time.Time {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * 30 * time.Second)
	}
	return out
}

func TestRender_GapsForMissingValues(t *testing.T) {
	values := []domain.NullFloat{domain.Some(1), domain.Some(2), domain.Some(3), domain.None(), domain.Some(5)}
	out := Render("bitcoin price", times(len(values)), values, 40, 5)

	assert.Contains(t, out, "bitcoin price")
	assert.Equal(t, 4, strings.Count(out, string(pointRune)))
	assert.Contains(t, out, "5.00")
	assert.Contains(t, out, "1.00")
	assert.Contains(t, out, "03-01 00:00:00")
	assert.Contains(t, out, "03-01 00:02:00")
}

func TestRender_NoData(t *testing.T) {
	out := Render("solana volatility", nil, []domain.NullFloat{domain.None(), domain.None()}, 20, 5)
	assert.Contains(t, out, "(no data)")
	assert.NotContains(t, out, string(pointRune))
}

func TestRender_FlatSeries(t *testing.T) {
	values := []domain.NullFloat{domain.Some(7), domain.Some(7), domain.Some(7)}
	out := Render("flat", times(3), values, 10, 5)
	lines := strings.Split(out, "\n")
	// 标题之后第 height/2 行
	assert.Equal(t, 3, strings.Count(lines[1+5/2], string(pointRune)))
}

func TestRender_DownsamplesToWidth(t *testing.T) {
	values := make([]domain.NullFloat, 100)
	for i := range values {
		values[i] = domain.Some(float64(i))
	}
	out := Render("long", times(100), values, 20, 8)
	assert.Equal(t, 20, strings.Count(out, string(pointRune)))
}

func TestSampleIndex(t *testing.T) {
	assert.Equal(t, 0, sampleIndex(0, 20, 100))
	assert.Equal(t, 99, sampleIndex(19, 20, 100))
	assert.Equal(t, 4, sampleIndex(0, 1, 5))
}
