package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/betbot/coinwatch/internal/domain"
	"github.com/betbot/coinwatch/internal/history"
	"github.com/betbot/coinwatch/internal/snapshot"
)

func testFrame() *snapshot.Frame {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	table := &history.Table{Assets: []string{"bitcoin", "ethereum"}}
	for i := range 4 {
		table.Rows = append(table.Rows, history.Row{
			Time: base.Add(time.Duration(i) * 30 * time.Second),
			Prices: map[string]domain.NullFloat{
				"bitcoin":  domain.Some(100 + float64(i)),
				"ethereum": domain.Some(10 - float64(i)),
			},
		})
	}
	return &snapshot.Frame{
		Table: table,
		Volatility: map[string][]domain.NullFloat{
			"bitcoin": {domain.None(), domain.None(), domain.Some(0.2), domain.Some(0.3)},
		},
	}
}

func press(m tea.Model, key string) tea.Model {
	var msg tea.KeyMsg
	switch key {
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next
}

func TestModel_Navigation(t *testing.T) {
	var m tea.Model = newModel(testFrame(), []string{"bitcoin", "ethereum"}, "test.csv", 20, 5)
	assert.Contains(t, m.View(), "bitcoin price")

	m = press(m, "right")
	assert.Contains(t, m.View(), "ethereum price")
	m = press(m, "right")
	assert.Contains(t, m.View(), "bitcoin price")
	m = press(m, "left")
	assert.Contains(t, m.View(), "ethereum price")

	m = press(m, "v")
	assert.Contains(t, m.View(), "ethereum 没有波动率列")
	m = press(m, "left")
	assert.Contains(t, m.View(), "bitcoin volatility")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.NotNil(t, cmd)
}

func TestRenderStatic(t *testing.T) {
	out := renderStatic(testFrame(), []string{"bitcoin", "ethereum"}, 20, 5)
	assert.Equal(t, 1, strings.Count(out, "bitcoin price"))
	assert.Equal(t, 1, strings.Count(out, "bitcoin volatility"))
	assert.Equal(t, 1, strings.Count(out, "ethereum price"))
	assert.NotContains(t, out, "ethereum volatility")
}

func TestRenderStatic_AllUndefinedVolatilityIsAbsent(t *testing.T) {
	f := testFrame()
	f.Volatility["ethereum"] = []domain.NullFloat{domain.None(), domain.None(), domain.None(), domain.None()}

	out := renderStatic(f, []string{"ethereum"}, 20, 5)
	assert.Contains(t, out, "ethereum price")
	assert.NotContains(t, out, "ethereum volatility")

	_, ok := renderAsset(f, "ethereum", true, 20, 5)
	assert.False(t, ok)
}

func TestSelectAssets(t *testing.T) {
	avail := []string{"bitcoin", "ethereum", "solana"}
	assert.Equal(t, avail, selectAssets(avail, ""))
	assert.Equal(t, []string{"solana", "bitcoin"}, selectAssets(avail, " Solana, dogecoin,bitcoin"))
}
