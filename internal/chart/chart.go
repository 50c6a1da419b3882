package chart

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/coinwatch/internal/domain"
)

const (
	pointRune = '•'
	stemRune  = '│'
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	lineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	axisStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

// Render 把一列数值画成文本折线图；未定义的值留空（断线）
// width/height 为绘图区大小（不含坐标轴），点数多于 width 时按列抽样。
func Render(title string, times []time.Time, values []domain.NullFloat, width, height int) string {
	width = max(width, 2)
	height = max(height, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteByte('\n')

	lo, hi, ok := bounds(values)
	if !ok {
		b.WriteString(axisStyle.Render("(no data)"))
		b.WriteByte('\n')
		return b.String()
	}

	cols := min(width, len(values))
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", cols))
	}

	prevRow := -1
	for c := range cols {
		v := values[sampleIndex(c, cols, len(values))]
		if !v.Valid {
			prevRow = -1
			continue
		}
		row := scale(v.Value, lo, hi, height)
		if prevRow >= 0 {
			for r := min(prevRow, row) + 1; r < max(prevRow, row); r++ {
				grid[r][c] = stemRune
			}
		}
		grid[row][c] = pointRune
		prevRow = row
	}

	hiLabel, loLabel := formatValue(hi), formatValue(lo)
	labelWidth := max(len(hiLabel), len(loLabel))
	for r, line := range grid {
		label := ""
		switch r {
		case 0:
			label = hiLabel
		case height - 1:
			label = loLabel
		}
		b.WriteString(axisStyle.Render(fmt.Sprintf("%*s ┤", labelWidth, label)))
		b.WriteString(lineStyle.Render(string(line)))
		b.WriteByte('\n')
	}

	b.WriteString(axisStyle.Render(strings.Repeat(" ", labelWidth+1) + "└" + strings.Repeat("─", cols)))
	b.WriteByte('\n')
	if len(times) > 0 {
		first := times[0].Format("01-02 15:04:05")
		last := times[len(times)-1].Format("01-02 15:04:05")
		pad := max(cols-len(first)-len(last), 1)
		b.WriteString(axisStyle.Render(strings.Repeat(" ", labelWidth+2) + first + strings.Repeat(" ", pad) + last))
		b.WriteByte('\n')
	}
	return b.String()
}

func bounds(values []domain.NullFloat) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !v.Valid {
			continue
		}
		ok = true
		lo = math.Min(lo, v.Value)
		hi = math.Max(hi, v.Value)
	}
	return lo, hi, ok
}

// sampleIndex 第 c 列对应的数据下标（首尾两列固定对应首尾两个点）
func sampleIndex(c, cols, n int) int {
	if cols <= 1 {
		return n - 1
	}
	return c * (n - 1) / (cols - 1)
}

// scale 值映射到行号，0 为最上面一行
func scale(v, lo, hi float64, height int) int {
	if hi == lo {
		return height / 2
	}
	pos := (v - lo) / (hi - lo) * float64(height-1)
	return height - 1 - int(math.Round(pos))
}

func formatValue(v float64) string {
	switch a := math.Abs(v); {
	case a >= 1000:
		return fmt.Sprintf("%.0f", v)
	case a >= 1:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%.4f", v)
	}
}
