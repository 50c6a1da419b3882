package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/coinwatch/internal/chart"
	"github.com/betbot/coinwatch/internal/snapshot"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))
)

// renderAsset 某资产的价格图或波动率图；没有波动率列时返回 false
func renderAsset(f *snapshot.Frame, assetID string, volatility bool, width, height int) (string, bool) {
	times := f.Table.Times()
	if volatility {
		if !f.HasVolatility(assetID) {
			return "", false
		}
		return chart.Render(assetID+" volatility (rolling std of % change)", times, f.Volatility[assetID], width, height), true
	}
	return chart.Render(assetID+" price", times, f.Table.Column(assetID), width, height), true
}

// renderStatic 所有资产依次输出价格图和（若有）波动率图
func renderStatic(f *snapshot.Frame, assets []string, width, height int) string {
	var b strings.Builder
	for _, id := range assets {
		out, _ := renderAsset(f, id, false, width, height)
		b.WriteString(out)
		b.WriteByte('\n')
		if out, ok := renderAsset(f, id, true, width, height); ok {
			b.WriteString(out)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// model 交互查看器的状态
type model struct {
	frame  *snapshot.Frame
	assets []string
	source string

	idx        int
	volatility bool
	width      int
	height     int
}

func newModel(f *snapshot.Frame, assets []string, source string, width, height int) model {
	return model{frame: f, assets: assets, source: source, width: width, height: height}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "right", "l":
			if len(m.assets) > 0 {
				m.idx = (m.idx + 1) % len(m.assets)
			}
		case "left", "h":
			if len(m.assets) > 0 {
				m.idx = (m.idx - 1 + len(m.assets)) % len(m.assets)
			}
		case "v":
			m.volatility = !m.volatility
		}
	case tea.WindowSizeMsg:
		// 留出边框、坐标轴标签和标题的位置
		m.width = max(msg.Width-16, 10)
		m.height = max(msg.Height-10, 4)
	}
	return m, nil
}

func (m model) current() string {
	if len(m.assets) == 0 {
		return ""
	}
	return m.assets[m.idx]
}

func (m model) View() string {
	if len(m.assets) == 0 {
		return "快照中没有资产\n\n按 q 退出"
	}
	id := m.current()

	body, ok := renderAsset(m.frame, id, m.volatility, m.width, m.height)
	if !ok {
		body = fmt.Sprintf("%s 没有波动率列（数据不足）", id)
	}

	header := headerStyle.Render(fmt.Sprintf("coinwatch plot  %s  [%d/%d]  rows=%d",
		m.source, m.idx+1, len(m.assets), len(m.frame.Table.Rows)))
	help := helpStyle.Render("←/→ 切换资产  v 价格/波动率  q 退出")
	return lipgloss.JoinVertical(lipgloss.Left, header, borderStyle.Render(body), help)
}
