package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/betbot/coinwatch/internal/snapshot"
	"github.com/betbot/coinwatch/pkg/config"
	"github.com/betbot/coinwatch/pkg/logger"
)

func main() {
	file := flag.String("file", config.DefaultCSVPath, "CSV 快照路径")
	assetsFlag := flag.String("assets", "", "只画这些资产（逗号分隔，默认快照中的全部资产）")
	static := flag.Bool("static", false, "直接输出所有图表后退出（不进入交互界面）")
	width := flag.Int("width", 72, "绘图区宽度")
	height := flag.Int("height", 12, "绘图区高度")
	flag.Parse()

	// 终端留给图表，日志只写文件
	if err := logger.InitWithWriter(logger.Config{
		Level:      "info",
		OutputFile: "logs/coinwatch-plot.log",
		MaxSize:    10,
		MaxBackups: 1,
		NoColor:    true,
	}, nil); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
	}

	frame, err := snapshot.NewCSVStore(*file).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取快照失败: %v\n", err)
		os.Exit(1)
	}
	assets := selectAssets(frame.Table.Assets, *assetsFlag)
	logger.Infof("plot: file=%s rows=%d assets=%s", *file, len(frame.Table.Rows), strings.Join(assets, ","))

	if *static {
		fmt.Print(renderStatic(frame, assets, *width, *height))
		return
	}

	p := tea.NewProgram(newModel(frame, assets, *file, *width, *height), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "运行程序失败: %v\n", err)
		os.Exit(1)
	}
}

// selectAssets 按 -assets 过滤，保持用户给出的顺序；快照中没有的资产跳过
func selectAssets(available []string, filter string) []string {
	if strings.TrimSpace(filter) == "" {
		return available
	}
	have := make(map[string]bool, len(available))
	for _, id := range available {
		have[id] = true
	}
	var out []string
	for _, id := range strings.Split(filter, ",") {
		id = strings.ToLower(strings.TrimSpace(id))
		if have[id] {
			out = append(out, id)
		}
	}
	return out
}
