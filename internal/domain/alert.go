package domain

import (
	"fmt"
	"strings"
	"time"
)

// Alert 阈值告警
type Alert struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"asset_id"`
	PctChange  float64   `json:"pct_change"`
	Volatility NullFloat `json:"volatility"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
}

// Message 告警日志行，例如：[ALERT] BITCOIN moved +3.00% (vol 1.23)
func (a Alert) Message() string {
	vol := "n/a"
	if a.Volatility.Valid {
		vol = fmt.Sprintf("%.2f", a.Volatility.Value)
	}
	return fmt.Sprintf("[ALERT] %s moved %+.2f%% (vol %s)", strings.ToUpper(a.AssetID), a.PctChange, vol)
}
