package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认值（与最初的常量一致）
const (
	DefaultVsCurrency   = "usd"
	DefaultPollInterval = 30 * time.Second
	DefaultAlertPct     = 2.0
	DefaultWindow       = 5
	DefaultMaxHistory   = 500
	DefaultFetchTimeout = 10 * time.Second
	DefaultCSVPath      = "price_history.csv"
	DefaultBaseURL      = "https://api.coingecko.com"
	DefaultRateLimit    = 0 // 默认不限流；CoinGecko 免费档约 30/分钟
)

// DefaultAssets 默认跟踪的资产
var DefaultAssets = []string{"bitcoin", "ethereum", "solana"}

// SourceConfig 价格源配置
type SourceConfig struct {
	BaseURL      string
	VsCurrency   string
	FetchTimeout time.Duration // 单次请求超时（不重试）
	RateLimit    int           // 每分钟最多请求数，0 表示不限
}

// MetricsConfig 指标计算配置
type MetricsConfig struct {
	AlertPct    float64 // 告警阈值（百分比）
	Window      int     // 滚动波动率窗口
	StdDev      string  // population | sample
	Incremental bool    // 告警判定使用增量维护（结果与全量一致）
}

// PersistenceConfig 持久化配置
type PersistenceConfig struct {
	CSVPath      string // 快照 CSV 路径（每轮覆盖）
	MirrorDriver string // 镜像存储：none | json | badger
	MirrorDir    string // 镜像存储目录
	AlertsDB     string // 告警日志 SQLite 文件（为空则不记录）
}

// APIConfig 状态 API 配置
type APIConfig struct {
	Listen      string // gin 状态 API 监听地址（为空则不启动）
	MetricsAddr string // expvar/pprof 调试地址（为空则不启动）
}

// Config 应用配置
type Config struct {
	Assets       []string
	PollInterval time.Duration
	MaxHistory   int
	Source       SourceConfig
	Metrics      MetricsConfig
	Persistence  PersistenceConfig
	API          APIConfig
	LogLevel     string // 日志级别
	LogFile      string // 日志文件路径（可选）
}

// ConfigFile 配置文件结构（用于 YAML 解析）
type ConfigFile struct {
	Assets              []string `yaml:"assets"`
	VsCurrency          string   `yaml:"vs_currency"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	MaxHistory          int      `yaml:"max_history"`
	Source              struct {
		BaseURL             string `yaml:"base_url"`
		FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
		RateLimit           *int   `yaml:"max_requests_per_minute"`
	} `yaml:"source"`
	Metrics struct {
		AlertPct    float64 `yaml:"alert_pct"`
		Window      int     `yaml:"window"`
		StdDev      string  `yaml:"stddev"`
		Incremental bool    `yaml:"incremental"`
	} `yaml:"metrics"`
	Persistence struct {
		CSVPath      string `yaml:"csv_path"`
		MirrorDriver string `yaml:"mirror_driver"`
		MirrorDir    string `yaml:"mirror_dir"`
		AlertsDB     string `yaml:"alerts_db"`
	} `yaml:"persistence"`
	API struct {
		Listen      string `yaml:"listen"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"api"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Assets:       append([]string(nil), DefaultAssets...),
		PollInterval: DefaultPollInterval,
		MaxHistory:   DefaultMaxHistory,
		Source: SourceConfig{
			BaseURL:      DefaultBaseURL,
			VsCurrency:   DefaultVsCurrency,
			FetchTimeout: DefaultFetchTimeout,
			RateLimit:    DefaultRateLimit,
		},
		Metrics: MetricsConfig{
			AlertPct: DefaultAlertPct,
			Window:   DefaultWindow,
			StdDev:   "population",
		},
		Persistence: PersistenceConfig{
			CSVPath:      DefaultCSVPath,
			MirrorDriver: "none",
			MirrorDir:    "data/snapshots",
		},
		LogLevel: "info",
	}
}

// LoadFromFile 加载配置
// 优先级：环境变量 > 配置文件 > 默认值；filePath 为空时只使用环境变量和默认值
func LoadFromFile(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		cf, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		cf.applyTo(cfg)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 读取并解析 YAML 配置文件
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	var cf ConfigFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("解析 YAML 失败: %w", err)
	}
	return &cf, nil
}

// applyTo 只覆盖配置文件中出现的（非零）字段
func (cf *ConfigFile) applyTo(cfg *Config) {
	if len(cf.Assets) > 0 {
		cfg.Assets = normalizeAssets(cf.Assets)
	}
	if cf.VsCurrency != "" {
		cfg.Source.VsCurrency = strings.ToLower(cf.VsCurrency)
	}
	if cf.PollIntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(cf.PollIntervalSeconds) * time.Second
	}
	if cf.MaxHistory != 0 {
		cfg.MaxHistory = cf.MaxHistory
	}
	if cf.Source.BaseURL != "" {
		cfg.Source.BaseURL = cf.Source.BaseURL
	}
	if cf.Source.FetchTimeoutSeconds > 0 {
		cfg.Source.FetchTimeout = time.Duration(cf.Source.FetchTimeoutSeconds) * time.Second
	}
	if cf.Source.RateLimit != nil {
		cfg.Source.RateLimit = *cf.Source.RateLimit
	}
	if cf.Metrics.AlertPct != 0 {
		cfg.Metrics.AlertPct = cf.Metrics.AlertPct
	}
	if cf.Metrics.Window != 0 {
		cfg.Metrics.Window = cf.Metrics.Window
	}
	if cf.Metrics.StdDev != "" {
		cfg.Metrics.StdDev = strings.ToLower(cf.Metrics.StdDev)
	}
	cfg.Metrics.Incremental = cf.Metrics.Incremental
	if cf.Persistence.CSVPath != "" {
		cfg.Persistence.CSVPath = cf.Persistence.CSVPath
	}
	if cf.Persistence.MirrorDriver != "" {
		cfg.Persistence.MirrorDriver = strings.ToLower(cf.Persistence.MirrorDriver)
	}
	if cf.Persistence.MirrorDir != "" {
		cfg.Persistence.MirrorDir = cf.Persistence.MirrorDir
	}
	if cf.Persistence.AlertsDB != "" {
		cfg.Persistence.AlertsDB = cf.Persistence.AlertsDB
	}
	if cf.API.Listen != "" {
		cfg.API.Listen = cf.API.Listen
	}
	if cf.API.MetricsAddr != "" {
		cfg.API.MetricsAddr = cf.API.MetricsAddr
	}
	if cf.LogLevel != "" {
		cfg.LogLevel = cf.LogLevel
	}
	if cf.LogFile != "" {
		cfg.LogFile = cf.LogFile
	}
}

// applyEnv 环境变量覆盖（COINWATCH_ 前缀）
func applyEnv(cfg *Config) {
	if v := getEnv("COINWATCH_ASSETS", ""); v != "" {
		cfg.Assets = normalizeAssets(strings.Split(v, ","))
	}
	if v := getEnv("COINWATCH_VS_CURRENCY", ""); v != "" {
		cfg.Source.VsCurrency = strings.ToLower(v)
	}
	cfg.PollInterval = time.Duration(parseIntEnv("COINWATCH_POLL_INTERVAL_SECONDS", int(cfg.PollInterval/time.Second))) * time.Second
	cfg.MaxHistory = parseIntEnv("COINWATCH_MAX_HISTORY", cfg.MaxHistory)
	cfg.Source.BaseURL = getEnv("COINWATCH_BASE_URL", cfg.Source.BaseURL)
	cfg.Source.FetchTimeout = time.Duration(parseIntEnv("COINWATCH_FETCH_TIMEOUT_SECONDS", int(cfg.Source.FetchTimeout/time.Second))) * time.Second
	cfg.Source.RateLimit = parseIntEnv("COINWATCH_MAX_REQUESTS_PER_MINUTE", cfg.Source.RateLimit)
	cfg.Metrics.AlertPct = parseFloatEnv("COINWATCH_ALERT_PCT", cfg.Metrics.AlertPct)
	cfg.Metrics.Window = parseIntEnv("COINWATCH_WINDOW", cfg.Metrics.Window)
	cfg.Metrics.StdDev = strings.ToLower(getEnv("COINWATCH_STDDEV", cfg.Metrics.StdDev))
	cfg.Metrics.Incremental = parseBoolEnv("COINWATCH_INCREMENTAL", cfg.Metrics.Incremental)
	cfg.Persistence.CSVPath = getEnv("COINWATCH_CSV_PATH", cfg.Persistence.CSVPath)
	cfg.Persistence.MirrorDriver = strings.ToLower(getEnv("COINWATCH_MIRROR_DRIVER", cfg.Persistence.MirrorDriver))
	cfg.Persistence.MirrorDir = getEnv("COINWATCH_MIRROR_DIR", cfg.Persistence.MirrorDir)
	cfg.Persistence.AlertsDB = getEnv("COINWATCH_ALERTS_DB", cfg.Persistence.AlertsDB)
	cfg.API.Listen = getEnv("COINWATCH_API_LISTEN", cfg.API.Listen)
	cfg.API.MetricsAddr = getEnv("COINWATCH_METRICS_ADDR", cfg.API.MetricsAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("assets 不能为空")
	}
	if c.Source.VsCurrency == "" {
		return fmt.Errorf("vs_currency 不能为空")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval_seconds 必须大于 0")
	}
	if c.Source.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout_seconds 必须大于 0")
	}
	if c.Source.RateLimit < 0 {
		return fmt.Errorf("max_requests_per_minute 不能为负数")
	}
	if c.MaxHistory < 2 {
		return fmt.Errorf("max_history 必须 >= 2，当前=%d", c.MaxHistory)
	}
	if c.Metrics.Window < 2 {
		return fmt.Errorf("window 必须 >= 2，当前=%d", c.Metrics.Window)
	}
	if c.Metrics.AlertPct <= 0 {
		return fmt.Errorf("alert_pct 必须大于 0，当前=%.4f", c.Metrics.AlertPct)
	}
	switch c.Metrics.StdDev {
	case "population", "sample":
	default:
		return fmt.Errorf("stddev 只支持 population 或 sample，当前=%q", c.Metrics.StdDev)
	}
	switch c.Persistence.MirrorDriver {
	case "", "none", "json", "badger":
	default:
		return fmt.Errorf("mirror_driver 只支持 none/json/badger，当前=%q", c.Persistence.MirrorDriver)
	}
	if c.Persistence.CSVPath == "" {
		return fmt.Errorf("csv_path 不能为空")
	}
	return nil
}

// normalizeAssets 去空格、转小写、去重（保持顺序）
func normalizeAssets(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func parseFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
