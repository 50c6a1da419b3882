package alertlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/betbot/coinwatch/internal/domain"
)

// Journal 告警日志（SQLite）
type Journal struct {
	db *sql.DB
}

// Open 打开（或创建）告警日志库
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("alertlog: db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS alerts (
  id TEXT PRIMARY KEY,
  asset_id TEXT NOT NULL,
  pct_change REAL NOT NULL,
  volatility REAL,
  price REAL NOT NULL,
  fired_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_fired_at ON alerts(fired_at);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record 写入一条告警；a.ID 为空时生成 uuid，返回写入后的告警
func (j *Journal) Record(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var vol sql.NullFloat64
	if a.Volatility.Valid {
		vol = sql.NullFloat64{Float64: a.Volatility.Value, Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO alerts (id, asset_id, pct_change, volatility, price, fired_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.AssetID, a.PctChange, vol, a.Price, a.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return a, fmt.Errorf("insert alert: %w", err)
	}
	return a, nil
}

// Recent 最近的告警（新的在前）
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, asset_id, pct_change, volatility, price, fired_at FROM alerts ORDER BY fired_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var (
			a       domain.Alert
			vol     sql.NullFloat64
			firedAt string
		)
		if err := rows.Scan(&a.ID, &a.AssetID, &a.PctChange, &vol, &a.Price, &firedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if vol.Valid {
			a.Volatility = domain.Some(vol.Float64)
		}
		a.Time, err = time.Parse(time.RFC3339Nano, firedAt)
		if err != nil {
			return nil, fmt.Errorf("parse fired_at %q: %w", firedAt, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Count 告警总数
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}
