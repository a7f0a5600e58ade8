package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/pispeak/internal/logger"
	_ "modernc.org/sqlite"
)

// DB 是统一的 SQLite 数据库连接。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath: 数据库文件路径，如果为空则使用默认路径 ~/.pispeak/pispeak.db
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".pispeak", "pispeak.db")
		} else {
			dbPath = "./pispeak.db"
		}
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置 WAL 模式（更好的并发性能）
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 busy_timeout 失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 播报统计表，按语音、日期、结果分类累计
		`CREATE TABLE IF NOT EXISTS speak_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			voice TEXT NOT NULL,
			date TEXT NOT NULL,
			status TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			bytes INTEGER DEFAULT 0,
			UNIQUE(voice, date, status)
		)`,
		// 语音加载记录
		`CREATE TABLE IF NOT EXISTS voice_loads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			voice TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			error TEXT DEFAULT '',
			loaded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_speak_stats_date ON speak_stats(date)`,
		`CREATE INDEX IF NOT EXISTS idx_voice_loads_voice ON voice_loads(voice)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
