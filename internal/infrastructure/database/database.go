package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"campuspay/internal/config"
	"campuspay/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置选择 MySQL 或 SQLite
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "mysql":
		return OpenMySQL(cfg)
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, cfg.LogLevel)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenMySQL 初始化 MySQL 连接
func OpenMySQL(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	m := cfg.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.User,
		m.Password,
		m.Host,
		m.Port,
		m.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(parseLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("MySQL 连接成功", "host", m.Host, "database", m.Database)
	return db, nil
}

// OpenSQLite 打开 SQLite 账本，path 为 ":memory:" 时使用内存库。
//
// SQLite 没有行锁，只保留一个连接，所有事务天然串行。
// 事务内部必须始终使用 tx，否则会等待唯一的连接而死锁。
func OpenSQLite(path, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(parseLogLevel(logLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if path != ":memory:" {
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, fmt.Errorf("设置 journal_mode 失败: %w", err)
		}
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("设置 busy_timeout 失败: %w", err)
	}

	return db, nil
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Student{},
		&model.Store{},
		&model.Transaction{},
		&model.Recharge{},
		&model.Settlement{},
		&model.SettlementLog{},
		&model.StoreSettlement{},
		&model.DailyLimitChange{},
		&model.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("自动迁移表结构失败: %w", err)
	}

	// SQLite 的 decimal 列按 REAL 运算，等式约束会被浮点尾差误伤，只在 MySQL 上加
	if db.Dialector.Name() == "mysql" {
		const name = "chk_settlements_amounts_balanced"
		if !db.Migrator().HasConstraint(&model.Settlement{}, name) {
			err := db.Exec("ALTER TABLE settlements ADD CONSTRAINT " + name +
				" CHECK (total_transaction_amount = settled_amount + pending_amount)").Error
			if err != nil {
				return fmt.Errorf("添加结算金额约束失败: %w", err)
			}
		}
	}
	return nil
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
