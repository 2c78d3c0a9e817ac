// Package db はGORMのDB接続とマイグレーションを提供します。
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	baradapters "stock_history/internal/feature/bars/adapters"
	govadapters "stock_history/internal/feature/governor/adapters"
	symentity "stock_history/internal/feature/symbollist/domain/entity"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	retryInterval   = 3 * time.Second
	postgresTimeout = 60 * time.Second
)

// ErrUnsupportedDriver は未知のドライバー名が指定された場合のエラーです。
var ErrUnsupportedDriver = errors.New("unsupported db driver")

// Config はDB接続設定です。
type Config struct {
	Driver        string
	Path          string // sqlite
	DSN           string // postgres, takes precedence over the fields below
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	SSLMode       string
	RunMigrations bool
}

// Opener はDSNからDB接続を開く関数です。テストで差し替えられます。
type Opener func(dsn string) (*gorm.DB, error)

// BuildDSN はドライバーに応じたDSN文字列を生成します。
func BuildDSN(cfg Config) string {
	if cfg.Driver == DriverPostgres {
		if cfg.DSN != "" {
			return cfg.DSN
		}
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, sslmode)
	}
	if cfg.Path == "" {
		return "stock_history.db"
	}
	return cfg.Path
}

// ConnectWithRetry はtimeoutまでretryInterval間隔で接続を試みます。
// 次の試行がtimeoutを超える場合は待たずに最後のエラーを返します。
func ConnectWithRetry(dsn string, timeout time.Duration, open Opener) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := open(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return nil, fmt.Errorf("db connect failed after %s: %w", timeout, err)
		}
		slog.Warn("DB connect failed, retrying", "error", err)
		time.Sleep(retryInterval)
	}
}

// Open はドライバーに応じてDBを開き、必要ならマイグレーションを実行します。
func Open(cfg Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	dsn := BuildDSN(cfg)

	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "":
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLiteは単一の書き込み接続に揃える
		sqlDB.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = ConnectWithRetry(dsn, postgresTimeout, func(dsn string) (*gorm.DB, error) {
			return gorm.Open(postgres.Open(dsn), &gorm.Config{})
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	if cfg.RunMigrations {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate は全テーブル（日足、統制状態、ウォッチリスト）を作成・更新します。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&baradapters.BarModel{},
		&govadapters.GovernorStateModel{},
		&symentity.Symbol{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Ping はDB接続の疎通を確認します。
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
