// Package database はgormとSQLファイルマイグレーションを組み合わせた
// データベース管理ヘルパーを提供する。
package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"gorm-helpers/config"
)

// ErrUnsupportedScheme はDatabaseURLのスキームが未対応の場合のエラー。
var ErrUnsupportedScheme = errors.New("unsupported database URL scheme")

// Open はgormによるデータベース接続を初期化する。
// URLのスキームで方言を選択する: sqlite, mysql, postgres/postgresql。
// 一意制約違反がgorm.ErrDuplicatedKeyに変換されるようTranslateErrorを
// 有効にする。query.GetOrCreateはこれに依存する。
func Open(settings config.Settings) (*gorm.DB, error) {
	dialector, err := dialectorFor(settings.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NamingStrategy: NewNamingStrategy(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if settings.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("failed to enable tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	maxOpen := settings.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 10
	}
	maxIdle := settings.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	// インメモリSQLiteは接続ごとに別のデータベースになるため単一接続に固定する
	if IsSQLite(db) && strings.Contains(settings.DatabaseURL, ":memory:") {
		maxOpen = 1
		maxIdle = 1
	}
	maxLifetime := settings.ConnMaxLifetime
	if maxLifetime == 0 {
		maxLifetime = 30 * time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLifetime)

	return db, nil
}

// dialectorFor はURLのスキームからgormの方言を選択する。
func dialectorFor(url string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return sqlite.Open(sqliteDSN(strings.TrimPrefix(url, "sqlite://"))), nil
	case strings.HasPrefix(url, "sqlite:"):
		return sqlite.Open(sqliteDSN(strings.TrimPrefix(url, "sqlite:"))), nil
	case strings.HasPrefix(url, "mysql://"):
		return mysql.Open(strings.TrimPrefix(url, "mysql://")), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		// pgxはURL形式のDSNをそのまま受け付ける
		return postgres.Open(url), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, url)
	}
}

// sqliteDSN は外部キー制約を有効化するパラメータをDSNに付与する。
// PRAGMAは接続単位のためDSNで指定し、プール内の全接続に適用する。
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// IsSQLite は接続先がSQLiteかどうかを返す。
func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}
