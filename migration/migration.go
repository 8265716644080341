// Package migration はSQLファイルベースのスキーマリビジョン管理を提供する。
// リビジョンは {version}_{name}.sql 形式のファイルで表し、適用履歴は
// schema_migrations テーブルに記録する。
package migration

import (
	"errors"
	"time"
)

// Status はリビジョンの適用状態を表す。
type Status string

const (
	// StatusPending は未適用のリビジョンを表す。
	StatusPending Status = "pending"
	// StatusApplied は適用済みのリビジョンを表す。
	StatusApplied Status = "applied"
)

// Revision はスキーマリビジョンを表すドメインモデル。
type Revision struct {
	Version   string     // リビジョン識別子（例: "0001"）。グラフ順＝辞書順
	Name      string     // リビジョン名（ファイル名から抽出）
	FilePath  string     // SQLファイルのパス
	AppliedAt *time.Time // 適用日時（未適用の場合はnil）
	Status    Status     // 適用状態
}

var (
	// ErrMigrationFailed はリビジョン適用時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidFile はリビジョンファイルのフォーマットが不正な場合のエラー。
	ErrInvalidFile = errors.New("invalid migration file")

	// ErrNoMigrationsDir はリビジョンディレクトリが読めない場合のエラー。
	ErrNoMigrationsDir = errors.New("migrations directory not readable")
)
