package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"gorm-helpers/migration"
)

// ErrUnknownRevision はschema_migrationsに記録されたリビジョンが
// リビジョングラフに存在しない場合のエラー。リビジョンファイルが
// 削除されたか、より新しいツリーでスタンプされたデータベースを示す。
var ErrUnknownRevision = errors.New("recorded revision not found in migration files")

// Manager はgormとマイグレーションをまとめて扱うヘルパー。
// モデルは呼び出し側の起動処理がRegisterModelsで明示的に登録する。
// 自動インポートはしない。
type Manager struct {
	db         *gorm.DB
	migrations *migration.Service
	models     []any
}

// NewManager は新しいManagerを生成する。
func NewManager(db *gorm.DB, migrationsDir string) *Manager {
	repo := migration.NewRepository(db)
	return &Manager{
		db:         db,
		migrations: migration.NewService(repo, db, migrationsDir),
	}
}

// DB はgormのデータベース接続を返す。
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Migrations はマイグレーションサービスを返す。
func (m *Manager) Migrations() *migration.Service {
	return m.migrations
}

// RegisterModels はモデルを登録する。CreateとDropは登録済みモデルのみを扱う。
func (m *Manager) RegisterModels(models ...any) {
	m.models = append(m.models, models...)
}

// CurrentRevision はデータベースに記録されている現在のリビジョンを返す。
// 記録が無い場合は空文字列を返す。
func (m *Manager) CurrentRevision(ctx context.Context) (string, error) {
	return m.migrations.CurrentVersion(ctx)
}

// LatestRevision はリビジョングラフのheadを返す。
func (m *Manager) LatestRevision() (string, error) {
	return m.migrations.HeadVersion()
}

// hasUserTables はマイグレーション管理外のテーブルが存在するか確認する。
func (m *Manager) hasUserTables(ctx context.Context) (bool, error) {
	tables, err := m.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		slog.ErrorContext(ctx, "failed to list tables",
			"operation", "has_user_tables",
			"error", err,
		)
		return false, err
	}
	bookkeeping := migration.SchemaMigrationModel{}.TableName()
	for _, table := range tables {
		if table == bookkeeping || strings.HasPrefix(table, "sqlite_") {
			continue
		}
		return true, nil
	}
	return false, nil
}

// GetStatus はデータベースの状態を返す。
func (m *Manager) GetStatus(ctx context.Context) (DatabaseStatus, error) {
	current, err := m.CurrentRevision(ctx)
	if err != nil {
		return "", err
	}
	head, err := m.LatestRevision()
	if err != nil {
		return "", err
	}

	if current == "" {
		hasTables, err := m.hasUserTables(ctx)
		if err != nil {
			return "", err
		}
		if hasTables {
			return StatusNoInfo, nil
		}
		return StatusNoSchema, nil
	}
	if current == head {
		return StatusUpToDate, nil
	}
	return StatusUpgradeAvailable, nil
}

// Create は登録済みモデルからテーブルを作成し、headをスタンプする。
// モデルが未登録の場合（CLIなど）はリビジョンを順に適用して作成する。
func (m *Manager) Create(ctx context.Context) error {
	if len(m.models) == 0 {
		_, err := m.migrations.Apply(ctx)
		return err
	}
	if err := m.db.WithContext(ctx).AutoMigrate(m.models...); err != nil {
		slog.ErrorContext(ctx, "failed to create tables from models",
			"operation", "create",
			"error", err,
		)
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return m.Stamp(ctx)
}

// Stamp は全リビジョンを適用済みとして記録する。SQLは実行しない。
// 既存テーブルが登録済みモデルと一致していることは検証しない。呼び出し側の
// 責任で一致を保証すること。
func (m *Manager) Stamp(ctx context.Context) error {
	_, err := m.migrations.Stamp(ctx)
	return err
}

// Upgrade は未適用リビジョンをheadまで適用する。
// 途中で失敗した場合はエラーをそのまま返す。リトライはしない。
func (m *Manager) Upgrade(ctx context.Context) error {
	_, err := m.migrations.Apply(ctx)
	return err
}

// Drop は登録済みモデルのテーブルとschema_migrationsテーブルを削除する。
func (m *Manager) Drop(ctx context.Context) error {
	targets := make([]any, 0, len(m.models)+1)
	// 外部キー依存を考慮して登録の逆順で削除
	for i := len(m.models) - 1; i >= 0; i-- {
		targets = append(targets, m.models[i])
	}
	targets = append(targets, &migration.SchemaMigrationModel{})
	if err := m.db.WithContext(ctx).Migrator().DropTable(targets...); err != nil {
		slog.ErrorContext(ctx, "failed to drop tables",
			"operation", "drop",
			"error", err,
		)
		return err
	}
	return nil
}

// Sync はスキーマを作成または更新する。冪等であり、スキーマ変更が無ければ
// 二回目の呼び出しはSyncAlreadyUpToDateを返し副作用を持たない。
//
// 判定表:
//   - リビジョン記録なし・テーブルなし → Create → SyncCreated
//   - リビジョン記録なし・テーブルあり → headをスタンプのみ → SyncCreated
//     （既存スキーマが登録済みモデルと一致している前提。DDLは発行しない）
//   - リビジョン == head → SyncAlreadyUpToDate
//   - それ以外 → Upgrade → SyncUpgraded
//     （適用できるリビジョンが無い場合はErrUnknownRevision）
func (m *Manager) Sync(ctx context.Context) (SyncResult, error) {
	current, err := m.CurrentRevision(ctx)
	if err != nil {
		return "", err
	}

	if current == "" {
		hasTables, err := m.hasUserTables(ctx)
		if err != nil {
			return "", err
		}
		if hasTables {
			slog.WarnContext(ctx, "tables exist without migration bookkeeping; stamping head without emitting DDL",
				"operation", "sync",
			)
			if err := m.Stamp(ctx); err != nil {
				return "", err
			}
			return SyncCreated, nil
		}
		if err := m.Create(ctx); err != nil {
			return "", err
		}
		return SyncCreated, nil
	}

	head, err := m.LatestRevision()
	if err != nil {
		return "", err
	}
	if current == head {
		return SyncAlreadyUpToDate, nil
	}

	applied, err := m.migrations.Apply(ctx)
	if err != nil {
		return "", err
	}
	if applied == 0 {
		// currentがheadより先にある。適用できるものは無く、放置すると
		// 毎回SyncUpgradedを返し続けるためエラーとして報告する。
		slog.ErrorContext(ctx, "recorded revision is ahead of the revision graph",
			"operation", "sync",
			"current", current,
			"head", head,
		)
		return "", fmt.Errorf("%w: %q (head is %q)", ErrUnknownRevision, current, head)
	}
	return SyncUpgraded, nil
}
