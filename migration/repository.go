package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// SchemaMigrationModel はschema_migrationsテーブルのモデル。
type SchemaMigrationModel struct {
	Version   string    `gorm:"column:version;primaryKey;type:varchar(64)"`
	AppliedAt time.Time `gorm:"column:applied_at;not null;autoCreateTime"`
}

// TableName はテーブル名を指定。
func (SchemaMigrationModel) TableName() string {
	return "schema_migrations"
}

// GormRepository はgormによるリビジョン履歴リポジトリ。
type GormRepository struct {
	db *gorm.DB
}

// NewRepository は新しいGormRepositoryを生成する。
func NewRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// HasBookkeeping はschema_migrationsテーブルが存在するか確認する。
// テーブルが無いのは正常な状態（未初期化のデータベース）でありエラーではない。
// MigratorのHasTableはクエリエラーを握りつぶしてfalseを返すため、
// 先に疎通を確認して接続障害を「テーブルなし」と区別する。
func (r *GormRepository) HasBookkeeping(ctx context.Context) (bool, error) {
	sqlDB, err := r.db.DB()
	if err != nil {
		return false, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to reach database",
			"operation", "has_bookkeeping",
			"error", err,
		)
		return false, fmt.Errorf("failed to reach database: %w", err)
	}
	return r.db.WithContext(ctx).Migrator().HasTable(&SchemaMigrationModel{}), nil
}

// EnsureBookkeeping はschema_migrationsテーブルを作成する（存在しない場合のみ）。
func (r *GormRepository) EnsureBookkeeping(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&SchemaMigrationModel{}); err != nil {
		slog.ErrorContext(ctx, "failed to create bookkeeping table",
			"operation", "ensure_bookkeeping",
			"error", err,
		)
		return err
	}
	return nil
}

// FindAllApplied は適用済みリビジョン一覧を取得する。
func (r *GormRepository) FindAllApplied(ctx context.Context) ([]*Revision, error) {
	var models []SchemaMigrationModel
	if err := r.db.WithContext(ctx).Order("version ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find all applied revisions",
			"operation", "find_all_applied",
			"error", err,
		)
		return nil, err
	}

	revisions := make([]*Revision, len(models))
	for i, model := range models {
		appliedAt := model.AppliedAt
		revisions[i] = &Revision{
			Version:   model.Version,
			AppliedAt: &appliedAt,
			Status:    StatusApplied,
		}
	}

	return revisions, nil
}

// CurrentVersion は記録されている最新のリビジョンを返す。
// 記録が無い場合は空文字列を返す。
func (r *GormRepository) CurrentVersion(ctx context.Context) (string, error) {
	var model SchemaMigrationModel
	err := r.db.WithContext(ctx).Order("version DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		slog.ErrorContext(ctx, "failed to read current version",
			"operation", "current_version",
			"error", err,
		)
		return "", err
	}
	return model.Version, nil
}

// Record はリビジョン適用履歴を記録する。
func (r *GormRepository) Record(ctx context.Context, version string) error {
	model := &SchemaMigrationModel{
		Version: version,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to record revision",
			"operation", "record",
			"version", version,
			"error", err,
		)
		return err
	}
	return nil
}

// IsApplied はリビジョンが適用済みか確認する。
func (r *GormRepository) IsApplied(ctx context.Context, version string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&SchemaMigrationModel{}).Where("version = ?", version).Count(&count).Error; err != nil {
		slog.ErrorContext(ctx, "failed to check if revision is applied",
			"operation", "is_applied",
			"version", version,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}
