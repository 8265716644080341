package migration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Repository はリビジョン履歴を管理するリポジトリのインターフェース。
type Repository interface {
	HasBookkeeping(ctx context.Context) (bool, error)
	EnsureBookkeeping(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*Revision, error)
	CurrentVersion(ctx context.Context) (string, error)
	Record(ctx context.Context, version string) error
	IsApplied(ctx context.Context, version string) (bool, error)
}

// Service はリビジョン適用のビジネスロジックを提供する。
type Service struct {
	repo          Repository
	db            *gorm.DB
	migrationsDir string
}

// NewService は新しいServiceを生成する。
func NewService(repo Repository, db *gorm.DB, migrationsDir string) *Service {
	return &Service{
		repo:          repo,
		db:            db,
		migrationsDir: migrationsDir,
	}
}

// Scan はmigrationsディレクトリから.sqlファイルをスキャンする。
func (s *Service) Scan() ([]*Revision, error) {
	entries, err := os.ReadDir(s.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMigrationsDir, err)
	}

	var revisions []*Revision
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		filePath := filepath.Join(s.migrationsDir, entry.Name())
		revisions = append(revisions, &Revision{
			Version:  version,
			Name:     name,
			FilePath: filePath,
			Status:   StatusPending,
		})
	}

	// バージョン順にソート
	sort.Slice(revisions, func(i, j int) bool {
		return revisions[i].Version < revisions[j].Version
	})

	return revisions, nil
}

// parseFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{name}.sql (例: 0001_create_users.sql)
func parseFileName(filename string) (version, name string, err error) {
	nameWithoutExt := strings.TrimSuffix(filename, ".sql")

	parts := strings.SplitN(nameWithoutExt, "_", 2)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", ErrInvalidFile, filename)
	}

	return parts[0], parts[1], nil
}

// HeadVersion はリビジョングラフの最新バージョンを返す。
// リビジョンファイルが無い場合は空文字列を返す。
func (s *Service) HeadVersion() (string, error) {
	revisions, err := s.Scan()
	if err != nil {
		return "", err
	}
	if len(revisions) == 0 {
		return "", nil
	}
	return revisions[len(revisions)-1].Version, nil
}

// CurrentVersion はデータベースに記録されている現在のリビジョンを返す。
// schema_migrationsテーブルが無い、または記録が無い場合は空文字列を返す。
// どちらも正常な状態でありエラーではない。
func (s *Service) CurrentVersion(ctx context.Context) (string, error) {
	hasTable, err := s.repo.HasBookkeeping(ctx)
	if err != nil {
		return "", err
	}
	if !hasTable {
		return "", nil
	}
	return s.repo.CurrentVersion(ctx)
}

// Apply は未適用リビジョンをバージョン順に実行する。
// 各リビジョンは履歴の記録とともに単一トランザクション内で実行される。
// 途中で失敗した場合は適用済み件数とエラーを返し、リトライはしない。
func (s *Service) Apply(ctx context.Context) (int, error) {
	allRevisions, err := s.Scan()
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan revision files",
			"operation", "apply",
			"error", err,
		)
		return 0, err
	}

	if err := s.repo.EnsureBookkeeping(ctx); err != nil {
		return 0, err
	}

	// 未適用リビジョンをフィルタリング
	var pending []*Revision
	for _, revision := range allRevisions {
		applied, err := s.repo.IsApplied(ctx, revision.Version)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check revision status",
				"operation", "apply",
				"version", revision.Version,
				"error", err,
			)
			return 0, fmt.Errorf("failed to check revision status: %w", err)
		}
		if !applied {
			pending = append(pending, revision)
		}
	}

	if len(pending) == 0 {
		return 0, nil
	}

	appliedCount := 0
	for _, revision := range pending {
		if err := s.apply(ctx, revision); err != nil {
			slog.ErrorContext(ctx, "failed to apply revision",
				"operation", "apply",
				"version", revision.Version,
				"error", err,
			)
			return appliedCount, fmt.Errorf("%w: version %s: %v", ErrMigrationFailed, revision.Version, err)
		}
		appliedCount++
	}

	return appliedCount, nil
}

// apply は単一のリビジョンを実行する。
func (s *Service) apply(ctx context.Context, revision *Revision) error {
	sqlBytes, err := os.ReadFile(revision.FilePath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read revision file",
			"operation", "apply",
			"version", revision.Version,
			"file_path", revision.FilePath,
			"error", err,
		)
		return fmt.Errorf("failed to read revision file: %w", err)
	}

	// DDLと履歴の記録を同一トランザクションで実行
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(string(sqlBytes)).Error; err != nil {
			return fmt.Errorf("failed to execute revision SQL: %w", err)
		}

		model := &SchemaMigrationModel{Version: revision.Version}
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to record revision: %w", err)
		}

		return nil
	})
}

// Stamp は全リビジョンを適用済みとして記録する。SQLは実行しない。
// 既存スキーマをマイグレーション管理下に置くときに使う。
func (s *Service) Stamp(ctx context.Context) (int, error) {
	revisions, err := s.Scan()
	if err != nil {
		return 0, err
	}

	if err := s.repo.EnsureBookkeeping(ctx); err != nil {
		return 0, err
	}

	stampedCount := 0
	for _, revision := range revisions {
		applied, err := s.repo.IsApplied(ctx, revision.Version)
		if err != nil {
			return stampedCount, err
		}
		if applied {
			continue
		}
		if err := s.repo.Record(ctx, revision.Version); err != nil {
			return stampedCount, err
		}
		stampedCount++
	}

	slog.InfoContext(ctx, "stamped revisions without executing SQL",
		"operation", "stamp",
		"count", stampedCount,
	)
	return stampedCount, nil
}

// Status は現在のリビジョン適用状況を取得する。
func (s *Service) Status(ctx context.Context) ([]*Revision, error) {
	allRevisions, err := s.Scan()
	if err != nil {
		return nil, err
	}

	hasTable, err := s.repo.HasBookkeeping(ctx)
	if err != nil {
		return nil, err
	}
	if !hasTable {
		return allRevisions, nil
	}

	applied, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch applied revisions",
			"operation", "status",
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch applied revisions: %w", err)
	}

	appliedMap := make(map[string]*Revision)
	for _, revision := range applied {
		appliedMap[revision.Version] = revision
	}

	for _, revision := range allRevisions {
		if a, exists := appliedMap[revision.Version]; exists {
			revision.Status = StatusApplied
			revision.AppliedAt = a.AppliedAt
		}
	}

	return allRevisions, nil
}
