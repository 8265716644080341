// Package query はgormのクエリボイラープレートを削減するヘルパーを提供する。
// セッション（*gorm.DB）は呼び出し側が明示的に渡す。グローバルな
// セッション参照はしない。
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConflict は一意制約違反がリトライで解決できなかった場合のエラー。
var ErrConflict = errors.New("conflict not resolved after retry")

// Get はlookupに一致する行を1件取得する。
// 見つからない場合は (nil, nil) を返す。
func Get[T any](ctx context.Context, db *gorm.DB, lookup map[string]any) (*T, error) {
	var obj T
	err := db.WithContext(ctx).Where(lookup).First(&obj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to get record",
			"operation", "get",
			"error", err,
		)
		return nil, err
	}
	return &obj, nil
}

// GetByPK は主キーで行を1件取得する。
// 見つからない場合は (nil, nil) を返す。
func GetByPK[T any](ctx context.Context, db *gorm.DB, pk any) (*T, error) {
	var obj T
	err := db.WithContext(ctx).First(&obj, clause.Eq{Column: clause.PrimaryColumn, Value: pk}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to get record by primary key",
			"operation", "get_by_pk",
			"error", err,
		)
		return nil, err
	}
	return &obj, nil
}

// GetOrCreate はlookupに一致する行を取得し、無ければlookupとdefaultsを
// マージした値で作成する。二つ目の戻り値は作成したかどうか。
//
// 作成が一意制約違反で失敗した場合（並行した呼び出しが先に作成した場合）、
// 取得を一度だけやり直す。それでも見つからなければErrConflictを返す。
// 排他制御はストレージ側の一意制約に委譲し、プロセス内ロックは使わない。
//
// 例: user, created, err := query.GetOrCreate[User](ctx, db,
// map[string]any{"name": "alice"}, nil)
func GetOrCreate[T any](ctx context.Context, db *gorm.DB, lookup, defaults map[string]any) (*T, bool, error) {
	obj, err := Get[T](ctx, db, lookup)
	if err != nil {
		return nil, false, err
	}
	if obj != nil {
		return obj, false, nil
	}
	return createOnMiss[T](ctx, db, lookup, mergeValues(lookup, defaults))
}

// UpdateOrCreate はGetOrCreateと同様だが、既存行が見つかった場合は
// updatesのフィールドだけを上書きする。他のフィールドには触れない。
// 行を作成する場合はlookup、defaults、updatesをマージした値を使う。
func UpdateOrCreate[T any](ctx context.Context, db *gorm.DB, lookup, defaults, updates map[string]any) (*T, bool, error) {
	obj, err := Get[T](ctx, db, lookup)
	if err != nil {
		return nil, false, err
	}
	if obj != nil {
		return obj, false, applyUpdates(ctx, db, obj, updates)
	}

	obj, created, err := createOnMiss[T](ctx, db, lookup, mergeValues(lookup, defaults, updates))
	if err != nil {
		return nil, false, err
	}
	if !created {
		// 並行した呼び出しが作成した行にもupdatesを適用する
		if err := applyUpdates(ctx, db, obj, updates); err != nil {
			return nil, false, err
		}
	}
	return obj, created, nil
}

// createOnMiss は行を作成し、読み直して返す。
// 一意制約違反の場合は取得を一度だけやり直す。このリトライで行が
// 見つからなければ二度目の失敗としてErrConflictを返す。
func createOnMiss[T any](ctx context.Context, db *gorm.DB, lookup, values map[string]any) (*T, bool, error) {
	if err := db.WithContext(ctx).Model(new(T)).Create(values).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			obj, retryErr := Get[T](ctx, db, lookup)
			if retryErr != nil {
				return nil, false, retryErr
			}
			if obj == nil {
				return nil, false, fmt.Errorf("%w: %v", ErrConflict, err)
			}
			return obj, false, nil
		}
		slog.ErrorContext(ctx, "failed to create record",
			"operation", "get_or_create",
			"error", err,
		)
		return nil, false, err
	}

	// 主キーやデフォルト値を反映するため読み直す
	obj, err := Get[T](ctx, db, lookup)
	if err != nil {
		return nil, false, err
	}
	if obj == nil {
		return nil, false, fmt.Errorf("created record not found by lookup fields")
	}
	return obj, true, nil
}

func applyUpdates[T any](ctx context.Context, db *gorm.DB, obj *T, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).Model(obj).Updates(updates).Error; err != nil {
		slog.ErrorContext(ctx, "failed to update record",
			"operation", "update_or_create",
			"error", err,
		)
		return err
	}
	return nil
}

func mergeValues(maps ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
