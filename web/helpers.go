package web

import (
	"net/http"

	"gorm-helpers/pkg/httputil"
	"gorm-helpers/query"
)

// GetOr404 は主キーで行を取得し、見つからなければ404レスポンスを書き込む。
// 二つ目の戻り値がfalseの場合、レスポンスは送信済みでありハンドラは
// そのまま戻ること。
func GetOr404[T any](w http.ResponseWriter, r *http.Request, pk any, description string) (*T, bool) {
	obj, err := query.GetByPK[T](r.Context(), Session(r.Context()), pk)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "database_error", "failed to fetch record")
		return nil, false
	}
	if obj == nil {
		httputil.NotFound(w, description)
		return nil, false
	}
	return obj, true
}

// FirstOr404 はlookupに一致する最初の行を取得し、見つからなければ
// 404レスポンスを書き込む。
func FirstOr404[T any](w http.ResponseWriter, r *http.Request, lookup map[string]any, description string) (*T, bool) {
	obj, err := query.Get[T](r.Context(), Session(r.Context()), lookup)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "database_error", "failed to fetch record")
		return nil, false
	}
	if obj == nil {
		httputil.NotFound(w, description)
		return nil, false
	}
	return obj, true
}
