// Package web はchiハンドラ向けのデータベース統合を提供する。
// リクエストごとに一つのトランザクションを開き、コンテキスト経由で
// ハンドラに渡す。グローバルなセッション参照はしない。
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"gorm-helpers/database"
	"gorm-helpers/pkg/httputil"
)

type contextKey struct{}

var sessionKey contextKey

// Sessions はリクエストごとにトランザクションを開くミドルウェアを返す。
// ハンドラが正常に戻ればコミットし、panicした場合はロールバックして
// panicを再送出する。どの経路でもトランザクションは必ず解放される。
// コミットに失敗した場合、ハンドラが未応答であれば500を返す。応答済みの
// 場合はログに記録するのみとなる。
func Sessions(manager *database.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tx := manager.DB().WithContext(r.Context()).Begin()
			if tx.Error != nil {
				slog.ErrorContext(r.Context(), "failed to begin transaction",
					"operation", "sessions_middleware",
					"error", tx.Error,
				)
				httputil.Error(w, http.StatusInternalServerError, "database_unavailable", "could not open a database session")
				return
			}

			defer func() {
				if p := recover(); p != nil {
					tx.Rollback()
					panic(p)
				}
			}()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := context.WithValue(r.Context(), sessionKey, tx)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if err := tx.Commit().Error; err != nil {
				slog.ErrorContext(r.Context(), "failed to commit transaction",
					"operation", "sessions_middleware",
					"error", err,
				)
				// ヘッダー未送信なら成功応答を返さずエラーを伝える
				if ww.Status() == 0 {
					httputil.Error(ww, http.StatusInternalServerError, "database_unavailable", "could not commit the database session")
				}
			}
		})
	}
}

// Session はリクエストコンテキストからセッションを取り出す。
// Sessionsミドルウェアの外で呼ばれた場合はnilを返す。
func Session(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(sessionKey).(*gorm.DB)
	return tx
}
