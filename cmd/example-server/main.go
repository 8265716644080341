// Package main はサンプルユーザーAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gorm-helpers/config"
	"gorm-helpers/database"
	"gorm-helpers/internal/example"
	"gorm-helpers/internal/infra"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	if cfg.OtelEnabled {
		shutdown, err := infra.InitTracer(ctx, infra.TracingOptions{
			Endpoint:     cfg.OtelEndpoint,
			ServiceName:  cfg.OtelServiceName,
			SamplingRate: cfg.OtelSamplingRate,
		})
		if err != nil {
			slog.Error("failed to init tracer", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	infra.SetupLogger(cfg.OtelEnabled, infra.ParseLevel(cfg.LogLevel))

	// DB初期化
	if cfg.Database.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// モデルは起動処理で明示的に登録する
	manager := database.NewManager(db, cfg.Database.MigrationsDir)
	manager.RegisterModels(&example.User{})

	result, err := manager.Sync(ctx)
	if err != nil {
		slog.Error("failed to sync database schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database schema synced", "result", string(result))

	var handler http.Handler = example.NewRouter(manager)
	if cfg.OtelEnabled {
		handler = otelhttp.NewHandler(handler, "example-server")
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
