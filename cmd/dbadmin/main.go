// Package main はデータベース管理CLIのエントリポイント。
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gorm-helpers/cli"
	"gorm-helpers/config"
	"gorm-helpers/database"
	"gorm-helpers/internal/infra"
)

const version = "1.0.0"

func main() {
	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()
	infra.SetupLogger(cfg.OtelEnabled, infra.ParseLevel(cfg.LogLevel))

	rootCmd := &cobra.Command{
		Use:   "dbadmin",
		Short: "Database administration CLI",
	}

	connect := func(ctx context.Context) (*database.Manager, error) {
		if cfg.Database.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
		absPath, err := filepath.Abs(cfg.Database.MigrationsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve migrations directory: %w", err)
		}

		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		return database.NewManager(db, absPath), nil
	}

	rootCmd.AddCommand(cli.NewDBCommand(connect))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dbadmin version %s\n", version)
		},
	}
}
