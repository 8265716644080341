// Package cli はデータベース操作のcobraサブコマンドを提供する。
package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gorm-helpers/database"
	"gorm-helpers/migration"
)

// ConnectFunc はManagerを生成する。サブコマンド実行時に呼ばれる。
type ConnectFunc func(ctx context.Context) (*database.Manager, error)

// NewDBCommand はdbコマンドグループを生成する。
func NewDBCommand(connect ConnectFunc) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
		Long:  "Create, migrate and inspect the database schema",
	}
	dbCmd.AddCommand(newSyncCommand(connect))
	dbCmd.AddCommand(newStatusCommand(connect))
	return dbCmd
}

// newSyncCommand はスキーマの作成・更新コマンドを生成する。
func newSyncCommand(connect ConnectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Create or migrate the database",
		Long:  "Create the database schema if missing, or upgrade it to the latest revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			manager, err := connect(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}

			result, err := manager.Sync(ctx)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			switch result {
			case database.SyncCreated:
				fmt.Fprintln(cmd.OutOrStdout(), "Database created.")
			case database.SyncUpgraded:
				fmt.Fprintln(cmd.OutOrStdout(), "Database upgraded.")
			case database.SyncAlreadyUpToDate:
				fmt.Fprintln(cmd.OutOrStdout(), "Database already up-to-date.")
			default:
				fmt.Fprintf(cmd.ErrOrStderr(), "Unexpected sync result: %s\n", result)
			}
			return nil
		},
	}
}

// newStatusCommand はリビジョン適用状況の表示コマンドを生成する。
func newStatusCommand(connect ConnectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  "Show the status of all schema revisions (applied/pending)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			manager, err := connect(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}

			status, err := manager.GetStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get database status: %w", err)
			}

			revisions, err := manager.Migrations().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get revision status: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			fmt.Fprintln(w, "-------\t----\t------\t----------")

			for _, revision := range revisions {
				appliedAt := "-"
				if revision.AppliedAt != nil {
					appliedAt = revision.AppliedAt.Format("2006-01-02 15:04:05")
				}

				state := "pending"
				if revision.Status == migration.StatusApplied {
					state = "applied"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", revision.Version, revision.Name, state, appliedAt)
			}

			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nDatabase status: %s\n", status)
			return nil
		},
	}
}
