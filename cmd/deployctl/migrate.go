package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"deploy-migrate/internal/domain"
)

// migrateCmd は NOT_ON_DEPLOY を考慮しない手動マイグレーションのコマンド群。
func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Manage database migrations manually, including ones flagged NOT_ON_DEPLOY",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	cmd.AddCommand(migrateMarkAppliedCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up [app_label [target]]",
		Short: "Apply pending migrations",
		Long:  "Apply pending migrations for all apps, or for one app up to and including target",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			env, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			var appliedCount int
			if len(args) == 0 {
				appliedCount, err = env.migrations.ApplyMigrations(ctx)
			} else {
				target := ""
				if len(args) == 2 {
					target = args[1]
				}
				appliedCount, err = env.migrations.Migrate(ctx, args[0], target, domain.MigrateOptions{})
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if appliedCount == 0 {
				fmt.Fprintln(out, "No pending migrations.")
			} else {
				fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", appliedCount)
			}
			return nil
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [app_label]",
		Short: "Show migration status",
		Long:  "Show the status of all migrations (applied/pending)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			env, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			appLabel := ""
			if len(args) == 1 {
				appLabel = args[0]
			}

			migrations, err := env.migrations.GetMigrationStatus(ctx, appLabel)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			return printStatus(cmd.OutOrStdout(), migrations)
		},
	}
}

func migrateMarkAppliedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-applied <app_label> <name>",
		Short: "Record a migration as applied without running it",
		Long:  "Record a migration as applied without running it, e.g. after running a NOT_ON_DEPLOY migration by hand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			env, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			if err := env.migrations.MarkApplied(ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to mark migration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s.%s as applied.\n", args[0], args[1])
			return nil
		},
	}
}

// printStatus はマイグレーション状況をテーブル形式で出力する。
func printStatus(w io.Writer, migrations []*domain.Migration) error {
	if output == "json" {
		type statusJSON struct {
			AppLabel    string `json:"app_label"`
			Name        string `json:"name"`
			Status      string `json:"status"`
			NotOnDeploy bool   `json:"not_on_deploy"`
			AppliedAt   string `json:"applied_at,omitempty"`
		}
		rows := make([]statusJSON, len(migrations))
		for i, m := range migrations {
			rows[i] = statusJSON{AppLabel: m.AppLabel, Name: m.Name, Status: string(m.Status), NotOnDeploy: m.NotOnDeploy()}
			if m.AppliedAt != nil {
				rows[i].AppliedAt = m.AppliedAt.Format(time.RFC3339)
			}
		}
		return json.NewEncoder(w).Encode(map[string]interface{}{"migrations": rows})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "APP\tNAME\tSTATUS\tAPPLIED AT")
	fmt.Fprintln(tw, "---\t----\t------\t----------")

	for _, migration := range migrations {
		appliedAt := "-"
		if migration.AppliedAt != nil {
			appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
		}

		name := migration.Name
		if migration.NotOnDeploy() {
			name += " (not on deploy)"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", migration.AppLabel, name, migration.Status, appliedAt)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}
