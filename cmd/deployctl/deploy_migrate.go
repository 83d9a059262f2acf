package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"deploy-migrate/internal/domain"
	"deploy-migrate/internal/usecase"
)

// deployMigrateCmd はデプロイ時マイグレーションのコマンド。
// NOT_ON_DEPLOY が付いたマイグレーションの直前まで、アプリケーションごとに適用する。
func deployMigrateCmd() *cobra.Command {
	var noInput, noStrict bool
	cmd := &cobra.Command{
		Use:   "deploy-migrate",
		Short: "Apply migrations up to the first one flagged NOT_ON_DEPLOY",
		Long: "Apply pending migrations for each app, stopping before any migration " +
			"flagged NOT_ON_DEPLOY. Fails when a migration would be left unreachable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			env, err := openLocal(ctx)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			interactive := !noInput
			if interactive {
				env.migrations.WithPrompt(cmd.InOrStdin(), cmd.OutOrStdout())
			}

			strict := env.cfg.Strict
			if cmd.Flags().Changed("no-strict") {
				strict = !noStrict
			}

			service := usecase.NewDeployService(env.migrations, env.migrations)
			report, err := service.Run(ctx, domain.DeployOptions{
				Strict:      strict,
				Interactive: interactive,
			})
			if printErr := printReport(cmd.OutOrStdout(), report, err == nil); printErr != nil {
				return printErr
			}
			if err != nil {
				var unreachable *domain.UnreachableMigrationsError
				if errors.As(err, &unreachable) {
					return unreachable
				}
				if errors.Is(err, domain.ErrNoConfirmationInput) {
					return fmt.Errorf("deploy migration failed: %w (use --noinput for non-interactive runs)", err)
				}
				return fmt.Errorf("deploy migration failed: %w", err)
			}
			if declined := report.DeclinedApps(); len(declined) > 0 {
				return fmt.Errorf("%w: %s", domain.ErrMigrationDeclined, strings.Join(declined, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noInput, "noinput", false, "Do not prompt for confirmation")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Do not prompt for confirmation")
	cmd.Flags().BoolVar(&noStrict, "no-strict", false, "Do not fail on unreachable migrations (overrides DEPLOY_MIGRATE_STRICT)")
	return cmd
}

// printReport はアプリケーションごとの結果を出力する。
// completed が false の場合は途中で失敗した実行として「Nothing to migrate.」を出さない。
func printReport(w io.Writer, report *domain.DeployReport, completed bool) error {
	if report == nil {
		return nil
	}

	if output == "json" {
		type resultJSON struct {
			AppLabel  string               `json:"app_label"`
			StopPoint domain.StopPoint     `json:"stop_point"`
			Outcome   domain.DeployOutcome `json:"outcome"`
			Applied   int                  `json:"applied"`
		}
		results := make([]resultJSON, len(report.Results))
		for i, r := range report.Results {
			results[i] = resultJSON{AppLabel: r.AppLabel, StopPoint: r.StopPoint, Outcome: r.Outcome, Applied: r.Applied}
		}
		return json.NewEncoder(w).Encode(map[string]interface{}{
			"run_id":  report.RunID,
			"results": results,
		})
	}

	for _, r := range report.Results {
		switch r.Outcome {
		case domain.DeployOutcomeSkipped:
			fmt.Fprintf(w, "Did not migrate %s because a migration was flagged %s\n", r.AppLabel, domain.NotOnDeployMarker)
		case domain.DeployOutcomeMigratedFully:
			fmt.Fprintf(w, "Migrated %s fully (%d migration(s))\n", r.AppLabel, r.Applied)
		case domain.DeployOutcomeMigratedPartially:
			fmt.Fprintf(w, "Migrated %s, but stopped before a migration flagged %s (%d migration(s))\n",
				r.AppLabel, domain.NotOnDeployMarker, r.Applied)
		case domain.DeployOutcomeDeclined:
			fmt.Fprintf(w, "Skipped %s: declined by operator\n", r.AppLabel)
		}
	}
	if completed && report.NothingToMigrate() {
		fmt.Fprintln(w, "Nothing to migrate.")
	}
	return nil
}
