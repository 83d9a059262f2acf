package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"deploy-migrate/internal/audit"
	"deploy-migrate/internal/domain"
)

const tracerName = "deploy-migrate/internal/usecase"

// MigrationPlanner は未適用マイグレーションを提供するインターフェース。
type MigrationPlanner interface {
	ListApps(ctx context.Context) ([]string, error)
	PendingMigrations(ctx context.Context, appLabel string) ([]*domain.Migration, error)
}

// MigrationExecutor はマイグレーションを適用するインターフェース。
// target が空の場合はすべて適用する。
type MigrationExecutor interface {
	Migrate(ctx context.Context, appLabel, target string, opts domain.MigrateOptions) (int, error)
}

// DeployService はデプロイ時マイグレーションのビジネスロジックを提供する。
type DeployService struct {
	planner  MigrationPlanner
	executor MigrationExecutor
}

// NewDeployService は新しいDeployServiceを生成する。
func NewDeployService(planner MigrationPlanner, executor MigrationExecutor) *DeployService {
	return &DeployService{
		planner:  planner,
		executor: executor,
	}
}

// PlanApp は指定アプリケーションの適用計画を返す。データベースへの適用は行わない。
func (s *DeployService) PlanApp(ctx context.Context, appLabel string, strict bool) (*domain.AppPlan, error) {
	pending, err := s.planner.PendingMigrations(ctx, appLabel)
	if err != nil {
		return nil, fmt.Errorf("finding pending migrations for %s: %w", appLabel, err)
	}

	stopPoints, err := ResolveStopPoints(pending, strict)
	if err != nil {
		return nil, fmt.Errorf("resolving stop points for %s: %w", appLabel, err)
	}

	return &domain.AppPlan{
		AppLabel:   appLabel,
		Pending:    pending,
		StopPoints: stopPoints,
	}, nil
}

// Plan は全アプリケーションの適用計画を返す。
func (s *DeployService) Plan(ctx context.Context, strict bool) ([]*domain.AppPlan, error) {
	apps, err := s.planner.ListApps(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}

	plans := make([]*domain.AppPlan, 0, len(apps))
	for _, app := range apps {
		plan, err := s.PlanApp(ctx, app, strict)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Run はアプリケーションを一つずつ処理し、NOT_ON_DEPLOY の直前までマイグレーションを適用する。
// strict モードで到達不能なマイグレーションが見つかった場合はその時点でエラーを返す。
func (s *DeployService) Run(ctx context.Context, opts domain.DeployOptions) (*domain.DeployReport, error) {
	report := &domain.DeployReport{RunID: uuid.New().String()}

	apps, err := s.planner.ListApps(ctx)
	if err != nil {
		return report, fmt.Errorf("listing apps: %w", err)
	}

	// 各マイグレーションが適用される機会を最大にするため一アプリケーションずつ処理する
	for _, app := range apps {
		results, err := s.runApp(ctx, report.RunID, app, opts)
		report.Results = append(report.Results, results...)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

func (s *DeployService) runApp(ctx context.Context, runID, app string, opts domain.DeployOptions) ([]*domain.AppResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "DeployService.runApp")
	defer span.End()
	span.SetAttributes(
		attribute.String("deploy.run_id", runID),
		attribute.String("deploy.app_label", app),
	)

	plan, err := s.PlanApp(ctx, app, opts.Strict)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		audit.Write(ctx, runID, "RESOLVE_STOP_POINTS", app, "", audit.ResultFailed)
		return nil, err
	}

	// 通常は対象アプリケーションのみだが、順序を固定するためソートする
	labels := make([]string, 0, len(plan.StopPoints))
	for label := range plan.StopPoints {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var results []*domain.AppResult
	for _, label := range labels {
		stopPoint := plan.StopPoints[label]
		result := &domain.AppResult{AppLabel: label, StopPoint: stopPoint}

		switch stopPoint.Kind {
		case domain.StopPointApplyNone:
			result.Outcome = domain.DeployOutcomeSkipped
		case domain.StopPointApplyAll, domain.StopPointApplyUpTo:
			applied, err := s.executor.Migrate(ctx, label, stopPoint.Migration, domain.MigrateOptions{Interactive: opts.Interactive})
			result.Applied = applied
			if errors.Is(err, domain.ErrMigrationDeclined) {
				result.Outcome = domain.DeployOutcomeDeclined
				break
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				audit.Write(ctx, runID, "MIGRATE", label, stopPoint.String(), audit.ResultFailed)
				return results, fmt.Errorf("migrating %s: %w", label, err)
			}
			if stopPoint.Kind == domain.StopPointApplyAll {
				result.Outcome = domain.DeployOutcomeMigratedFully
			} else {
				result.Outcome = domain.DeployOutcomeMigratedPartially
			}
		}

		slog.InfoContext(ctx, "deploy migration decided",
			"operation", "deploy_migrate",
			"run_id", runID,
			"app_label", label,
			"stop_point", stopPoint.String(),
			"outcome", string(result.Outcome),
			"applied", result.Applied,
		)
		auditResult := audit.ResultSuccess
		if result.Outcome == domain.DeployOutcomeDeclined {
			auditResult = audit.ResultDeclined
		}
		audit.Write(ctx, runID, "MIGRATE", label, stopPoint.String(), auditResult)
		results = append(results, result)
	}

	span.SetAttributes(attribute.Int("deploy.results", len(results)))
	return results, nil
}
