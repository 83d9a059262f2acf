// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"deploy-migrate/internal/audit"
	"deploy-migrate/internal/domain"
	"deploy-migrate/internal/usecase"
	"deploy-migrate/pkg/httputil"
)

// PlanService は適用計画を提供するインターフェース。
type PlanService interface {
	Plan(ctx context.Context, strict bool) ([]*domain.AppPlan, error)
	PlanApp(ctx context.Context, appLabel string, strict bool) (*domain.AppPlan, error)
}

// PlanHandler は適用計画のHTTPハンドラを提供する。
type PlanHandler struct {
	service       PlanService
	defaultStrict bool
}

// NewPlanHandler は新しいPlanHandlerを生成する。
func NewPlanHandler(service PlanService, defaultStrict bool) *PlanHandler {
	return &PlanHandler{service: service, defaultStrict: defaultStrict}
}

// MigrationResponse はマイグレーションのレスポンス形式。
type MigrationResponse struct {
	AppLabel    string `json:"app_label"`
	Name        string `json:"name"`
	NotOnDeploy bool   `json:"not_on_deploy"`
}

// AppPlanResponse はアプリケーションごとの適用計画のレスポンス形式。
// stop_point は全件適用で null、適用なしで false、それ以外はマイグレーション名。
type AppPlanResponse struct {
	AppLabel  string              `json:"app_label"`
	Pending   []MigrationResponse `json:"pending"`
	StopPoint *domain.StopPoint   `json:"stop_point"`
}

// PlanResponse は全体の適用計画のレスポンス形式。
type PlanResponse struct {
	Apps []AppPlanResponse `json:"apps"`
}

// UnreachableResponse は到達不能なマイグレーションがある場合のレスポンス形式。
type UnreachableResponse struct {
	Code        string              `json:"code"`
	Message     string              `json:"message"`
	Unreachable []MigrationResponse `json:"unreachable"`
}

func toMigrationResponses(migrations []*domain.Migration) []MigrationResponse {
	res := make([]MigrationResponse, len(migrations))
	for i, m := range migrations {
		res[i] = MigrationResponse{
			AppLabel:    m.AppLabel,
			Name:        m.Name,
			NotOnDeploy: m.NotOnDeploy(),
		}
	}
	return res
}

func toAppPlanResponse(plan *domain.AppPlan) AppPlanResponse {
	res := AppPlanResponse{
		AppLabel: plan.AppLabel,
		Pending:  toMigrationResponses(plan.Pending),
	}
	// 未適用マイグレーションがない場合は stop_point を false（適用なし）とする
	if sp, ok := plan.StopPoints[plan.AppLabel]; ok {
		res.StopPoint = &sp
	} else {
		none := domain.ApplyNone()
		res.StopPoint = &none
	}
	return res
}

func (h *PlanHandler) parseStrict(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("strict")
	if raw == "" {
		return h.defaultStrict, nil
	}
	return strconv.ParseBool(raw)
}

// GetPlan は全アプリケーションの適用計画を返す。
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	strict, err := h.parseStrict(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_STRICT", "strict must be true or false")
		return
	}

	plans, err := h.service.Plan(r.Context(), strict)
	if err != nil {
		audit.Write(r.Context(), "", "GET_PLAN", "", "", audit.ResultFailed)
		h.writeError(w, err)
		return
	}

	audit.Write(r.Context(), "", "GET_PLAN", "", "", audit.ResultSuccess)
	response := PlanResponse{Apps: make([]AppPlanResponse, len(plans))}
	for i, plan := range plans {
		response.Apps[i] = toAppPlanResponse(plan)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// GetAppPlan は指定アプリケーションの適用計画を返す。
func (h *PlanHandler) GetAppPlan(w http.ResponseWriter, r *http.Request) {
	appLabel := chi.URLParam(r, "app_label")
	if err := usecase.ValidateAppLabel(appLabel); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_APP_LABEL", "invalid app label format")
		return
	}

	strict, err := h.parseStrict(r)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_STRICT", "strict must be true or false")
		return
	}

	plan, err := h.service.PlanApp(r.Context(), appLabel, strict)
	if err != nil {
		audit.Write(r.Context(), "", "GET_APP_PLAN", appLabel, "", audit.ResultFailed)
		h.writeError(w, err)
		return
	}

	response := toAppPlanResponse(plan)
	audit.Write(r.Context(), "", "GET_APP_PLAN", appLabel, response.StopPoint.String(), audit.ResultSuccess)
	httputil.JSON(w, http.StatusOK, response)
}

func (h *PlanHandler) writeError(w http.ResponseWriter, err error) {
	var unreachable *domain.UnreachableMigrationsError
	switch {
	case errors.As(err, &unreachable):
		httputil.JSON(w, http.StatusConflict, UnreachableResponse{
			Code:        "UNREACHABLE_MIGRATIONS",
			Message:     unreachable.Error(),
			Unreachable: toMigrationResponses(unreachable.Migrations),
		})
	case errors.Is(err, domain.ErrAppNotFound):
		httputil.Error(w, http.StatusNotFound, "APP_NOT_FOUND", "app not found")
	case errors.Is(err, domain.ErrInvalidMigrationFile):
		httputil.Error(w, http.StatusUnprocessableEntity, "INVALID_MIGRATION_FILE", err.Error())
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
