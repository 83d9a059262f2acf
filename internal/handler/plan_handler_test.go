package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"deploy-migrate/config"
	"deploy-migrate/internal/domain"
	"deploy-migrate/internal/usecase"
)

// mockPlanner はテスト用のモックプランナー。
type mockPlanner struct {
	apps       []string
	pending    map[string][]*domain.Migration
	listErr    error
	pendingErr error
}

func (m *mockPlanner) ListApps(ctx context.Context) ([]string, error) {
	return m.apps, m.listErr
}

func (m *mockPlanner) PendingMigrations(ctx context.Context, appLabel string) ([]*domain.Migration, error) {
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	pending, ok := m.pending[appLabel]
	if !ok {
		return nil, domain.ErrAppNotFound
	}
	return pending, nil
}

// mockExecutor はテスト用のモック実行器。計画APIからは呼ばれない。
type mockExecutor struct{}

func (m *mockExecutor) Migrate(ctx context.Context, appLabel, target string, opts domain.MigrateOptions) (int, error) {
	return 0, errors.New("unexpected call")
}

func newTestPlanner() *mockPlanner {
	return &mockPlanner{
		apps: []string{"accounts", "billing", "reports"},
		pending: map[string][]*domain.Migration{
			"accounts": {
				domain.NewMigration("accounts", "0001_initial", domain.EligibilityUnspecified),
			},
			"billing": {
				domain.NewMigration("billing", "0001_initial", domain.EligibilityUnspecified),
				domain.NewMigration("billing", "0002_backfill_NOT_ON_DEPLOY", domain.EligibilityUnspecified),
			},
			"reports": {},
		},
	}
}

func setupHandler(planner *mockPlanner) *PlanHandler {
	service := usecase.NewDeployService(planner, &mockExecutor{})
	return NewPlanHandler(service, true)
}

func newAppRequest(target, appLabel string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("app_label", appLabel)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGetPlan_Success(t *testing.T) {
	h := setupHandler(newTestPlanner())

	req := httptest.NewRequest(http.MethodGet, "/v1/plan", nil)
	rec := httptest.NewRecorder()
	h.GetPlan(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp struct {
		Apps []struct {
			AppLabel  string            `json:"app_label"`
			Pending   []json.RawMessage `json:"pending"`
			StopPoint json.RawMessage   `json:"stop_point"`
		} `json:"apps"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Apps) != 3 {
		t.Fatalf("want 3 apps, got %d", len(resp.Apps))
	}

	want := map[string]string{
		"accounts": "null",
		"billing":  `"0001_initial"`,
		"reports":  "false",
	}
	for _, app := range resp.Apps {
		if got := string(app.StopPoint); got != want[app.AppLabel] {
			t.Errorf("%s: want stop_point %s, got %s", app.AppLabel, want[app.AppLabel], got)
		}
	}
}

func TestGetPlan_InvalidStrict(t *testing.T) {
	h := setupHandler(newTestPlanner())

	req := httptest.NewRequest(http.MethodGet, "/v1/plan?strict=maybe", nil)
	rec := httptest.NewRecorder()
	h.GetPlan(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestGetPlan_ListError(t *testing.T) {
	planner := newTestPlanner()
	planner.listErr = errors.New("disk error")
	h := setupHandler(planner)

	req := httptest.NewRequest(http.MethodGet, "/v1/plan", nil)
	rec := httptest.NewRecorder()
	h.GetPlan(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("want status 500, got %d", rec.Code)
	}
}

func TestGetAppPlan_Success(t *testing.T) {
	h := setupHandler(newTestPlanner())

	rec := httptest.NewRecorder()
	h.GetAppPlan(rec, newAppRequest("/v1/apps/billing/plan", "billing"))

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp struct {
		AppLabel  string              `json:"app_label"`
		Pending   []MigrationResponse `json:"pending"`
		StopPoint *domain.StopPoint   `json:"stop_point"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.AppLabel != "billing" {
		t.Errorf("want app_label billing, got %s", resp.AppLabel)
	}
	if len(resp.Pending) != 2 || !resp.Pending[1].NotOnDeploy {
		t.Errorf("unexpected pending: %+v", resp.Pending)
	}
	if resp.StopPoint == nil || *resp.StopPoint != domain.ApplyUpTo("0001_initial") {
		t.Errorf("want stop point 0001_initial, got %v", resp.StopPoint)
	}
}

func TestGetAppPlan_InvalidAppLabel(t *testing.T) {
	h := setupHandler(newTestPlanner())

	rec := httptest.NewRecorder()
	h.GetAppPlan(rec, newAppRequest("/v1/apps/bad-label/plan", "bad-label"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestGetAppPlan_NotFound(t *testing.T) {
	h := setupHandler(newTestPlanner())

	rec := httptest.NewRecorder()
	h.GetAppPlan(rec, newAppRequest("/v1/apps/unknown/plan", "unknown"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestGetAppPlan_Unreachable(t *testing.T) {
	planner := newTestPlanner()
	planner.pending["billing"] = append(planner.pending["billing"],
		domain.NewMigration("billing", "0003_add_index", domain.EligibilityUnspecified))
	h := setupHandler(planner)

	rec := httptest.NewRecorder()
	h.GetAppPlan(rec, newAppRequest("/v1/apps/billing/plan", "billing"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("want status 409, got %d", rec.Code)
	}

	var resp UnreachableResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != "UNREACHABLE_MIGRATIONS" {
		t.Errorf("want code UNREACHABLE_MIGRATIONS, got %s", resp.Code)
	}
	if len(resp.Unreachable) != 1 || resp.Unreachable[0].Name != "0003_add_index" {
		t.Errorf("unexpected unreachable: %+v", resp.Unreachable)
	}
}

func TestGetAppPlan_UnreachableLenient(t *testing.T) {
	planner := newTestPlanner()
	planner.pending["billing"] = append(planner.pending["billing"],
		domain.NewMigration("billing", "0003_add_index", domain.EligibilityUnspecified))
	h := setupHandler(planner)

	rec := httptest.NewRecorder()
	h.GetAppPlan(rec, newAppRequest("/v1/apps/billing/plan?strict=false", "billing"))

	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}
}

func TestRouter(t *testing.T) {
	h := setupHandler(newTestPlanner())
	router := NewRouter(h, &config.Config{})

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/v1/plan", http.StatusOK},
		{"/v1/apps/accounts/plan", http.StatusOK},
		{"/v1/apps/unknown/plan", http.StatusNotFound},
		{"/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: want status %d, got %d", tt.path, tt.want, rec.Code)
		}
	}
}
