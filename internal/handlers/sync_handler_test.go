package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	handler "transaction-sync-backend/internal/handlers"
	"transaction-sync-backend/internal/routes"
	syncsvc "transaction-sync-backend/internal/services/sync"
)

const testSecret = "cron-secret"

type fakeSyncService struct {
	summary     *syncsvc.CycleSummary
	cycleErr    error
	backfill    []syncsvc.BackfillResult
	backfillErr error
	running     bool

	cycleCalls    int
	backfillCalls int
}

func (f *fakeSyncService) RunCycle(ctx context.Context) (*syncsvc.CycleSummary, error) {
	f.cycleCalls++
	return f.summary, f.cycleErr
}

func (f *fakeSyncService) RunBackfill(ctx context.Context) ([]syncsvc.BackfillResult, error) {
	f.backfillCalls++
	return f.backfill, f.backfillErr
}

func (f *fakeSyncService) Running() bool { return f.running }

func newTestRouter(service *fakeSyncService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handler.NewSyncHandler(service, testSecret, handler.StatusInfo{
		Interval: 30 * time.Minute,
		Sources:  []string{"alpha", "beta"},
	}, zap.NewNop())
	routes.RegisterRoutes(r, h)
	return r
}

func doRequest(r *gin.Engine, method, path, bearer string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&fakeSyncService{})
	w, body := doRequest(r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestTriggerCron_RequiresSecret(t *testing.T) {
	service := &fakeSyncService{summary: &syncsvc.CycleSummary{}}
	r := newTestRouter(service)

	for _, bearer := range []string{"", "wrong-secret"} {
		w, body := doRequest(r, http.MethodPost, "/api/cron/sync", bearer)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, false, body["success"])
	}
	assert.Zero(t, service.cycleCalls, "no cycle runs without the secret")
}

func TestTriggerCron_Success(t *testing.T) {
	service := &fakeSyncService{summary: &syncsvc.CycleSummary{
		Sources: []syncsvc.SourceResult{{Source: "alpha", Stats: syncsvc.Stats{Inserted: 2}}},
	}}
	r := newTestRouter(service)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w, body := doRequest(r, method, "/api/cron/sync", testSecret)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "sync completed successfully", body["message"])
		assert.NotEmpty(t, body["timestamp"])
		assert.Contains(t, body, "summary")
	}
	assert.Equal(t, 2, service.cycleCalls)
}

func TestTriggerManual_NoAuthRequired(t *testing.T) {
	service := &fakeSyncService{summary: &syncsvc.CycleSummary{}}
	r := newTestRouter(service)

	w, body := doRequest(r, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, service.cycleCalls)
}

func TestTrigger_BusyConflict(t *testing.T) {
	service := &fakeSyncService{cycleErr: syncsvc.ErrSyncBusy}
	r := newTestRouter(service)

	w, body := doRequest(r, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestTrigger_FailureIs500(t *testing.T) {
	service := &fakeSyncService{cycleErr: errors.New("upstream unreachable")}
	r := newTestRouter(service)

	w, body := doRequest(r, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "upstream unreachable", body["error"])
}

func TestStatus(t *testing.T) {
	service := &fakeSyncService{running: true}
	r := newTestRouter(service)

	w, body := doRequest(r, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "integrated", body["mode"])
	assert.Equal(t, "every 30m0s", body["schedule"])
	assert.Equal(t, true, body["running"])
	assert.ElementsMatch(t, []any{"alpha", "beta"}, body["sources"])
}

func TestStatus_ExternalCronMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handler.NewSyncHandler(&fakeSyncService{}, testSecret, handler.StatusInfo{
		ExternalCron: true,
		Interval:     30 * time.Minute,
	}, zap.NewNop())
	routes.RegisterRoutes(r, h)

	w, body := doRequest(r, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "external", body["mode"])
	assert.Equal(t, false, body["running"])
}

func TestBackfill(t *testing.T) {
	service := &fakeSyncService{backfill: []syncsvc.BackfillResult{
		{Source: "alpha", Stats: syncsvc.BackfillStats{Missing: 3, Updated: 2, Remaining: 1}},
	}}
	r := newTestRouter(service)

	w, body := doRequest(r, http.MethodPost, "/api/sync/backfill", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, service.backfillCalls)

	w, body = doRequest(r, http.MethodPost, "/api/sync/backfill", testSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body, "results")
	assert.Equal(t, 1, service.backfillCalls)
}

func TestBackfill_Busy(t *testing.T) {
	service := &fakeSyncService{backfillErr: syncsvc.ErrSyncBusy}
	r := newTestRouter(service)

	w, body := doRequest(r, http.MethodPost, "/api/sync/backfill", testSecret)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])
}
