package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	models "AlertPulse/internal/domain/models"
	"AlertPulse/internal/tracker"
	"AlertPulse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	rec *models.AlertRecord
	err error
}

func (s *stubStore) Evaluate(context.Context, models.ScoredSignal, time.Time) (models.Decision, error) {
	return models.Decision{}, nil
}
func (s *stubStore) Get(context.Context, models.AlertKey) (*models.AlertRecord, error) {
	return s.rec, s.err
}
func (s *stubStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }
func (s *stubStore) Close() error                                  { return nil }

func newTestServer(t *testing.T, store *stubStore) *echo.Echo {
	t.Helper()
	trk := tracker.New(time.Minute, logger.Nop())
	h := NewDashboardHandler(logger.Nop(), trk, store)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func doGet(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t, &stubStore{})
	rec := doGet(e, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
}

func TestSnapshotNotFoundBeforeFirstWindow(t *testing.T) {
	e := newTestServer(t, &stubStore{})
	rec := doGet(e, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":404`)
}

func TestCurrentWindowAlwaysServes(t *testing.T) {
	e := newTestServer(t, &stubStore{})
	rec := doGet(e, "/api/snapshot/current")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"generated":0`)
}

func TestStateFound(t *testing.T) {
	store := &stubStore{rec: &models.AlertRecord{
		Key:    models.AlertKey{StrategyID: "Scalping", Symbol: "BTCUSDT"},
		Status: models.StatusCooldown,
	}}
	e := newTestServer(t, store)
	rec := doGet(e, "/api/state/Scalping/BTCUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "BTCUSDT")
	require.Contains(t, rec.Body.String(), string(models.StatusCooldown))
}

func TestStateMissingReturns404(t *testing.T) {
	e := newTestServer(t, &stubStore{})
	rec := doGet(e, "/api/state/Scalping/BTCUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":404`)
}

func TestHistoryNotConfigured(t *testing.T) {
	e := newTestServer(t, &stubStore{})
	rec := doGet(e, "/api/snapshots")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "not configured")
}

func TestStateRateLimited(t *testing.T) {
	store := &stubStore{rec: &models.AlertRecord{
		Key: models.AlertKey{StrategyID: "Scalping", Symbol: "BTCUSDT"},
	}}
	e := newTestServer(t, store)

	limited := false
	for i := 0; i < 20; i++ {
		rec := doGet(e, "/api/state/Scalping/BTCUSDT")
		if strings.Contains(rec.Body.String(), "rate limited") {
			limited = true
			break
		}
	}
	require.True(t, limited, "burst of 20 requests should trip the limiter")
}
