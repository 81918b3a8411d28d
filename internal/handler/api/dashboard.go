package api

import (
	"net/http"
	"time"

	models "AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/internal/repository"
	"AlertPulse/internal/service/ratelimit"
	"AlertPulse/internal/tracker"
	xhttp "AlertPulse/pkg/http"
	xlogger "AlertPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DashboardHandler serves the read-only observability surface. Nothing
// behind these routes can influence the decision path.
type DashboardHandler struct {
	logger  *xlogger.Logger
	tracker *tracker.Tracker
	store   drepo.StateStore
	history *repository.CHSnapshotHistory
	cache   *repository.RedisSnapshotCache
	rl      *ratelimit.Limiter
}

func NewDashboardHandler(logger *xlogger.Logger, trk *tracker.Tracker, store drepo.StateStore) *DashboardHandler {
	return &DashboardHandler{
		logger:  logger,
		tracker: trk,
		store:   store,
		rl:      ratelimit.New(),
	}
}

// SetHistory enables the /api/snapshots route backed by ClickHouse.
func (h *DashboardHandler) SetHistory(hist *repository.CHSnapshotHistory) { h.history = hist }

// SetCache enables the Redis fallback for /api/snapshot.
func (h *DashboardHandler) SetCache(c *repository.RedisSnapshotCache) { h.cache = c }

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.GET("/snapshot/current", h.CurrentWindow)
	g.GET("/snapshots", h.History)
	g.GET("/state/:strategy/:symbol", h.State)
}

func (h *DashboardHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Snapshot returns the last finished tracker window. When the process has
// not rolled a window yet (fresh start), the Redis copy written by the
// previous instance is used instead.
func (h *DashboardHandler) Snapshot(c echo.Context) error {
	if snap := h.tracker.Latest(); snap != nil {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
		return xhttp.SuccessResponse(c, snap)
	}
	if h.cache != nil {
		snap, err := h.cache.Latest(c.Request().Context())
		if err != nil {
			h.logger.Error("snapshot cache read failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		if snap != nil {
			return xhttp.SuccessResponse(c, snap)
		}
	}
	return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no snapshot window finished yet"))
}

func (h *DashboardHandler) CurrentWindow(c echo.Context) error {
	snap := h.tracker.Current()
	return xhttp.SuccessResponse(c, snap)
}

func (h *DashboardHandler) History(c echo.Context) error {
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("snapshot history is not configured"))
	}

	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)
	if limit < 1 || limit > 1000 {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_RANGE",
			Field:   "limit",
			Message: "limit must be between 1 and 1000",
		}})
	}
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Now().UTC().Add(-24*time.Hour))

	rows, err := h.history.Recent(c.Request().Context(), since, limit)
	if err != nil {
		h.logger.Error("snapshot history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// State exposes the raw dedup record for one strategy/symbol pair. Rate
// limited per client because every call hits the store.
func (h *DashboardHandler) State(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":state", 5, 2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	key := models.AlertKey{
		StrategyID: c.Param("strategy"),
		Symbol:     c.Param("symbol"),
	}
	if key.StrategyID == "" || key.Symbol == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("strategy and symbol are required"))
	}

	rec, err := h.store.Get(c.Request().Context(), key)
	if err != nil {
		h.logger.Error("state lookup failed", xlogger.Error(err), xlogger.String("key", key.String()))
		return xhttp.AppErrorResponse(c, err)
	}
	if rec == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no alert state for %s", key))
	}
	return xhttp.SuccessResponse(c, rec)
}
