package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/config"
	"complaint-portal/internal/export"
	"complaint-portal/internal/metrics"
	"complaint-portal/internal/models"
	"complaint-portal/internal/portal"
	"complaint-portal/internal/storage"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

type Handler struct {
	config     *config.Config
	service    *portal.Service
	store      *storage.MemoryStore
	calculator *metrics.Calculator
	exporter   *export.Exporter
	logger     *logrus.Logger
	location   *time.Location
	now        func() time.Time
}

func New(cfg *config.Config, service *portal.Service, store *storage.MemoryStore,
	calculator *metrics.Calculator, exporter *export.Exporter, logger *logrus.Logger) *Handler {
	return &Handler{
		config:     cfg,
		service:    service,
		store:      store,
		calculator: calculator,
		exporter:   exporter,
		logger:     logger,
		location:   cfg.Location(),
		now:        time.Now,
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
		"service":   "complaint-portal",
	})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	snap := h.store.Snapshot()
	if snap.State == storage.StateLoaded {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"has_data":  true,
			"records":   len(snap.All),
			"version":   snap.Version,
			"last_load": snap.LoadedAt.Format(time.RFC3339),
		})
		return
	}

	message := "No data loaded yet"
	if snap.State == storage.StateUnavailable {
		message = "No data received from server"
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":   "not ready",
		"has_data": false,
		"state":    snap.State.String(),
		"message":  message,
	})
}

// Reload pulls every complaint from the sheet into the read model.
func (h *Handler) Reload(c *gin.Context) {
	summary, err := h.service.Reload(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	if len(summary.Quality.CommonIssues) > 0 {
		h.logger.WithField("common_issues", summary.Quality.CommonIssues).Warn("Data quality issues detected")
	}

	c.JSON(http.StatusOK, models.LoadResponse{
		Status:      "success",
		Records:     summary.Records,
		ProcessedAt: summary.LoadedAt.Format(time.RFC3339),
		Message:     "Complaints loaded with quality validation",
		Quality:     summary.Quality,
	})
}

func (h *Handler) GetDataQualityReport(c *gin.Context) {
	if h.store.State() == storage.StateNotLoaded {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No data available for quality analysis. Please run a reload first.",
		})
		return
	}
	c.JSON(http.StatusOK, h.store.QualityReport())
}

// requireData answers 503 when the read model holds nothing, so an empty
// dashboard is never mistaken for a quiet system.
func (h *Handler) requireData(c *gin.Context) (storage.Snapshot, bool) {
	snap := h.store.Snapshot()
	if len(snap.All) == 0 {
		h.respondError(c, &apperrors.NoDataError{})
		return snap, false
	}
	return snap, true
}

func (h *Handler) GetDashboard(c *gin.Context) {
	snap, ok := h.requireData(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.calculator.Dashboard(snap.All, snap.LoadedAt))
}

func (h *Handler) GetAnalytics(c *gin.Context) {
	snap, ok := h.requireData(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.calculator.Analytics(snap.All, h.now(), h.location))
}

func (h *Handler) GetUsers(c *gin.Context) {
	snap, ok := h.requireData(c)
	if !ok {
		return
	}
	users := h.calculator.Users(snap.All)
	c.JSON(http.StatusOK, gin.H{
		"data":  users,
		"total": len(users),
	})
}

// paginate reads limit and offset and returns the bounds of the page.
func paginate(c *gin.Context, total int) (start, end, limit int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	start = offset
	end = offset + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return start, end, limit
}
