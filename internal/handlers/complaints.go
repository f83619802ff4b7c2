package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/models"
	"complaint-portal/internal/portal"
)

// SubmitComplaint accepts the public form, either form-encoded or JSON.
func (h *Handler) SubmitComplaint(c *gin.Context) {
	var sub models.Submission
	if err := c.ShouldBind(&sub); err != nil {
		h.respondError(c, bindError(err))
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), sub)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// TrackComplaint is the public status lookup.
func (h *Handler) TrackComplaint(c *gin.Context) {
	record, err := h.service.Track(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ListComplaints applies the filter to the read model and returns one page
// of the filtered list. An empty page with data loaded is a 200.
func (h *Handler) ListComplaints(c *gin.Context) {
	var criteria models.FilterCriteria
	if err := c.ShouldBindQuery(&criteria); err != nil {
		h.respondError(c, apperrors.NewValidationError("", err.Error()))
		return
	}
	if !h.store.HasData() {
		h.respondError(c, &apperrors.NoDataError{})
		return
	}

	filtered := h.store.ApplyFilter(criteria)
	total := len(filtered)
	start, end, limit := paginate(c, total)

	c.JSON(http.StatusOK, models.MetricsResponse{
		Data:    filtered[start:end],
		Total:   total,
		Page:    start/limit + 1,
		Limit:   limit,
		HasMore: end < total,
	})
}

func (h *Handler) GetComplaint(c *gin.Context) {
	id := c.Param("id")
	record, ok := h.store.FindByTrackID(id)
	if !ok {
		h.respondError(c, apperrors.NewNotFoundError("complaint", id))
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req models.StatusUpdateRequest
	if err := c.ShouldBind(&req); err != nil {
		h.respondError(c, apperrors.NewValidationError("status", "status is required"))
		return
	}

	record, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Status updated to " + string(record.Status),
		"data":    record,
	})
}

func (h *Handler) NotifyUser(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.NotifyUser(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Notification sent",
	})
}

func bindError(err error) error {
	translated := portal.TranslateValidation(err)
	if apperrors.IsValidation(translated) {
		return translated
	}
	return apperrors.NewValidationError("", "Invalid request body")
}

// respondError maps the error taxonomy onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsValidation(err):
		status = http.StatusBadRequest
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsBusy(err):
		status = http.StatusConflict
	case apperrors.IsNoData(err):
		status = http.StatusServiceUnavailable
	case apperrors.IsTimeout(err):
		status = http.StatusGatewayTimeout
	case apperrors.IsNetwork(err), apperrors.IsRemote(err):
		status = http.StatusBadGateway
	}

	entry := h.logger.WithFields(logrus.Fields{
		"path":       c.FullPath(),
		"status":     status,
		"request_id": c.GetString(requestIDKey),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	message := err.Error()
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		message = verr.Message
	}
	c.JSON(status, gin.H{"error": message})
}
