package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/export"
	"complaint-portal/internal/models"
	"complaint-portal/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportRecords returns the list the admin currently has filtered. A filter
// query on the export request itself takes precedence.
func (h *Handler) exportRecords(c *gin.Context) ([]models.ComplaintRecord, bool) {
	var criteria models.FilterCriteria
	if err := c.ShouldBindQuery(&criteria); err != nil {
		h.respondError(c, apperrors.NewValidationError("", err.Error()))
		return nil, false
	}
	snap, ok := h.requireData(c)
	if !ok {
		return nil, false
	}
	records := snap.Filtered
	if !criteria.IsEmpty() {
		records = storage.Match(snap.All, criteria)
	}
	if len(records) == 0 {
		h.respondError(c, export.ErrNoRecords)
		return nil, false
	}
	return records, true
}

// ExportComplaints downloads the filtered complaints as CSV or XLSX.
func (h *Handler) ExportComplaints(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		h.respondError(c, apperrors.NewValidationError("format", "format must be csv or xlsx"))
		return
	}

	records, ok := h.exportRecords(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	var err error
	contentType := "text/csv; charset=utf-8"
	if format == "xlsx" {
		contentType = xlsxContentType
		err = h.exporter.WriteXLSX(&buf, records)
	} else {
		err = h.exporter.WriteCSV(&buf, records)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"format":  format,
		"records": len(records),
	}).Info("Complaints exported")

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(h.now(), format)+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// PushExport sends the filtered complaints to the configured sink.
func (h *Handler) PushExport(c *gin.Context) {
	if h.config.SinkURL == "" || h.config.SinkSecret == "" {
		h.respondError(c, apperrors.NewValidationError("sink", "Export sink is not configured"))
		return
	}

	records, ok := h.exportRecords(c)
	if !ok {
		return
	}

	pushed, err := h.exporter.PushToSink(c.Request.Context(), h.config.SinkURL, records)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"exported": pushed,
		"message":  "Complaints exported successfully",
	})
}
