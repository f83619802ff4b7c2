package export

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/config"
	"complaint-portal/internal/models"
)

// Headers is the fixed column order of every export format.
var Headers = []string{"Track ID", "Name", "Category", "Priority", "Location", "Status", "Submitted"}

var ErrNoRecords = apperrors.NewValidationError("", "No data to export")

const (
	submittedLayout = "02/01/2006 15:04"
	sheetName       = "Complaints"
)

type Exporter struct {
	secret   string
	client   *http.Client
	location *time.Location
	logger   *logrus.Logger
}

func NewExporter(cfg *config.Config, logger *logrus.Logger) *Exporter {
	return &Exporter{
		secret:   cfg.SinkSecret,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		location: cfg.Location(),
		logger:   logger,
	}
}

// ConvertToExport maps records onto export rows in their given order.
func (e *Exporter) ConvertToExport(records []models.ComplaintRecord) []models.ExportRecord {
	rows := make([]models.ExportRecord, 0, len(records))
	for _, r := range records {
		rows = append(rows, models.ExportRecord{
			TrackID:   r.TrackID,
			Name:      r.Name,
			Category:  r.Category,
			Priority:  string(r.Priority),
			Location:  r.Location,
			Status:    string(r.Status),
			Submitted: r.Timestamp.In(e.location).Format(submittedLayout),
		})
	}
	return rows
}

func values(row models.ExportRecord) []string {
	return []string{row.TrackID, row.Name, row.Category, row.Priority, row.Location, row.Status, row.Submitted}
}

// WriteCSV writes the header and one line per record. Fields containing
// commas, quotes or newlines are quoted.
func (e *Exporter) WriteCSV(w io.Writer, records []models.ComplaintRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range e.ConvertToExport(records) {
		if err := cw.Write(values(row)); err != nil {
			return fmt.Errorf("failed to write csv row %s: %w", row.TrackID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the same table as WriteCSV as a single-sheet workbook.
func (e *Exporter) WriteXLSX(w io.Writer, records []models.ComplaintRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	for i, row := range e.ConvertToExport(records) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := values(row)
		line := make([]interface{}, len(vals))
		for j, v := range vals {
			line[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &line); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.TrackID, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "G", 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	_, err = f.WriteTo(w)
	return err
}

// Filename is the download name for an export taken at now.
func Filename(now time.Time, ext string) string {
	return fmt.Sprintf("complaints-%s.%s", now.UTC().Format("2006-01-02"), ext)
}

// PushToSink posts each row to sinkURL, signed with HMAC-SHA256 in the
// X-Signature header. It stops at the first failure.
func (e *Exporter) PushToSink(ctx context.Context, sinkURL string, records []models.ComplaintRecord) (int, error) {
	if len(records) == 0 {
		return 0, ErrNoRecords
	}
	if sinkURL == "" || e.secret == "" {
		return 0, errors.New("export sink is not configured")
	}

	pushed := 0
	for _, record := range e.ConvertToExport(records) {
		signature, err := e.createSignature(record)
		if err != nil {
			e.logger.WithError(err).Error("Failed to create signature")
			return pushed, fmt.Errorf("failed to create signature: %w", err)
		}

		if err := e.post(ctx, sinkURL, record, signature); err != nil {
			e.logger.WithError(err).WithField("track_id", record.TrackID).Error("Failed to export record")
			return pushed, fmt.Errorf("failed to export record: %w", err)
		}
		pushed++
	}

	e.logger.WithFields(logrus.Fields{
		"records": pushed,
		"sink":    sinkURL,
	}).Info("Successfully exported records")
	return pushed, nil
}

func (e *Exporter) post(ctx context.Context, sinkURL string, record models.ExportRecord, signature string) error {
	const op = "push export"

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal export data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sinkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.NewTimeoutError(op, err)
		}
		return apperrors.NewNetworkError(op, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperrors.RemoteError{Op: op, Message: http.StatusText(resp.StatusCode), StatusCode: resp.StatusCode}
	}
	return nil
}

func (e *Exporter) createSignature(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(e.secret))
	h.Write(jsonData)
	signature := hex.EncodeToString(h.Sum(nil))

	return "sha256=" + signature, nil
}
