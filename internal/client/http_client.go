package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/config"
	"complaint-portal/internal/models"
)

const maxResponseBytes = 8 << 20

// HTTPClient talks to the spreadsheet script endpoint. Calls are one-shot:
// a failure is returned to the caller and never retried here.
type HTTPClient struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	logger   *logrus.Logger
	now      func() time.Time
}

func NewHTTPClient(cfg *config.Config, logger *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		endpoint: cfg.ScriptURL,
		timeout:  cfg.FetchTimeout,
		logger:   logger,
		now:      time.Now,
	}
}

// FetchAll returns every raw row in the sheet.
func (c *HTTPClient) FetchAll(ctx context.Context) ([]json.RawMessage, error) {
	env, err := c.get(ctx, "fetch complaints", url.Values{"action": {"getAll"}})
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, apperrors.NewRemoteError("fetch complaints", "Invalid data format")
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, apperrors.NewRemoteError("fetch complaints", "Invalid data format: data is not a list")
	}

	c.logger.WithField("records", len(rows)).Info("Fetched complaint rows")
	return rows, nil
}

// FetchOne looks a single complaint up by its track id.
func (c *HTTPClient) FetchOne(ctx context.Context, trackID string) (json.RawMessage, error) {
	env, err := c.get(ctx, "track complaint", url.Values{"complaintId": {trackID}})
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, apperrors.NewRemoteError("track complaint", "Complaint not found")
	}
	return env.Data, nil
}

// UpdateStatus persists a new status for one complaint.
func (c *HTTPClient) UpdateStatus(ctx context.Context, trackID string, status models.Status) error {
	_, err := c.get(ctx, "update status", url.Values{
		"updateAction": {"status"},
		"complaintId":  {trackID},
		"newStatus":    {string(status)},
	})
	if err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"track_id": trackID,
		"status":   status,
	}).Info("Status persisted")
	return nil
}

// NotifyUser asks the script to email the submitter about the current status.
func (c *HTTPClient) NotifyUser(ctx context.Context, record models.ComplaintRecord) error {
	_, err := c.get(ctx, "notify user", url.Values{
		"action":      {"notifyUser"},
		"email":       {record.Email},
		"name":        {record.Name},
		"complaintId": {record.TrackID},
		"status":      {string(record.Status)},
	})
	return err
}

// Submit creates a complaint and returns the id the sheet assigned to it.
func (c *HTTPClient) Submit(ctx context.Context, sub models.Submission) (string, error) {
	const op = "submit complaint"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := url.Values{}
	payload.Set("name", sub.Name)
	payload.Set("email", sub.Email)
	payload.Set("regno", sub.RegNo)
	payload.Set("category", sub.Category)
	payload.Set("complaint", sub.Description)
	payload.Set("priority", sub.Priority)
	payload.Set("location", sub.Location)
	payload.Set("coordinates", sub.Coordinates)
	payload.Set("photoUrl", sub.PhotoURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBufferString(payload.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	env, err := c.do(req, op)
	if err != nil {
		return "", err
	}

	trackID, err := complaintID(env.ComplaintID)
	if err != nil || trackID == "" {
		return "", apperrors.NewRemoteError(op, "response did not include a complaint id")
	}

	c.logger.WithField("track_id", trackID).Info("Complaint submitted")
	return trackID, nil
}

func (c *HTTPClient) get(ctx context.Context, op string, params url.Values) (*models.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Cache buster, the script endpoint is served through a CDN
	params.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))

	target := c.endpoint
	if strings.Contains(target, "?") {
		target += "&" + params.Encode()
	} else {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	return c.do(req, op)
}

func (c *HTTPClient) do(req *http.Request, op string) (*models.Envelope, error) {
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.logger.WithFields(logrus.Fields{
			"op":          op,
			"status_code": resp.StatusCode,
		}).Warn("Remote endpoint returned an error status")
		return nil, &apperrors.RemoteError{Op: op, Message: http.StatusText(resp.StatusCode), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(op, err)
	}

	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.NewRemoteError(op, "invalid JSON response")
	}
	if !env.OK() {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %q", env.Status)
		}
		return nil, apperrors.NewRemoteError(op, msg)
	}

	c.logger.WithFields(logrus.Fields{
		"op":          op,
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("Request successful")

	return &env, nil
}

func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeoutError(op, err)
	}
	return apperrors.NewNetworkError(op, err)
}

// complaintID accepts the id as either a JSON string or a number.
func complaintID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
