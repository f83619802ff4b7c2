// Package notify sends submission confirmations through the EmailJS REST API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/config"
	"complaint-portal/internal/models"
)

// ErrDisabled is returned when EmailJS credentials are not configured.
var ErrDisabled = errors.New("email notifications are not configured")

const timestampLayout = "2 January 2006, 03:04 pm"

// Confirmation carries the template parameters of the confirmation mail.
type Confirmation struct {
	TrackID     string
	Submission  models.Submission
	SubmittedAt time.Time
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

type Mailer struct {
	client     *http.Client
	endpoint   string
	serviceID  string
	templateID string
	publicKey  string
	privateKey string
	location   *time.Location
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

func NewMailer(cfg *config.Config, logger *logrus.Logger) *Mailer {
	perMinute := cfg.EmailRatePerMin
	if perMinute <= 0 {
		perMinute = 30
	}

	return &Mailer{
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
		endpoint:   cfg.EmailJSURL,
		serviceID:  cfg.EmailJSServiceID,
		templateID: cfg.EmailJSTemplateID,
		publicKey:  cfg.EmailJSPublicKey,
		privateKey: cfg.EmailJSPrivateKey,
		location:   cfg.Location(),
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
		logger:     logger,
	}
}

func (m *Mailer) Enabled() bool {
	return m.serviceID != "" && m.templateID != "" && m.publicKey != ""
}

// SendConfirmation mails the submitter their track id. It is sent once; the
// caller decides what a failure means for the submission.
func (m *Mailer) SendConfirmation(ctx context.Context, c Confirmation) error {
	const op = "send confirmation email"

	if !m.Enabled() {
		return ErrDisabled
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	coordinates := c.Submission.Coordinates
	if coordinates == "" {
		coordinates = models.NotProvided
	}

	body, err := json.Marshal(sendRequest{
		ServiceID:   m.serviceID,
		TemplateID:  m.templateID,
		UserID:      m.publicKey,
		AccessToken: m.privateKey,
		TemplateParams: map[string]string{
			"track_id":        c.TrackID,
			"from_name":       c.Submission.Name,
			"reg_no":          c.Submission.RegNo,
			"user_email":      c.Submission.Email,
			"category":        c.Submission.Category,
			"priority":        c.Submission.Priority,
			"manual_location": c.Submission.Location,
			"coordinates":     coordinates,
			"description":     c.Submission.Description,
			"timestamp":       c.SubmittedAt.In(m.location).Format(timestampLayout),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.NewTimeoutError(op, err)
		}
		return apperrors.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &apperrors.RemoteError{Op: op, Message: string(bytes.TrimSpace(detail)), StatusCode: resp.StatusCode}
	}

	m.logger.WithField("track_id", c.TrackID).Info("Confirmation email sent")
	return nil
}
