// Package portal implements the complaint portal use cases on top of the
// read model: reloading, submitting, tracking, status changes and user
// notification.
package portal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/config"
	"complaint-portal/internal/models"
	"complaint-portal/internal/notify"
	"complaint-portal/internal/storage"
	"complaint-portal/internal/telemetry"
	"complaint-portal/internal/transformer"
)

// Remote is the spreadsheet endpoint.
type Remote interface {
	FetchAll(ctx context.Context) ([]json.RawMessage, error)
	FetchOne(ctx context.Context, trackID string) (json.RawMessage, error)
	UpdateStatus(ctx context.Context, trackID string, status models.Status) error
	Submit(ctx context.Context, sub models.Submission) (string, error)
	NotifyUser(ctx context.Context, record models.ComplaintRecord) error
}

type Mailer interface {
	SendConfirmation(ctx context.Context, c notify.Confirmation) error
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Deps are the collaborators of a Service. Mailer and Geocoder are optional.
type Deps struct {
	Remote     Remote
	Store      *storage.MemoryStore
	Normalizer *transformer.Transformer
	Mailer     Mailer
	Geocoder   Geocoder
	Metrics    *telemetry.Metrics
	Logger     *logrus.Logger
}

type Service struct {
	remote     Remote
	store      *storage.MemoryStore
	normalizer *transformer.Transformer
	mailer     Mailer
	geocoder   Geocoder
	metrics    *telemetry.Metrics
	logger     *logrus.Logger
	validate   *validator.Validate
	trackCache *expirable.LRU[string, models.ComplaintRecord]

	refreshInterval time.Duration
	now             func() time.Time

	loading  atomic.Bool
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewService(cfg *config.Config, deps Deps) *Service {
	size := cfg.TrackCacheSize
	if size <= 0 {
		size = 256
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}

	return &Service{
		remote:          deps.Remote,
		store:           deps.Store,
		normalizer:      deps.Normalizer,
		mailer:          deps.Mailer,
		geocoder:        deps.Geocoder,
		metrics:         metrics,
		logger:          deps.Logger,
		validate:        newValidator(),
		trackCache:      expirable.NewLRU[string, models.ComplaintRecord](size, nil, cfg.TrackCacheTTL),
		refreshInterval: cfg.RefreshInterval,
		now:             time.Now,
		inFlight:        make(map[string]struct{}),
	}
}

// Loading reports whether a reload is in flight.
func (s *Service) Loading() bool {
	return s.loading.Load()
}

// Reload fetches every row and replaces the read model. A second call while
// one is in flight is rejected with a BusyError rather than queued.
func (s *Service) Reload(ctx context.Context) (storage.LoadSummary, error) {
	if !s.loading.CompareAndSwap(false, true) {
		s.metrics.LoadsTotal.WithLabelValues("busy").Inc()
		return storage.LoadSummary{}, apperrors.NewBusyError("reload")
	}
	defer s.loading.Store(false)

	start := time.Now()
	defer func() {
		s.metrics.LoadDuration.Observe(time.Since(start).Seconds())
	}()

	raws, err := s.remote.FetchAll(ctx)
	if err != nil {
		s.metrics.LoadsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Error("Failed to fetch complaints")
		return storage.LoadSummary{}, err
	}

	summary, err := s.store.Load(raws)
	if err != nil {
		s.metrics.LoadsTotal.WithLabelValues("no_data").Inc()
		s.metrics.RecordsLoaded.Set(0)
		s.logger.WithError(err).WithField("raw_records", len(raws)).Warn("Reload produced no usable records")
		return storage.LoadSummary{}, err
	}

	// Public lookups must not outlive the data they were read alongside
	s.trackCache.Purge()

	s.metrics.LoadsTotal.WithLabelValues("success").Inc()
	s.metrics.RecordsLoaded.Set(float64(summary.Records))
	s.metrics.RecordsDropped.Add(float64(summary.Dropped))
	s.metrics.LastLoadUnixTime.Set(float64(summary.LoadedAt.Unix()))

	entry := s.logger.WithFields(logrus.Fields{
		"records":       summary.Records,
		"dropped":       summary.Dropped,
		"version":       summary.Version,
		"quality_score": summary.Quality.QualityScore,
	})
	if summary.Dropped > 0 {
		entry.Warn("Complaints reloaded with dropped rows")
	} else {
		entry.Info("Complaints reloaded")
	}
	return summary, nil
}

// RunAutoRefresh reloads on every tick until ctx is done. A tick is skipped
// while the read model is still empty or a reload is already running.
func (s *Service) RunAutoRefresh(ctx context.Context) {
	if s.refreshInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshTick(ctx)
		}
	}
}

func (s *Service) refreshTick(ctx context.Context) {
	if !s.store.HasData() {
		s.logger.Debug("Skipping auto-refresh, no data loaded yet")
		return
	}
	if s.loading.Load() {
		s.logger.Debug("Skipping auto-refresh, reload in progress")
		return
	}
	if _, err := s.Reload(ctx); err != nil && !apperrors.IsBusy(err) {
		s.logger.WithError(err).Warn("Auto-refresh failed")
	}
}

// Submit validates and stores a new complaint. The id returned by the sheet
// is the track id. A failed confirmation email does not fail the submission.
func (s *Service) Submit(ctx context.Context, sub models.Submission) (models.SubmitResponse, error) {
	sub = normalizeSubmission(sub)
	if err := s.validateSubmission(sub); err != nil {
		s.metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return models.SubmitResponse{}, err
	}

	key := fingerprint(sub)
	if !s.acquire(key) {
		s.metrics.SubmissionsTotal.WithLabelValues("busy").Inc()
		return models.SubmitResponse{}, apperrors.NewBusyError("submission")
	}
	defer s.release(key)

	if sub.Location == "" {
		sub.Location = s.locate(ctx, sub.Coordinates)
	}
	if sub.Location == "" {
		s.metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return models.SubmitResponse{}, apperrors.NewValidationError("location", "Please provide location information or use GPS.")
	}

	forwarded := sub
	if forwarded.RegNo == "" {
		forwarded.RegNo = models.NotProvided
	}
	if forwarded.Email == "" {
		forwarded.Email = models.NotProvided
	}

	trackID, err := s.remote.Submit(ctx, forwarded)
	if err != nil {
		s.metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Error("Failed to save complaint")
		return models.SubmitResponse{}, err
	}
	s.metrics.SubmissionsTotal.WithLabelValues("success").Inc()

	resp := models.SubmitResponse{
		Status:   "success",
		TrackID:  trackID,
		Location: sub.Location,
	}

	if s.mailer != nil {
		err := s.mailer.SendConfirmation(ctx, notify.Confirmation{
			TrackID:     trackID,
			Submission:  forwarded,
			SubmittedAt: s.now(),
		})
		resp.EmailSent = err == nil
		s.metrics.EmailsTotal.WithLabelValues(telemetry.Result(err)).Inc()
		if err != nil {
			s.logger.WithError(err).WithField("track_id", trackID).Warn("Email failed but complaint saved")
		}
	}

	return resp, nil
}

// locate reverse geocodes coordinates. Any failure yields an empty location.
func (s *Service) locate(ctx context.Context, coordinates string) string {
	if s.geocoder == nil {
		return ""
	}
	lat, lon := transformer.ParseCoordinates(coordinates)
	if lat == nil || lon == nil {
		return ""
	}

	place, err := s.geocoder.Reverse(ctx, *lat, *lon)
	if err != nil {
		s.logger.WithError(err).Debug("Reverse geocoding failed")
		return ""
	}
	return place
}

func (s *Service) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Service) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

func fingerprint(sub models.Submission) string {
	h := sha256.New()
	for _, part := range []string{
		sub.Name, sub.RegNo, sub.Email, sub.Category, sub.Priority,
		sub.Location, sub.Description, sub.Coordinates,
	} {
		h.Write([]byte(strings.ToLower(part)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Track looks a complaint up on the sheet by its public track id.
func (s *Service) Track(ctx context.Context, trackID string) (models.ComplaintRecord, error) {
	trackID = strings.TrimSpace(trackID)
	if err := ValidateTrackID(trackID); err != nil {
		return models.ComplaintRecord{}, err
	}

	if record, ok := s.trackCache.Get(trackID); ok {
		s.metrics.TrackCacheHits.Inc()
		return record, nil
	}
	s.metrics.TrackCacheMisses.Inc()

	raw, err := s.remote.FetchOne(ctx, trackID)
	if err != nil {
		return models.ComplaintRecord{}, err
	}

	record, malformed := s.normalizer.NormalizeRecord(raw, 0, s.now())
	if malformed != nil {
		s.logger.WithError(malformed).WithField("track_id", trackID).Warn("Sheet returned an unreadable complaint")
		return models.ComplaintRecord{}, apperrors.NewRemoteError("track complaint", "unreadable complaint record")
	}
	if strings.HasPrefix(record.TrackID, "UNK_") {
		record.TrackID = trackID
	}

	s.trackCache.Add(trackID, record)
	return record, nil
}

// UpdateStatus persists a new status remotely and patches the read model
// once the sheet confirms. Any status may be set from any other.
func (s *Service) UpdateStatus(ctx context.Context, trackID string, value string) (models.ComplaintRecord, error) {
	record, ok := s.store.FindByTrackID(trackID)
	if !ok {
		return models.ComplaintRecord{}, apperrors.NewNotFoundError("complaint", trackID)
	}
	status, err := ParseStatus(value)
	if err != nil {
		return models.ComplaintRecord{}, err
	}

	if err := s.remote.UpdateStatus(ctx, trackID, status); err != nil {
		s.metrics.StatusUpdatesTotal.WithLabelValues(string(status), "error").Inc()
		return models.ComplaintRecord{}, err
	}
	s.metrics.StatusUpdatesTotal.WithLabelValues(string(status), "success").Inc()
	s.trackCache.Remove(trackID)

	if err := s.store.PatchStatus(trackID, status); err != nil {
		// A reload replaced the set while the update was in flight
		s.logger.WithError(err).WithField("track_id", trackID).Warn("Status persisted but record left the read model")
	}

	record.Status = status
	s.logger.WithFields(logrus.Fields{
		"track_id": trackID,
		"status":   status,
	}).Info("Complaint status updated")
	return record, nil
}

// NotifyUser asks the sheet to email the submitter about their complaint.
// It is not retried.
func (s *Service) NotifyUser(ctx context.Context, trackID string) error {
	record, ok := s.store.FindByTrackID(trackID)
	if !ok {
		return apperrors.NewNotFoundError("complaint", trackID)
	}
	if record.Email == "" || record.Email == models.NotProvided {
		return apperrors.NewValidationError("email", "User email not available")
	}

	err := s.remote.NotifyUser(ctx, record)
	s.metrics.NotificationsTotal.WithLabelValues(telemetry.Result(err)).Inc()
	if err != nil {
		s.logger.WithError(err).WithField("track_id", trackID).Error("Failed to send notification")
		return err
	}

	s.logger.WithField("track_id", trackID).Info("Notification sent")
	return nil
}
