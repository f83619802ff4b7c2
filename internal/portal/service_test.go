package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/config"
	"complaint-portal/internal/models"
	"complaint-portal/internal/notify"
	"complaint-portal/internal/storage"
	"complaint-portal/internal/telemetry"
	"complaint-portal/internal/transformer"
)

type fakeRemote struct {
	mu sync.Mutex

	rows      []json.RawMessage
	fetchErr  error
	fetchGate chan struct{}
	fetches   atomic.Int32

	one     map[string]json.RawMessage
	oneErr  error
	oneHits atomic.Int32

	updateErr error
	updates   []string

	submitID   string
	submitErr  error
	submitGate chan struct{}
	submitted  []models.Submission

	notifyErr error
	notified  []string
}

func (f *fakeRemote) FetchAll(ctx context.Context) ([]json.RawMessage, error) {
	f.fetches.Add(1)
	if f.fetchGate != nil {
		<-f.fetchGate
	}
	return f.rows, f.fetchErr
}

func (f *fakeRemote) FetchOne(ctx context.Context, trackID string) (json.RawMessage, error) {
	f.oneHits.Add(1)
	if f.oneErr != nil {
		return nil, f.oneErr
	}
	raw, ok := f.one[trackID]
	if !ok {
		return nil, apperrors.NewRemoteError("track complaint", "Complaint not found")
	}
	return raw, nil
}

func (f *fakeRemote) UpdateStatus(ctx context.Context, trackID string, status models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, trackID+"="+string(status))
	return f.updateErr
}

func (f *fakeRemote) Submit(ctx context.Context, sub models.Submission) (string, error) {
	if f.submitGate != nil {
		<-f.submitGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, sub)
	return f.submitID, f.submitErr
}

func (f *fakeRemote) NotifyUser(ctx context.Context, record models.ComplaintRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, record.TrackID)
	return f.notifyErr
}

type fakeMailer struct {
	err  error
	sent []notify.Confirmation
}

func (m *fakeMailer) SendConfirmation(ctx context.Context, c notify.Confirmation) error {
	m.sent = append(m.sent, c)
	return m.err
}

type fakeGeocoder struct {
	place string
	err   error
	calls int
}

func (g *fakeGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	g.calls++
	return g.place, g.err
}

type fixture struct {
	svc      *Service
	remote   *fakeRemote
	store    *storage.MemoryStore
	mailer   *fakeMailer
	geocoder *fakeGeocoder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	normalizer := transformer.New(transformer.WithLocation(time.UTC))
	f := &fixture{
		remote: &fakeRemote{
			rows: []json.RawMessage{
				json.RawMessage(`{"ComplaintID": "PU001", "Name": "Asha", "Email": "asha@uni.edu", "Status": "Pending", "Category": "Water"}`),
				json.RawMessage(`{"ComplaintID": "PU002", "Name": "Ravi", "Status": "Resolved", "Category": "Water"}`),
			},
			submitID: "PU042",
		},
		store:    storage.NewMemoryStore(normalizer),
		mailer:   &fakeMailer{},
		geocoder: &fakeGeocoder{place: "Block C, University Road, Bengaluru"},
	}

	f.svc = NewService(&config.Config{
		TrackCacheSize:  16,
		TrackCacheTTL:   time.Minute,
		RefreshInterval: 10 * time.Millisecond,
	}, Deps{
		Remote:     f.remote,
		Store:      f.store,
		Normalizer: normalizer,
		Mailer:     f.mailer,
		Geocoder:   f.geocoder,
		Metrics:    telemetry.NewMetrics(),
		Logger:     logger,
	})
	return f
}

func validSubmission() models.Submission {
	return models.Submission{
		Name:        "Asha",
		Email:       "asha@uni.edu",
		Category:    "Water",
		Priority:    "High",
		Location:    "Hostel A",
		Description: "Tap leaking since morning",
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Records)
	assert.True(t, f.store.HasData())
	assert.False(t, f.svc.Loading())
}

func TestReloadFailureReleasesGuard(t *testing.T) {
	f := newFixture(t)
	f.remote.fetchErr = apperrors.NewTimeoutError("fetch complaints", context.DeadlineExceeded)

	_, err := f.svc.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.False(t, f.svc.Loading())

	f.remote.fetchErr = nil
	_, err = f.svc.Reload(context.Background())
	assert.NoError(t, err, "a failed reload can be retried by the caller")
}

func TestReloadNoData(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reload(context.Background())
	require.NoError(t, err)

	f.remote.rows = []json.RawMessage{}
	_, err = f.svc.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsNoData(err))
	assert.Equal(t, storage.StateUnavailable, f.store.State())
	assert.False(t, f.svc.Loading())
}

func TestReloadRejectsConcurrentCall(t *testing.T) {
	f := newFixture(t)
	f.remote.fetchGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Reload(context.Background())
		done <- err
	}()

	require.Eventually(t, f.svc.Loading, time.Second, time.Millisecond)

	_, err := f.svc.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsBusy(err))

	close(f.remote.fetchGate)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), f.remote.fetches.Load())
}

func TestAutoRefreshSkipsUntilDataLoaded(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	go f.svc.RunAutoRefresh(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.remote.fetches.Load(), "no refresh before the first load")

	_, err := f.svc.Reload(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.remote.fetches.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)

	sub := validSubmission()
	sub.RegNo = "  "
	resp, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "PU042", resp.TrackID, "the sheet's id is authoritative")
	assert.True(t, resp.EmailSent)
	require.Len(t, f.remote.submitted, 1)
	assert.Equal(t, models.NotProvided, f.remote.submitted[0].RegNo)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "PU042", f.mailer.sent[0].TrackID)
	assert.Zero(t, f.geocoder.calls)
}

func TestSubmitAnonymous(t *testing.T) {
	f := newFixture(t)

	sub := validSubmission()
	sub.Anonymous = true
	_, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultName, f.remote.submitted[0].Name)
}

func TestSubmitEmailFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("relay down")

	resp, err := f.svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.Equal(t, "PU042", resp.TrackID)
	assert.False(t, resp.EmailSent)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Submission)
		field  string
	}{
		{"missing category", func(s *models.Submission) { s.Category = "" }, "category"},
		{"missing priority", func(s *models.Submission) { s.Priority = "" }, "priority"},
		{"unknown priority", func(s *models.Submission) { s.Priority = "Critical" }, "priority"},
		{"blank description", func(s *models.Submission) { s.Description = "   " }, "description"},
		{"short description", func(s *models.Submission) { s.Description = "too short" }, "description"},
		{"bad email", func(s *models.Submission) { s.Email = "not-an-email" }, "email"},
		{"photo too large", func(s *models.Submission) { s.PhotoSize = MaxPhotoSize + 1; s.PhotoType = "image/png" }, "photo"},
		{"photo wrong type", func(s *models.Submission) { s.PhotoSize = 100; s.PhotoType = "application/pdf" }, "photo"},
		{"no location and no coordinates", func(s *models.Submission) { s.Location = "" }, "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sub := validSubmission()
			tt.mutate(&sub)

			_, err := f.svc.Submit(context.Background(), sub)
			require.Error(t, err)

			var verr *apperrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, f.remote.submitted, "no network call on invalid input")
		})
	}
}

func TestSubmitGeocodesMissingLocation(t *testing.T) {
	f := newFixture(t)

	sub := validSubmission()
	sub.Location = ""
	sub.Coordinates = "12.97, 77.59"

	resp, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 1, f.geocoder.calls)
	assert.Equal(t, "Block C, University Road, Bengaluru", resp.Location)
	assert.Equal(t, resp.Location, f.remote.submitted[0].Location)
}

func TestSubmitGeocodeFailureNeedsManualLocation(t *testing.T) {
	f := newFixture(t)
	f.geocoder.err = errors.New("rate limited")

	sub := validSubmission()
	sub.Location = ""
	sub.Coordinates = "12.97, 77.59"

	_, err := f.svc.Submit(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSubmitRejectsDuplicateInFlight(t *testing.T) {
	f := newFixture(t)
	f.remote.submitGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(context.Background(), validSubmission())
		done <- err
	}()

	require.Eventually(t, func() bool {
		f.svc.mu.Lock()
		defer f.svc.mu.Unlock()
		return len(f.svc.inFlight) == 1
	}, time.Second, time.Millisecond)

	_, err := f.svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.True(t, apperrors.IsBusy(err))

	close(f.remote.submitGate)
	require.NoError(t, <-done)

	// Guard released after completion
	_, err = f.svc.Submit(context.Background(), validSubmission())
	assert.NoError(t, err)
}

func TestSubmitRemoteErrorReleasesGuard(t *testing.T) {
	f := newFixture(t)
	f.remote.submitErr = apperrors.NewRemoteError("submit complaint", "Sheet locked")

	_, err := f.svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.True(t, apperrors.IsRemote(err))
	assert.Empty(t, f.svc.inFlight)
	assert.Empty(t, f.mailer.sent)
}

func TestTrack(t *testing.T) {
	f := newFixture(t)
	f.remote.one = map[string]json.RawMessage{
		"PU001": json.RawMessage(`{"Status": "In Progress", "Category": "Water"}`),
	}

	record, err := f.svc.Track(context.Background(), " PU001 ")
	require.NoError(t, err)
	assert.Equal(t, "PU001", record.TrackID)
	assert.Equal(t, models.StatusInProgress, record.Status)

	_, err = f.svc.Track(context.Background(), "PU001")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.remote.oneHits.Load(), "second lookup served from cache")
}

func TestReloadPurgesTrackCache(t *testing.T) {
	f := newFixture(t)
	f.remote.one = map[string]json.RawMessage{
		"PU001": json.RawMessage(`{"Status": "Pending"}`),
	}

	_, err := f.svc.Track(context.Background(), "PU001")
	require.NoError(t, err)

	f.remote.one["PU001"] = json.RawMessage(`{"Status": "Resolved"}`)
	_, err = f.svc.Reload(context.Background())
	require.NoError(t, err)

	record, err := f.svc.Track(context.Background(), "PU001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, record.Status)
	assert.Equal(t, int32(2), f.remote.oneHits.Load())
}

func TestTrackValidation(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"", "pu001", "PU-001", "PU 001"} {
		_, err := f.svc.Track(context.Background(), id)
		require.Error(t, err, id)
		assert.True(t, apperrors.IsValidation(err), id)
	}
	assert.Zero(t, f.remote.oneHits.Load())
}

func TestTrackRemoteErrors(t *testing.T) {
	f := newFixture(t)
	f.remote.one = map[string]json.RawMessage{"PU777": json.RawMessage(`[]`)}

	_, err := f.svc.Track(context.Background(), "PU404")
	require.Error(t, err)
	assert.True(t, apperrors.IsRemote(err))

	_, err = f.svc.Track(context.Background(), "PU777")
	require.Error(t, err)
	assert.True(t, apperrors.IsRemote(err))
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reload(context.Background())
	require.NoError(t, err)
	f.store.ApplyFilter(models.FilterCriteria{Category: "Water"})

	record, err := f.svc.UpdateStatus(context.Background(), "PU002", "In Progress")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, record.Status)
	assert.Equal(t, []string{"PU002=In Progress"}, f.remote.updates)

	snap := f.store.Snapshot()
	assert.Equal(t, models.StatusInProgress, snap.All[1].Status)
	assert.Equal(t, models.StatusInProgress, snap.Filtered[1].Status)
}

func TestUpdateStatusFailures(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reload(context.Background())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), "PU999", "Resolved")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.svc.UpdateStatus(context.Background(), "PU001", "Closed")
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, f.remote.updates)

	f.remote.updateErr = apperrors.NewRemoteError("update status", "Complaint not found")
	_, err = f.svc.UpdateStatus(context.Background(), "PU001", "Resolved")
	assert.True(t, apperrors.IsRemote(err))

	record, _ := f.store.FindByTrackID("PU001")
	assert.Equal(t, models.StatusPending, record.Status, "store untouched when the sheet refuses")
}

func TestUpdateStatusInvalidatesTrackCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reload(context.Background())
	require.NoError(t, err)
	f.remote.one = map[string]json.RawMessage{"PU001": json.RawMessage(`{"ComplaintID": "PU001"}`)}

	_, err = f.svc.Track(context.Background(), "PU001")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), "PU001", "Resolved")
	require.NoError(t, err)
	_, err = f.svc.Track(context.Background(), "PU001")
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.remote.oneHits.Load())
}

func TestNotifyUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reload(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.svc.NotifyUser(context.Background(), "PU001"))
	assert.Equal(t, []string{"PU001"}, f.remote.notified)

	err = f.svc.NotifyUser(context.Background(), "PU002")
	assert.True(t, apperrors.IsValidation(err), "no email on record")

	err = f.svc.NotifyUser(context.Background(), "PU999")
	assert.True(t, apperrors.IsNotFound(err))

	f.remote.notifyErr = apperrors.NewRemoteError("notify user", "quota")
	err = f.svc.NotifyUser(context.Background(), "PU001")
	assert.True(t, apperrors.IsRemote(err))
	assert.Len(t, f.remote.notified, 2, "one call per request, no retry")
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("Resolved")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, status)

	_, err = ParseStatus("resolved")
	assert.Error(t, err)
}
