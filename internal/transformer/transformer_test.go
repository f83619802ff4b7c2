package transformer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-portal/internal/models"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestTransformer() *Transformer {
	return New(WithClock(func() time.Time { return fixedNow }), WithLocation(time.UTC))
}

func raws(t *testing.T, rows ...string) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, json.RawMessage(row))
	}
	return out
}

func TestNormalizeRecordDefaults(t *testing.T) {
	tr := newTestTransformer()

	record, err := tr.NormalizeRecord(json.RawMessage(`{}`), 4, fixedNow)
	require.Nil(t, err)

	assert.Equal(t, "UNK_4", record.TrackID)
	assert.Equal(t, models.DefaultName, record.Name)
	assert.Equal(t, models.NotProvided, record.RegNo)
	assert.Equal(t, models.NotProvided, record.Email)
	assert.Equal(t, models.NotProvided, record.Location)
	assert.Equal(t, models.NotAvailable, record.Coordinates)
	assert.Equal(t, models.DefaultCategory, record.Category)
	assert.Equal(t, models.DefaultPriority, record.Priority)
	assert.Equal(t, models.DefaultStatus, record.Status)
	assert.Equal(t, models.DefaultDescription, record.Description)
	assert.False(t, record.HasPhoto)
	assert.Equal(t, fixedNow, record.Timestamp)
	assert.Nil(t, record.Latitude)
	assert.Nil(t, record.Longitude)

	assert.True(t, record.Quality.IsClean())
	assert.Contains(t, record.Quality.Defaulted, "trackId")
	assert.Contains(t, record.Quality.Defaulted, "timestamp")
}

func TestNormalizeRecordPrefersUpstreamCasing(t *testing.T) {
	tr := newTestTransformer()

	raw := json.RawMessage(`{
		"ComplaintID": "PU001",
		"complaintId": "client-id",
		"Name": "Asha",
		"name": "ignored",
		"Status": "",
		"status": "Resolved",
		"Manual Location": "Hostel B",
		"Complaint": "Leaking tap in washroom",
		"Photo URL": "https://img.example/1.jpg",
		"Timestamp": "2024-03-14T08:00:00Z"
	}`)

	record, err := tr.NormalizeRecord(raw, 0, fixedNow)
	require.Nil(t, err)

	assert.Equal(t, "PU001", record.TrackID)
	assert.Equal(t, "Asha", record.Name)
	assert.Equal(t, models.StatusResolved, record.Status, "empty upstream value falls through to the client key")
	assert.Equal(t, "Hostel B", record.Location)
	assert.Equal(t, "Leaking tap in washroom", record.Description)
	assert.True(t, record.HasPhoto)
	assert.Equal(t, time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC), record.Timestamp.UTC())
}

func TestNormalizeRecordAnonymousFlag(t *testing.T) {
	tr := newTestTransformer()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bool true", `{"Name": "Ravi", "anonymous": true}`, models.DefaultName},
		{"string yes", `{"Name": "Ravi", "Anonymous": "Yes"}`, models.DefaultName},
		{"false keeps name", `{"Name": "Ravi", "anonymous": false}`, "Ravi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := tr.NormalizeRecord(json.RawMessage(tt.raw), 0, fixedNow)
			require.Nil(t, err)
			assert.Equal(t, tt.want, record.Name)
		})
	}
}

func TestNormalizeRecordCoercesScalars(t *testing.T) {
	tr := newTestTransformer()

	record, err := tr.NormalizeRecord(json.RawMessage(`{"ComplaintID": 1042, "RegNo": 21103045, "Category": true}`), 0, fixedNow)
	require.Nil(t, err)

	assert.Equal(t, "1042", record.TrackID)
	assert.Equal(t, "21103045", record.RegNo)
	assert.Equal(t, "true", record.Category)
}

func TestNormalizeRecordMalformed(t *testing.T) {
	tr := newTestTransformer()

	tests := []struct {
		name string
		raw  string
	}{
		{"null", `null`},
		{"string", `"PU001"`},
		{"array", `[1, 2]`},
		{"invalid json", `{"ComplaintID": `},
		{"object in scalar field", `{"ComplaintID": "PU001", "Name": {"first": "A"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.NormalizeRecord(json.RawMessage(tt.raw), 2, fixedNow)
			require.NotNil(t, err)
			assert.Equal(t, 2, err.Index)
		})
	}
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		lat, lon *float64
	}{
		{"comma separated", "12.97, 77.59", ptr(12.97), ptr(77.59)},
		{"no spaces", "-33.8,151.2", ptr(-33.8), ptr(151.2)},
		{"unavailable", "unavailable", nil, nil},
		{"sentinel", models.NotAvailable, nil, nil},
		{"three parts", "1,2,3", nil, nil},
		{"not numeric", "north, east", nil, nil},
		{"infinite", "Inf, 2", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon := ParseCoordinates(tt.input)
			assert.Equal(t, tt.lat, lat)
			assert.Equal(t, tt.lon, lon)
		})
	}
}

func TestNormalizeRecordCoordinates(t *testing.T) {
	tr := newTestTransformer()

	record, err := tr.NormalizeRecord(json.RawMessage(`{"GPS Coordinates": "12.97, 77.59"}`), 0, fixedNow)
	require.Nil(t, err)
	require.NotNil(t, record.Latitude)
	require.NotNil(t, record.Longitude)
	assert.InDelta(t, 12.97, *record.Latitude, 1e-9)
	assert.InDelta(t, 77.59, *record.Longitude, 1e-9)

	record, err = tr.NormalizeRecord(json.RawMessage(`{"coordinates": "unavailable"}`), 0, fixedNow)
	require.Nil(t, err)
	assert.Nil(t, record.Latitude)
	assert.Nil(t, record.Longitude)
	assert.True(t, record.Quality.IsClean(), "absent geo is not a quality issue")

	record, err = tr.NormalizeRecord(json.RawMessage(`{"coordinates": "abc, def"}`), 0, fixedNow)
	require.Nil(t, err)
	assert.Nil(t, record.Latitude)
	assert.Contains(t, record.Quality.Issues, "Unparseable GPS coordinates")
}

func TestNormalizeRecordTimestamps(t *testing.T) {
	tr := newTestTransformer()

	tests := []struct {
		name  string
		value string
		want  time.Time
		issue bool
	}{
		{"rfc3339", `"2024-03-10T09:15:00+05:30"`, time.Date(2024, 3, 10, 3, 45, 0, 0, time.UTC), false},
		{"sheets format", `"3/10/2024 14:05:09"`, time.Date(2024, 3, 10, 14, 5, 9, 0, time.UTC), false},
		{"date only", `"2024-03-10"`, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), false},
		{"epoch millis", `1710000000000`, time.UnixMilli(1710000000000).UTC(), false},
		{"garbage", `"yesterday-ish"`, fixedNow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := tr.NormalizeRecord(json.RawMessage(`{"Timestamp": `+tt.value+`}`), 0, fixedNow)
			require.Nil(t, err)
			assert.True(t, tt.want.Equal(record.Timestamp), "got %v", record.Timestamp)
			if tt.issue {
				assert.Contains(t, record.Quality.Issues, "Invalid timestamp format, using ingestion time")
			} else {
				assert.Empty(t, record.Quality.Issues)
			}
		})
	}
}

func TestNormalizeRecordFlagsUnknownEnums(t *testing.T) {
	tr := newTestTransformer()

	record, err := tr.NormalizeRecord(json.RawMessage(`{"Status": "Closed", "Priority": "Critical"}`), 0, fixedNow)
	require.Nil(t, err)

	// Unknown values are kept verbatim, only flagged
	assert.Equal(t, models.Status("Closed"), record.Status)
	assert.Equal(t, models.Priority("Critical"), record.Priority)
	assert.Contains(t, record.Quality.Issues, "Unknown status: Closed")
	assert.Contains(t, record.Quality.Issues, "Unknown priority: Critical")
}

func TestNormalizeBatchDropsBadEntryAndKeepsOrder(t *testing.T) {
	tr := newTestTransformer()

	result := tr.NormalizeBatch(raws(t,
		`{"ComplaintID": "PU001"}`,
		`{"ComplaintID": "PU002"}`,
		`"not a record"`,
		`{"ComplaintID": "PU003"}`,
	))

	require.Len(t, result.Records, 3)
	assert.Equal(t, []string{"PU001", "PU002", "PU003"}, trackIDs(result.Records))
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, 2, result.Dropped[0].Index)
	assert.Equal(t, 4, result.RawCount)
}

func TestNormalizeBatchSyntheticIDsArePositional(t *testing.T) {
	tr := newTestTransformer()

	first := tr.NormalizeBatch(raws(t, `{"Name": "A"}`, `{"Name": "B"}`))
	second := tr.NormalizeBatch(raws(t, `{"Name": "B"}`))

	assert.Equal(t, []string{"UNK_0", "UNK_1"}, trackIDs(first.Records))
	// Same synthetic id, different record: tolerated across reloads
	assert.Equal(t, "UNK_0", second.Records[0].TrackID)
	assert.Equal(t, "B", second.Records[0].Name)
}

func TestNormalizeBatchDeduplicatesTrackIDs(t *testing.T) {
	tr := newTestTransformer()

	result := tr.NormalizeBatch(raws(t,
		`{"ComplaintID": "PU001", "Name": "first"}`,
		`{"ComplaintID": "PU002"}`,
		`{"ComplaintID": "PU001", "Name": "second"}`,
	))

	require.Len(t, result.Records, 2)
	assert.Equal(t, "first", result.Records[0].Name)
	require.Len(t, result.Dropped, 1)
	assert.Contains(t, result.Dropped[0].Reason, "duplicate track id PU001")
}

func TestNormalizeBatchDuplicateUsesRawPositions(t *testing.T) {
	tr := newTestTransformer()

	result := tr.NormalizeBatch(raws(t,
		`"bad"`,
		`{"ComplaintID": "PU001"}`,
		`{"ComplaintID": "PU001"}`,
	))

	require.Len(t, result.Records, 1)
	require.Len(t, result.Dropped, 2)
	assert.Equal(t, 0, result.Dropped[0].Index)
	assert.Equal(t, 2, result.Dropped[1].Index)
	assert.Equal(t, "duplicate track id PU001 (first at position 1)", result.Dropped[1].Reason)
}

func TestNormalizeBatchEmpty(t *testing.T) {
	tr := newTestTransformer()

	result := tr.NormalizeBatch(nil)
	assert.Empty(t, result.Records)
	assert.Empty(t, result.Dropped)
	assert.Zero(t, result.RawCount)
}

func TestGenerateQualityReport(t *testing.T) {
	tr := newTestTransformer()

	result := tr.NormalizeBatch(raws(t,
		`{"ComplaintID": "PU001", "Status": "Closed", "Timestamp": "2024-03-10"}`,
		`{"ComplaintID": "PU002", "Status": "Closed", "Timestamp": "2024-03-10"}`,
		`{"ComplaintID": "PU003", "Status": "Pending", "Timestamp": "2024-03-10"}`,
		`42`,
	))

	report := tr.GenerateQualityReport(result)

	assert.Equal(t, 4, report.Summary.RawRecords)
	assert.Equal(t, 3, report.Summary.Normalized)
	assert.Equal(t, 1, report.Summary.Dropped)
	assert.Equal(t, 1, report.Summary.CleanRecords)
	assert.Equal(t, 25.0, report.Summary.QualityScore)
	assert.Equal(t, 3, report.Summary.DefaultedFields["name"])
	assert.Equal(t, []string{"Unknown status: Closed (occurs 2 times)"}, report.Summary.CommonIssues)
	assert.Len(t, report.Records, 3)
	assert.Equal(t, "PU001", report.Records[0].RecordID)
	assert.Equal(t, fixedNow.Format(time.RFC3339), report.Timestamp)
}

func TestGenerateQualityReportEmptyBatch(t *testing.T) {
	tr := newTestTransformer()

	report := tr.GenerateQualityReport(BatchResult{})
	assert.Zero(t, report.Summary.QualityScore)
	assert.Empty(t, report.Summary.CommonIssues)
}

func trackIDs(records []models.ComplaintRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.TrackID)
	}
	return ids
}

func ptr(v float64) *float64 {
	return &v
}
