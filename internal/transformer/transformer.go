package transformer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/models"
)

// Upstream key aliases, canonical sheet casing first
var (
	trackIDKeys     = []string{"ComplaintID", "complaintId"}
	nameKeys        = []string{"Name", "name"}
	regNoKeys       = []string{"RegNo", "regno", "regNo"}
	emailKeys       = []string{"Email", "email"}
	categoryKeys    = []string{"Category", "category"}
	priorityKeys    = []string{"Priority", "priority"}
	locationKeys    = []string{"Manual Location", "location"}
	descriptionKeys = []string{"Complaint", "complaint", "description"}
	coordinateKeys  = []string{"GPS Coordinates", "coordinates"}
	photoKeys       = []string{"Photo URL", "photoUrl"}
	statusKeys      = []string{"Status", "status"}
	timestampKeys   = []string{"Timestamp", "timestamp"}
	anonymousKeys   = []string{"Anonymous", "anonymous"}
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02",
}

type Transformer struct {
	now      func() time.Time
	location *time.Location
}

type Option func(*Transformer)

// WithClock sets the ingestion clock used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// WithLocation sets the zone for timestamps that carry no offset.
func WithLocation(loc *time.Location) Option {
	return func(t *Transformer) { t.location = loc }
}

func New(opts ...Option) *Transformer {
	t := &Transformer{
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BatchResult is the outcome of normalizing one upstream batch.
type BatchResult struct {
	Records  []models.ComplaintRecord
	Dropped  []*apperrors.MalformedRecordError
	RawCount int
}

// NormalizeBatch normalizes every raw row independently. Rows that cannot be
// read are dropped; the rest keep their upstream order.
func (t *Transformer) NormalizeBatch(raws []json.RawMessage) BatchResult {
	result := BatchResult{
		Records:  make([]models.ComplaintRecord, 0, len(raws)),
		RawCount: len(raws),
	}
	ingestedAt := t.now()
	// Raw row index of each kept record
	positions := make([]int, 0, len(raws))

	for i, raw := range raws {
		record, err := t.NormalizeRecord(raw, i, ingestedAt)
		if err != nil {
			result.Dropped = append(result.Dropped, err)
			continue
		}
		result.Records = append(result.Records, record)
		positions = append(positions, i)
	}

	result.Records, result.Dropped = t.deduplicate(result.Records, positions, result.Dropped)
	return result
}

// NormalizeRecord maps a single raw row onto the canonical record. index is the
// row's position in its batch and seeds the synthetic id.
func (t *Transformer) NormalizeRecord(raw json.RawMessage, index int, ingestedAt time.Time) (models.ComplaintRecord, *apperrors.MalformedRecordError) {
	row, malformed := decodeRow(raw, index)
	if malformed != nil {
		return models.ComplaintRecord{}, malformed
	}

	r := &rowReader{row: row, index: index}
	quality := models.RecordQuality{RecordID: fmt.Sprintf("row_%d", index)}

	record := models.ComplaintRecord{
		TrackID:     r.str("trackId", fmt.Sprintf("UNK_%d", index), &quality, trackIDKeys...),
		Name:        r.str("name", models.DefaultName, &quality, nameKeys...),
		RegNo:       r.str("regNo", models.NotProvided, &quality, regNoKeys...),
		Email:       r.str("email", models.NotProvided, &quality, emailKeys...),
		Category:    r.str("category", models.DefaultCategory, &quality, categoryKeys...),
		Priority:    models.Priority(r.str("priority", string(models.DefaultPriority), &quality, priorityKeys...)),
		Location:    r.str("location", models.NotProvided, &quality, locationKeys...),
		Description: r.str("description", models.DefaultDescription, &quality, descriptionKeys...),
		Coordinates: r.str("coordinates", models.NotAvailable, &quality, coordinateKeys...),
		HasPhoto:    r.str("photo", "", &quality, photoKeys...) != "",
		Status:      models.Status(r.str("status", string(models.DefaultStatus), &quality, statusKeys...)),
		Timestamp:   t.timestamp(r, ingestedAt, &quality),
	}
	if r.err != nil {
		return models.ComplaintRecord{}, r.err
	}

	if r.truthy(anonymousKeys...) {
		record.Name = models.DefaultName
	}

	record.Latitude, record.Longitude = ParseCoordinates(record.Coordinates)
	if record.Latitude == nil && strings.Contains(record.Coordinates, ",") {
		quality.Issues = append(quality.Issues, "Unparseable GPS coordinates")
	}
	if !record.Status.Known() {
		quality.Issues = append(quality.Issues, fmt.Sprintf("Unknown status: %s", record.Status))
	}
	if !record.Priority.Known() {
		quality.Issues = append(quality.Issues, fmt.Sprintf("Unknown priority: %s", record.Priority))
	}

	quality.RecordID = record.TrackID
	record.Quality = quality
	return record, nil
}

// ParseCoordinates splits "lat, lon" into two numbers. Anything that is not
// exactly two finite decimals yields nil for both.
func ParseCoordinates(coordinates string) (*float64, *float64) {
	if !strings.Contains(coordinates, ",") {
		return nil, nil
	}
	parts := strings.Split(coordinates, ",")
	if len(parts) != 2 {
		return nil, nil
	}
	lat, err := parseFinite(parts[0])
	if err != nil {
		return nil, nil
	}
	lon, err := parseFinite(parts[1])
	if err != nil {
		return nil, nil
	}
	return &lat, &lon
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite coordinate %q", s)
	}
	return v, nil
}

func (t *Transformer) timestamp(r *rowReader, ingestedAt time.Time, quality *models.RecordQuality) time.Time {
	raw := r.str("timestamp", "", quality, timestampKeys...)
	if raw == "" {
		quality.Defaulted = append(quality.Defaulted, "timestamp")
		return ingestedAt
	}

	// Epoch milliseconds
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && len(raw) >= 10 {
		return time.UnixMilli(ms).In(t.location)
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, t.location); err == nil {
			return ts
		}
	}

	quality.Issues = append(quality.Issues, "Invalid timestamp format, using ingestion time")
	return ingestedAt
}

func decodeRow(raw json.RawMessage, index int) (map[string]interface{}, *apperrors.MalformedRecordError) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, apperrors.NewMalformedRecordError(index, "invalid JSON", err)
	}
	row, ok := value.(map[string]interface{})
	if !ok {
		return nil, apperrors.NewMalformedRecordError(index, fmt.Sprintf("expected object, got %T", value), nil)
	}
	return row, nil
}

// rowReader resolves aliased keys and remembers the first coercion failure.
type rowReader struct {
	row   map[string]interface{}
	index int
	err   *apperrors.MalformedRecordError
}

func (r *rowReader) str(field, fallback string, quality *models.RecordQuality, keys ...string) string {
	for _, key := range keys {
		value, ok := r.row[key]
		if !ok || value == nil {
			continue
		}
		s, err := coerceString(value)
		if err != nil {
			if r.err == nil {
				r.err = apperrors.NewMalformedRecordError(r.index, fmt.Sprintf("field %q", key), err)
			}
			return fallback
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	if fallback != "" {
		quality.Defaulted = append(quality.Defaulted, field)
	}
	return fallback
}

func (r *rowReader) truthy(keys ...string) bool {
	for _, key := range keys {
		switch v := r.row[key].(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "on", "1":
				return true
			}
		}
	}
	return false
}

func coerceString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}

// deduplicate keeps the first record for each track id. positions holds the
// raw row index of each record and is used in the drop reasons.
func (t *Transformer) deduplicate(records []models.ComplaintRecord, positions []int, dropped []*apperrors.MalformedRecordError) ([]models.ComplaintRecord, []*apperrors.MalformedRecordError) {
	seen := make(map[string]int, len(records))
	unique := records[:0]

	for i, record := range records {
		pos := positions[i]
		if first, exists := seen[record.TrackID]; exists {
			dropped = append(dropped, apperrors.NewMalformedRecordError(pos,
				fmt.Sprintf("duplicate track id %s (first at position %d)", record.TrackID, first), nil))
			continue
		}
		seen[record.TrackID] = pos
		unique = append(unique, record)
	}

	return unique, dropped
}

// Generate Quality Report
func (t *Transformer) GenerateQualityReport(result BatchResult) models.DataQualityReport {
	records := make([]models.RecordQuality, 0, len(result.Records))
	defaulted := make(map[string]int)
	clean := 0

	for _, record := range result.Records {
		records = append(records, record.Quality)
		if record.Quality.IsClean() {
			clean++
		}
		for _, field := range record.Quality.Defaulted {
			defaulted[field]++
		}
	}

	score := 0.0
	if result.RawCount > 0 {
		score = math.Round(float64(clean)/float64(result.RawCount)*1000) / 10
	}

	return models.DataQualityReport{
		Summary: models.QualitySummary{
			RawRecords:      result.RawCount,
			Normalized:      len(result.Records),
			Dropped:         len(result.Dropped),
			CleanRecords:    clean,
			QualityScore:    score,
			DefaultedFields: defaulted,
			CommonIssues:    t.identifyCommonIssues(result),
		},
		Records:   records,
		Timestamp: t.now().Format(time.RFC3339),
	}
}

func (t *Transformer) identifyCommonIssues(result BatchResult) []string {
	issueCount := make(map[string]int)

	for _, record := range result.Records {
		for _, issue := range record.Quality.Issues {
			issueCount[issue]++
		}
	}
	for _, err := range result.Dropped {
		issueCount["Dropped: "+err.Reason]++
	}

	commonIssues := []string{}
	for issue, count := range issueCount {
		if count > 1 { // Only include issues that appear more than once
			commonIssues = append(commonIssues, fmt.Sprintf("%s (occurs %d times)", issue, count))
		}
	}
	sort.Strings(commonIssues)

	return commonIssues
}
