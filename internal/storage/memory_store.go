package storage

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"complaint-portal/internal/apperrors"
	"complaint-portal/internal/models"
	"complaint-portal/internal/transformer"
)

// Normalizer turns an upstream batch into canonical records.
type Normalizer interface {
	NormalizeBatch(raws []json.RawMessage) transformer.BatchResult
	GenerateQualityReport(result transformer.BatchResult) models.DataQualityReport
}

type State int

const (
	StateNotLoaded State = iota
	StateLoaded
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateUnavailable:
		return "unavailable"
	default:
		return "not_loaded"
	}
}

// LoadSummary describes the outcome of a successful Load.
type LoadSummary struct {
	Records  int
	Dropped  int
	Version  uint64
	LoadedAt time.Time
	Quality  models.QualitySummary
}

// Snapshot is a consistent view of the store taken under a single read lock.
type Snapshot struct {
	All      []models.ComplaintRecord
	Filtered []models.ComplaintRecord
	Criteria models.FilterCriteria
	State    State
	Version  uint64
	LoadedAt time.Time
}

// MemoryStore owns the full record list and its filtered derivative. Both
// slices are only ever replaced or patched together under the write lock.
type MemoryStore struct {
	mu         sync.RWMutex
	normalizer Normalizer
	now        func() time.Time

	all      []models.ComplaintRecord
	filtered []models.ComplaintRecord
	criteria models.FilterCriteria
	state    State
	version  uint64
	lastLoad time.Time
	quality  models.DataQualityReport
}

func NewMemoryStore(normalizer Normalizer) *MemoryStore {
	return &MemoryStore{
		normalizer: normalizer,
		now:        time.Now,
		all:        make([]models.ComplaintRecord, 0),
		filtered:   make([]models.ComplaintRecord, 0),
	}
}

// Load normalizes a batch and replaces the record set wholesale. Filter
// criteria are reset. A batch without a single usable record clears the
// store, marks it unavailable and returns a NoDataError.
func (s *MemoryStore) Load(raws []json.RawMessage) (LoadSummary, error) {
	result := s.normalizer.NormalizeBatch(raws)
	report := s.normalizer.GenerateQualityReport(result)
	loadedAt := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	s.lastLoad = loadedAt
	s.quality = report
	s.criteria = models.FilterCriteria{}

	if len(result.Records) == 0 {
		s.all = make([]models.ComplaintRecord, 0)
		s.filtered = make([]models.ComplaintRecord, 0)
		s.state = StateUnavailable
		return LoadSummary{}, &apperrors.NoDataError{RawCount: result.RawCount}
	}

	s.all = result.Records
	s.filtered = cloneRecords(result.Records)
	s.state = StateLoaded

	return LoadSummary{
		Records:  len(result.Records),
		Dropped:  len(result.Dropped),
		Version:  s.version,
		LoadedAt: loadedAt,
		Quality:  report.Summary,
	}, nil
}

// ApplyFilter recomputes the filtered list from the full list and returns it.
func (s *MemoryStore) ApplyFilter(criteria models.FilterCriteria) []models.ComplaintRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.criteria = criteria
	s.filtered = Match(s.all, criteria)
	return cloneRecords(s.filtered)
}

// Match returns the records satisfying every set criterion, in input order.
// Search text is a case-insensitive substring of track id, name, location or
// description, taken as given without trimming; the other criteria compare
// exactly.
func Match(records []models.ComplaintRecord, criteria models.FilterCriteria) []models.ComplaintRecord {
	needle := strings.ToLower(criteria.SearchText)
	matched := make([]models.ComplaintRecord, 0, len(records))

	for _, record := range records {
		if needle != "" && !containsFold(needle, record.TrackID, record.Name, record.Location, record.Description) {
			continue
		}
		if criteria.Status != "" && record.Status != criteria.Status {
			continue
		}
		if criteria.Category != "" && record.Category != criteria.Category {
			continue
		}
		if criteria.Priority != "" && record.Priority != criteria.Priority {
			continue
		}
		matched = append(matched, record)
	}
	return matched
}

func containsFold(needle string, fields ...string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// PatchStatus sets the status of one record in both lists. Nothing is
// removed or reordered, even if the record stops matching the active filter.
func (s *MemoryStore) PatchStatus(trackID string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.all, trackID)
	if idx < 0 {
		return apperrors.NewNotFoundError("complaint", trackID)
	}
	s.all[idx].Status = status

	if i := indexOf(s.filtered, trackID); i >= 0 {
		s.filtered[i].Status = status
	}
	s.version++
	return nil
}

func (s *MemoryStore) FindByTrackID(trackID string) (models.ComplaintRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexOf(s.all, trackID)
	if idx < 0 {
		return models.ComplaintRecord{}, false
	}
	return s.all[idx], true
}

func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		All:      cloneRecords(s.all),
		Filtered: cloneRecords(s.filtered),
		Criteria: s.criteria,
		State:    s.state,
		Version:  s.version,
		LoadedAt: s.lastLoad,
	}
}

func (s *MemoryStore) QualityReport() models.DataQualityReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quality
}

func (s *MemoryStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *MemoryStore) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all) > 0
}

func indexOf(records []models.ComplaintRecord, trackID string) int {
	for i := range records {
		if records[i].TrackID == trackID {
			return i
		}
	}
	return -1
}

func cloneRecords(records []models.ComplaintRecord) []models.ComplaintRecord {
	out := make([]models.ComplaintRecord, len(records))
	copy(out, records)
	return out
}
