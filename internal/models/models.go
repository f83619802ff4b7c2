package models

import (
	"encoding/json"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// Priorities lists the accepted priority values in ascending order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
)

// Statuses is the fixed display order used by dashboards and distributions.
var Statuses = []Status{StatusPending, StatusInProgress, StatusResolved}

func (s Status) Known() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (p Priority) Known() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// Fallback values for canonical fields
const (
	DefaultName        = "Anonymous"
	NotProvided        = "Not provided"
	NotAvailable       = "Not available"
	DefaultCategory    = "General"
	DefaultDescription = "No description"
	DefaultPriority    = PriorityMedium
	DefaultStatus      = StatusPending
)

// Data Quality Tracking Structures
type RecordQuality struct {
	RecordID  string   `json:"record_id"`
	Defaulted []string `json:"defaulted,omitempty"`
	Issues    []string `json:"issues,omitempty"`
}

func (q RecordQuality) IsClean() bool {
	return len(q.Issues) == 0
}

// ComplaintRecord is the canonical complaint after normalization. Every field
// carries either real data or its documented fallback.
type ComplaintRecord struct {
	TrackID     string    `json:"trackId"`
	Name        string    `json:"name"`
	RegNo       string    `json:"regNo"`
	Email       string    `json:"email"`
	Category    string    `json:"category"`
	Priority    Priority  `json:"priority"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Coordinates string    `json:"coordinates"`
	HasPhoto    bool      `json:"hasPhoto"`
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`

	Quality RecordQuality `json:"-"`
}

type FilterCriteria struct {
	SearchText string   `form:"search" json:"searchText,omitempty"`
	Status     Status   `form:"status" json:"status,omitempty"`
	Category   string   `form:"category" json:"category,omitempty"`
	Priority   Priority `form:"priority" json:"priority,omitempty"`
}

func (c FilterCriteria) IsEmpty() bool {
	return c.SearchText == "" && c.Status == "" && c.Category == "" && c.Priority == ""
}

// Aggregates
type DashboardCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CategoryDistribution keeps buckets in the order categories were first seen.
type CategoryDistribution []Bucket

func (d CategoryDistribution) AsMap() map[string]int {
	m := make(map[string]int, len(d))
	for _, b := range d {
		m[b.Label] = b.Count
	}
	return m
}

type StatusDistribution []Bucket

type TrendPoint struct {
	Label string `json:"label"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AnalyticsView struct {
	Categories CategoryDistribution `json:"categories"`
	Statuses   StatusDistribution   `json:"statuses"`
	Weekly     []TrendPoint         `json:"weekly"`
}

type DashboardView struct {
	Counts         DashboardCounts   `json:"counts"`
	ResolutionRate float64           `json:"resolution_rate"`
	Recent         []ComplaintRecord `json:"recent"`
	LastUpdated    string            `json:"last_updated,omitempty"`
}

type UserSummary struct {
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	RegNo          string    `json:"regNo"`
	ComplaintCount int       `json:"complaintCount"`
	LastActivity   time.Time `json:"lastActivity"`
}

// Data Quality Report Structures
type QualitySummary struct {
	RawRecords      int            `json:"raw_records"`
	Normalized      int            `json:"normalized_records"`
	Dropped         int            `json:"dropped_records"`
	CleanRecords    int            `json:"clean_records"`
	QualityScore    float64        `json:"quality_score"`
	DefaultedFields map[string]int `json:"defaulted_fields"`
	CommonIssues    []string       `json:"common_issues"`
}

type DataQualityReport struct {
	Summary   QualitySummary  `json:"summary"`
	Records   []RecordQuality `json:"records"`
	Timestamp string          `json:"timestamp"`
}

// Remote endpoint envelope. Data is decoded per action.
type Envelope struct {
	Status      string          `json:"status"`
	Message     string          `json:"message,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	ComplaintID json.RawMessage `json:"complaintId,omitempty"`
}

func (e Envelope) OK() bool {
	return e.Status == "success"
}

// Submission is a complaint as entered on the public form.
type Submission struct {
	Name        string `form:"name" json:"name"`
	Anonymous   bool   `form:"anonymous" json:"anonymous"`
	RegNo       string `form:"regno" json:"regno"`
	Email       string `form:"email" json:"email" binding:"omitempty,email"`
	Category    string `form:"category" json:"category" binding:"required"`
	Priority    string `form:"priority" json:"priority" binding:"required,priority"`
	Location    string `form:"location" json:"location"`
	Description string `form:"description" json:"description" binding:"required"`
	Coordinates string `form:"coordinates" json:"coordinates"`
	PhotoURL    string `form:"photoUrl" json:"photoUrl" binding:"omitempty,url"`
	PhotoSize   int64  `form:"photoSize" json:"photoSize"`
	PhotoType   string `form:"photoType" json:"photoType"`
}

// API response structures
type MetricsResponse struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
	HasMore bool        `json:"has_more"`
}

type LoadResponse struct {
	Status      string         `json:"status"`
	Records     int            `json:"records"`
	ProcessedAt string         `json:"processed_at"`
	Message     string         `json:"message"`
	Quality     QualitySummary `json:"quality_summary"`
}

type SubmitResponse struct {
	Status    string `json:"status"`
	TrackID   string `json:"trackId"`
	EmailSent bool   `json:"emailSent"`
	Location  string `json:"location"`
}

type StatusUpdateRequest struct {
	Status string `json:"status" form:"status" binding:"required"`
}

// ExportRecord is one row of the complaint export, as pushed to the sink.
type ExportRecord struct {
	TrackID   string `json:"trackId"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Priority  string `json:"priority"`
	Location  string `json:"location"`
	Status    string `json:"status"`
	Submitted string `json:"submitted"`
}
