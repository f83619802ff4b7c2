package metrics

import (
	"math"
	"time"

	"complaint-portal/internal/models"
)

const (
	dayFormat     = "2006-01-02"
	trendDays     = 7
	recentDefault = 10
)

// Calculator derives dashboard and analytics views. Every method is a pure
// function of the records passed in; callers pass the full, unfiltered set.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// DashboardCounts counts records per known status. Unknown statuses count
// toward Total only.
func (c *Calculator) DashboardCounts(records []models.ComplaintRecord) models.DashboardCounts {
	counts := models.DashboardCounts{Total: len(records)}
	for _, record := range records {
		switch record.Status {
		case models.StatusPending:
			counts.Pending++
		case models.StatusInProgress:
			counts.InProgress++
		case models.StatusResolved:
			counts.Resolved++
		}
	}
	return counts
}

// CategoryDistribution groups by the exact category string, in first-seen order.
func (c *Calculator) CategoryDistribution(records []models.ComplaintRecord) models.CategoryDistribution {
	positions := make(map[string]int)
	dist := models.CategoryDistribution{}

	for _, record := range records {
		if i, ok := positions[record.Category]; ok {
			dist[i].Count++
			continue
		}
		positions[record.Category] = len(dist)
		dist = append(dist, models.Bucket{Label: record.Category, Count: 1})
	}
	return dist
}

// StatusDistribution always returns the three known statuses in display order.
func (c *Calculator) StatusDistribution(records []models.ComplaintRecord) models.StatusDistribution {
	counts := c.DashboardCounts(records)
	return models.StatusDistribution{
		{Label: string(models.StatusPending), Count: counts.Pending},
		{Label: string(models.StatusInProgress), Count: counts.InProgress},
		{Label: string(models.StatusResolved), Count: counts.Resolved},
	}
}

// WeeklyTrend returns seven points, oldest first, ending on the calendar day
// of now in loc. Records are bucketed by their calendar date in loc.
func (c *Calculator) WeeklyTrend(records []models.ComplaintRecord, now time.Time, loc *time.Location) []models.TrendPoint {
	if loc == nil {
		loc = time.Local
	}

	perDay := make(map[string]int)
	for _, record := range records {
		perDay[record.Timestamp.In(loc).Format(dayFormat)]++
	}

	today := now.In(loc)
	points := make([]models.TrendPoint, 0, trendDays)
	for i := trendDays - 1; i >= 0; i-- {
		day := time.Date(today.Year(), today.Month(), today.Day()-i, 0, 0, 0, 0, loc)
		key := day.Format(dayFormat)
		points = append(points, models.TrendPoint{
			Label: day.Weekday().String()[:3],
			Date:  key,
			Count: perDay[key],
		})
	}
	return points
}

// RecentComplaints returns the last n records of the feed, newest first.
// The sheet appends rows, so feed order is submission order.
func (c *Calculator) RecentComplaints(records []models.ComplaintRecord, n int) []models.ComplaintRecord {
	if n <= 0 {
		n = recentDefault
	}
	start := len(records) - n
	if start < 0 {
		start = 0
	}

	recent := make([]models.ComplaintRecord, 0, len(records)-start)
	for i := len(records) - 1; i >= start; i-- {
		recent = append(recent, records[i])
	}
	return recent
}

// Users builds the submitter table keyed by email, in first-seen order.
// Records without an email are skipped.
func (c *Calculator) Users(records []models.ComplaintRecord) []models.UserSummary {
	positions := make(map[string]int)
	users := []models.UserSummary{}

	for _, record := range records {
		if record.Email == "" || record.Email == models.NotProvided {
			continue
		}
		if i, ok := positions[record.Email]; ok {
			users[i].ComplaintCount++
			if record.Timestamp.After(users[i].LastActivity) {
				users[i].LastActivity = record.Timestamp
			}
			continue
		}
		positions[record.Email] = len(users)
		users = append(users, models.UserSummary{
			Name:           record.Name,
			Email:          record.Email,
			RegNo:          record.RegNo,
			ComplaintCount: 1,
			LastActivity:   record.Timestamp,
		})
	}
	return users
}

func (c *Calculator) ResolutionRate(records []models.ComplaintRecord) float64 {
	counts := c.DashboardCounts(records)
	return c.safeDivide(float64(counts.Resolved), float64(counts.Total))
}

func (c *Calculator) Dashboard(records []models.ComplaintRecord, lastUpdated time.Time) models.DashboardView {
	view := models.DashboardView{
		Counts:         c.DashboardCounts(records),
		ResolutionRate: c.ResolutionRate(records),
		Recent:         c.RecentComplaints(records, recentDefault),
	}
	if !lastUpdated.IsZero() {
		view.LastUpdated = lastUpdated.Format(time.RFC3339)
	}
	return view
}

func (c *Calculator) Analytics(records []models.ComplaintRecord, now time.Time, loc *time.Location) models.AnalyticsView {
	return models.AnalyticsView{
		Categories: c.CategoryDistribution(records),
		Statuses:   c.StatusDistribution(records),
		Weekly:     c.WeeklyTrend(records, now, loc),
	}
}

func (c *Calculator) safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0
	}
	return math.Round(result*1000) / 1000 // Round to 3 decimal places
}
