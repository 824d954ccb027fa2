// Package schedule models recurring schedules as the backend stores them and
// previews their occurrences locally.
//
// The backend owns schedule data and is the authority on which days a
// schedule falls on. The preview here exists so a user can check a pattern
// before saving it, and to export occurrences as iCalendar.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	v1 "daycheck/shared/contracts/push/v1"
)

// ErrInvalid is returned for schedules that cannot be saved or expanded.
var ErrInvalid = errors.New("invalid schedule")

// PatternType is the repetition unit.
type PatternType string

const (
	Daily   PatternType = "DAILY"
	Weekly  PatternType = "WEEKLY"
	Monthly PatternType = "MONTHLY"
	Yearly  PatternType = "YEARLY"
)

// Weekday uses the backend's upper-case English day names.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// Priority is a free-form label; the backend knows low, medium and high.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Wire layouts. Dates may carry a time ("2006-01-02T15:04") or not.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// RecurringSchedule is the backend's recurring schedule record.
// Empty fields are omitted on the wire, so an update only sends what is set.
type RecurringSchedule struct {
	ID          v1.ID       `json:"id,omitempty"`
	Content     string      `json:"content,omitempty"`
	PatternType PatternType `json:"patternType,omitempty"`
	Interval    int         `json:"interval,omitempty"`
	DaysOfWeek  []Weekday   `json:"daysOfWeek,omitempty"`
	DayOfMonth  *int        `json:"dayOfMonth,omitempty"`
	WeekOfMonth *int        `json:"weekOfMonth,omitempty"`
	StartDate   string      `json:"startDate,omitempty"`
	EndDate     string      `json:"endDate,omitempty"`
	StartTime   string      `json:"startTime,omitempty"`
	EndTime     string      `json:"endTime,omitempty"`
	Priority    Priority    `json:"priority,omitempty"`
	Description string      `json:"description,omitempty"`
}

// WithDefaults fills the values a new schedule gets when left empty:
// daily, every 1, medium priority.
func (s RecurringSchedule) WithDefaults() RecurringSchedule {
	if s.PatternType == "" {
		s.PatternType = Daily
	}
	if s.Interval <= 0 {
		s.Interval = 1
	}
	if s.Priority == "" {
		s.Priority = PriorityMedium
	}
	return s
}

// Validate checks a schedule about to be created.
func (s RecurringSchedule) Validate() error {
	if strings.TrimSpace(s.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalid)
	}
	if s.StartDate == "" || s.EndDate == "" {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalid)
	}
	start, err := ParseDate(s.StartDate, time.UTC)
	if err != nil {
		return fmt.Errorf("%w: startDate: %v", ErrInvalid, err)
	}
	end, err := ParseDate(s.EndDate, time.UTC)
	if err != nil {
		return fmt.Errorf("%w: endDate: %v", ErrInvalid, err)
	}
	if end.Before(truncateDay(start)) {
		return fmt.Errorf("%w: endDate is before startDate", ErrInvalid)
	}

	switch s.PatternType {
	case "", Daily, Weekly, Monthly, Yearly:
	default:
		return fmt.Errorf("%w: unknown patternType %q", ErrInvalid, s.PatternType)
	}
	if s.Interval < 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalid)
	}
	for _, d := range s.DaysOfWeek {
		if _, ok := weekdays[d]; !ok {
			return fmt.Errorf("%w: unknown day %q", ErrInvalid, d)
		}
	}
	if s.DayOfMonth != nil && (*s.DayOfMonth < 1 || *s.DayOfMonth > 31) {
		return fmt.Errorf("%w: dayOfMonth out of range", ErrInvalid)
	}
	if s.WeekOfMonth != nil && (*s.WeekOfMonth < 1 || *s.WeekOfMonth > 5) {
		return fmt.Errorf("%w: weekOfMonth out of range", ErrInvalid)
	}
	for _, t := range []string{s.StartTime, s.EndTime} {
		if t == "" {
			continue
		}
		if _, err := time.Parse(TimeLayout, t); err != nil {
			return fmt.Errorf("%w: time %q: %v", ErrInvalid, t, err)
		}
	}
	return nil
}

// Exception removes one date from a recurring schedule.
type Exception struct {
	ID                  v1.ID  `json:"id,omitempty"`
	RecurringScheduleID v1.ID  `json:"recurringScheduleId"`
	ExceptionDate       string `json:"exceptionDate"`
	Reason              string `json:"reason,omitempty"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	DateLayout,
}

// ParseDate accepts the date and date-time forms the backend uses.
// Values without a zone are read in loc.
func ParseDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, v); err == nil {
				return t.In(loc), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
