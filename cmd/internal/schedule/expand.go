package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxOccurrences caps a single expansion.
const MaxOccurrences = 1000

var weekdays = map[Weekday]rrule.Weekday{
	Monday:    rrule.MO,
	Tuesday:   rrule.TU,
	Wednesday: rrule.WE,
	Thursday:  rrule.TH,
	Friday:    rrule.FR,
	Saturday:  rrule.SA,
	Sunday:    rrule.SU,
}

var frequencies = map[PatternType]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

// Occurrence is one concrete instance of a schedule.
type Occurrence struct {
	ScheduleID  string
	Content     string
	Description string
	Priority    Priority
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// window resolves the first start, the inclusive last day and the duration of
// each occurrence in loc.
func (s RecurringSchedule) window(loc *time.Location) (start, until time.Time, dur time.Duration, allDay bool, err error) {
	start, err = ParseDate(s.StartDate, loc)
	if err != nil {
		return start, until, 0, false, fmt.Errorf("%w: startDate: %v", ErrInvalid, err)
	}

	startClock, hasStart := clockOf(s.StartTime)
	endClock, hasEnd := clockOf(s.EndTime)
	day := truncateDay(start)

	switch {
	case hasStart:
		start = day.Add(startClock)
	case start.Equal(day):
		allDay = true
	}

	switch {
	case allDay:
		dur = 24 * time.Hour
	case hasEnd:
		dur = endClock - (start.Sub(day))
		if dur < 0 {
			dur += 24 * time.Hour
		}
	}

	if s.EndDate != "" {
		end, perr := ParseDate(s.EndDate, loc)
		if perr != nil {
			return start, until, 0, false, fmt.Errorf("%w: endDate: %v", ErrInvalid, perr)
		}
		until = truncateDay(end).Add(24*time.Hour - time.Second)
	}
	return start, until, dur, allDay, nil
}

func clockOf(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		return 0, false
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
}

// RRule builds the RFC 5545 rule for s, anchored in loc.
func (s RecurringSchedule) RRule(loc *time.Location) (*rrule.RRule, error) {
	if loc == nil {
		loc = time.Local
	}
	s = s.WithDefaults()

	freq, ok := frequencies[s.PatternType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown patternType %q", ErrInvalid, s.PatternType)
	}
	start, until, _, _, err := s.window(loc)
	if err != nil {
		return nil, err
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: s.Interval,
		Dtstart:  start,
		Until:    until,
	}

	days := make([]rrule.Weekday, 0, len(s.DaysOfWeek))
	for _, d := range s.DaysOfWeek {
		wd, ok := weekdays[d]
		if !ok {
			return nil, fmt.Errorf("%w: unknown day %q", ErrInvalid, d)
		}
		days = append(days, wd)
	}

	switch s.PatternType {
	case Weekly:
		opt.Byweekday = days
	case Monthly:
		switch {
		case s.WeekOfMonth != nil && len(days) > 0:
			for i := range days {
				days[i] = days[i].Nth(*s.WeekOfMonth)
			}
			opt.Byweekday = days
		case s.DayOfMonth != nil:
			opt.Bymonthday = []int{*s.DayOfMonth}
		}
	case Yearly:
		if s.DayOfMonth != nil {
			opt.Bymonth = []int{int(start.Month())}
			opt.Bymonthday = []int{*s.DayOfMonth}
		}
	}

	return rrule.NewRRule(opt)
}

// Expand lists the occurrences of s that start within [from, to], skipping
// exception dates. Times are produced in from's location. The result is
// capped at MaxOccurrences.
func Expand(s RecurringSchedule, from, to time.Time, exceptions []Exception) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end is before range start", ErrInvalid)
	}
	loc := from.Location()
	s = s.WithDefaults()

	r, err := s.RRule(loc)
	if err != nil {
		return nil, err
	}
	first, _, dur, allDay, err := s.window(loc)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(r)

	for _, ex := range exceptions {
		d, err := ParseDate(ex.ExceptionDate, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: exception %q: %v", ErrInvalid, ex.ExceptionDate, err)
		}
		// An exception names a day; the excluded instance starts at the schedule's time of day.
		set.ExDate(time.Date(d.Year(), d.Month(), d.Day(), first.Hour(), first.Minute(), first.Second(), 0, loc))
	}

	starts := set.Between(from, to, true)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	if len(starts) > MaxOccurrences {
		starts = starts[:MaxOccurrences]
	}

	out := make([]Occurrence, 0, len(starts))
	for _, st := range starts {
		out = append(out, Occurrence{
			ScheduleID:  s.ID.String(),
			Content:     s.Content,
			Description: s.Description,
			Priority:    s.Priority,
			Start:       st,
			End:         st.Add(dur),
			AllDay:      allDay,
		})
	}
	return out, nil
}

// OccursOn reports whether s has an occurrence on the calendar day of day.
func OccursOn(s RecurringSchedule, day time.Time, exceptions []Exception) (bool, error) {
	from := truncateDay(day)
	occ, err := Expand(s, from, from.Add(24*time.Hour-time.Nanosecond), exceptions)
	if err != nil {
		return false, err
	}
	return len(occ) > 0, nil
}
