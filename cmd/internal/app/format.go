package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"daycheck/cmd/internal/schedule"
	v1 "daycheck/shared/contracts/push/v1"
)

// timeAgo renders t relative to now the way the notification list shows it:
// minutes and hours for the last day, a calendar date before that.
func timeAgo(now, t time.Time, locale string) string {
	ko := isKorean(locale)
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	hours := minutes / 60

	switch {
	case minutes < 1:
		if ko {
			return "방금 전"
		}
		return "just now"
	case minutes < 60:
		if ko {
			return fmt.Sprintf("%d분 전", minutes)
		}
		return fmt.Sprintf("%dm ago", minutes)
	case hours < 24:
		if ko {
			return fmt.Sprintf("%d시간 전", hours)
		}
		return fmt.Sprintf("%dh ago", hours)
	}
	t = t.In(now.Location())
	if ko {
		return fmt.Sprintf("%d월 %d일", int(t.Month()), t.Day())
	}
	return t.Format("Jan 2")
}

func isKorean(locale string) bool {
	tag := strings.ToLower(strings.TrimSpace(locale))
	return tag == "ko" || strings.HasPrefix(tag, "ko-") || strings.HasPrefix(tag, "ko_")
}

func writeNotification(w io.Writer, now time.Time, locale string, n v1.Notification) {
	when := "-"
	if !n.NotificationTime.IsZero() {
		when = timeAgo(now, n.NotificationTime.Time, locale)
	}
	mark := "*"
	if n.Read {
		mark = " "
	}
	fmt.Fprintf(w, "%s %-8s %-12s %s\n", mark, n.ID, when, n.Message)
}

func writeSchedule(w io.Writer, s schedule.RecurringSchedule) {
	span := s.StartDate
	if s.EndDate != "" {
		span += ".." + s.EndDate
	}
	clock := "all-day"
	if s.StartTime != "" {
		clock = s.StartTime
		if s.EndTime != "" {
			clock += "-" + s.EndTime
		}
	}
	fmt.Fprintf(w, "%-8s %-8s %-22s %-11s %-6s %s\n", s.ID, s.PatternType, span, clock, s.Priority, s.Content)
}

func writeOccurrence(w io.Writer, o schedule.Occurrence) {
	when := o.Start.Format("2006-01-02 Mon")
	if !o.AllDay {
		when += " " + o.Start.Format(schedule.TimeLayout) + "-" + o.End.Format(schedule.TimeLayout)
	}
	fmt.Fprintf(w, "%-26s %-8s %s\n", when, o.ScheduleID, o.Content)
}
