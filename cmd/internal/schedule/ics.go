package schedule

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
)

const productID = "-//DayCheck//Schedule Preview//EN"

var icsPriority = map[Priority]string{
	PriorityHigh:   "1",
	PriorityMedium: "5",
	PriorityLow:    "9",
}

// ExportICS renders occurrences as an iCalendar document, one VEVENT each.
// now stamps DTSTAMP.
func ExportICS(occurrences []Occurrence, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for i, o := range occurrences {
		ev := cal.AddEvent(occurrenceUID(o, i))
		ev.SetDtStampTime(now.UTC())
		if o.AllDay {
			ev.SetAllDayStartAt(o.Start)
			ev.SetAllDayEndAt(o.End)
		} else {
			ev.SetStartAt(o.Start)
			ev.SetEndAt(o.End)
		}
		ev.SetSummary(o.Content)
		if o.Description != "" {
			ev.SetDescription(o.Description)
		}
		if p, ok := icsPriority[o.Priority]; ok {
			ev.SetProperty(ical.ComponentPropertyPriority, p)
		}
	}
	return cal.Serialize()
}

func occurrenceUID(o Occurrence, i int) string {
	id := o.ScheduleID
	if id == "" {
		id = fmt.Sprintf("local-%d", i)
	}
	return fmt.Sprintf("%s-%s@daycheck", id, o.Start.UTC().Format("20060102T150405Z"))
}
