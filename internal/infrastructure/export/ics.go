// Package export renders a student's schedule as an iCalendar feed.
package export

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/alem-hub/attendance-hub/internal/domain/schedule"
)

// ICSEncoder implements query.CalendarEncoder.
type ICSEncoder struct {
	productID string
	timezone  string
	now       func() time.Time
}

// NewICSEncoder creates an encoder. timezone is advertised as X-WR-TIMEZONE;
// instants are always written in UTC.
func NewICSEncoder(productID, timezone string) *ICSEncoder {
	if productID == "" {
		productID = "-//attendance-hub//schedule//EN"
	}
	return &ICSEncoder{productID: productID, timezone: timezone, now: time.Now}
}

// ContentType returns the MIME type of encoded calendars.
func (e *ICSEncoder) ContentType() string {
	return "text/calendar; charset=utf-8"
}

// Encode writes one VEVENT per event. The UID is derived from the stored
// identity, so re-exports update rather than duplicate entries in clients.
func (e *ICSEncoder) Encode(calendarName string, events []*schedule.ScheduledEvent) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(e.productID)
	if calendarName != "" {
		cal.SetXWRCalName(calendarName)
	}
	if e.timezone != "" {
		cal.SetXWRTimezone(e.timezone)
	}

	stamp := e.now().UTC()
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if ev.End.Before(ev.Start) {
			return nil, fmt.Errorf("export: event %d ends before it starts", ev.ID)
		}

		vevent := cal.AddEvent(eventUID(ev))
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(ev.Start.UTC())
		vevent.SetEndAt(ev.End.UTC())
		if !ev.UpdatedAt.IsZero() {
			vevent.SetModifiedAt(ev.UpdatedAt.UTC())
		}
		vevent.SetSummary(summary(ev))
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
		if desc := description(ev); desc != "" {
			vevent.SetDescription(desc)
		}
		if ev.LessonType != "" {
			vevent.SetProperty(ical.ComponentPropertyCategories, ev.LessonType)
		}
		if ev.IsCanceled() {
			vevent.SetStatus(ical.ObjectStatusCancelled)
		} else {
			vevent.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	return []byte(cal.Serialize()), nil
}

func eventUID(ev *schedule.ScheduledEvent) string {
	return fmt.Sprintf("%d-%s@attendance-hub", ev.ID, ev.StudentID)
}

func summary(ev *schedule.ScheduledEvent) string {
	if ev.CourseTitle == "" {
		return ev.CourseCode
	}
	return ev.CourseCode + " " + ev.CourseTitle
}

func description(ev *schedule.ScheduledEvent) string {
	var parts []string
	if ev.Lecturer != "" {
		parts = append(parts, "Lecturer: "+ev.Lecturer)
	}
	if ev.Status == schedule.StatusRescheduled {
		parts = append(parts, "Rescheduled")
	}
	return strings.Join(parts, "\n")
}
