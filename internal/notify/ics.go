package notify

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const icsStamp = "20060102T150405Z"

// Invite is the content of an iCalendar attachment.
type Invite struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Organizer   string
	OrgName     string
	Attendees   []string
	Cancelled   bool
	Sequence    int
}

// BuildICS renders a single VEVENT calendar. Cancelled invites use
// METHOD:CANCEL so that mail clients remove the event.
func BuildICS(inv Invite, stamp time.Time) []byte {
	method := "REQUEST"
	if inv.Cancelled {
		method = "CANCEL"
	}
	lines := []string{
		"BEGIN:VCALENDAR",
		"PRODID:-//" + inv.OrgName + "//Booking Engine//EN",
		"VERSION:2.0",
		"CALSCALE:GREGORIAN",
		"METHOD:" + method,
		"BEGIN:VEVENT",
		"UID:" + inv.UID,
		"DTSTAMP:" + stamp.UTC().Format(icsStamp),
		"DTSTART:" + inv.Start.UTC().Format(icsStamp),
		"DTEND:" + inv.End.UTC().Format(icsStamp),
		"SUMMARY:" + icsEscape(inv.Summary),
		"DESCRIPTION:" + icsEscape(inv.Description),
	}
	if inv.Sequence > 0 {
		lines = append(lines, "SEQUENCE:"+strconv.Itoa(inv.Sequence))
	}
	if inv.Cancelled {
		lines = append(lines, "STATUS:CANCELLED")
	}
	if inv.Location != "" {
		lines = append(lines, "LOCATION:"+icsEscape(inv.Location))
	}
	if inv.Organizer != "" {
		lines = append(lines, "ORGANIZER;CN="+icsEscape(inv.OrgName)+":MAILTO:"+inv.Organizer)
	}
	for _, a := range inv.Attendees {
		if a != "" {
			lines = append(lines, "ATTENDEE;CN="+a+";RSVP=FALSE:MAILTO:"+a)
		}
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

var icsReplacer = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ",", `\,`, ";", `\;`)

func icsEscape(s string) string {
	return icsReplacer.Replace(s)
}

// AddToCalendarLink builds a Google Calendar "render" link that prefills an
// event, for recipients who ignore the attachment.
func AddToCalendarLink(summary string, start, end time.Time, details, location string) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", summary)
	q.Set("dates", start.UTC().Format(icsStamp)+"/"+end.UTC().Format(icsStamp))
	q.Set("details", details)
	if location != "" {
		q.Set("location", location)
	}
	return "https://calendar.google.com/calendar/render?" + q.Encode()
}
