package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleGateway talks to Google Calendar v3 with a service account that has
// been granted "Make changes to events" on every doctor calendar.
type GoogleGateway struct {
	svc      *gcal.Service
	timezone string
}

func NewGoogleGateway(ctx context.Context, credentialsFile, timezone string) (*GoogleGateway, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, errors.New("google service account credentials not configured, set GOOGLE_SERVICE_ACCOUNT_FILE")
	}
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &GoogleGateway{svc: svc, timezone: timezone}, nil
}

func (g *GoogleGateway) FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]Interval, error) {
	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  from.UTC().Format(time.RFC3339),
		TimeMax:  to.UTC().Format(time.RFC3339),
		TimeZone: g.timezone,
		Items:    []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify("freebusy", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: freebusy: calendar %s missing from response", ErrUnavailable, calendarID)
	}
	if len(cal.Errors) > 0 {
		reasons := make([]string, 0, len(cal.Errors))
		for _, e := range cal.Errors {
			reasons = append(reasons, e.Reason)
		}
		return nil, fmt.Errorf("%w: freebusy %s: %s", ErrUnavailable, calendarID, strings.Join(reasons, ","))
	}

	busy := make([]Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: freebusy: bad busy start %q", ErrUnavailable, p.Start)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("%w: freebusy: bad busy end %q", ErrUnavailable, p.End)
		}
		busy = append(busy, Interval{Start: start, End: end})
	}
	return busy, nil
}

func (g *GoogleGateway) InsertEvent(ctx context.Context, calendarID string, ev Event, opts InsertOptions) (Event, error) {
	body := g.toGoogle(ev)
	body.Reminders = &gcal.EventReminders{UseDefault: true}

	call := g.svc.Events.Insert(calendarID, body).Context(ctx)
	if opts.SendUpdates {
		call = call.SendUpdates("all")
	}
	if opts.RequestConference {
		body.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             opts.ConferenceRequestID,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Do()
	if err != nil {
		if opts.RequestConference && mentionsConference(err) {
			return Event{}, fmt.Errorf("%w: %w", ErrConferenceUnsupported, err)
		}
		return Event{}, classify("insert", err)
	}
	return g.fromGoogle(created), nil
}

func (g *GoogleGateway) GetEvent(ctx context.Context, calendarID, eventID string) (Event, error) {
	ev, err := g.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return Event{}, classify("get", err)
	}
	return g.fromGoogle(ev), nil
}

func (g *GoogleGateway) UpdateEvent(ctx context.Context, calendarID, eventID string, start, end time.Time, sendUpdates bool) (Event, error) {
	patch := &gcal.Event{
		Start: g.dateTime(start),
		End:   g.dateTime(end),
	}
	call := g.svc.Events.Patch(calendarID, eventID, patch).Context(ctx)
	if sendUpdates {
		call = call.SendUpdates("all")
	} else {
		call = call.SendUpdates("none")
	}
	updated, err := call.Do()
	if err != nil {
		return Event{}, classify("update", err)
	}
	return g.fromGoogle(updated), nil
}

func (g *GoogleGateway) DeleteEvent(ctx context.Context, calendarID, eventID string, sendUpdates bool) error {
	call := g.svc.Events.Delete(calendarID, eventID).Context(ctx)
	if sendUpdates {
		call = call.SendUpdates("all")
	} else {
		call = call.SendUpdates("none")
	}
	if err := call.Do(); err != nil {
		return classify("delete", err)
	}
	return nil
}

func (g *GoogleGateway) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error) {
	var out []Event
	err := g.svc.Events.List(calendarID).
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				ev := g.fromGoogle(item)
				if !ev.Cancelled {
					out = append(out, ev)
				}
			}
			return nil
		})
	if err != nil {
		return nil, classify("list", err)
	}
	return out, nil
}

func (g *GoogleGateway) dateTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: g.timezone}
}

func (g *GoogleGateway) toGoogle(ev Event) *gcal.Event {
	out := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       g.dateTime(ev.Start),
		End:         g.dateTime(ev.End),
	}
	for _, email := range ev.Attendees {
		out.Attendees = append(out.Attendees, &gcal.EventAttendee{Email: email})
	}
	if len(ev.Metadata) > 0 {
		out.ExtendedProperties = &gcal.EventExtendedProperties{Private: ev.Metadata}
	}
	return out
}

func (g *GoogleGateway) fromGoogle(ev *gcal.Event) Event {
	out := Event{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		HTMLLink:    ev.HtmlLink,
		Cancelled:   ev.Status == "cancelled",
		Start:       g.parseDateTime(ev.Start),
		End:         g.parseDateTime(ev.End),
	}
	for _, a := range ev.Attendees {
		if a != nil && a.Email != "" {
			out.Attendees = append(out.Attendees, a.Email)
		}
	}
	if ev.ExtendedProperties != nil && len(ev.ExtendedProperties.Private) > 0 {
		out.Metadata = ev.ExtendedProperties.Private
	}
	out.ConferenceLink = ev.HangoutLink
	if out.ConferenceLink == "" && ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep != nil && ep.EntryPointType == "video" && ep.Uri != "" {
				out.ConferenceLink = ep.Uri
				break
			}
		}
	}
	return out
}

// parseDateTime handles timed events and all-day events ("date" only).
func (g *GoogleGateway) parseDateTime(dt *gcal.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		loc, err := time.LoadLocation(g.timezone)
		if err != nil {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation("2006-01-02", dt.Date, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: %s: %w", ErrEventNotFound, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func mentionsConference(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusBadRequest {
		return false
	}
	text := strings.ToLower(gerr.Message + " " + gerr.Body)
	for _, e := range gerr.Errors {
		text += " " + strings.ToLower(e.Message+" "+e.Reason)
	}
	return strings.Contains(text, "conference")
}
