// Package google stores invitations in Google Calendar.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/beekhof/mail-invites/internal/ics"
	"github.com/beekhof/mail-invites/internal/invite"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Store is an invite.Store backed by the Google Calendar API.
type Store struct {
	service *calendar.Service
}

var _ invite.Store = (*Store)(nil)

// New creates a store using the provided authorized HTTP client. Extra
// options are passed to the API client.
func New(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Store{service: service}, nil
}

// Calendars lists the calendars the user can write to. The primary
// calendar is the default; when it is not among the matches, the first
// match is.
func (s *Store) Calendars(ctx context.Context, only []string) ([]invite.CalendarRef, error) {
	list, err := s.service.CalendarList.List().MinAccessRole("writer").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("Google: failed to list calendars: %w", err)
	}

	wanted := make(map[string]bool, len(only))
	for _, id := range only {
		wanted[id] = true
	}

	var refs []invite.CalendarRef
	hasDefault := false
	for _, entry := range list.Items {
		if len(wanted) > 0 && !wanted[entry.Id] && !(entry.Primary && wanted["primary"]) {
			continue
		}
		refs = append(refs, invite.CalendarRef{ID: entry.Id, Name: entry.Summary, IsDefault: entry.Primary})
		hasDefault = hasDefault || entry.Primary
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("Google: no writable calendars matched %v", only)
	}
	if !hasDefault {
		refs[0].IsDefault = true
	}
	return refs, nil
}

// FetchEventByUID looks the UID up with the iCalUID filter. Cancelled
// events are included so a cancellation can be shown against them.
func (s *Store) FetchEventByUID(ctx context.Context, uid string, calendars []invite.CalendarRef) (*invite.Event, *invite.CalendarRef, error) {
	for _, cal := range calendars {
		list, err := s.service.Events.List(cal.ID).
			ICalUID(uid).
			ShowDeleted(true).
			Context(ctx).
			Do()
		if err != nil {
			return nil, nil, fmt.Errorf("Google: failed to find event %s in %s: %w", uid, cal.ID, err)
		}
		for _, item := range list.Items {
			// Skip overrides of single occurrences.
			if item.RecurringEventId != "" {
				continue
			}
			ev := fromGoogle(item)
			found := cal
			return &ev, &found, nil
		}
	}
	return nil, nil, nil
}

// ResolveCalendarKeys checks that the user may write to the calendar.
// Google encrypts server-side, so only the calendar ID is returned.
func (s *Store) ResolveCalendarKeys(ctx context.Context, calendarID string) (invite.CalendarKeys, error) {
	entry, err := s.service.CalendarList.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return invite.CalendarKeys{}, fmt.Errorf("Google: failed to get calendar %s: %w", calendarID, err)
	}
	if entry.AccessRole != "owner" && entry.AccessRole != "writer" {
		return invite.CalendarKeys{}, fmt.Errorf("Google: calendar %s is read-only (%s)", calendarID, entry.AccessRole)
	}
	return invite.CalendarKeys{MemberID: entry.Id}, nil
}

// PersistEvent updates the stored event in place, or imports a new one
// keeping its iCalendar UID. An update starts from the event as Google
// holds it, so reminders, exceptions and other fields the invitation does
// not model are kept. Attendees are never notified.
func (s *Store) PersistEvent(ctx context.Context, ev invite.Event, cal invite.CalendarRef, keys invite.CalendarKeys) (invite.Event, error) {
	var (
		result *calendar.Event
		err    error
	)
	if ev.StoreID != "" {
		current, err := s.service.Events.Get(cal.ID, ev.StoreID).Context(ctx).Do()
		if err != nil {
			return invite.Event{}, fmt.Errorf("Google: failed to get event %s: %w", ev.UID, err)
		}
		applyTo(current, ev)
		result, err = s.service.Events.Update(cal.ID, ev.StoreID, current).
			SendUpdates("none").
			Context(ctx).
			Do()
		if err != nil {
			return invite.Event{}, fmt.Errorf("Google: failed to write event %s: %w", ev.UID, err)
		}
		return fromGoogle(result), nil
	}

	result, err = s.service.Events.Import(cal.ID, toGoogle(ev)).Context(ctx).Do()
	if err != nil {
		return invite.Event{}, fmt.Errorf("Google: failed to write event %s: %w", ev.UID, err)
	}
	return fromGoogle(result), nil
}

var responseStatuses = map[invite.PartStat]string{
	invite.PartStatNeedsAction: "needsAction",
	invite.PartStatAccepted:    "accepted",
	invite.PartStatTentative:   "tentative",
	invite.PartStatDeclined:    "declined",
}

func toResponseStatus(p invite.PartStat) string {
	if s, ok := responseStatuses[p]; ok {
		return s
	}
	return "needsAction"
}

func fromResponseStatus(s string) invite.PartStat {
	for p, gs := range responseStatuses {
		if gs == s {
			return p
		}
	}
	return invite.PartStatNeedsAction
}

// toGoogle builds a new API event. Recurrence lines and the time zone come
// from the event's iCalendar object when it has one.
func toGoogle(ev invite.Event) *calendar.Event {
	recurrence, tzid := ics.Recurrence(ev.Raw)
	gev := &calendar.Event{
		Id:          ev.StoreID,
		ICalUID:     ev.UID,
		Sequence:    int64(ev.Sequence),
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Status:      strings.ToLower(ev.Status),
		Start:       toEventDateTime(ev.Start, ev.AllDay, tzid),
		End:         toEventDateTime(ev.End, ev.AllDay, tzid),
		Recurrence:  recurrence,
	}
	if len(recurrence) == 0 && ev.RRule != "" {
		gev.Recurrence = []string{"RRULE:" + ev.RRule}
	}
	if ev.Organizer != nil {
		gev.Organizer = &calendar.EventOrganizer{Email: ev.Organizer.Email, DisplayName: ev.Organizer.Name}
	}
	for _, a := range ev.Attendees {
		gev.Attendees = append(gev.Attendees, &calendar.EventAttendee{
			Email:          a.Email,
			DisplayName:    a.Name,
			ResponseStatus: toResponseStatus(a.PartStat),
		})
	}
	return gev
}

// applyTo copies the fields ev models onto current where they differ from
// what current already says.
func applyTo(current *calendar.Event, ev invite.Event) {
	base := fromGoogle(current)
	current.Sequence = int64(ev.Sequence)
	if ev.Summary != base.Summary {
		current.Summary = ev.Summary
	}
	if ev.Description != base.Description {
		current.Description = ev.Description
	}
	if ev.Location != base.Location {
		current.Location = ev.Location
	}
	if ev.Status != base.Status {
		current.Status = strings.ToLower(ev.Status)
	}
	if !ev.Start.Equal(base.Start) || ev.AllDay != base.AllDay {
		current.Start = toEventDateTime(ev.Start, ev.AllDay, zoneOf(current.Start))
	}
	if !ev.End.Equal(base.End) || ev.AllDay != base.AllDay {
		current.End = toEventDateTime(ev.End, ev.AllDay, zoneOf(current.End))
	}
	if ev.RRule != base.RRule {
		current.Recurrence = withRRule(current.Recurrence, ev.RRule)
	}

	var attendees []*calendar.EventAttendee
	seen := make(map[string]bool, len(ev.Attendees))
	for _, a := range current.Attendees {
		want, ok := ev.Attendee(a.Email)
		if !ok {
			continue
		}
		seen[invite.NormalizeAddress(a.Email)] = true
		if want.PartStat != fromResponseStatus(a.ResponseStatus) {
			a.ResponseStatus = toResponseStatus(want.PartStat)
		}
		attendees = append(attendees, a)
	}
	for _, a := range ev.Attendees {
		if seen[invite.NormalizeAddress(a.Email)] {
			continue
		}
		attendees = append(attendees, &calendar.EventAttendee{
			Email:          a.Email,
			DisplayName:    a.Name,
			ResponseStatus: toResponseStatus(a.PartStat),
		})
	}
	current.Attendees = attendees
}

// withRRule replaces the RRULE line of recurrence, keeping EXDATE and RDATE
// lines.
func withRRule(recurrence []string, rrule string) []string {
	var out []string
	for _, line := range recurrence {
		if !strings.HasPrefix(line, "RRULE:") {
			out = append(out, line)
		}
	}
	if rrule != "" {
		out = append([]string{"RRULE:" + rrule}, out...)
	}
	return out
}

func zoneOf(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	return dt.TimeZone
}

func toEventDateTime(t time.Time, allDay bool, tzid string) *calendar.EventDateTime {
	if t.IsZero() {
		return nil
	}
	if allDay {
		return &calendar.EventDateTime{Date: t.Format("2006-01-02")}
	}
	if tzid != "" {
		if loc, err := time.LoadLocation(tzid); err == nil {
			return &calendar.EventDateTime{DateTime: t.In(loc).Format(time.RFC3339), TimeZone: tzid}
		}
	}
	return &calendar.EventDateTime{DateTime: t.UTC().Format(time.RFC3339)}
}

func fromEventDateTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.Date != "" {
		t, err := time.Parse("2006-01-02", dt.Date)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	t, err := time.Parse(time.RFC3339, dt.DateTime)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), false
}

func fromGoogle(gev *calendar.Event) invite.Event {
	ev := invite.Event{
		UID:         gev.ICalUID,
		Sequence:    int(gev.Sequence),
		HasSequence: true,
		Source:      invite.SourceStore,
		Summary:     gev.Summary,
		Description: gev.Description,
		Location:    gev.Location,
		Status:      strings.ToUpper(gev.Status),
		StoreID:     gev.Id,
	}
	ev.Start, ev.AllDay = fromEventDateTime(gev.Start)
	ev.End, _ = fromEventDateTime(gev.End)
	for _, r := range gev.Recurrence {
		if rule, ok := strings.CutPrefix(r, "RRULE:"); ok {
			ev.RRule = rule
		}
	}
	if gev.Organizer != nil {
		ev.Organizer = &invite.Participant{
			Email: invite.NormalizeAddress(gev.Organizer.Email),
			Name:  gev.Organizer.DisplayName,
		}
	}
	for _, a := range gev.Attendees {
		ev.Attendees = append(ev.Attendees, invite.Participant{
			Email:    invite.NormalizeAddress(a.Email),
			Name:     a.DisplayName,
			PartStat: fromResponseStatus(a.ResponseStatus),
		})
	}
	return ev
}
