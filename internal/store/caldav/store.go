// Package caldav stores invitations in a CalDAV server.
package caldav

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/beekhof/mail-invites/internal/ics"
	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

// Client is the subset of *caldav.Client the store uses.
type Client interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
}

// Store is an invite.Store backed by a CalDAV server.
type Store struct {
	client   Client
	username string
	now      func() time.Time
}

var _ invite.Store = (*Store)(nil)

// New connects to serverURL with basic auth.
func New(serverURL, username, password string) (*Store, error) {
	httpClient := webdav.HTTPClientWithBasicAuth(nil, username, password)
	client, err := caldav.NewClient(httpClient, serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}
	return NewWithClient(client, username), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client, username string) *Store {
	return &Store{client: client, username: username, now: time.Now}
}

// Calendars discovers the user's calendars. The one whose path or name
// matches defaultCalendar is marked default, else the first one.
func (s *Store) Calendars(ctx context.Context, defaultCalendar string) ([]invite.CalendarRef, error) {
	principal, err := s.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal: %w", err)
	}
	homeSet, err := s.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}
	cals, err := s.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}

	refs := make([]invite.CalendarRef, 0, len(cals))
	defaultIdx := -1
	for _, cal := range cals {
		if !supportsEvents(cal) {
			continue
		}
		refs = append(refs, invite.CalendarRef{ID: cal.Path, Name: cal.Name})
		if defaultIdx < 0 && defaultCalendar != "" && (cal.Path == defaultCalendar || cal.Name == defaultCalendar) {
			defaultIdx = len(refs) - 1
		}
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("no event calendars found under %s", homeSet)
	}
	if defaultIdx < 0 {
		if defaultCalendar != "" {
			log.Printf("Warning: default calendar %q not found, using %s", defaultCalendar, refs[0].Name)
		}
		defaultIdx = 0
	}
	refs[defaultIdx].IsDefault = true
	return refs, nil
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if strings.EqualFold(comp, ical.CompEvent) {
			return true
		}
	}
	return false
}

func uidQuery(uid string) *caldav.CalendarQuery {
	return &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name: ical.CompEvent,
				Props: []caldav.PropFilter{{
					Name:      ical.PropUID,
					TextMatch: &caldav.TextMatch{Text: uid},
				}},
			}},
		},
	}
}

// FetchEventByUID queries each calendar for an object with the UID. Servers
// match UID text as a substring, so results are checked for equality.
func (s *Store) FetchEventByUID(ctx context.Context, uid string, calendars []invite.CalendarRef) (*invite.Event, *invite.CalendarRef, error) {
	query := uidQuery(uid)
	for _, cal := range calendars {
		objects, err := s.client.QueryCalendar(ctx, cal.ID, query)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to query calendar %s: %w", cal.ID, err)
		}
		for _, obj := range objects {
			if obj.Data == nil {
				continue
			}
			ev, err := ics.EventFromCalendar(obj.Data)
			if err != nil {
				log.Printf("Warning: skipping unreadable object %s: %v", obj.Path, err)
				continue
			}
			if ev.UID != uid {
				continue
			}
			ev.StoreID = obj.Path
			ev.Source = invite.SourceStore
			found := cal
			return &ev, &found, nil
		}
	}
	return nil, nil, nil
}

// ResolveCalendarKeys returns the authenticated user. CalDAV objects are
// not encrypted client-side.
func (s *Store) ResolveCalendarKeys(ctx context.Context, calendarID string) (invite.CalendarKeys, error) {
	if calendarID == "" {
		return invite.CalendarKeys{}, fmt.Errorf("empty calendar path")
	}
	return invite.CalendarKeys{MemberID: s.username}, nil
}

// PersistEvent PUTs the event, patched into the object it was read from.
// An event already stored in cal keeps its object path; a new one is named
// after its UID.
func (s *Store) PersistEvent(ctx context.Context, ev invite.Event, cal invite.CalendarRef, keys invite.CalendarKeys) (invite.Event, error) {
	objectPath := ev.StoreID
	if objectPath == "" || !strings.HasPrefix(objectPath, cal.ID) {
		objectPath = ObjectPath(cal.ID, ev.UID)
	}

	icsCal := ics.CalendarFor(ev, "", s.now())
	obj, err := s.client.PutCalendarObject(ctx, objectPath, icsCal)
	if err != nil {
		return invite.Event{}, fmt.Errorf("failed to put event %s: %w", ev.UID, err)
	}

	saved := ev.Clone()
	saved.Method = ""
	saved.Source = invite.SourceStore
	saved.StoreID = objectPath
	if data, err := ics.Serialize(icsCal); err == nil {
		saved.Raw = data
	}
	if obj != nil && obj.Path != "" {
		saved.StoreID = obj.Path
	}
	return saved, nil
}

// ObjectPath builds the resource path for a new event in a calendar
// collection.
func ObjectPath(calendarPath, uid string) string {
	return path.Join(calendarPath, url.PathEscape(uid)+".ics")
}
