// Package invite reconciles calendar invitations embedded in mail messages
// against the copy of the same event kept in the viewer's calendar.
package invite

import (
	"strings"
	"time"
)

// Method is the iTIP intent of an invitation message.
type Method string

const (
	MethodRequest Method = "REQUEST"
	MethodReply   Method = "REPLY"
	MethodCancel  Method = "CANCEL"
	MethodCounter Method = "COUNTER"
	MethodRefresh Method = "REFRESH"
	MethodAdd     Method = "ADD"
)

// Methods lists every method the engine understands.
var Methods = []Method{MethodRequest, MethodReply, MethodCancel, MethodCounter, MethodRefresh, MethodAdd}

// ParseMethod maps an ICS METHOD value onto a Method.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// Role is the viewer's relation to an event.
type Role int

const (
	RoleAttendee Role = iota
	RoleOrganizer
)

func (r Role) String() string {
	if r == RoleOrganizer {
		return "ORGANIZER"
	}
	return "ATTENDEE"
}

// Source tells where an Event snapshot came from.
type Source int

const (
	SourceMessage Source = iota
	SourceStore
)

// PartStat is an attendee's participation status.
type PartStat string

const (
	PartStatNeedsAction PartStat = "NEEDS-ACTION"
	PartStatAccepted    PartStat = "ACCEPTED"
	PartStatTentative   PartStat = "TENTATIVE"
	PartStatDeclined    PartStat = "DECLINED"
	PartStatDelegated   PartStat = "DELEGATED"
)

// Status values for Event.Status.
const (
	StatusConfirmed = "CONFIRMED"
	StatusTentative = "TENTATIVE"
	StatusCancelled = "CANCELLED"
)

// Participant is an organizer or attendee entry of an event.
type Participant struct {
	Email    string
	Name     string
	PartStat PartStat
}

// Event is one immutable version of a calendar event. Code in this package
// never mutates an Event it was handed; it derives copies instead.
type Event struct {
	UID         string
	Sequence    int
	HasSequence bool
	Method      Method
	Source      Source
	Organizer   *Participant
	Attendees   []Participant
	Status      string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	RRule       string

	// StoreID is the identifier the calendar store uses for this event,
	// e.g. an object path or an API event ID. Empty for message events.
	StoreID string

	// Raw is the iCalendar object the event was read from, if any. Stores
	// write it back with the fields above patched in, so time zones,
	// exceptions and recurrence overrides are kept. It is never modified
	// in place.
	Raw []byte
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	if e.Organizer != nil {
		org := *e.Organizer
		e.Organizer = &org
	}
	if e.Attendees != nil {
		e.Attendees = append([]Participant(nil), e.Attendees...)
	}
	return e
}

// IsCancelled reports whether the event carries STATUS:CANCELLED.
func (e Event) IsCancelled() bool {
	return strings.EqualFold(e.Status, StatusCancelled)
}

// Attendee returns the attendee with the given address.
func (e Event) Attendee(email string) (Participant, bool) {
	for _, a := range e.Attendees {
		if SameAddress(a.Email, email) {
			return a, true
		}
	}
	return Participant{}, false
}

// WithAttendeeStatus returns a copy of e in which the attendee matching email
// has the given participation status. ok is false when no attendee matched.
func (e Event) WithAttendeeStatus(email string, status PartStat) (out Event, ok bool) {
	out = e.Clone()
	for i := range out.Attendees {
		if SameAddress(out.Attendees[i].Email, email) {
			out.Attendees[i].PartStat = status
			ok = true
		}
	}
	return out, ok
}

// CalendarRef identifies a calendar in the viewer's store.
type CalendarRef struct {
	ID        string
	Name      string
	IsDefault bool
}

// NormalizeAddress lower-cases an address and strips a mailto: prefix.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) >= 7 && strings.EqualFold(addr[:7], "mailto:") {
		addr = addr[7:]
	}
	return strings.ToLower(addr)
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	a, b = NormalizeAddress(a), NormalizeAddress(b)
	return a != "" && a == b
}
