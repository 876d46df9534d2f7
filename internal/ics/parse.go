// Package ics converts between iCalendar objects and invitation events.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/emersion/go-ical"
)

// ErrNoEvent is wrapped by the ParseError returned for a calendar that
// carries no VEVENT, such as a task or journal entry. Such a calendar is not
// an invitation.
var ErrNoEvent = errors.New("calendar has no VEVENT")

// ParseError reports an ICS payload that does not describe a usable
// invitation.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid invitation: %s: %v", e.Reason, e.Err)
	}
	return "invalid invitation: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes an iTIP message and returns its method and main event.
func Parse(r io.Reader) (invite.Invitation, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return invite.Invitation{}, &ParseError{Reason: "failed to decode calendar", Err: err}
	}
	return FromCalendar(cal)
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(data []byte) (invite.Invitation, error) {
	return Parse(bytes.NewReader(data))
}

// FromCalendar extracts the invitation carried by an already decoded
// calendar. The event keeps an encoding of cal as its Raw object, for which
// missing VERSION, PRODID and DTSTAMP properties are added to cal.
func FromCalendar(cal *ical.Calendar) (invite.Invitation, error) {
	rawMethod, _ := cal.Props.Text(ical.PropMethod)
	if rawMethod == "" {
		return invite.Invitation{}, &ParseError{Reason: "missing METHOD"}
	}
	method, ok := invite.ParseMethod(rawMethod)
	if !ok {
		return invite.Invitation{}, &ParseError{Reason: fmt.Sprintf("unsupported METHOD %q", rawMethod)}
	}

	ev, err := mainEventOf(cal)
	if err != nil {
		return invite.Invitation{}, err
	}
	ev.Method = method
	ev.Raw = rawObject(cal)
	return invite.Invitation{Method: method, Event: ev}, nil
}

// EventFromCalendar extracts the main event of a stored calendar object.
// Stored objects carry no METHOD. Like FromCalendar, it may add the
// VERSION, PRODID and DTSTAMP properties cal is missing.
func EventFromCalendar(cal *ical.Calendar) (invite.Event, error) {
	ev, err := mainEventOf(cal)
	if err != nil {
		return invite.Event{}, err
	}
	ev.Raw = rawObject(cal)
	return ev, nil
}

// DecodeObject parses a stored calendar object.
func DecodeObject(data []byte) (invite.Event, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return invite.Event{}, &ParseError{Reason: "failed to decode calendar", Err: err}
	}
	ev, err := mainEventOf(cal)
	if err != nil {
		return invite.Event{}, err
	}
	ev.Raw = data
	return ev, nil
}

func mainEventOf(cal *ical.Calendar) (invite.Event, error) {
	comp := mainEvent(cal)
	if comp == nil {
		return invite.Event{}, &ParseError{Reason: "no VEVENT", Err: ErrNoEvent}
	}
	return EventFromComponent(comp)
}

// mainEvent returns the master VEVENT, or the first one when every event
// is a recurrence override.
func mainEvent(cal *ical.Calendar) *ical.Component {
	var first *ical.Component
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if first == nil {
			first = child
		}
		if child.Props.Get(ical.PropRecurrenceID) == nil {
			return child
		}
	}
	return first
}

// EventFromComponent maps a VEVENT onto an invitation event.
func EventFromComponent(comp *ical.Component) (invite.Event, error) {
	var ev invite.Event

	uid, _ := comp.Props.Text(ical.PropUID)
	if strings.TrimSpace(uid) == "" {
		return ev, &ParseError{Reason: "VEVENT has no UID"}
	}
	ev.UID = uid

	if prop := comp.Props.Get(ical.PropSequence); prop != nil {
		seq, err := prop.Int()
		if err != nil || seq < 0 {
			return ev, &ParseError{Reason: fmt.Sprintf("invalid SEQUENCE %q", prop.Value), Err: err}
		}
		ev.Sequence = seq
		ev.HasSequence = true
	}

	ev.Summary, _ = comp.Props.Text(ical.PropSummary)
	ev.Description, _ = comp.Props.Text(ical.PropDescription)
	ev.Location, _ = comp.Props.Text(ical.PropLocation)
	if prop := comp.Props.Get(ical.PropStatus); prop != nil {
		ev.Status = strings.ToUpper(prop.Value)
	}
	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		ev.RRule = prop.Value
	}

	if prop := comp.Props.Get(ical.PropOrganizer); prop != nil {
		org := participant(prop)
		ev.Organizer = &org
	}
	attendees := comp.Props.Values(ical.PropAttendee)
	for i := range attendees {
		a := participant(&attendees[i])
		if a.PartStat == "" {
			a.PartStat = invite.PartStatNeedsAction
		}
		ev.Attendees = append(ev.Attendees, a)
	}

	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
		start, err := prop.DateTime(time.UTC)
		if err != nil {
			return ev, &ParseError{Reason: "invalid DTSTART", Err: err}
		}
		ev.Start = start
		ev.AllDay = prop.Params.Get(ical.ParamValue) == string(ical.ValueDate)
	}
	if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
		end, err := prop.DateTime(time.UTC)
		if err != nil {
			return ev, &ParseError{Reason: "invalid DTEND", Err: err}
		}
		ev.End = end
	} else if prop := comp.Props.Get(ical.PropDuration); prop != nil && !ev.Start.IsZero() {
		if d, err := prop.Duration(); err == nil {
			ev.End = ev.Start.Add(d)
		}
	}

	return ev, nil
}

func participant(prop *ical.Prop) invite.Participant {
	return invite.Participant{
		Email:    invite.NormalizeAddress(prop.Value),
		Name:     prop.Params.Get(ical.ParamCommonName),
		PartStat: invite.PartStat(strings.ToUpper(prop.Params.Get(ical.ParamParticipationStatus))),
	}
}
