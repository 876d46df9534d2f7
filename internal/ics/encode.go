package ics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/emersion/go-ical"
)

// ProductID is written to every calendar this module produces.
const ProductID = "-//mail-invites//EN"

// ToCalendar wraps a VEVENT built from scratch for ev in a VCALENDAR. A
// non-empty method adds a METHOD property, which stored calendar objects
// must not carry.
func ToCalendar(ev invite.Event, method invite.Method, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	if method != "" {
		cal.Props.SetText(ical.PropMethod, string(method))
	}
	cal.Children = append(cal.Children, ToComponent(ev, now))
	return cal
}

// ToComponent builds a VEVENT for ev.
func ToComponent(ev invite.Event, now time.Time) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, ev.UID)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if ev.HasSequence || ev.Sequence != 0 {
		seq := ical.NewProp(ical.PropSequence)
		seq.Value = strconv.Itoa(ev.Sequence)
		comp.Props.Set(seq)
	}
	if ev.Summary != "" {
		comp.Props.SetText(ical.PropSummary, ev.Summary)
	}
	if ev.Description != "" {
		comp.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		comp.Props.SetText(ical.PropLocation, ev.Location)
	}
	if ev.Status != "" {
		comp.Props.SetText(ical.PropStatus, ev.Status)
	}
	if ev.RRule != "" {
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = ev.RRule
		comp.Props.Set(rrule)
	}

	if !ev.Start.IsZero() {
		comp.Props.Set(dateProp(ical.PropDateTimeStart, ev.Start, ev.AllDay))
	}
	if !ev.End.IsZero() {
		comp.Props.Set(dateProp(ical.PropDateTimeEnd, ev.End, ev.AllDay))
	}

	if ev.Organizer != nil {
		comp.Props.Set(participantProp(ical.PropOrganizer, *ev.Organizer, false))
	}
	for _, a := range ev.Attendees {
		comp.Props.Add(participantProp(ical.PropAttendee, a, true))
	}
	return comp
}

// Encode serializes the calendar object CalendarFor returns for ev.
func Encode(ev invite.Event, method invite.Method, now time.Time) ([]byte, error) {
	data, err := Serialize(CalendarFor(ev, method, now))
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", ev.UID, err)
	}
	return data, nil
}

func dateProp(name string, t time.Time, allDay bool) *ical.Prop {
	prop := ical.NewProp(name)
	if allDay {
		prop.SetDate(t)
	} else {
		prop.SetDateTime(t.UTC())
	}
	return prop
}

func participantProp(name string, p invite.Participant, withStatus bool) *ical.Prop {
	prop := ical.NewProp(name)
	prop.Value = "mailto:" + p.Email
	if p.Name != "" {
		prop.Params.Set(ical.ParamCommonName, p.Name)
	}
	if withStatus && p.PartStat != "" {
		prop.Params.Set(ical.ParamParticipationStatus, string(p.PartStat))
	}
	return prop
}
