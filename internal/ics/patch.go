package ics

import (
	"bytes"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/emersion/go-ical"
)

// CalendarFor returns the calendar object to write for ev. An event read
// from an iCalendar object is written as that object with the fields the
// event models patched in; anything else the object holds, such as
// VTIMEZONE definitions, EXDATE lists and RECURRENCE-ID overrides, is kept
// as it was. Events without an object are built from scratch.
//
// A non-empty method sets METHOD; an empty one strips it, as stored
// calendar objects must not carry it.
func CalendarFor(ev invite.Event, method invite.Method, now time.Time) *ical.Calendar {
	if len(ev.Raw) > 0 {
		cal, err := patchObject(ev, method, now)
		if err == nil {
			return cal
		}
		log.Printf("Warning: rebuilding event %s from scratch: %v", ev.UID, err)
	}
	return ToCalendar(ev, method, now)
}

// Serialize encodes cal as an iCalendar document.
func Serialize(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rawObject completes cal with the properties the encoder insists on and
// encodes it. A calendar that still cannot be encoded yields nil.
func rawObject(cal *ical.Calendar) []byte {
	complete(cal, time.Now())
	data, err := Serialize(cal)
	if err != nil {
		return nil
	}
	return data
}

func complete(cal *ical.Calendar, now time.Time) {
	if cal.Props.Get(ical.PropVersion) == nil {
		cal.Props.SetText(ical.PropVersion, "2.0")
	}
	if cal.Props.Get(ical.PropProductID) == nil {
		cal.Props.SetText(ical.PropProductID, ProductID)
	}
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent && child.Props.Get(ical.PropDateTimeStamp) == nil {
			child.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
		}
	}
}

func patchObject(ev invite.Event, method invite.Method, now time.Time) (*ical.Calendar, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(ev.Raw)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored object: %w", err)
	}
	comp := mainEvent(cal)
	if comp == nil {
		return nil, ErrNoEvent
	}
	if uid, _ := comp.Props.Text(ical.PropUID); uid != ev.UID {
		return nil, fmt.Errorf("object holds event %q", uid)
	}
	base, err := EventFromComponent(comp)
	if err != nil {
		return nil, err
	}

	complete(cal, now)
	if method != "" {
		cal.Props.SetText(ical.PropMethod, string(method))
	} else {
		cal.Props.Del(ical.PropMethod)
	}
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	patchComponent(comp, base, ev)

	changed := changedStatuses(base, ev)
	for _, child := range cal.Children {
		if child == comp || child.Name != ical.CompEvent || child.Props.Get(ical.PropRecurrenceID) == nil {
			continue
		}
		if uid, _ := child.Props.Text(ical.PropUID); uid != ev.UID {
			continue
		}
		patchOverride(child, base, ev, changed)
	}
	return cal, nil
}

// patchComponent rewrites the properties of comp whose value in ev differs
// from base, the event comp was read as.
func patchComponent(comp *ical.Component, base, ev invite.Event) {
	if ev.Sequence != base.Sequence || ev.HasSequence != base.HasSequence {
		setSequence(comp, ev)
	}
	setText(comp, ical.PropSummary, base.Summary, ev.Summary)
	setText(comp, ical.PropDescription, base.Description, ev.Description)
	setText(comp, ical.PropLocation, base.Location, ev.Location)
	setText(comp, ical.PropStatus, base.Status, ev.Status)
	if ev.RRule != base.RRule {
		if ev.RRule == "" {
			comp.Props.Del(ical.PropRecurrenceRule)
		} else {
			rrule := ical.NewProp(ical.PropRecurrenceRule)
			rrule.Value = ev.RRule
			comp.Props.Set(rrule)
		}
	}

	startChanged := !ev.Start.Equal(base.Start) || ev.AllDay != base.AllDay
	if startChanged {
		setTime(comp, ical.PropDateTimeStart, ev.Start, ev.AllDay)
	}
	// DURATION is relative to DTSTART, so a moved start pins the end.
	if !ev.End.Equal(base.End) || (startChanged && comp.Props.Get(ical.PropDuration) != nil) {
		setTime(comp, ical.PropDateTimeEnd, ev.End, ev.AllDay)
		comp.Props.Del(ical.PropDuration)
	}

	if organizerChanged(base.Organizer, ev.Organizer) {
		if ev.Organizer == nil {
			comp.Props.Del(ical.PropOrganizer)
		} else {
			comp.Props.Set(participantProp(ical.PropOrganizer, *ev.Organizer, false))
		}
	}
	patchAttendees(comp, ev)
}

// patchOverride carries sequence and answer changes of the master event
// into a RECURRENCE-ID override.
func patchOverride(comp *ical.Component, base, ev invite.Event, changed map[string]invite.PartStat) {
	if ev.Sequence != base.Sequence && comp.Props.Get(ical.PropSequence) != nil {
		setSequence(comp, ev)
	}
	attendees := comp.Props.Values(ical.PropAttendee)
	for i := range attendees {
		if status, ok := changed[invite.NormalizeAddress(attendees[i].Value)]; ok {
			setPartStat(&attendees[i], status)
		}
	}
}

func changedStatuses(base, ev invite.Event) map[string]invite.PartStat {
	changed := make(map[string]invite.PartStat)
	for _, a := range ev.Attendees {
		before, ok := base.Attendee(a.Email)
		if ok && before.PartStat != a.PartStat && a.PartStat != "" {
			changed[invite.NormalizeAddress(a.Email)] = a.PartStat
		}
	}
	return changed
}

// patchAttendees keeps the ATTENDEE properties of attendees ev still has,
// with their parameters, updates their PARTSTAT and appends new ones.
func patchAttendees(comp *ical.Component, ev invite.Event) {
	var kept []ical.Prop
	seen := make(map[string]bool, len(ev.Attendees))
	for _, prop := range comp.Props.Values(ical.PropAttendee) {
		email := invite.NormalizeAddress(prop.Value)
		a, ok := ev.Attendee(email)
		if !ok || seen[email] {
			continue
		}
		seen[email] = true
		setPartStat(&prop, a.PartStat)
		kept = append(kept, prop)
	}
	for _, a := range ev.Attendees {
		email := invite.NormalizeAddress(a.Email)
		if seen[email] {
			continue
		}
		seen[email] = true
		kept = append(kept, *participantProp(ical.PropAttendee, a, true))
	}
	if len(kept) == 0 {
		comp.Props.Del(ical.PropAttendee)
		return
	}
	comp.Props[ical.PropAttendee] = kept
}

func setPartStat(prop *ical.Prop, status invite.PartStat) {
	current := invite.PartStat(strings.ToUpper(prop.Params.Get(ical.ParamParticipationStatus)))
	if current == "" {
		current = invite.PartStatNeedsAction
	}
	if status == "" || status == current {
		return
	}
	prop.Params.Set(ical.ParamParticipationStatus, string(status))
}

func setSequence(comp *ical.Component, ev invite.Event) {
	if !ev.HasSequence && ev.Sequence == 0 {
		comp.Props.Del(ical.PropSequence)
		return
	}
	seq := ical.NewProp(ical.PropSequence)
	seq.Value = strconv.Itoa(ev.Sequence)
	comp.Props.Set(seq)
}

func setText(comp *ical.Component, name, before, after string) {
	if before == after {
		return
	}
	if after == "" {
		comp.Props.Del(name)
		return
	}
	comp.Props.SetText(name, after)
}

// setTime writes t in the time zone the object already uses for the
// event's times, falling back to UTC.
func setTime(comp *ical.Component, name string, t time.Time, allDay bool) {
	if t.IsZero() {
		comp.Props.Del(name)
		return
	}
	if allDay {
		comp.Props.Set(dateProp(name, t, true))
		return
	}
	loc := zoneOf(comp, name, ical.PropDateTimeStart)
	prop := ical.NewProp(name)
	prop.SetDateTime(t.In(loc))
	comp.Props.Set(prop)
}

func zoneOf(comp *ical.Component, names ...string) *time.Location {
	for _, name := range names {
		prop := comp.Props.Get(name)
		if prop == nil {
			continue
		}
		if tzid := prop.Params.Get(ical.ParamTimezoneID); tzid != "" {
			if loc, err := time.LoadLocation(tzid); err == nil {
				return loc
			}
		}
	}
	return time.UTC
}

func organizerChanged(before, after *invite.Participant) bool {
	if (before == nil) != (after == nil) {
		return true
	}
	return before != nil && (!invite.SameAddress(before.Email, after.Email) || before.Name != after.Name)
}

// Recurrence returns the recurrence lines (RRULE, RDATE, EXDATE and EXRULE)
// of the main event in raw, as calendar APIs taking RFC 5545 text expect
// them, and the time zone its start is expressed in. Both are empty when
// raw holds no usable event.
func Recurrence(raw []byte) (lines []string, tzid string) {
	if len(raw) == 0 {
		return nil, ""
	}
	cal, err := ical.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		return nil, ""
	}
	comp := mainEvent(cal)
	if comp == nil {
		return nil, ""
	}
	if start := comp.Props.Get(ical.PropDateTimeStart); start != nil {
		tzid = start.Params.Get(ical.ParamTimezoneID)
	}
	for _, name := range []string{ical.PropRecurrenceRule, "EXRULE", ical.PropRecurrenceDates, ical.PropExceptionDates} {
		for _, prop := range comp.Props.Values(name) {
			lines = append(lines, propLine(prop))
		}
	}
	return lines, tzid
}

func propLine(prop ical.Prop) string {
	var b strings.Builder
	b.WriteString(prop.Name)
	names := make([]string, 0, len(prop.Params))
	for name := range prop.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := make([]string, len(prop.Params[name]))
		for i, v := range prop.Params[name] {
			if strings.ContainsAny(v, ";:,") {
				v = `"` + v + `"`
			}
			values[i] = v
		}
		fmt.Fprintf(&b, ";%s=%s", name, strings.Join(values, ","))
	}
	b.WriteString(":")
	b.WriteString(prop.Value)
	return b.String()
}
