package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/beekhof/mail-invites/internal/invite"
)

func icsDoc(method string, eventLines ...string) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
	}
	if method != "" {
		lines = append(lines, "METHOD:"+method)
	}
	lines = append(lines, "BEGIN:VEVENT")
	lines = append(lines, eventLines...)
	lines = append(lines, "END:VEVENT", "END:VCALENDAR", "")
	return strings.Join(lines, "\r\n")
}

func TestParse_Request(t *testing.T) {
	doc := icsDoc("REQUEST",
		"UID:evt-1@example.com",
		"DTSTAMP:20260301T080000Z",
		"SEQUENCE:3",
		"SUMMARY:Planning",
		"LOCATION:Room 4",
		"DTSTART:20260302T090000Z",
		"DTEND:20260302T100000Z",
		"ORGANIZER;CN=Alice:mailto:Alice@Example.com",
		"ATTENDEE;CN=Bob;PARTSTAT=ACCEPTED:mailto:bob@example.com",
		"ATTENDEE:mailto:carol@example.com",
	)

	inv, err := ParseBytes([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBytes() returned an error: %v", err)
	}
	if inv.Method != invite.MethodRequest || inv.Event.Method != invite.MethodRequest {
		t.Errorf("Method = %v / %v, want REQUEST", inv.Method, inv.Event.Method)
	}
	ev := inv.Event
	if ev.UID != "evt-1@example.com" || ev.Sequence != 3 || !ev.HasSequence {
		t.Errorf("UID/Sequence = %q/%d/%v", ev.UID, ev.Sequence, ev.HasSequence)
	}
	if ev.Summary != "Planning" || ev.Location != "Room 4" {
		t.Errorf("Summary/Location = %q/%q", ev.Summary, ev.Location)
	}
	if ev.Organizer == nil || ev.Organizer.Email != "alice@example.com" || ev.Organizer.Name != "Alice" {
		t.Errorf("Organizer = %+v", ev.Organizer)
	}
	if len(ev.Attendees) != 2 {
		t.Fatalf("got %d attendees, want 2", len(ev.Attendees))
	}
	if ev.Attendees[0].PartStat != invite.PartStatAccepted {
		t.Errorf("bob PartStat = %v, want ACCEPTED", ev.Attendees[0].PartStat)
	}
	if ev.Attendees[1].PartStat != invite.PartStatNeedsAction {
		t.Errorf("carol PartStat = %v, want NEEDS-ACTION default", ev.Attendees[1].PartStat)
	}
	wantStart := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !ev.Start.Equal(wantStart) || !ev.End.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("times = %v-%v", ev.Start, ev.End)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing method", icsDoc("", "UID:a", "DTSTAMP:20260301T080000Z")},
		{"unknown method", icsDoc("PUBLISH", "UID:a", "DTSTAMP:20260301T080000Z")},
		{"no uid", icsDoc("REQUEST", "DTSTAMP:20260301T080000Z")},
		{"bad sequence", icsDoc("REQUEST", "UID:a", "DTSTAMP:20260301T080000Z", "SEQUENCE:two")},
		{"not ics", "hello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes([]byte(tt.doc))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("err = %v, want *ParseError", err)
			}
		})
	}
}

func TestParse_MissingSequence(t *testing.T) {
	inv, err := ParseBytes([]byte(icsDoc("CANCEL", "UID:a", "DTSTAMP:20260301T080000Z")))
	if err != nil {
		t.Fatalf("ParseBytes() returned an error: %v", err)
	}
	if inv.Event.HasSequence || inv.Event.Sequence != 0 {
		t.Errorf("Sequence = %d/%v, want absent", inv.Event.Sequence, inv.Event.HasSequence)
	}
}

func TestParse_AllDayWithDuration(t *testing.T) {
	inv, err := ParseBytes([]byte(icsDoc("REQUEST",
		"UID:a",
		"DTSTAMP:20260301T080000Z",
		"DTSTART;VALUE=DATE:20260310",
		"DURATION:P1D",
	)))
	if err != nil {
		t.Fatalf("ParseBytes() returned an error: %v", err)
	}
	if !inv.Event.AllDay {
		t.Error("AllDay = false, want true")
	}
	if got := inv.Event.End.Sub(inv.Event.Start); got != 24*time.Hour {
		t.Errorf("duration = %v, want 24h", got)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ev := invite.Event{
		UID:         "evt-9",
		Sequence:    2,
		HasSequence: true,
		Status:      invite.StatusConfirmed,
		Summary:     "Review",
		Start:       start,
		End:         start.Add(90 * time.Minute),
		Organizer:   &invite.Participant{Email: "alice@example.com", Name: "Alice"},
		Attendees: []invite.Participant{
			{Email: "bob@example.com", PartStat: invite.PartStatDeclined},
		},
	}

	data, err := Encode(ev, invite.MethodRequest, start)
	if err != nil {
		t.Fatalf("Encode() returned an error: %v", err)
	}
	inv, err := ParseBytes(data)
	if err != nil {
		t.Fatalf("ParseBytes() returned an error: %v\n%s", err, data)
	}
	got := inv.Event
	if got.UID != ev.UID || got.Sequence != 2 || got.Status != invite.StatusConfirmed || got.Summary != "Review" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.Start.Equal(ev.Start) || !got.End.Equal(ev.End) {
		t.Errorf("times = %v-%v", got.Start, got.End)
	}
	if len(got.Attendees) != 1 || got.Attendees[0].PartStat != invite.PartStatDeclined {
		t.Errorf("Attendees = %+v", got.Attendees)
	}
}

func TestToCalendar_StoredObjectHasNoMethod(t *testing.T) {
	cal := ToCalendar(invite.Event{UID: "a"}, "", time.Now())
	if cal.Props.Get("METHOD") != nil {
		t.Error("stored calendar object carries METHOD")
	}
}

func TestDecodeObject_WithoutMethod(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	data, err := Encode(invite.Event{UID: "obj-1", Start: start, End: start.AddDate(0, 0, 1), AllDay: true}, "", start)
	if err != nil {
		t.Fatalf("Encode() returned an error: %v", err)
	}
	ev, err := DecodeObject(data)
	if err != nil {
		t.Fatalf("DecodeObject() returned an error: %v", err)
	}
	if ev.UID != "obj-1" || !ev.AllDay || ev.Method != "" {
		t.Errorf("event = %+v", ev)
	}
	if _, err := ParseBytes(data); err == nil {
		t.Error("ParseBytes accepted a calendar without METHOD")
	}
}

func TestParse_TaskOnlyCalendarHasNoEvent(t *testing.T) {
	doc := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
		"METHOD:REQUEST",
		"BEGIN:VTODO",
		"UID:todo-1",
		"DTSTAMP:20260301T080000Z",
		"SUMMARY:File expenses",
		"END:VTODO",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	_, err := ParseBytes([]byte(doc))
	if !errors.Is(err, ErrNoEvent) {
		t.Errorf("ParseBytes() = %v, want ErrNoEvent", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("err = %v, want *ParseError", err)
	}
}
