package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beekhof/mail-invites/internal/config"
	"github.com/beekhof/mail-invites/internal/display"
	"github.com/beekhof/mail-invites/internal/invite"
	"github.com/beekhof/mail-invites/internal/store/sqlite"
)

const requestICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Test//EN\r\n" +
	"METHOD:REQUEST\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:cli-evt-1@example.com\r\n" +
	"SEQUENCE:1\r\n" +
	"DTSTAMP:20260301T080000Z\r\n" +
	"DTSTART:20260310T090000Z\r\n" +
	"DTEND:20260310T100000Z\r\n" +
	"SUMMARY:Planning\r\n" +
	"ORGANIZER;CN=Alice:mailto:alice@example.com\r\n" +
	"ATTENDEE;PARTSTAT=NEEDS-ACTION:mailto:bob@example.com\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

// writeWorkspace creates a config with a local store and one invitation.
func writeWorkspace(t *testing.T) (configPath, dbPath, msgPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "invites.db")
	configPath = filepath.Join(dir, "config.json")
	msgPath = filepath.Join(dir, "invite.ics")

	data, _ := json.Marshal(config.Config{
		Addresses: []string{"bob@example.com"},
		Stores:    []config.Store{{Name: "local", Type: config.StoreSQLite, DBPath: dbPath}},
	})
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(msgPath, []byte(requestICS), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath, dbPath, msgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReconcileThenRespond(t *testing.T) {
	configPath, dbPath, msgPath := writeWorkspace(t)

	out, err := execute(t, "--config", configPath, "--json", "reconcile", msgPath)
	if err != nil {
		t.Fatalf("reconcile returned an error: %v\n%s", err, out)
	}
	var views []display.View
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("reconcile output is not JSON: %v\n%s", err, out)
	}
	if len(views) != 1 || views[0].UID != "cli-evt-1@example.com" || views[0].Calendar != "default" {
		t.Fatalf("views = %+v", views)
	}
	if views[0].Actions["accept"] != "enabled" {
		t.Errorf("actions = %v", views[0].Actions)
	}

	out, err = execute(t, "--config", configPath, "--json", "respond", msgPath, "accept")
	if err != nil {
		t.Fatalf("respond returned an error: %v\n%s", err, out)
	}

	s, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ev, _, err := s.FetchEventByUID(context.Background(), "cli-evt-1@example.com", nil)
	if err != nil || ev == nil {
		t.Fatalf("FetchEventByUID() = %v, %v", ev, err)
	}
	bob, ok := ev.Attendee("bob@example.com")
	if !ok || bob.PartStat != invite.PartStatAccepted {
		t.Errorf("attendee = %+v, want ACCEPTED", bob)
	}
	if n, _ := s.EventCount(context.Background()); n != 1 {
		t.Errorf("EventCount() = %d, want 1", n)
	}
}

func TestRespond_UnknownAnswer(t *testing.T) {
	configPath, _, msgPath := writeWorkspace(t)
	if _, err := execute(t, "--config", configPath, "respond", msgPath, "maybe"); err == nil {
		t.Error("expected error for unknown answer")
	}
}

func TestAcceptCounter_Unavailable(t *testing.T) {
	configPath, _, msgPath := writeWorkspace(t)
	_, err := execute(t, "--config", configPath, "accept-counter", msgPath)
	if err == nil || !strings.Contains(err.Error(), invite.ErrActionUnavailable.Error()) {
		t.Errorf("accept-counter on a REQUEST = %v, want ErrActionUnavailable", err)
	}
}

func TestShow_TaskOnlyCalendarIsNotAnInvitation(t *testing.T) {
	configPath, _, _ := writeWorkspace(t)
	todoPath := filepath.Join(filepath.Dir(configPath), "task.ics")
	todo := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//Test//EN\r\n" +
		"METHOD:REQUEST\r\n" +
		"BEGIN:VTODO\r\n" +
		"UID:todo-1@example.com\r\n" +
		"DTSTAMP:20260301T080000Z\r\n" +
		"END:VTODO\r\n" +
		"END:VCALENDAR\r\n"
	if err := os.WriteFile(todoPath, []byte(todo), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", configPath, "--json", "show", todoPath)
	if err != nil {
		t.Fatalf("show returned an error: %v\n%s", err, out)
	}
	var view display.View
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("show output is not JSON: %v\n%s", err, out)
	}
	if view.Error != "" || view.UID != "" || !view.Hidden {
		t.Errorf("view = %+v, want a hidden model with no invitation and no error", view)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.Contains(out, Version) {
		t.Errorf("version = %q, %v", out, err)
	}
}

func TestOnlyCalendars(t *testing.T) {
	cals := []invite.CalendarRef{
		{ID: "/work/", Name: "Work", IsDefault: true},
		{ID: "/home/", Name: "Home"},
		{ID: "/club/", Name: "Club"},
	}
	if got := onlyCalendars(cals, nil); len(got) != 3 {
		t.Errorf("no filter kept %d calendars", len(got))
	}

	got := onlyCalendars(cals, []string{"Home", "/club/"})
	if len(got) != 2 || got[0].ID != "/home/" || !got[0].IsDefault {
		t.Errorf("filtered = %+v, want Home promoted to default", got)
	}
	if cals[1].IsDefault {
		t.Error("onlyCalendars modified its input")
	}
}

func TestOpenBackend_SQLiteSeedsCalendars(t *testing.T) {
	st := config.Store{
		Name:            "local",
		Type:            config.StoreSQLite,
		DBPath:          filepath.Join(t.TempDir(), "invites.db"),
		Calendars:       []string{"work", "home"},
		DefaultCalendar: "home",
	}
	b, err := openBackend(context.Background(), st)
	if err != nil {
		t.Fatalf("openBackend() returned an error: %v", err)
	}
	defer b.Close()

	if len(b.calendars) != 2 {
		t.Fatalf("calendars = %+v", b.calendars)
	}
	if def := b.defaultCalendar(); def == nil || def.ID != "home" {
		t.Errorf("default calendar = %+v, want home", def)
	}
}

func TestSummaryLine(t *testing.T) {
	ev := invite.Event{UID: "u", Summary: "Planning"}
	line := summaryLine("a.eml", invite.Model{Method: invite.MethodRequest, FromMessage: &ev}, nil)
	if !strings.Contains(line, "Planning") || !strings.Contains(line, "not in calendar") {
		t.Errorf("line = %q", line)
	}
	line = summaryLine("b.eml", invite.Model{}, nil)
	if !strings.Contains(line, "no invitation") {
		t.Errorf("line = %q", line)
	}
	line = summaryLine("c.eml", invite.Model{Err: invite.Classify(invite.ParsingError, nil)}, nil)
	if !strings.Contains(line, invite.Message(invite.ParsingError)) {
		t.Errorf("line = %q", line)
	}
}
