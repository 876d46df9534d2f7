// Package display provides terminal formatting for invitation output.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/charmbracelet/lipgloss"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// ActionLabel returns a styled label for an action, or "" when the action
// is not offered.
func ActionLabel(name string, state invite.ActionState) string {
	switch state {
	case invite.ActionEnabled:
		return Success.Render("[" + name + "]")
	case invite.ActionDisabled:
		return Dim.Render("(" + name + ")")
	default:
		return ""
	}
}

// StatusLabel returns a styled event status.
func StatusLabel(status string) string {
	switch status {
	case invite.StatusCancelled:
		return ErrStyle.Render(status)
	case invite.StatusTentative:
		return Warn.Render(status)
	case "":
		return Dim.Render("-")
	default:
		return status
	}
}

// When formats the time span of an event.
func When(ev invite.Event) string {
	if ev.Start.IsZero() {
		return ""
	}
	if ev.AllDay {
		s := ev.Start.Format("Mon Jan 2, 2006")
		// DTEND is exclusive for all-day events.
		if last := ev.End.AddDate(0, 0, -1); ev.End.After(ev.Start) && last.After(ev.Start) {
			s += " - " + last.Format("Mon Jan 2, 2006")
		}
		return s + " (all day)"
	}
	start := ev.Start.Local()
	s := start.Format("Mon Jan 2, 2006 15:04")
	if !ev.End.IsZero() {
		end := ev.End.Local()
		if end.YearDay() == start.YearDay() && end.Year() == start.Year() {
			s += " - " + end.Format("15:04")
		} else {
			s += " - " + end.Format("Mon Jan 2, 2006 15:04")
		}
	}
	return s
}

func sequence(ev *invite.Event) string {
	if ev == nil {
		return "-"
	}
	if !ev.HasSequence && ev.Sequence == 0 {
		return "0 (implicit)"
	}
	return fmt.Sprintf("%d", ev.Sequence)
}

// RenderModel formats an invitation card. It returns "" when the message
// carries nothing worth showing.
func RenderModel(m invite.Model, actions invite.Actions) string {
	var b strings.Builder

	if m.Err != nil {
		fmt.Fprintf(&b, "%s %s\n", ErrStyle.Render("✗"), m.Err.Message())
		b.WriteString(Muted.Render("  Run the command again to retry.") + "\n")
		return b.String()
	}
	if m.Hidden() {
		if line := renderActions(actions); line != "" {
			b.WriteString(line + "\n")
		}
		return b.String()
	}

	ev := m.FromMessage
	fmt.Fprintf(&b, "%s\n", Bold.Render(m.Title()))
	fmt.Fprintf(&b, "%s %s %s\n", Muted.Render("Method:"), m.Method, Dim.Render("as "+strings.ToLower(m.Role.String())))
	if m.Sender != "" {
		fmt.Fprintf(&b, "%s %s\n", Muted.Render("From:  "), m.Sender)
	}
	if when := When(*ev); when != "" {
		fmt.Fprintf(&b, "%s %s\n", Muted.Render("When:  "), when)
	}
	if ev.Location != "" {
		fmt.Fprintf(&b, "%s %s\n", Muted.Render("Where: "), ev.Location)
	}
	if ev.Organizer != nil {
		fmt.Fprintf(&b, "%s %s\n", Muted.Render("Organizer:"), participant(*ev.Organizer))
	}
	for _, a := range ev.Attendees {
		fmt.Fprintf(&b, "  %s %s\n", participant(a), Dim.Render(string(a.PartStat)))
	}

	fmt.Fprintf(&b, "%s %s\n", Muted.Render("Status:"), StatusLabel(ev.Status))
	fmt.Fprintf(&b, "%s incoming %s, stored %s\n", Muted.Render("Sequence:"), sequence(ev), sequence(m.FromStore))
	switch {
	case m.Calendar != nil:
		fmt.Fprintf(&b, "%s %s\n", Muted.Render("Calendar:"), calendarName(*m.Calendar))
	case m.DefaultCalendar != nil:
		fmt.Fprintf(&b, "%s %s %s\n", Muted.Render("Calendar:"), calendarName(*m.DefaultCalendar), Dim.Render("(not saved)"))
	}

	if line := renderActions(actions); line != "" {
		b.WriteString(line + "\n")
	}
	return b.String()
}

func renderActions(a invite.Actions) string {
	var labels []string
	for _, item := range []struct {
		name  string
		state invite.ActionState
	}{
		{"accept", a.Accept},
		{"tentative", a.Tentative},
		{"decline", a.Decline},
		{"accept counter", a.AcceptCounter},
		{"acknowledge refresh", a.AcknowledgeRefresh},
	} {
		if l := ActionLabel(item.name, item.state); l != "" {
			labels = append(labels, l)
		}
	}
	return strings.Join(labels, " ")
}

func participant(p invite.Participant) string {
	if p.Name == "" {
		return p.Email
	}
	return fmt.Sprintf("%s <%s>", p.Name, p.Email)
}

func calendarName(c invite.CalendarRef) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// View is the JSON shape of a reconciled invitation.
type View struct {
	MessageID      string            `json:"message_id,omitempty"`
	UID            string            `json:"uid,omitempty"`
	Title          string            `json:"title,omitempty"`
	Method         string            `json:"method,omitempty"`
	Role           string            `json:"role,omitempty"`
	Sender         string            `json:"sender,omitempty"`
	Start          *time.Time        `json:"start,omitempty"`
	Status         string            `json:"status,omitempty"`
	Sequence       int               `json:"sequence"`
	StoredSequence *int              `json:"stored_sequence,omitempty"`
	Calendar       string            `json:"calendar,omitempty"`
	Error          string            `json:"error,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Hidden         bool              `json:"hidden"`
	Actions        map[string]string `json:"actions,omitempty"`
}

// NewView flattens a model and its actions for JSON output.
func NewView(m invite.Model, a invite.Actions) View {
	v := View{
		MessageID: m.MessageID,
		Sender:    m.Sender,
		Hidden:    m.Hidden(),
	}
	if m.Err != nil {
		v.Error = m.Err.Kind.String()
		v.ErrorMessage = m.Err.Message()
	}
	if m.HasInvitation() {
		ev := m.FromMessage
		v.UID = ev.UID
		v.Title = m.Title()
		v.Method = string(m.Method)
		v.Role = m.Role.String()
		v.Status = ev.Status
		v.Sequence = ev.Sequence
		if !ev.Start.IsZero() {
			start := ev.Start
			v.Start = &start
		}
	}
	if m.FromStore != nil {
		seq := m.FromStore.Sequence
		v.StoredSequence = &seq
	}
	if m.Calendar != nil {
		v.Calendar = m.Calendar.ID
	}

	states := map[string]invite.ActionState{
		"accept":              a.Accept,
		"tentative":           a.Tentative,
		"decline":             a.Decline,
		"accept_counter":      a.AcceptCounter,
		"acknowledge_refresh": a.AcknowledgeRefresh,
	}
	for name, state := range states {
		if state == invite.ActionAbsent {
			continue
		}
		if v.Actions == nil {
			v.Actions = make(map[string]string)
		}
		v.Actions[name] = state.String()
	}
	return v
}
