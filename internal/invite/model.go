package invite

import "fmt"

// Invitation is the calendar payload carried by one message.
type Invitation struct {
	Method Method
	Event  Event
}

// MessageInfo is the part of the owning message the engine looks at.
type MessageInfo struct {
	ID          string
	FromAddress string
	FromName    string
	Subject     string
}

// Contact is an entry of the viewer's address book.
type Contact struct {
	Name   string
	Emails []string
}

// Input gathers everything Build needs. Exactly one of Invitation and
// ParseErr is expected to be set.
type Input struct {
	Invitation      *Invitation
	ParseErr        error
	Message         MessageInfo
	Contacts        []Contact
	Addresses       []string
	DefaultCalendar *CalendarRef
}

// Model is the state of one invitation at a phase boundary. A Model is a
// value: every phase returns a new one and none of its events are modified
// in place, so any Model a caller holds is a consistent snapshot.
type Model struct {
	Method          Method
	Role            Role
	FromMessage     *Event
	FromStore       *Event
	Calendar        *CalendarRef
	DefaultCalendar *CalendarRef
	Err             *Error

	MessageID string
	Sender    string

	// Pass is the reconciliation pass that produced this model. Zero until
	// a Session starts a pass.
	Pass uint64
}

// Build creates the initial model for an invitation. It performs no I/O
// and returns equal models for equal inputs.
func Build(in Input) Model {
	m := Model{
		MessageID:       in.Message.ID,
		Sender:          senderName(in.Message, in.Contacts),
		DefaultCalendar: cloneCalendar(in.DefaultCalendar),
	}

	if in.ParseErr != nil {
		m.Err = asInvitationError(in.ParseErr, ParsingError)
		return m
	}
	if in.Invitation == nil {
		return m
	}

	ev := in.Invitation.Event.Clone()
	ev.Source = SourceMessage
	if ev.Method == "" {
		ev.Method = in.Invitation.Method
	}
	m.Method = in.Invitation.Method
	m.Role = roleFor(ev, in.Addresses)
	m.FromMessage = &ev
	return m
}

// HasInvitation reports whether the model carries an incoming event.
func (m Model) HasInvitation() bool {
	return m.FromMessage != nil && m.FromMessage.UID != ""
}

// Hidden reports whether the invitation card should not be shown at all.
// Refresh requests addressed to the organizer only offer an acknowledgement.
func (m Model) Hidden() bool {
	if m.Err != nil {
		return false
	}
	return !m.HasInvitation() || (m.Role == RoleOrganizer && m.Method == MethodRefresh)
}

// Title returns the event summary or a placeholder.
func (m Model) Title() string {
	if m.FromMessage != nil && m.FromMessage.Summary != "" {
		return m.FromMessage.Summary
	}
	return "(no title)"
}

// withStore returns a copy of m holding the stored counterpart.
func (m Model) withStore(ev *Event, cal *CalendarRef) Model {
	if ev != nil && m.FromMessage != nil && ev.UID != m.FromMessage.UID {
		panic(fmt.Sprintf("invite: stored event UID %q does not match invitation UID %q", ev.UID, m.FromMessage.UID))
	}
	if ev != nil {
		c := ev.Clone()
		c.Source = SourceStore
		ev = &c
	}
	m.FromStore = ev
	m.Calendar = cloneCalendar(cal)
	return m
}

func (m Model) withError(err *Error) Model {
	m.Err = err
	return m
}

func roleFor(ev Event, addresses []string) Role {
	if ev.Organizer == nil || ev.Organizer.Email == "" {
		return RoleAttendee
	}
	for _, addr := range addresses {
		if SameAddress(addr, ev.Organizer.Email) {
			return RoleOrganizer
		}
	}
	return RoleAttendee
}

func senderName(msg MessageInfo, contacts []Contact) string {
	if msg.FromAddress == "" {
		return msg.FromName
	}
	for _, c := range contacts {
		for _, email := range c.Emails {
			if SameAddress(email, msg.FromAddress) && c.Name != "" {
				return c.Name
			}
		}
	}
	if msg.FromName != "" {
		return msg.FromName
	}
	return NormalizeAddress(msg.FromAddress)
}

func cloneCalendar(c *CalendarRef) *CalendarRef {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
