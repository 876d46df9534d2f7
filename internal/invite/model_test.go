package invite

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuild_RoleDerivation(t *testing.T) {
	tests := []struct {
		name      string
		organizer *Participant
		addresses []string
		want      Role
	}{
		{"viewer is organizer", &Participant{Email: "alice@example.com"}, []string{"alice@example.com"}, RoleOrganizer},
		{"case and mailto insensitive", &Participant{Email: "mailto:Alice@Example.COM"}, []string{"bob@example.com", "ALICE@example.com"}, RoleOrganizer},
		{"viewer is attendee", &Participant{Email: "alice@example.com"}, []string{"bob@example.com"}, RoleAttendee},
		{"no organizer", nil, []string{"alice@example.com"}, RoleAttendee},
		{"empty organizer address", &Participant{}, []string{""}, RoleAttendee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := testEvent("evt-1", 0)
			ev.Organizer = tt.organizer
			m := Build(Input{
				Invitation: &Invitation{Method: MethodRequest, Event: ev},
				Addresses:  tt.addresses,
			})
			if m.Role != tt.want {
				t.Errorf("Role = %v, want %v", m.Role, tt.want)
			}
		})
	}
}

func TestBuild_InitialState(t *testing.T) {
	m := buildModel(MethodRequest, testEvent("evt-1", 2))

	if m.Method != MethodRequest {
		t.Errorf("Method = %v, want REQUEST", m.Method)
	}
	if m.FromMessage == nil || m.FromMessage.UID != "evt-1" {
		t.Fatalf("FromMessage = %+v, want evt-1", m.FromMessage)
	}
	if m.FromMessage.Source != SourceMessage {
		t.Errorf("FromMessage.Source = %v, want SourceMessage", m.FromMessage.Source)
	}
	if m.FromStore != nil {
		t.Errorf("FromStore = %+v, want nil", m.FromStore)
	}
	if m.Err != nil {
		t.Errorf("Err = %v, want nil", m.Err)
	}
	if !m.HasInvitation() {
		t.Error("HasInvitation() = false, want true")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	cal := testCalendar
	in := Input{
		Invitation:      &Invitation{Method: MethodCounter, Event: testEvent("evt-1", 3)},
		Message:         MessageInfo{ID: "msg-9", FromAddress: "carol@example.com"},
		Contacts:        []Contact{{Name: "Carol C.", Emails: []string{"CAROL@example.com"}}},
		Addresses:       []string{"alice@example.com"},
		DefaultCalendar: &cal,
	}

	first := Build(in)
	second := Build(in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Build is not deterministic:\n%+v\n%+v", first, second)
	}
	if first.Sender != "Carol C." {
		t.Errorf("Sender = %q, want contact name", first.Sender)
	}
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	ev := testEvent("evt-1", 1)
	in := Input{Invitation: &Invitation{Method: MethodRequest, Event: ev}}
	m := Build(in)

	in.Invitation.Event.Attendees[0].PartStat = PartStatDeclined
	if m.FromMessage.Attendees[0].PartStat != PartStatNeedsAction {
		t.Error("model shares attendee slice with its input")
	}
}

func TestBuild_ParseError(t *testing.T) {
	cause := errors.New("missing VEVENT")
	m := Build(Input{ParseErr: cause})

	if m.Err == nil || m.Err.Kind != ParsingError {
		t.Fatalf("Err = %v, want PARSING_ERROR", m.Err)
	}
	if !errors.Is(m.Err, cause) {
		t.Error("Err does not wrap the parse failure")
	}
	if m.HasInvitation() {
		t.Error("HasInvitation() = true for a parse failure")
	}
	if m.Hidden() {
		t.Error("a model carrying an error must not be hidden")
	}
}

func TestBuild_KeepsClassifiedError(t *testing.T) {
	m := Build(Input{ParseErr: Classify(FetchingError, errors.New("no keys"))})
	if m.Err.Kind != FetchingError {
		t.Errorf("Kind = %v, want FETCHING_ERROR", m.Err.Kind)
	}
}

func TestModel_Hidden(t *testing.T) {
	refresh := buildModel(MethodRefresh, testEvent("evt-1", 0), organizer.Email)
	if !refresh.Hidden() {
		t.Error("organizer REFRESH should be hidden")
	}
	request := buildModel(MethodRequest, testEvent("evt-1", 0))
	if request.Hidden() {
		t.Error("attendee REQUEST should be shown")
	}
	if !Build(Input{}).Hidden() {
		t.Error("model without invitation should be hidden")
	}
}

func TestModel_WithStoreUIDMismatchPanics(t *testing.T) {
	m := buildModel(MethodRequest, testEvent("evt-1", 0))
	other := testEvent("evt-2", 0)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on UID mismatch")
		}
	}()
	m.withStore(&other, &testCalendar)
}

func TestSenderName(t *testing.T) {
	contacts := []Contact{{Name: "Dana", Emails: []string{"dana@example.com"}}}
	tests := []struct {
		msg  MessageInfo
		want string
	}{
		{MessageInfo{FromAddress: "Dana@example.com", FromName: "D"}, "Dana"},
		{MessageInfo{FromAddress: "eve@example.com", FromName: "Eve"}, "Eve"},
		{MessageInfo{FromAddress: "Eve@Example.com"}, "eve@example.com"},
		{MessageInfo{FromName: "Nobody"}, "Nobody"},
	}
	for _, tt := range tests {
		if got := senderName(tt.msg, contacts); got != tt.want {
			t.Errorf("senderName(%+v) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
