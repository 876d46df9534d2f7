package invite

// ActionState tells whether an action is offered and whether it can be used.
type ActionState int

const (
	ActionAbsent ActionState = iota
	ActionEnabled
	ActionDisabled
)

func (s ActionState) String() string {
	switch s {
	case ActionEnabled:
		return "enabled"
	case ActionDisabled:
		return "disabled"
	default:
		return "absent"
	}
}

// Actions is the set of actions offered for an invitation.
type Actions struct {
	Accept             ActionState
	Tentative          ActionState
	Decline            ActionState
	AcceptCounter      ActionState
	AcknowledgeRefresh ActionState
}

// Empty reports whether no action is offered.
func (a Actions) Empty() bool {
	return a == Actions{}
}

type actionKey struct {
	method Method
	role   Role
}

// deriverTable maps each method and role pair that offers actions to its
// rule. Pairs missing from the table offer nothing.
var deriverTable = map[actionKey]func(m Model) Actions{
	{MethodCounter, RoleOrganizer}: counterActions,
	{MethodRefresh, RoleOrganizer}: refreshActions,
	{MethodRequest, RoleAttendee}:  replyActions,
	{MethodAdd, RoleAttendee}:      replyActions,
}

// DeriveActions computes the actions a reconciled model allows.
func DeriveActions(m Model) Actions {
	if m.Err != nil || !m.HasInvitation() {
		return Actions{}
	}
	rule, ok := deriverTable[actionKey{m.Method, m.Role}]
	if !ok {
		return Actions{}
	}
	return rule(m)
}

// counterActions gates accepting a counter-proposal on the proposal being
// made against the current revision.
func counterActions(m Model) Actions {
	stored := m.FromStore
	if stored == nil || !stored.HasSequence {
		return Actions{}
	}
	switch diff := SequenceDiff(*m.FromMessage, *stored); {
	case diff == 0:
		return Actions{AcceptCounter: ActionEnabled}
	case diff < 0:
		return Actions{AcceptCounter: ActionDisabled}
	default:
		// The store is behind the proposal; nothing to accept against.
		return Actions{}
	}
}

func refreshActions(m Model) Actions {
	if m.FromStore == nil {
		return Actions{}
	}
	return Actions{AcknowledgeRefresh: ActionEnabled}
}

func replyActions(m Model) Actions {
	stored := m.FromStore
	if stored != nil && stored.IsCancelled() && SequenceDiff(*m.FromMessage, *stored) <= 0 {
		return Actions{}
	}
	state := ActionEnabled
	if isStale(*m.FromMessage, stored) {
		state = ActionDisabled
	}
	return Actions{Accept: state, Tentative: state, Decline: state}
}
