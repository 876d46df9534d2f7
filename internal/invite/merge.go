package invite

// planner decides what, if anything, a method writes to the store. It is
// pure: the Reconciler performs the write.
type planner func(m Model) (Event, bool)

// planners has one entry per Method.
var planners = map[Method]planner{
	MethodRequest: planUpsert,
	MethodAdd:     planUpsert,
	MethodCancel:  planCancel,
	MethodReply:   planReply,
	MethodCounter: planNothing,
	MethodRefresh: planNothing,
}

// planUpsert stores the incoming version unless the stored one is newer.
func planUpsert(m Model) (Event, bool) {
	incoming := m.FromMessage.Clone()
	stored := m.FromStore
	if stored == nil {
		return asStored(incoming, ""), true
	}
	diff := SequenceDiff(incoming, *stored)
	if diff < 0 {
		debugf("incoming %s is stale (sequence %d < %d), keeping stored copy", incoming.UID, incoming.Sequence, stored.Sequence)
		return Event{}, false
	}
	if diff == 0 {
		// Same revision: replies already recorded on the stored copy win
		// over the untouched statuses of the invitation.
		incoming = keepAnsweredStatuses(incoming, *stored)
	}
	next := asStored(incoming, stored.StoreID)
	if eventsEqual(next, *stored) {
		debugf("stored copy of %s is already current", incoming.UID)
		return Event{}, false
	}
	return next, true
}

// planCancel marks the stored copy as cancelled.
func planCancel(m Model) (Event, bool) {
	if m.FromStore == nil || m.FromStore.IsCancelled() {
		return Event{}, false
	}
	next := m.FromStore.Clone()
	next.Status = StatusCancelled
	if m.FromMessage.Sequence > next.Sequence {
		next.Sequence = m.FromMessage.Sequence
		next.HasSequence = true
	}
	return next, true
}

// planReply copies the replying attendees' statuses onto the stored copy.
func planReply(m Model) (Event, bool) {
	if m.FromStore == nil {
		debugf("reply for unknown event %s ignored", m.FromMessage.UID)
		return Event{}, false
	}
	next := m.FromStore.Clone()
	changed := false
	for _, a := range m.FromMessage.Attendees {
		current, ok := next.Attendee(a.Email)
		if !ok || a.PartStat == "" || current.PartStat == a.PartStat {
			continue
		}
		next, _ = next.WithAttendeeStatus(a.Email, a.PartStat)
		changed = true
	}
	return next, changed
}

func planNothing(Model) (Event, bool) { return Event{}, false }

func asStored(ev Event, storeID string) Event {
	ev.Source = SourceStore
	ev.Method = ""
	ev.StoreID = storeID
	return ev
}

func keepAnsweredStatuses(incoming, stored Event) Event {
	out := incoming.Clone()
	for i, a := range out.Attendees {
		if a.PartStat != "" && a.PartStat != PartStatNeedsAction {
			continue
		}
		if prev, ok := stored.Attendee(a.Email); ok && prev.PartStat != "" {
			out.Attendees[i].PartStat = prev.PartStat
		}
	}
	return out
}

// eventsEqual compares the fields a write would change.
func eventsEqual(a, b Event) bool {
	if a.UID != b.UID || a.Sequence != b.Sequence || a.Status != b.Status {
		return false
	}
	if a.Summary != b.Summary || a.Description != b.Description || a.Location != b.Location {
		return false
	}
	if !a.Start.Equal(b.Start) || !a.End.Equal(b.End) || a.AllDay != b.AllDay || a.RRule != b.RRule {
		return false
	}
	if (a.Organizer == nil) != (b.Organizer == nil) {
		return false
	}
	if a.Organizer != nil && !SameAddress(a.Organizer.Email, b.Organizer.Email) {
		return false
	}
	if len(a.Attendees) != len(b.Attendees) {
		return false
	}
	for _, att := range a.Attendees {
		other, ok := b.Attendee(att.Email)
		if !ok || other.PartStat != att.PartStat {
			return false
		}
	}
	return true
}
