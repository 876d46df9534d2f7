package invite

import (
	"context"
	"errors"
	"fmt"
)

// ErrActionUnavailable is returned when an action is not enabled for a model.
var ErrActionUnavailable = errors.New("action is not available for this invitation")

// Respond records the viewer's answer to an invitation on the stored copy.
// The viewer is located among the attendees by any of addresses.
func (r *Reconciler) Respond(ctx context.Context, m Model, status PartStat, addresses []string) (Model, error) {
	actions := DeriveActions(m)
	var state ActionState
	switch status {
	case PartStatAccepted:
		state = actions.Accept
	case PartStatTentative:
		state = actions.Tentative
	case PartStatDeclined:
		state = actions.Decline
	default:
		return m, fmt.Errorf("unsupported participation status %q", status)
	}
	if state != ActionEnabled {
		return m, ErrActionUnavailable
	}

	base := m.FromMessage
	if m.FromStore != nil {
		base = m.FromStore
	}
	var next Event
	found := false
	for _, addr := range addresses {
		if next, found = base.WithAttendeeStatus(addr, status); found {
			break
		}
	}
	if !found {
		return m, fmt.Errorf("none of the viewer's addresses is an attendee of %s", base.UID)
	}

	target := r.target(m)
	if target == nil {
		return m, fmt.Errorf("no calendar to store event %s in", base.UID)
	}
	if err := ctx.Err(); err != nil {
		return m, err
	}
	saved, ierr := r.write(ctx, m.Method, asStored(next, base.StoreID), *target)
	if ierr != nil {
		return m.withError(ierr), nil
	}
	r.recorder.Persisted(m.Method)
	return m.withStore(&saved, target), nil
}

// AcceptCounter applies a counter-proposal to the stored event and bumps its
// sequence so attendees receive it as a new revision.
func (r *Reconciler) AcceptCounter(ctx context.Context, m Model) (Model, error) {
	if DeriveActions(m).AcceptCounter != ActionEnabled {
		return m, ErrActionUnavailable
	}
	proposal := m.FromMessage
	next := m.FromStore.Clone()
	if !proposal.Start.IsZero() {
		next.Start = proposal.Start
		next.End = proposal.End
		next.AllDay = proposal.AllDay
	}
	if proposal.Location != "" {
		next.Location = proposal.Location
	}
	next.Sequence++
	next.HasSequence = true

	if err := ctx.Err(); err != nil {
		return m, err
	}
	saved, ierr := r.write(ctx, m.Method, next, *m.Calendar)
	if ierr != nil {
		return m.withError(ierr), nil
	}
	r.recorder.Persisted(m.Method)
	return m.withStore(&saved, m.Calendar), nil
}
