package invite

import (
	"context"
	"errors"
	"log"
)

// Pass outcomes reported to the Recorder.
const (
	OutcomeSkipped   = "skipped"
	OutcomeUnchanged = "unchanged"
	OutcomePersisted = "persisted"
	OutcomeFailed    = "failed"
	OutcomeNoTarget  = "no_target"
	OutcomeCancelled = "cancelled"
)

// Reconciler runs the fetch and update phases of a reconciliation pass
// against one calendar store.
type Reconciler struct {
	store     Store
	calendars []CalendarRef
	recorder  Recorder
}

// NewReconciler creates a Reconciler for the viewer's calendars. recorder
// may be nil.
func NewReconciler(store Store, calendars []CalendarRef, recorder Recorder) *Reconciler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Reconciler{
		store:     store,
		calendars: append([]CalendarRef(nil), calendars...),
		recorder:  recorder,
	}
}

// Reconcile looks up the stored copy of the invitation, merges the two
// according to the message method and persists the result. It never fails:
// problems are reported through the returned model's Err.
func (r *Reconciler) Reconcile(ctx context.Context, m Model) Model {
	if m.Err != nil || !m.HasInvitation() {
		r.recorder.PassFinished(m.Method, OutcomeSkipped)
		return m
	}

	stored, cal, err := r.fetch(ctx, m)
	if err != nil {
		r.recorder.PassFinished(m.Method, OutcomeCancelled)
		return abandoned(m, err)
	}
	m = m.withStore(stored, cal)

	m, outcome := r.update(ctx, m)
	r.recorder.PassFinished(m.Method, outcome)
	return m
}

// fetch returns the stored counterpart of the invitation, if any. Lookup
// failures are treated as "not found" so the invitation can still be shown,
// except when the pass itself is over: then the context error is returned
// and nothing may be written.
func (r *Reconciler) fetch(ctx context.Context, m Model) (*Event, *CalendarRef, error) {
	uid := m.FromMessage.UID
	ev, cal, err := r.store.FetchEventByUID(ctx, uid, r.calendars)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			debugf("lookup of event %s abandoned: %v", uid, ctxErr)
			return nil, nil, ctxErr
		}
		log.Printf("Warning: lookup of event %s failed, continuing as not found: %v", uid, err)
		r.recorder.FetchDowngraded(m.Method)
		return nil, nil, nil
	}
	if ev == nil || cal == nil {
		debugf("no stored event for %s", uid)
		return nil, nil, nil
	}
	debugf("found stored event %s in calendar %s (sequence %d)", uid, cal.ID, ev.Sequence)
	return ev, cal, nil
}

// abandoned returns the model of a pass whose context ended. A cancelled
// pass (teardown or retry) leaves the model as it was; a pass that ran out
// of time reports a fetching error so the viewer can retry.
func abandoned(m Model, err error) Model {
	if errors.Is(err, context.DeadlineExceeded) {
		return m.withError(Classify(FetchingError, err))
	}
	return m
}

// target picks the calendar a write goes to: the one holding the stored
// copy, else the viewer's default, else the first calendar searched.
func (r *Reconciler) target(m Model) *CalendarRef {
	if m.Calendar != nil {
		return m.Calendar
	}
	if m.DefaultCalendar != nil {
		return m.DefaultCalendar
	}
	for _, c := range r.calendars {
		if c.IsDefault {
			return &c
		}
	}
	if len(r.calendars) > 0 {
		c := r.calendars[0]
		return &c
	}
	return nil
}

// update applies the method's merge policy and performs at most one write.
func (r *Reconciler) update(ctx context.Context, m Model) (Model, string) {
	plan := planners[m.Method]
	if plan == nil {
		return m, OutcomeUnchanged
	}
	ev, ok := plan(m)
	if !ok {
		return m, OutcomeUnchanged
	}

	target := r.target(m)
	if target == nil {
		log.Printf("Warning: no calendar to store event %s in, skipping write", ev.UID)
		return m, OutcomeNoTarget
	}
	if err := ctx.Err(); err != nil {
		debugf("write of event %s abandoned: %v", ev.UID, err)
		return abandoned(m, err), OutcomeCancelled
	}

	saved, err := r.write(ctx, m.Method, ev, *target)
	if err != nil {
		return m.withError(err), OutcomeFailed
	}
	r.recorder.Persisted(m.Method)
	return m.withStore(&saved, target), OutcomePersisted
}

// write resolves keys for the target calendar and persists ev once.
func (r *Reconciler) write(ctx context.Context, method Method, ev Event, cal CalendarRef) (Event, *Error) {
	keys, err := r.store.ResolveCalendarKeys(ctx, cal.ID)
	if err != nil {
		log.Printf("Warning: failed to resolve keys for calendar %s: %v", cal.ID, err)
		r.recorder.Failed(method, FetchingError)
		return Event{}, Classify(FetchingError, err)
	}
	saved, err := r.store.PersistEvent(ctx, ev, cal, keys)
	if err != nil {
		log.Printf("Warning: failed to persist event %s to calendar %s: %v", ev.UID, cal.ID, err)
		r.recorder.Failed(method, UpdatingError)
		return Event{}, Classify(UpdatingError, err)
	}
	debugf("persisted event %s (sequence %d) to calendar %s", saved.UID, saved.Sequence, cal.ID)
	return saved, nil
}
