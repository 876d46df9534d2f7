package invite

import (
	"context"
	"errors"
	"sync"
)

var errTest = errors.New("test failure")

// fakeStore is an in-memory Store that records every write.
type fakeStore struct {
	mu        sync.Mutex
	events    map[string]Event       // uid -> stored event
	calendars map[string]CalendarRef // uid -> calendar holding it

	fetchErr   error
	keysErr    error
	persistErr error

	fetchCalls int
	persisted  []Event
	block      chan struct{} // when set, FetchEventByUID waits on it
	entered    chan struct{} // signalled when FetchEventByUID is called
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:    make(map[string]Event),
		calendars: make(map[string]CalendarRef),
	}
}

func (f *fakeStore) put(cal CalendarRef, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.UID] = ev
	f.calendars[ev.UID] = cal
}

func (f *fakeStore) get(uid string) (Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[uid]
	return ev, ok
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.persisted)
}

func (f *fakeStore) FetchEventByUID(ctx context.Context, uid string, calendars []CalendarRef) (*Event, *CalendarRef, error) {
	f.mu.Lock()
	block := f.block
	f.fetchCalls++
	f.mu.Unlock()
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, nil, f.fetchErr
	}
	ev, ok := f.events[uid]
	if !ok {
		return nil, nil, nil
	}
	cal := f.calendars[uid]
	return &ev, &cal, nil
}

func (f *fakeStore) ResolveCalendarKeys(ctx context.Context, calendarID string) (CalendarKeys, error) {
	if f.keysErr != nil {
		return CalendarKeys{}, f.keysErr
	}
	return CalendarKeys{MemberID: "member-" + calendarID}, nil
}

func (f *fakeStore) PersistEvent(ctx context.Context, ev Event, cal CalendarRef, keys CalendarKeys) (Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return Event{}, f.persistErr
	}
	if ev.StoreID == "" {
		ev.StoreID = cal.ID + "/" + ev.UID
	}
	f.events[ev.UID] = ev
	f.calendars[ev.UID] = cal
	f.persisted = append(f.persisted, ev)
	return ev, nil
}

// countingRecorder counts Recorder calls.
type countingRecorder struct {
	mu         sync.Mutex
	downgrades int
	persisted  int
	failures   []ErrorKind
	outcomes   []string
	staleDrops int
}

func (c *countingRecorder) FetchDowngraded(Method) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downgrades++
}

func (c *countingRecorder) Persisted(Method) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persisted++
}

func (c *countingRecorder) Failed(_ Method, kind ErrorKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, kind)
}

func (c *countingRecorder) PassFinished(_ Method, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func (c *countingRecorder) StalePassDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staleDrops++
}

var (
	testCalendar = CalendarRef{ID: "cal-personal", Name: "Personal", IsDefault: true}
	organizer    = Participant{Email: "alice@example.com", Name: "Alice"}
	viewer       = "bob@example.com"
)

func testEvent(uid string, seq int) Event {
	return Event{
		UID:         uid,
		Sequence:    seq,
		HasSequence: true,
		Organizer:   &Participant{Email: organizer.Email, Name: organizer.Name},
		Attendees: []Participant{
			{Email: viewer, Name: "Bob", PartStat: PartStatNeedsAction},
			{Email: "carol@example.com", Name: "Carol", PartStat: PartStatNeedsAction},
		},
		Status:  StatusConfirmed,
		Summary: "Planning",
	}
}

func buildModel(method Method, ev Event, addresses ...string) Model {
	if len(addresses) == 0 {
		addresses = []string{viewer}
	}
	cal := testCalendar
	return Build(Input{
		Invitation:      &Invitation{Method: method, Event: ev},
		Message:         MessageInfo{ID: "msg-1", FromAddress: organizer.Email},
		Addresses:       addresses,
		DefaultCalendar: &cal,
	})
}
