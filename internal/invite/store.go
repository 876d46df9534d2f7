package invite

import (
	"context"
	"log"
)

// CalendarKeys is the identity and key material a store needs to write to a
// calendar. Stores that do not encrypt leave the key slices empty.
type CalendarKeys struct {
	MemberID     string
	AddressKeys  [][]byte
	CalendarKeys [][]byte
}

// EventFetcher looks up a stored event by UID. A nil event with a nil error
// means the UID is unknown to every given calendar.
type EventFetcher interface {
	FetchEventByUID(ctx context.Context, uid string, calendars []CalendarRef) (*Event, *CalendarRef, error)
}

// KeyResolver returns what is needed to write to a calendar.
type KeyResolver interface {
	ResolveCalendarKeys(ctx context.Context, calendarID string) (CalendarKeys, error)
}

// EventPersister writes an event and returns the version the store kept.
type EventPersister interface {
	PersistEvent(ctx context.Context, ev Event, cal CalendarRef, keys CalendarKeys) (Event, error)
}

// Store is a calendar backend usable by the Reconciler.
type Store interface {
	EventFetcher
	KeyResolver
	EventPersister
}

// Recorder receives operational signals from reconciliation passes.
type Recorder interface {
	FetchDowngraded(method Method)
	Persisted(method Method)
	Failed(method Method, kind ErrorKind)
	PassFinished(method Method, outcome string)
	StalePassDropped()
}

type nopRecorder struct{}

func (nopRecorder) FetchDowngraded(Method) {}
func (nopRecorder) Persisted(Method) {}
func (nopRecorder) Failed(Method, ErrorKind) {}
func (nopRecorder) PassFinished(Method, string) {}
func (nopRecorder) StalePassDropped() {}

var verbose bool

// SetVerbose turns DEBUG logging on or off.
func SetVerbose(v bool) { verbose = v }

func debugf(format string, args ...any) {
	if verbose {
		log.Printf("DEBUG: "+format, args...)
	}
}
