package invite

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an invitation could not be fully reconciled.
type ErrorKind int

const (
	// FetchingError is a failure to obtain what is needed before the stored
	// event can be read or written, such as calendar keys. Plain lookup
	// failures are not reported with this kind; they degrade to "not found".
	FetchingError ErrorKind = iota + 1
	// UpdatingError is a failure while persisting the reconciled event.
	UpdatingError
	// ParsingError means the ICS payload was not a usable invitation.
	ParsingError
)

// ErrorKinds lists every kind, in declaration order.
var ErrorKinds = []ErrorKind{FetchingError, UpdatingError, ParsingError}

var errorKindNames = map[ErrorKind]string{
	FetchingError: "FETCHING_ERROR",
	UpdatingError: "UPDATING_ERROR",
	ParsingError:  "PARSING_ERROR",
}

var errorMessages = map[ErrorKind]string{
	FetchingError: "We could not retrieve the event from your calendar.",
	UpdatingError: "We could not update the event in your calendar.",
	ParsingError:  "This invitation could not be read.",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Message returns the user-facing text for an error kind.
func Message(k ErrorKind) string {
	if msg, ok := errorMessages[k]; ok {
		return msg
	}
	return "Something went wrong with this invitation."
}

// Error is a classified reconciliation failure. It is stored in the Model
// instead of being returned to the caller.
type Error struct {
	Kind  ErrorKind
	Cause error
}

// Classify wraps cause as an invitation error of the given kind.
func Classify(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Message returns the user-facing text for e.
func (e *Error) Message() string { return Message(e.Kind) }

// asInvitationError returns err as an *Error, classifying it with kind when
// it is not one already.
func asInvitationError(err error, kind ErrorKind) *Error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}
	return Classify(kind, err)
}
