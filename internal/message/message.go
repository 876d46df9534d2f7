// Package message pulls the calendar payload and header context out of
// RFC 5322 messages.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beekhof/mail-invites/internal/ics"
	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/emersion/go-ical"
	gomessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const calendarType = "text/calendar"

// ErrNoCalendar is returned when a message has no text/calendar part.
var ErrNoCalendar = errors.New("message has no text/calendar part")

// Message is a parsed mail message that may carry an invitation.
type Message struct {
	Info invite.MessageInfo
	// Calendar is the decoded body of the first text/calendar part.
	Calendar []byte
	// Method is the method parameter of that part's Content-Type, if any.
	Method string
}

// HasCalendar reports whether a calendar part was found.
func (m *Message) HasCalendar() bool {
	return len(m.Calendar) > 0
}

// Invitation decodes the calendar part. A payload without a METHOD
// property takes the method parameter of its Content-Type. It returns
// ErrNoCalendar when the message carries no calendar part.
func (m *Message) Invitation() (invite.Invitation, error) {
	if !m.HasCalendar() {
		return invite.Invitation{}, ErrNoCalendar
	}
	cal, err := ical.NewDecoder(bytes.NewReader(m.Calendar)).Decode()
	if err != nil {
		return invite.Invitation{}, &ics.ParseError{Reason: "failed to decode calendar", Err: err}
	}
	if cal.Props.Get(ical.PropMethod) == nil && m.Method != "" {
		cal.Props.SetText(ical.PropMethod, m.Method)
	}
	return ics.FromCalendar(cal)
}

// Read parses a message and extracts its first text/calendar part.
// A message without one is returned with an empty Calendar and no error.
func Read(r io.Reader) (*Message, error) {
	entity, err := gomessage.Read(r)
	if err != nil && !gomessage.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	msg := &Message{Info: headerInfo(mail.Header{Header: entity.Header})}

	err = entity.Walk(func(path []int, part *gomessage.Entity, err error) error {
		if err != nil && !gomessage.IsUnknownCharset(err) {
			return err
		}
		if msg.HasCalendar() {
			return nil
		}
		mediaType, params, err := part.Header.ContentType()
		if err != nil || !strings.EqualFold(mediaType, calendarType) {
			return nil
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return fmt.Errorf("failed to read calendar part: %w", err)
		}
		msg.Calendar = data
		msg.Method = strings.ToUpper(params["method"])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk message parts: %w", err)
	}
	return msg, nil
}

// ReadFile parses the message stored at path. Bare .ics files are
// accepted too and yield a message with only a calendar payload.
func ReadFile(path string) (*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open message: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".ics") {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return &Message{Info: invite.MessageInfo{ID: path}, Calendar: data}, nil
	}

	msg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if msg.Info.ID == "" {
		msg.Info.ID = path
	}
	return msg, nil
}

func headerInfo(h mail.Header) invite.MessageInfo {
	var info invite.MessageInfo
	info.ID, _ = h.MessageID()
	info.Subject, _ = h.Subject()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		info.FromAddress = invite.NormalizeAddress(from[0].Address)
		info.FromName = from[0].Name
	}
	return info
}
