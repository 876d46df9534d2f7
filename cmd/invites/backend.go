package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/beekhof/mail-invites/internal/auth"
	"github.com/beekhof/mail-invites/internal/config"
	"github.com/beekhof/mail-invites/internal/contacts"
	"github.com/beekhof/mail-invites/internal/ics"
	"github.com/beekhof/mail-invites/internal/invite"
	"github.com/beekhof/mail-invites/internal/message"
	"github.com/beekhof/mail-invites/internal/store/caldav"
	"github.com/beekhof/mail-invites/internal/store/google"
	"github.com/beekhof/mail-invites/internal/store/sqlite"
)

// backend is an opened calendar store with its discovered calendars.
type backend struct {
	name      string
	store     invite.Store
	calendars []invite.CalendarRef
	close     func() error
}

func (b *backend) defaultCalendar() *invite.CalendarRef {
	for _, c := range b.calendars {
		if c.IsDefault {
			cal := c
			return &cal
		}
	}
	return nil
}

func (b *backend) reconciler() *invite.Reconciler {
	return invite.NewReconciler(b.store, b.calendars, recorder)
}

func (b *backend) Close() {
	if b.close == nil {
		return
	}
	if err := b.close(); err != nil {
		log.Printf("Warning: [%s] failed to close store: %v", b.name, err)
	}
}

// openBackend connects to the configured store.
func openBackend(ctx context.Context, st config.Store) (*backend, error) {
	b := &backend{name: st.Name}
	switch st.Type {
	case config.StoreCalDAV:
		s, err := caldav.New(st.ServerURL, st.Username, st.Password)
		if err != nil {
			return nil, err
		}
		cals, err := s.Calendars(ctx, st.DefaultCalendar)
		if err != nil {
			return nil, err
		}
		b.store, b.calendars = s, onlyCalendars(cals, st.Calendars)

	case config.StoreGoogle:
		oauthConfig, err := config.LoadGoogleCredentials(st.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Google credentials: %w", err)
		}
		httpClient, err := auth.NewClient(ctx, oauthConfig, auth.TokenFile(st.TokenPath), auth.LoopbackCodes(os.Stderr, 5*time.Minute))
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
		s, err := google.New(ctx, httpClient)
		if err != nil {
			return nil, err
		}
		cals, err := s.Calendars(ctx, st.Calendars)
		if err != nil {
			return nil, err
		}
		b.store, b.calendars = s, cals

	case config.StoreSQLite:
		s, err := sqlite.Open(st.DBPath)
		if err != nil {
			return nil, err
		}
		if err := seedCalendars(ctx, s, st); err != nil {
			s.Close()
			return nil, err
		}
		cals, err := s.ListCalendars(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		b.store, b.calendars, b.close = s, cals, s.Close

	default:
		return nil, fmt.Errorf("unknown store type %q", st.Type)
	}

	if len(b.calendars) == 0 {
		b.Close()
		return nil, fmt.Errorf("store %s has no usable calendars", st.Name)
	}
	debugf("[%s] using %d calendars, default %v", st.Name, len(b.calendars), b.defaultCalendar())
	return b, nil
}

// onlyCalendars keeps the calendars whose ID is listed. An empty list
// keeps all of them. The default flag moves to the first survivor if the
// default was filtered out.
func onlyCalendars(cals []invite.CalendarRef, ids []string) []invite.CalendarRef {
	if len(ids) == 0 {
		return cals
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []invite.CalendarRef
	hasDefault := false
	for _, c := range cals {
		if wanted[c.ID] || wanted[c.Name] {
			out = append(out, c)
			hasDefault = hasDefault || c.IsDefault
		}
	}
	if !hasDefault && len(out) > 0 {
		out[0].IsDefault = true
	}
	return out
}

// seedCalendars makes sure the configured calendars exist in a local
// database. Without configuration a single "default" calendar is used.
func seedCalendars(ctx context.Context, s *sqlite.Store, st config.Store) error {
	names := st.Calendars
	if len(names) == 0 {
		names = []string{"default"}
	}
	def := st.DefaultCalendar
	if def == "" {
		def = names[0]
	}
	for _, name := range names {
		if err := s.EnsureCalendar(ctx, invite.CalendarRef{ID: name, Name: name, IsDefault: name == def}); err != nil {
			return err
		}
	}
	return nil
}

// loadContacts merges the configured vCard path with the store's CardDAV
// address book. Failures only cost sender names, so they are logged.
func loadContacts(ctx context.Context, st config.Store) []invite.Contact {
	var out []invite.Contact
	if cfg.ContactsPath != "" {
		cs, err := contacts.LoadPath(cfg.ContactsPath)
		if err != nil {
			log.Printf("Warning: failed to load contacts from %s: %v", cfg.ContactsPath, err)
		}
		out = append(out, cs...)
	}
	if st.Type == config.StoreCalDAV && st.AddressBookPath != "" {
		client, err := contacts.NewCardDAVClient(st.ServerURL, st.Username, st.Password)
		if err == nil {
			var cs []invite.Contact
			cs, err = contacts.FetchCardDAV(ctx, client, st.AddressBookPath)
			out = append(out, cs...)
		}
		if err != nil {
			log.Printf("Warning: [%s] failed to load address book %s: %v", st.Name, st.AddressBookPath, err)
		}
	}
	return out
}

// readInput turns a message file into builder input. Unparseable calendar
// payloads become a parse error on the model; messages without one, or
// whose calendar holds no event, yield a model with no invitation.
func readInput(path string, b *backend, contactList []invite.Contact) (invite.Input, error) {
	msg, err := message.ReadFile(path)
	if err != nil {
		return invite.Input{}, err
	}

	in := invite.Input{
		Message:         msg.Info,
		Contacts:        contactList,
		Addresses:       cfg.Addresses,
		DefaultCalendar: b.defaultCalendar(),
	}
	inv, err := msg.Invitation()
	switch {
	case errors.Is(err, message.ErrNoCalendar), errors.Is(err, ics.ErrNoEvent):
		debugf("%s: %v", path, err)
	case err != nil:
		log.Printf("Warning: %s: %v", path, err)
		recorder.ParseFailed()
		in.ParseErr = err
	default:
		in.Invitation = &inv
	}
	return in, nil
}

// setup opens the selected store and loads contacts.
func setup(ctx context.Context) (*backend, []invite.Contact, error) {
	st, err := cfg.SelectedStore()
	if err != nil {
		return nil, nil, err
	}
	b, err := openBackend(ctx, st)
	if err != nil {
		return nil, nil, fmt.Errorf("[%s] failed to open store: %w", st.Name, err)
	}
	return b, loadContacts(ctx, st), nil
}

func passTimeout() time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}
