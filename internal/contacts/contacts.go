// Package contacts loads the address book used to name invitation senders.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"
)

// Decode reads every vCard in r.
func Decode(r io.Reader) ([]invite.Contact, error) {
	dec := vcard.NewDecoder(r)
	var out []invite.Contact
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("failed to decode vcard: %w", err)
		}
		if c, ok := fromCard(card); ok {
			out = append(out, c)
		}
	}
}

// LoadPath loads contacts from a .vcf file or from every .vcf file in a
// directory. Unreadable files are skipped with a warning.
func LoadPath(path string) ([]invite.Contact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat contacts path: %w", err)
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contacts directory: %w", err)
	}
	var out []invite.Contact
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".vcf") {
			continue
		}
		cs, err := loadFile(filepath.Join(path, e.Name()))
		if err != nil {
			log.Printf("Warning: skipping contacts file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, cs...)
	}
	return out, nil
}

func loadFile(path string) ([]invite.Contact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// AddressBookQuerier is the part of a CardDAV client used to fetch contacts.
type AddressBookQuerier interface {
	QueryAddressBook(ctx context.Context, path string, query *carddav.AddressBookQuery) ([]carddav.AddressObject, error)
}

// NewCardDAVClient connects to a CardDAV server with basic auth.
func NewCardDAVClient(serverURL, username, password string) (*carddav.Client, error) {
	client, err := carddav.NewClient(webdav.HTTPClientWithBasicAuth(nil, username, password), serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create CardDAV client: %w", err)
	}
	return client, nil
}

// FetchCardDAV loads the contacts of one CardDAV address book.
func FetchCardDAV(ctx context.Context, client AddressBookQuerier, addressBookPath string) ([]invite.Contact, error) {
	query := &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{
			Props: []string{vcard.FieldFormattedName, vcard.FieldName, vcard.FieldEmail},
		},
	}
	objects, err := client.QueryAddressBook(ctx, addressBookPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	var out []invite.Contact
	for _, obj := range objects {
		if obj.Card == nil {
			continue
		}
		if c, ok := fromCard(obj.Card); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func fromCard(card vcard.Card) (invite.Contact, bool) {
	var c invite.Contact
	if fn := card.Get(vcard.FieldFormattedName); fn != nil {
		c.Name = strings.TrimSpace(fn.Value)
	}
	if c.Name == "" {
		if n := card.Name(); n != nil {
			c.Name = strings.TrimSpace(n.GivenName + " " + n.FamilyName)
		}
	}
	for _, email := range card[vcard.FieldEmail] {
		if addr := invite.NormalizeAddress(email.Value); addr != "" {
			c.Emails = append(c.Emails, addr)
		}
	}
	return c, len(c.Emails) > 0
}
