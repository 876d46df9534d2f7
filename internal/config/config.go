package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2"
)

// Store types.
const (
	StoreCalDAV = "caldav"
	StoreGoogle = "google"
	StoreSQLite = "sqlite"
)

// KeyringService is the keyring service name CalDAV passwords are stored under.
const KeyringService = "mail-invites"

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials reads a credentials file downloaded from Google
// Cloud Console and returns an oauth2 config for the calendar scope.
func LoadGoogleCredentials(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	clientID, clientSecret := creds.Installed.ClientID, creds.Installed.ClientSecret
	if clientID == "" {
		clientID, clientSecret = creds.Web.ClientID, creds.Web.ClientSecret
	}
	if clientID == "" {
		return nil, fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://127.0.0.1:8080", // replaced by the auth flow
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.events"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}, nil
}

// Store is one calendar backend the invitations can be reconciled against.
type Store struct {
	Name string `json:"name"`
	Type string `json:"type"` // "caldav", "google" or "sqlite"

	// Calendars restricts the lookup to these calendar IDs (CalDAV paths
	// or Google calendar IDs). Empty means every calendar the store lists.
	Calendars       []string `json:"calendars,omitempty"`
	DefaultCalendar string   `json:"default_calendar,omitempty"`

	// CalDAV
	ServerURL string `json:"server_url,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	// AddressBookPath, when set, names a CardDAV address book on the same
	// server whose contacts are merged with ContactsPath.
	AddressBookPath string `json:"address_book_path,omitempty"`

	// Google
	CredentialsPath string `json:"credentials_path,omitempty"`
	TokenPath       string `json:"token_path,omitempty"`

	// SQLite
	DBPath string `json:"db_path,omitempty"`
}

// Config holds the configuration for the invitation tool.
type Config struct {
	// Addresses are the viewer's own mail addresses, used to decide whether
	// the viewer organizes an event.
	Addresses    []string `json:"addresses" env:"INVITES_ADDRESSES" envSeparator:","`
	ContactsPath string   `json:"contacts_path,omitempty" env:"INVITES_CONTACTS_PATH"`
	MetricsAddr  string   `json:"metrics_addr,omitempty" env:"INVITES_METRICS_ADDR"`
	Concurrency  int      `json:"concurrency,omitempty" env:"INVITES_CONCURRENCY"`
	// TimeoutSeconds bounds one reconciliation pass.
	TimeoutSeconds int     `json:"timeout_seconds,omitempty" env:"INVITES_TIMEOUT_SECONDS"`
	Stores         []Store `json:"stores"`

	// StoreName selects one entry of Stores. Defaults to the first.
	StoreName string `json:"store,omitempty" env:"INVITES_STORE"`
}

// Overrides carries command-line values. Zero values leave the lower
// layers untouched.
type Overrides struct {
	Addresses    []string
	ContactsPath string
	MetricsAddr  string
	StoreName    string
	Concurrency  int
}

// LoadConfigFromFile loads configuration from a JSON file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// passwordLookup reads a CalDAV password from the OS keyring. Tests swap it.
var passwordLookup = keyringPassword

func keyringPassword(username string) (string, error) {
	ring, err := keyring.Open(keyring.Config{ServiceName: KeyringService})
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}
	item, err := ring.Get(username)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("no password for %s in keyring %q", username, KeyringService)
		}
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return string(item.Data), nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line overrides
// 2. Environment variables (INVITES_*)
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Overrides) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables. Unset variables keep
	// the file values.
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Step 3: Override with command-line flags (highest priority)
	if len(flags.Addresses) > 0 {
		config.Addresses = flags.Addresses
	}
	if flags.ContactsPath != "" {
		config.ContactsPath = flags.ContactsPath
	}
	if flags.MetricsAddr != "" {
		config.MetricsAddr = flags.MetricsAddr
	}
	if flags.StoreName != "" {
		config.StoreName = flags.StoreName
	}
	if flags.Concurrency > 0 {
		config.Concurrency = flags.Concurrency
	}

	// Step 4: Apply defaults and validate required fields
	if len(config.Addresses) == 0 {
		return nil, fmt.Errorf("addresses must be provided via --address flag, INVITES_ADDRESSES environment variable, or config file")
	}
	for i, addr := range config.Addresses {
		config.Addresses[i] = strings.ToLower(strings.TrimSpace(addr))
	}

	if len(config.Stores) == 0 {
		return nil, fmt.Errorf("stores array must be provided in config file. At least one store is required")
	}

	for i := range config.Stores {
		if err := validateStore(i, &config.Stores[i]); err != nil {
			return nil, err
		}
	}

	if config.StoreName != "" {
		if _, err := config.SelectedStore(); err != nil {
			return nil, err
		}
	}

	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 30
	}

	return &config, nil
}

func validateStore(i int, store *Store) error {
	if store.Name == "" {
		store.Name = fmt.Sprintf("Store %d", i+1)
	}

	switch store.Type {
	case StoreCalDAV:
		if store.ServerURL == "" {
			return fmt.Errorf("stores[%d] (name: %s): server_url must be provided for CalDAV store", i, store.Name)
		}
		if store.Username == "" {
			return fmt.Errorf("stores[%d] (name: %s): username must be provided for CalDAV store", i, store.Name)
		}
		if store.Password == "" {
			password, err := passwordLookup(store.Username)
			if err != nil {
				return fmt.Errorf("stores[%d] (name: %s): password must be provided in config file or keyring: %w", i, store.Name, err)
			}
			store.Password = password
		}
	case StoreGoogle:
		if store.CredentialsPath == "" {
			return fmt.Errorf("stores[%d] (name: %s): credentials_path must be provided for Google store", i, store.Name)
		}
		if store.TokenPath == "" {
			return fmt.Errorf("stores[%d] (name: %s): token_path must be provided for Google store", i, store.Name)
		}
		if len(store.Calendars) == 0 {
			store.Calendars = []string{"primary"}
		}
	case StoreSQLite:
		if store.DBPath == "" {
			return fmt.Errorf("stores[%d] (name: %s): db_path must be provided for SQLite store", i, store.Name)
		}
	default:
		return fmt.Errorf("stores[%d].type must be 'caldav', 'google' or 'sqlite', got '%s'", i, store.Type)
	}
	return nil
}

// SelectedStore returns the store named by StoreName, or the first one.
func (c *Config) SelectedStore() (Store, error) {
	if c.StoreName == "" {
		return c.Stores[0], nil
	}
	names := make([]string, len(c.Stores))
	for i, s := range c.Stores {
		if s.Name == c.StoreName {
			return s, nil
		}
		names[i] = s.Name
	}
	return Store{}, fmt.Errorf("store '%s' not found in config. Available stores: %v", c.StoreName, names)
}
