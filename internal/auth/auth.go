// Package auth authorizes the Google Calendar store with OAuth 2.0.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenStore saves and loads OAuth tokens.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// TokenFile is a TokenStore holding one token as JSON at the given path.
type TokenFile string

// SaveToken replaces the file atomically. The file and any directory it
// needs are readable by the owner only.
func (f TokenFile) SaveToken(token *oauth2.Token) error {
	dir := filepath.Dir(string(f))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(token); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := os.Rename(tmp.Name(), string(f)); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// LoadToken returns nil, nil until a token has been saved.
func (f TokenFile) LoadToken() (*oauth2.Token, error) {
	file, err := os.Open(string(f))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer file.Close()

	token := new(oauth2.Token)
	if err := json.NewDecoder(file).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token file %s: %w", f, err)
	}
	return token, nil
}

// CodeSource obtains an authorization code for a first-time login.
type CodeSource func(ctx context.Context, oauthConfig *oauth2.Config) (string, error)

// autoSaveTokenSource persists every token the wrapped source refreshes.
type autoSaveTokenSource struct {
	mu         sync.Mutex
	source     oauth2.TokenSource
	tokenStore TokenStore
	lastToken  *oauth2.Token
}

func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}

	return token, nil
}

// NewClient returns an HTTP client authorized by the stored token. When no
// token exists yet, codes is asked for an authorization code which is then
// exchanged and saved.
func NewClient(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, codes CodeSource) (*http.Client, error) {
	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		if codes == nil {
			return nil, fmt.Errorf("no stored token and no interactive login available")
		}
		code, err := codes(ctx, oauthConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to receive authorization code: %w", err)
		}
		if code == "" {
			return nil, fmt.Errorf("no authorization code received")
		}

		token, err = oauthConfig.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		if err := tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
		log.Printf("Authorization successful, token saved")
	}

	source := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, oauthConfig.TokenSource(ctx, token)),
		tokenStore: tokenStore,
		lastToken:  token,
	}
	return oauth2.NewClient(ctx, source), nil
}

// ReaderCodes prints the authorization URL to out and reads the code the
// user pastes into in. It suits headless machines.
func ReaderCodes(in io.Reader, out io.Writer) CodeSource {
	return func(ctx context.Context, oauthConfig *oauth2.Config) (string, error) {
		authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		fmt.Fprintln(out, "Please visit the following URL to authorize the application:")
		fmt.Fprintln(out, authURL)
		fmt.Fprint(out, "Enter the authorization code: ")

		var code string
		if _, err := fmt.Fscanln(in, &code); err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		return code, nil
	}
}

// LoopbackCodes runs a local HTTP server for the OAuth redirect. It
// listens on 127.0.0.1:8080 when free and on a random port otherwise.
func LoopbackCodes(out io.Writer, timeout time.Duration) CodeSource {
	return func(ctx context.Context, oauthConfig *oauth2.Config) (string, error) {
		listener, err := net.Listen("tcp", "127.0.0.1:8080")
		if err != nil {
			listener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return "", fmt.Errorf("failed to start local server: %w", err)
			}
		}

		port := listener.Addr().(*net.TCPAddr).Port
		oauthConfig.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d", port)

		codeChan := make(chan string, 1)
		errorChan := make(chan error, 1)
		server := &http.Server{
			Handler:      callbackHandler(codeChan, errorChan),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  10 * time.Second,
		}
		go func() {
			if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
				select {
				case errorChan <- fmt.Errorf("server error: %w", err):
				default:
				}
			}
		}()
		defer server.Close()

		authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		if port != 8080 {
			fmt.Fprintf(out, "Note: Port 8080 was unavailable. Make sure to add %s to your authorized redirect URIs.\n", oauthConfig.RedirectURL)
		}
		fmt.Fprintln(out, "Please visit the following URL to authorize the application:")
		fmt.Fprintln(out, authURL)
		fmt.Fprintln(out, "Waiting for authorization...")

		select {
		case code := <-codeChan:
			return code, nil
		case err := <-errorChan:
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(timeout):
			return "", fmt.Errorf("authorization timeout: no response received within %v", timeout)
		}
	}
}

func callbackHandler(codeChan chan<- string, errorChan chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := r.URL.Query().Get("code"); code != "" {
			fmt.Fprint(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
			select {
			case codeChan <- code:
			default:
			}
			return
		}
		errMsg := r.URL.Query().Get("error")
		if errMsg == "" {
			errMsg = "no authorization code received"
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", errMsg)
		select {
		case errorChan <- fmt.Errorf("authorization error: %s", errMsg):
		default:
		}
	})
}
