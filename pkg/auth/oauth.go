package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// ClientSecretsFile is the Google API credentials.json downloaded from
	// the cloud console, kept in the config directory.
	ClientSecretsFile = "credentials.json"

	// TokenFile holds the user's access and refresh token.
	TokenFile = "google-token.json"

	// LocalhostAuthPort receives the OAuth redirect.
	LocalhostAuthPort = "6789"
)

// ErrNotAuthorized means no Google token has been stored yet.
var ErrNotAuthorized = errors.New("google account not authorized, run `todovault auth`")

// TodoistClient returns an HTTP client that sends token as a bearer
// credential on every request.
func TodoistClient(ctx context.Context, token string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return oauth2.NewClient(ctx, src)
}

// Google runs the installed-app OAuth flow against files in Dir.
type Google struct {
	Dir    string
	Scopes []string
	Logger *log.Logger
	// Out receives the authorization URL. Defaults to stdout.
	Out io.Writer
}

func (g Google) logger() *log.Logger {
	if g.Logger == nil {
		return log.Default()
	}
	return g.Logger
}

// Config reads the client secrets and pins localhost redirects to
// LocalhostAuthPort.
func (g Google) Config() (*oauth2.Config, error) {
	path := filepath.Join(g.Dir, ClientSecretsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", path, err)
	}
	config, err := google.ConfigFromJSON(b, g.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	if config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob" || config.RedirectURL == "" {
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
		return config, nil
	}
	u, err := url.Parse(config.RedirectURL)
	if err != nil {
		g.logger().Printf("Warning: Could not parse RedirectURL %q: %v. Using it as is.", config.RedirectURL, err)
		return config, nil
	}
	if u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1" {
		if u.Port() != LocalhostAuthPort {
			u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
			config.RedirectURL = u.String()
		}
	} else {
		g.logger().Printf("Warning: RedirectURL %s is not a localhost callback", config.RedirectURL)
	}
	return config, nil
}

func (g Google) tokenPath() string {
	return filepath.Join(g.Dir, TokenFile)
}

// Client returns an authorized client. Refreshed tokens are written back to
// the token file. It returns ErrNotAuthorized when Authorize has never run.
func (g Google) Client(ctx context.Context) (*http.Client, error) {
	config, err := g.Config()
	if err != nil {
		return nil, err
	}
	tok, err := tokenFromFile(g.tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, err
	}
	src := &savingSource{
		base:   config.TokenSource(ctx, tok),
		path:   g.tokenPath(),
		last:   tok,
		logger: g.logger(),
	}
	return oauth2.NewClient(ctx, src), nil
}

// Authorize runs the browser flow and stores the resulting token.
func (g Google) Authorize(ctx context.Context) error {
	config, err := g.Config()
	if err != nil {
		return err
	}
	tok, err := g.tokenFromWeb(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to get token from web: %w", err)
	}
	return saveToken(g.tokenPath(), tok)
}

func (g Google) tokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", "localhost:"+LocalhostAuthPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	defer server.Close()

	out := g.Out
	if out == nil {
		out = os.Stdout
	}
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize todovault:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		exchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out, please try again")
	}
}

// savingSource persists the token whenever the underlying source refreshes
// it.
type savingSource struct {
	base   oauth2.TokenSource
	path   string
	logger *log.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.logger.Printf("Warning: could not save refreshed token: %v", err)
		}
		s.last = tok
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	return nil
}
