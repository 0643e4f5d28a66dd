package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// Navigator abstracts the user agent: it performs full navigations and owns
// the current location the provider redirects back to.
type Navigator interface {
	// Navigate sends the user agent to target. Application state held by the
	// user agent is not expected to survive it.
	Navigate(ctx context.Context, target string) error
	// Location returns the current location, or nil if none has been observed.
	Location() *url.URL
	// ReplaceLocation rewrites the current location without navigating.
	ReplaceLocation(u *url.URL)
	// Origin is the application address used as redirect_uri.
	Origin() string
}

// CallbackWaiter is implemented by navigators that can block until the
// provider redirects back to the application.
type CallbackWaiter interface {
	WaitForCallback(ctx context.Context) error
}

// BrowserNavigator prints the target URL and opens it in the system browser.
type BrowserNavigator struct {
	out         io.Writer
	origin      string
	openBrowser bool
	open        func(string) error

	mu       sync.RWMutex
	location *url.URL
}

func NewBrowserNavigator(origin string, out io.Writer, openBrowser bool) *BrowserNavigator {
	if out == nil {
		out = os.Stdout
	}
	return &BrowserNavigator{out: out, origin: origin, openBrowser: openBrowser, open: openURL}
}

func (n *BrowserNavigator) Navigate(_ context.Context, target string) error {
	_, _ = fmt.Fprintf(n.out, "Open the following URL in your browser:\n%s\n", target)
	if !n.openBrowser || n.open == nil {
		return nil
	}
	if err := n.open(target); err != nil {
		// the printed URL is still usable
		_, _ = fmt.Fprintf(n.out, "Could not open browser: %v\n", err)
	}
	return nil
}

func (n *BrowserNavigator) Location() *url.URL {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.location == nil {
		return nil
	}
	u := *n.location
	return &u
}

func (n *BrowserNavigator) ReplaceLocation(u *url.URL) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if u == nil {
		n.location = nil
		return
	}
	copied := *u
	n.location = &copied
}

// SetLocation records a location pasted by the user after a manual redirect.
func (n *BrowserNavigator) SetLocation(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid callback url: %w", err)
	}
	n.ReplaceLocation(u)
	return nil
}

func (n *BrowserNavigator) Origin() string {
	return n.origin
}

// DefaultLoopbackRedirect is used when no redirect-uri is configured.
const DefaultLoopbackRedirect = "http://127.0.0.1:0/callback"

// LoopbackNavigator receives the provider redirect on a local listener.
type LoopbackNavigator struct {
	*BrowserNavigator

	listener  net.Listener
	server    *http.Server
	path      string
	callbacks chan struct{}
}

// NewLoopbackNavigator listens on the host and port of redirectURI. Port 0
// picks a free port and Origin reports the bound address.
func NewLoopbackNavigator(redirectURI string, out io.Writer, openBrowser bool) (*LoopbackNavigator, error) {
	if redirectURI == "" {
		redirectURI = DefaultLoopbackRedirect
	}
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	if parsed.Scheme != "http" {
		return nil, fmt.Errorf("loopback redirect uri must use http: %s", redirectURI)
	}
	host := parsed.Hostname()
	if host != "127.0.0.1" && host != "localhost" && host != "::1" {
		return nil, fmt.Errorf("redirect uri is not a loopback address: %s", redirectURI)
	}
	listener, err := net.Listen("tcp", parsed.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	_, port, _ := net.SplitHostPort(listener.Addr().String())
	origin := url.URL{Scheme: "http", Host: net.JoinHostPort(host, port), Path: path}

	n := &LoopbackNavigator{
		BrowserNavigator: NewBrowserNavigator(origin.String(), out, openBrowser),
		listener:         listener,
		path:             path,
		callbacks:        make(chan struct{}, 1),
	}
	n.server = &http.Server{Handler: http.HandlerFunc(n.handleCallback), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		_ = n.server.Serve(listener)
	}()
	return n, nil
}

// Navigate drops any callback left over from an earlier login, such as a
// reloaded callback tab, before sending the browser off.
func (n *LoopbackNavigator) Navigate(ctx context.Context, target string) error {
	select {
	case <-n.callbacks:
	default:
	}
	return n.BrowserNavigator.Navigate(ctx, target)
}

func (n *LoopbackNavigator) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != n.path {
		http.NotFound(w, r)
		return
	}
	query := r.URL.Query()
	if query.Get("code") == "" && query.Get("error") == "" {
		http.Error(w, "No authorization response in this request.", http.StatusBadRequest)
		return
	}
	location, _ := url.Parse(n.Origin())
	location.RawQuery = r.URL.RawQuery
	n.ReplaceLocation(location)
	select {
	case n.callbacks <- struct{}{}:
	default:
	}
	if query.Get("error") != "" {
		_, _ = fmt.Fprintln(w, "Authentication failed. Return to the terminal for details.")
		return
	}
	_, _ = fmt.Fprintln(w, "Authentication complete. You can close this window.")
}

// WaitForCallback blocks until the provider redirects to the listener.
func (n *LoopbackNavigator) WaitForCallback(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.callbacks:
		return nil
	}
}

func (n *LoopbackNavigator) Close() error {
	if n.server == nil {
		return nil
	}
	err := n.server.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func openURL(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
