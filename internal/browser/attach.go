// Package browser provides CDP session attachment and the resilient page
// interaction primitives the booking workflow is built from. All DOM work
// goes through go-rod against a Chrome instance exposing a remote-debugging
// endpoint.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"bookpilot/internal/logging"
)

// ProgressFunc receives human-readable progress messages. It may be called
// from any goroutine and must return promptly.
type ProgressFunc func(message string)

// ErrEndpointUnavailable indicates the debugging endpoint never became
// reachable within the attach timeout. Fatal to the one run that needed it.
var ErrEndpointUnavailable = errors.New("debugging endpoint unavailable")

const endpointPollInterval = 250 * time.Millisecond

// Session is the ownership handle for one attached browser. The task run
// that opened it owns it for the run's lifetime and must Close it on every
// exit path; sessions are never shared across runs.
type Session struct {
	Browser *rod.Browser
	Page    *rod.Page

	controlURL string
	cleanup    func()
}

// ControlURL returns the websocket debugger URL the session is bound to.
func (s *Session) ControlURL() string { return s.controlURL }

// Close releases the session: the page, the CDP connection, and any launch
// cleanup hook. Safe to call once on every exit path.
func (s *Session) Close() {
	if s.Page != nil {
		_ = s.Page.Close()
	}
	if s.Browser != nil {
		_ = s.Browser.Close()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Attach waits for the debugging endpoint on port to become reachable, then
// connects and returns a live page. The first existing page is reused when
// present, otherwise a fresh one is created. The caller owns the returned
// session.
func Attach(ctx context.Context, port int, timeout time.Duration, sink ProgressFunc) (*Session, error) {
	log := logging.Get(logging.CategoryBrowser)
	notify(sink, fmt.Sprintf("connecting to browser on port %d", port))

	if err := waitEndpoint(ctx, port, timeout); err != nil {
		return nil, err
	}

	controlURL, err := launcher.ResolveURL(fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("resolve debugger url: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := firstOrNewPage(b)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	log.Infof("attached to browser at %s", controlURL)
	notify(sink, "connected")
	return &Session{Browser: b, Page: page, controlURL: controlURL}, nil
}

// waitEndpoint polls the /json/version endpoint until it responds or the
// timeout elapses.
func waitEndpoint(ctx context.Context, port int, timeout time.Duration) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	client := &http.Client{Timeout: endpointPollInterval}
	deadline := time.Now().Add(timeout)

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: port %d after %s", ErrEndpointUnavailable, port, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(endpointPollInterval):
		}
	}
}

func firstOrNewPage(b *rod.Browser) (*rod.Page, error) {
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) > 0 {
		return pages.First(), nil
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return page, nil
}

func notify(sink ProgressFunc, msg string) {
	if sink != nil {
		sink(msg)
	}
}
