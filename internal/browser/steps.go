package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"bookpilot/internal/logging"
)

// StepError reports that one UI interaction could not be completed after
// retries and challenge-solve attempts. Fatal to the run, not the process.
type StepError struct {
	Role     string // logical role name for diagnosis
	Selector string
	Err      error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %q (%s) failed: %v", e.Role, e.Selector, e.Err)
	}
	return fmt.Sprintf("step %q (%s) failed", e.Role, e.Selector)
}

func (e *StepError) Unwrap() error { return e.Err }

// Resolver is the challenge-solving hook invoked when a step stalls.
// It reports true when no challenge was present or the challenge was
// resolved, false when a challenge is present and unresolved.
type Resolver interface {
	Resolve(page *rod.Page) bool
}

const (
	defaultRetries        = 3
	defaultAttemptTimeout = 10 * time.Second
	defaultSettle         = 500 * time.Millisecond
)

// Stepper wraps every DOM interaction with bounded retry plus
// challenge-solve-and-retry semantics. UI stalls in this domain are
// overwhelmingly an interstitial challenge blocking the element, so
// "element missing" is treated as "maybe a challenge" before giving up.
type Stepper struct {
	page     *rod.Page
	resolver Resolver

	Retries        int
	AttemptTimeout time.Duration
	Settle         time.Duration
}

// NewStepper builds a stepper over a page with the given challenge resolver.
func NewStepper(page *rod.Page, resolver Resolver) *Stepper {
	return &Stepper{
		page:           page,
		resolver:       resolver,
		Retries:        defaultRetries,
		AttemptTimeout: defaultAttemptTimeout,
		Settle:         defaultSettle,
	}
}

// Click clicks the element for selector, retrying through challenges.
// Idempotent and safe to call repeatedly.
func (s *Stepper) Click(role, selector string) error {
	return s.attempt(role, selector, func() error {
		el, err := s.page.Timeout(s.AttemptTimeout).Element(selector)
		if err != nil {
			return err
		}
		return el.Timeout(s.AttemptTimeout).Click(proto.InputMouseButtonLeft, 1)
	})
}

// WaitVisible waits until the element for selector is visible, with the
// same retry and challenge-solve loop as Click.
func (s *Stepper) WaitVisible(role, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.AttemptTimeout
	}
	return s.attempt(role, selector, func() error {
		el, err := s.page.Timeout(timeout).Element(selector)
		if err != nil {
			return err
		}
		return el.Timeout(timeout).WaitVisible()
	})
}

// attempt runs op exactly Retries times at most, with a floor of one
// attempt. After each failure the challenge resolver runs; a resolved
// challenge earns a short settle pause before the next attempt, an
// unresolved one retries without the pause.
func (s *Stepper) attempt(role, selector string, op func() error) error {
	log := logging.Get(logging.CategoryBrowser)
	retries := s.Retries
	if retries < 1 {
		retries = 1
	}
	var lastErr error

	for i := 0; i < retries; i++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		log.Debugf("attempt %d/%d for %q failed: %v", i+1, retries, role, lastErr)

		if s.resolver != nil {
			if s.resolver.Resolve(s.page) {
				time.Sleep(s.Settle)
			} else {
				log.Debugf("no resolvable challenge while retrying %q", role)
			}
		}
	}
	return &StepError{Role: role, Selector: selector, Err: lastErr}
}
