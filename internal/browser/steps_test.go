package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	result bool
	calls  int
}

func (r *stubResolver) Resolve(_ *rod.Page) bool {
	r.calls++
	return r.result
}

func TestAttemptExhaustsRetries(t *testing.T) {
	resolver := &stubResolver{result: false}
	s := &Stepper{resolver: resolver, Retries: 3}

	attempts := 0
	err := s.attempt("register", "#register", func() error {
		attempts++
		return fmt.Errorf("element not found")
	})

	require.Error(t, err)
	require.Equal(t, 3, attempts, "op must run exactly Retries times")
	require.Equal(t, 3, resolver.calls, "resolver runs after every failed attempt")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "register", stepErr.Role)
	require.Equal(t, "#register", stepErr.Selector)
}

func TestAttemptStopsOnFirstSuccess(t *testing.T) {
	resolver := &stubResolver{result: true}
	s := &Stepper{resolver: resolver, Retries: 3}

	attempts := 0
	err := s.attempt("time", ".slot", func() error {
		attempts++
		if attempts < 2 {
			return fmt.Errorf("stale")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 1, resolver.calls)
}

func TestAttemptWithoutResolver(t *testing.T) {
	s := &Stepper{Retries: 2}

	attempts := 0
	err := s.attempt("checkbox", "#agree", func() error {
		attempts++
		return errors.New("missing")
	})

	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestAttemptFloorsRetries(t *testing.T) {
	s := &Stepper{Retries: 0}

	attempts := 0
	cause := errors.New("missing")
	err := s.attempt("register", "#register", func() error {
		attempts++
		return cause
	})

	require.Equal(t, 1, attempts, "a non-positive retry count still runs the op once")
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.ErrorIs(t, stepErr.Err, cause, "the step error carries the last attempt's failure")
}

func TestStepErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := &StepError{Role: "branch", Selector: ".branch", Err: cause}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "branch")
	require.Contains(t, err.Error(), ".branch")
}

func TestNewStepperDefaults(t *testing.T) {
	s := NewStepper(nil, nil)
	require.Equal(t, defaultRetries, s.Retries)
	require.Equal(t, defaultAttemptTimeout, s.AttemptTimeout)
	require.Equal(t, defaultSettle, s.Settle)
}
