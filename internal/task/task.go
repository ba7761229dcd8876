// Package task models a single scheduled booking request: its parameters,
// lifecycle status, cancellation flag, and the browser session its run owns.
// The Manager in this package owns the task collection and the polling loop
// that fires runs at the right moment.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bookpilot/internal/browser"
	"bookpilot/internal/logging"
	"bookpilot/internal/siteconfig"
	"bookpilot/internal/workflow"
)

// Status is the task lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal one.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Credentials are the linked identity secrets. In-memory only; they are
// never serialized and are re-joined from the credential store at load time.
type Credentials struct {
	Username string
	Password string
}

// Params are the booking parameters for one task.
type Params struct {
	Site    string `json:"site"`
	Profile string `json:"profile"`
	Branch  string `json:"branch"`
	Day     string `json:"day"`
	Time    string `json:"time"`

	RoundIndex *int `json:"round_index,omitempty"`

	StepDelaySeconds   float64 `json:"step_delay_seconds,omitempty"`
	EnableBudgetSecond float64 `json:"enable_budget_seconds,omitempty"`

	HumanRegister        bool   `json:"human_register,omitempty"`
	HumanConfirm         bool   `json:"human_confirm,omitempty"`
	AutoLogin            bool   `json:"auto_login,omitempty"`
	IdentityKey          string `json:"identity_key,omitempty"`
	ProfileRef           string `json:"profile_ref,omitempty"`
	FallbackFirstEnabled bool   `json:"fallback_first_enabled,omitempty"`
}

// Record is the persistable form of a task. Secrets never appear here.
type Record struct {
	ID     string `json:"id"`
	Params Params `json:"params"`
	Status Status `json:"status"`
}

// Task is one scheduled booking request.
type Task struct {
	ID     string
	Params Params

	// Credentials are attached in memory only, re-joined by IdentityKey.
	Credentials *Credentials

	mu       sync.Mutex
	status   Status
	endpoint int // debugging port for the current run, 0 when not running

	cancelled atomic.Bool
}

// New creates a waiting task with a fresh id.
func New(params Params) *Task {
	return &Task{
		ID:     uuid.NewString(),
		Params: params,
		status: StatusWaiting,
	}
}

// FromRecord restores a task from its persisted record.
func FromRecord(rec Record) *Task {
	t := &Task{
		ID:     rec.ID,
		Params: rec.Params,
		status: rec.Status,
	}
	// A task persisted mid-run comes back as waiting; the old run is gone.
	if t.status == StatusRunning {
		t.status = StatusWaiting
	}
	return t
}

// Record produces the persistable form. Secrets are already absent because
// Credentials never enters the record.
func (t *Task) Record() Record {
	return Record{ID: t.ID, Params: t.Params, Status: t.Status()}
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// compareAndSetStatus transitions from to to atomically and reports whether
// the transition happened.
func (t *Task) compareAndSetStatus(from, to Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != from {
		return false
	}
	t.status = to
	return true
}

// Cancel requests cooperative cancellation. A task that has not started
// running transitions straight to cancelled.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	if t.compareAndSetStatus(StatusWaiting, StatusCancelled) {
		logging.Get(logging.CategoryTask).Infof("task %s cancelled before start", t.ID)
	}
}

// IsCancelled reports whether cancellation has been requested.
func (t *Task) IsCancelled() bool { return t.cancelled.Load() }

// Endpoint returns the debugging port bound to the current run, 0 if none.
func (t *Task) Endpoint() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint
}

func (t *Task) setEndpoint(port int) {
	t.mu.Lock()
	t.endpoint = port
	t.mu.Unlock()
}

// StepDelay returns the per-step delay as a duration.
func (p Params) StepDelay() time.Duration {
	return time.Duration(p.StepDelaySeconds * float64(time.Second))
}

// EnableBudget returns the enablement wait budget as a duration.
func (p Params) EnableBudget() time.Duration {
	return time.Duration(p.EnableBudgetSecond * float64(time.Second))
}

// RunDeps are the collaborators one task run needs.
type RunDeps struct {
	Launcher   browser.Launcher
	Sites      *siteconfig.Registry
	Sink       browser.ProgressFunc
	Login      workflow.LoginFunc
	Images     browser.ImageSolver
	Profiles   map[string]*workflow.Profile
	AttachWait time.Duration
}

const defaultAttachWait = 30 * time.Second

// Run executes one booking attempt end to end and returns the terminal
// outcome. The session opened for the run is released on every exit path.
func (t *Task) Run(ctx context.Context, deps RunDeps) workflow.Outcome {
	log := logging.Get(logging.CategoryTask)
	sink := t.prefixedSink(deps.Sink)

	// Cancellation observed before any session work transitions directly
	// to cancelled without touching the browser.
	if t.IsCancelled() {
		t.setStatus(StatusCancelled)
		sink("cancelled before start")
		return workflow.OutcomeCancelled
	}

	site, ok := deps.Sites.Get(t.Params.Site)
	if !ok {
		t.setStatus(StatusFailed)
		sink(fmt.Sprintf("unknown site %q", t.Params.Site))
		return workflow.OutcomeFailed
	}

	port, cleanup, err := deps.Launcher.Launch(t.Params.Profile)
	if err != nil {
		t.setStatus(StatusFailed)
		sink(fmt.Sprintf("browser launch failed: %v", err))
		log.Errorf("task %s: launch: %v", t.ID, err)
		return workflow.OutcomeFailed
	}
	defer cleanup()
	t.setEndpoint(port)
	defer t.setEndpoint(0)

	wait := deps.AttachWait
	if wait <= 0 {
		wait = defaultAttachWait
	}
	session, err := browser.Attach(ctx, port, wait, sink)
	if err != nil {
		t.setStatus(StatusFailed)
		sink(fmt.Sprintf("attach failed: %v", err))
		log.Errorf("task %s: attach: %v", t.ID, err)
		return workflow.OutcomeFailed
	}
	defer session.Close()

	wf := workflow.New(workflow.Config{
		Page:      session.Page,
		Site:      site,
		Resolver:  browser.NewChallengeSolver(site.Challenge, deps.Images),
		Sink:      sink,
		Cancelled: t.IsCancelled,
		Login:     deps.Login,
		Params: workflow.Params{
			Branch:               t.Params.Branch,
			Day:                  t.Params.Day,
			Time:                 t.Params.Time,
			RoundIndex:           t.Params.RoundIndex,
			StepDelay:            t.Params.StepDelay(),
			EnableBudget:         t.Params.EnableBudget(),
			HumanRegister:        t.Params.HumanRegister,
			HumanConfirm:         t.Params.HumanConfirm,
			AutoLogin:            t.Params.AutoLogin,
			IdentityKey:          t.Params.IdentityKey,
			FallbackFirstEnabled: t.Params.FallbackFirstEnabled,
			Profile:              deps.Profiles[t.Params.ProfileRef],
		},
	})

	outcome, err := wf.Run(ctx)
	switch outcome {
	case workflow.OutcomeCompleted:
		t.setStatus(StatusCompleted)
	case workflow.OutcomeCancelled:
		t.setStatus(StatusCancelled)
	default:
		t.setStatus(StatusFailed)
	}
	if err != nil && outcome != workflow.OutcomeCancelled {
		log.Warnf("task %s finished %s: %v", t.ID, outcome, err)
	} else {
		log.Infof("task %s finished %s", t.ID, outcome)
	}
	sink("run finished: " + outcome.String())
	return outcome
}

// prefixedSink tags progress messages with the task id so interleaved runs
// stay readable. Never blocks beyond the underlying sink.
func (t *Task) prefixedSink(sink browser.ProgressFunc) browser.ProgressFunc {
	short := t.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return func(msg string) {
		if sink != nil {
			sink("[" + short + "] " + msg)
		}
	}
}
