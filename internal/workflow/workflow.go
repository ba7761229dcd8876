// Package workflow drives one booking run as a fixed sequence of page
// interactions: navigate, pass the challenge gate, optionally log in, wait
// for registration to open, then walk branch, date, time and the confirm
// chain. Each state is gated by a resilient step primitive; failure at a
// gate aborts the run with a terminal outcome.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"bookpilot/internal/browser"
	"bookpilot/internal/logging"
	"bookpilot/internal/siteconfig"
)

// Outcome is the terminal result of one booking run.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// ErrCancelled reports cooperative cancellation observed at a checkpoint.
// It is a distinct terminal status, not an error condition.
var ErrCancelled = errors.New("run cancelled")

// PreconditionError reports a hard precondition failure that is not a
// browser-layer fault, such as the booking window already being closed.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return "precondition failed: " + e.Reason }

// LoginFunc is the external identity-login capability. It drives the login
// flow on the given page and reports success.
type LoginFunc func(page *rod.Page, identity string) bool

// Profile carries the personal data used to fill the optional profile form.
type Profile struct {
	FirstName  string
	LastName   string
	NationalID string
	Phone      string
	Gender     string
}

// Params are the per-run booking parameters.
type Params struct {
	Branch string
	Day    string
	Time   string

	// RoundIndex switches time selection to positional mode: pick the Nth
	// enabled slot instead of matching the Time label. Clamped into range.
	RoundIndex *int

	// StepDelay is applied before each click attempt.
	StepDelay time.Duration

	// EnableBudget bounds the wait for the register control to leave its
	// disabled styling. Zero means wait without a budget.
	EnableBudget time.Duration

	HumanRegister        bool
	HumanConfirm         bool
	AutoLogin            bool
	IdentityKey          string
	FallbackFirstEnabled bool

	Profile *Profile
}

// Config wires a Workflow together.
type Config struct {
	Page     *rod.Page
	Site     *siteconfig.Site
	Resolver browser.Resolver
	Params   Params
	Sink     browser.ProgressFunc

	// Cancelled is polled at every step boundary. Nil means never cancelled.
	Cancelled func() bool

	// Login is required only when Params.AutoLogin is set.
	Login LoginFunc
}

// miniGameSolver is the rotation-puzzle capability the workflow dispatches
// to. Satisfied by browser.MiniGameSolver.
type miniGameSolver interface {
	Present(page *rod.Page) bool
	Solve(page *rod.Page) bool
	SolvePresets(page *rod.Page, distances []float64) bool
}

// Workflow executes one booking run over an attached page.
type Workflow struct {
	page     *rod.Page
	site     *siteconfig.Site
	steps    *browser.Stepper
	resolver browser.Resolver
	miniGame miniGameSolver
	params   Params
	sink     browser.ProgressFunc
	cancel   func() bool
	login    LoginFunc

	nowFn func() time.Time
}

// New builds a workflow. The stepper and mini-game solver are derived from
// the site's selector map.
func New(cfg Config) *Workflow {
	return &Workflow{
		page:     cfg.Page,
		site:     cfg.Site,
		steps:    browser.NewStepper(cfg.Page, cfg.Resolver),
		resolver: cfg.Resolver,
		miniGame: browser.NewMiniGameSolver(cfg.Site.Challenge),
		params:   cfg.Params,
		sink:     cfg.Sink,
		cancel:   cfg.Cancelled,
		login:    cfg.Login,
		nowFn:    time.Now,
	}
}

const (
	logoGraceTimeout  = 5 * time.Second
	enablePollEvery   = 50 * time.Millisecond
	lazyRenderRetries = 5
	lazyRenderSleep   = 700 * time.Millisecond
	manualPollEvery   = time.Second
	confirmPollMillis = 8000
)

// Run drives the full state sequence and returns the terminal outcome. The
// second return carries the failure reason for failed outcomes.
func (w *Workflow) Run(ctx context.Context) (Outcome, error) {
	log := logging.Get(logging.CategoryWorkflow)

	type state struct {
		name string
		fn   func(context.Context) error
	}
	states := []state{
		{"navigate", w.navigate},
		{"challenge gate", w.challengeGate},
		{"identity login", w.identityLogin},
		{"await register enabled", w.awaitRegisterEnabled},
		{"verify booking window", w.verifyBookingWindow},
		{"register", w.register},
		{"profile form", w.profileForm},
		{"select branch", w.selectBranch},
		{"next after branch", w.nextAfterBranch},
		{"mini game", w.optionalMiniGame},
		{"select date", w.selectDate},
		{"select time", w.selectTime},
		{"confirm selection", w.confirmSelection},
		{"checkbox", w.checkbox},
		{"confirm booking", w.confirmBooking},
	}

	for _, st := range states {
		if err := w.checkpoint(ctx); err != nil {
			return outcomeFor(err), err
		}
		log.Debugf("state %q", st.name)
		if err := st.fn(ctx); err != nil {
			w.notify(fmt.Sprintf("%s: %v", st.name, err))
			log.Warnf("state %q failed: %v", st.name, err)
			return outcomeFor(err), err
		}
	}

	w.notify("booking completed")
	log.Infof("run completed")
	return OutcomeCompleted, nil
}

func outcomeFor(err error) Outcome {
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimedOut
	default:
		return OutcomeFailed
	}
}

// checkpoint is the cooperative cancellation point between states. It does
// not preempt an in-progress DOM operation.
func (w *Workflow) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.cancel != nil && w.cancel() {
		return ErrCancelled
	}
	return nil
}

func (w *Workflow) notify(msg string) {
	if w.sink != nil {
		w.sink(msg)
	}
}

func (w *Workflow) navigate(ctx context.Context) error {
	w.notify("opening " + w.site.URL)
	if err := w.page.Timeout(30 * time.Second).Navigate(w.site.URL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	_ = w.page.Timeout(30 * time.Second).WaitLoad()

	// One forced reload when the landmark never shows up.
	if w.site.Selectors.Logo != "" {
		if err := w.steps.WaitVisible("logo", w.site.Selectors.Logo, logoGraceTimeout); err != nil {
			logging.Get(logging.CategoryWorkflow).Warnf("landmark missing, reloading once")
			if err := w.page.Reload(); err != nil {
				return fmt.Errorf("reload: %w", err)
			}
			_ = w.page.Timeout(30 * time.Second).WaitLoad()
		}
	}
	return nil
}

func (w *Workflow) challengeGate(ctx context.Context) error {
	if w.resolver == nil || w.resolver.Resolve(w.page) {
		return nil
	}
	return fmt.Errorf("challenge present and unresolved")
}

func (w *Workflow) identityLogin(ctx context.Context) error {
	if !w.params.AutoLogin || w.params.IdentityKey == "" {
		return nil
	}
	if w.login == nil {
		return fmt.Errorf("auto-login requested but no login capability wired")
	}

	sel, err := siteconfig.Require("profile_connect", w.site.Selectors.ProfileConnect)
	if err != nil {
		return err
	}
	if err := w.clickStep("profile_connect", sel); err != nil {
		return err
	}
	w.notify("logging in as " + w.params.IdentityKey)
	if !w.login(w.page, w.params.IdentityKey) {
		return fmt.Errorf("identity login failed for %q", w.params.IdentityKey)
	}
	return nil
}

// awaitRegisterEnabled waits for the register control to be visible, then
// polls its disabled styling until it clears or the budget elapses.
func (w *Workflow) awaitRegisterEnabled(ctx context.Context) error {
	sel, err := siteconfig.Require("register", w.site.Selectors.Register)
	if err != nil {
		return err
	}
	if err := w.steps.WaitVisible("register", sel, 0); err != nil {
		return err
	}
	if w.site.Selectors.DisabledClass == "" {
		return nil
	}

	w.notify("waiting for registration to open")
	var deadline time.Time
	if w.params.EnableBudget > 0 {
		deadline = w.nowFn().Add(w.params.EnableBudget)
	}
	for {
		disabled, err := w.elementHasClass(sel, w.site.Selectors.DisabledClass)
		if err == nil && !disabled {
			return nil
		}
		if !deadline.IsZero() && w.nowFn().After(deadline) {
			return fmt.Errorf("register stayed disabled past the %s budget", w.params.EnableBudget)
		}
		if err := w.checkpoint(ctx); err != nil {
			return err
		}
		time.Sleep(enablePollEvery)
	}
}

// verifyBookingWindow reads the open-date announcement and aborts when it
// is already in the past.
func (w *Workflow) verifyBookingWindow(ctx context.Context) error {
	if w.site.Selectors.OpenDate == "" {
		return nil
	}
	el, err := w.page.Timeout(5 * time.Second).Element(w.site.Selectors.OpenDate)
	if err != nil {
		return nil
	}
	text, err := el.Text()
	if err != nil {
		return nil
	}
	return checkBookingWindow(text, w.nowFn())
}

func (w *Workflow) register(ctx context.Context) error {
	sel, err := siteconfig.Require("register", w.site.Selectors.Register)
	if err != nil {
		return err
	}
	if w.params.HumanRegister {
		w.notify("waiting for manual register click")
		return w.waitForManual(ctx, sel)
	}
	return w.clickStep("register", sel)
}

// profileForm fills the optional personal-data form. Every sub-step is best
// effort because the form is not guaranteed to appear.
func (w *Workflow) profileForm(ctx context.Context) error {
	s := w.site.Selectors
	if s.FirstName == "" || w.params.Profile == nil {
		return nil
	}
	first, err := w.page.Timeout(3 * time.Second).Element(s.FirstName)
	if err != nil {
		return nil
	}
	if visible, err := first.Visible(); err != nil || !visible {
		return nil
	}

	w.notify("filling profile form")
	p := w.params.Profile
	w.fillField(first, p.FirstName)
	w.fillSelector(s.LastName, p.LastName)
	w.fillSelector(s.NationalID, p.NationalID)
	w.fillSelector(s.Phone, p.Phone)
	if s.Gender != "" && p.Gender != "" {
		w.tryClick(fmt.Sprintf(s.Gender, p.Gender))
	}
	if s.Consent != "" {
		w.tryClick(s.Consent)
	}
	if s.ProfileNext != "" {
		w.tryClick(s.ProfileNext)
	}
	return nil
}

// selectBranch clicks the configured branch by label, nudging lazy content
// with a body click between attempts.
func (w *Workflow) selectBranch(ctx context.Context) error {
	s := w.site.Selectors
	tmpl, err := siteconfig.Require("branch_button", s.BranchButton)
	if err != nil {
		return err
	}
	sel := fmt.Sprintf(tmpl, w.params.Branch)

	var lastErr error
	for i := 0; i < lazyRenderRetries; i++ {
		if err := w.checkpoint(ctx); err != nil {
			return err
		}
		if lastErr = w.clickStep("branch", sel); lastErr == nil {
			return nil
		}
		w.tryClick("body")
		time.Sleep(lazyRenderSleep)
	}
	if w.params.FallbackFirstEnabled && s.BranchContainer != "" {
		if err := w.clickFirstEnabled("branch fallback", s.BranchContainer); err == nil {
			w.notify("exact branch unavailable, took first enabled")
			return nil
		}
	}
	return lastErr
}

func (w *Workflow) nextAfterBranch(ctx context.Context) error {
	sel, err := siteconfig.Require("next_after_branch", w.site.Selectors.NextAfterBranch)
	if err != nil {
		return err
	}
	return w.clickStep("next_after_branch", sel)
}

// optionalMiniGame runs the rotation puzzle when its canvas appears. Sites
// whose puzzle exposes no readable rotation configure preset drag distances
// and get the preset variant instead. Best effort; the date and time waits
// downstream act as the real gate.
func (w *Workflow) optionalMiniGame(ctx context.Context) error {
	if !w.miniGame.Present(w.page) {
		return nil
	}
	w.notify("solving slot mini-game")
	var solved bool
	if distances := w.site.Challenge.PresetDistances; len(distances) > 0 {
		solved = w.miniGame.SolvePresets(w.page, distances)
	} else {
		solved = w.miniGame.Solve(w.page)
	}
	if !solved {
		logging.Get(logging.CategoryWorkflow).Warnf("mini-game unsolved, continuing")
	}
	return nil
}

func (w *Workflow) selectDate(ctx context.Context) error {
	s := w.site.Selectors
	tmpl, err := siteconfig.Require("date_button", s.DateButton)
	if err != nil {
		return err
	}
	sel := fmt.Sprintf(tmpl, w.params.Day)
	if err := w.clickStep("date", sel); err != nil {
		// Date and time buttons share one container on the supported sites.
		if w.params.FallbackFirstEnabled && s.TimeContainer != "" {
			if fbErr := w.clickFirstEnabled("date fallback", s.TimeContainer); fbErr == nil {
				w.notify("exact date unavailable, took first enabled")
				return nil
			}
		}
		return err
	}
	return nil
}

// selectTime picks a slot either by literal label or, when RoundIndex is
// set, by position among the enabled slot buttons.
func (w *Workflow) selectTime(ctx context.Context) error {
	s := w.site.Selectors
	if w.params.RoundIndex != nil {
		container, err := siteconfig.Require("time_container", s.TimeContainer)
		if err != nil {
			return err
		}
		return w.clickEnabledByIndex("time", container, *w.params.RoundIndex)
	}

	tmpl, err := siteconfig.Require("time_button", s.TimeButton)
	if err != nil {
		return err
	}
	return w.clickStep("time", fmt.Sprintf(tmpl, w.params.Time))
}

func (w *Workflow) confirmSelection(ctx context.Context) error {
	sel, err := siteconfig.Require("confirm_selection", w.site.Selectors.ConfirmSelection)
	if err != nil {
		return err
	}
	if w.site.Selectors.TimeContainer != "" {
		w.startConfirmPoller(w.site.Selectors.TimeContainer)
	}
	return w.clickStep("confirm_selection", sel)
}

func (w *Workflow) checkbox(ctx context.Context) error {
	sel, err := siteconfig.Require("checkbox", w.site.Selectors.Checkbox)
	if err != nil {
		return err
	}
	if err := w.steps.WaitVisible("checkbox", sel, 0); err != nil {
		return err
	}
	return w.clickStep("checkbox", sel)
}

func (w *Workflow) confirmBooking(ctx context.Context) error {
	sel, err := siteconfig.Require("confirm_booking", w.site.Selectors.ConfirmBooking)
	if err != nil {
		return err
	}
	w.startConfirmPoller("body")
	if w.params.HumanConfirm {
		w.notify("waiting for manual confirm click")
		return w.waitForManual(ctx, sel)
	}
	return w.clickStep("confirm_booking", sel)
}

// clickStep applies the configured per-step delay, then clicks through the
// resilient primitive.
func (w *Workflow) clickStep(role, selector string) error {
	if w.params.StepDelay > 0 {
		time.Sleep(w.params.StepDelay)
	}
	return w.steps.Click(role, selector)
}

// tryClick is the best-effort variant used by non-gating sub-steps.
func (w *Workflow) tryClick(selector string) {
	el, err := w.page.Timeout(2 * time.Second).Element(selector)
	if err != nil {
		return
	}
	_ = el.Click(proto.InputMouseButtonLeft, 1)
}

func (w *Workflow) fillSelector(selector, value string) {
	if selector == "" || value == "" {
		return
	}
	el, err := w.page.Timeout(2 * time.Second).Element(selector)
	if err != nil {
		return
	}
	w.fillField(el, value)
}

func (w *Workflow) fillField(el *rod.Element, value string) {
	if value == "" {
		return
	}
	if err := el.Input(value); err != nil {
		logging.Get(logging.CategoryWorkflow).Debugf("profile field input: %v", err)
	}
}

// waitForManual polls until the handed-over control disappears from the
// page, signalling the human clicked it. Bounded only by the run context.
func (w *Workflow) waitForManual(ctx context.Context, selector string) error {
	for {
		if err := w.checkpoint(ctx); err != nil {
			return err
		}
		el, err := w.page.Timeout(manualPollEvery).Element(selector)
		if err != nil {
			return nil
		}
		if visible, err := el.Visible(); err != nil || !visible {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(manualPollEvery):
		}
	}
}

func (w *Workflow) elementHasClass(selector, class string) (bool, error) {
	res, err := w.page.Evaluate(&rod.EvalOptions{
		JS: `(sel, cls) => {
			const el = document.querySelector(sel);
			if (!el) return null;
			return el.classList.contains(cls) || el.className.includes(cls);
		}`,
		JSArgs:  []interface{}{selector, class},
		ByValue: true,
	})
	if err != nil {
		return false, err
	}
	if res.Value.Nil() {
		return false, fmt.Errorf("element %q not found", selector)
	}
	return res.Value.Bool(), nil
}

// startConfirmPoller installs a bounded client-side interval that clicks
// any late-rendering "Confirm" button inside the container.
func (w *Workflow) startConfirmPoller(container string) {
	_, err := w.page.Evaluate(&rod.EvalOptions{
		JS: `(sel, budgetMs) => {
			const started = Date.now();
			const id = setInterval(() => {
				if (Date.now() - started > budgetMs) { clearInterval(id); return; }
				const root = document.querySelector(sel);
				if (!root) return;
				for (const b of root.querySelectorAll('button')) {
					if (b.textContent.trim().toLowerCase().includes('confirm') && !b.disabled) {
						b.click();
						clearInterval(id);
						return;
					}
				}
			}, 200);
		}`,
		JSArgs:  []interface{}{container, confirmPollMillis},
		ByValue: true,
	})
	if err != nil {
		logging.Get(logging.CategoryWorkflow).Debugf("confirm poller install: %v", err)
	}
}

// clickEnabledByIndex clicks the idx-th enabled button inside container,
// with idx clamped into range.
func (w *Workflow) clickEnabledByIndex(role, container string, idx int) error {
	buttons, err := w.enabledButtons(container)
	if err != nil {
		return &browser.StepError{Role: role, Selector: container, Err: err}
	}
	if len(buttons) == 0 {
		return &browser.StepError{Role: role, Selector: container, Err: fmt.Errorf("no enabled options")}
	}
	target := buttons[clampRoundIndex(idx, len(buttons))]
	if w.params.StepDelay > 0 {
		time.Sleep(w.params.StepDelay)
	}
	if err := target.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &browser.StepError{Role: role, Selector: container, Err: err}
	}
	return nil
}

func (w *Workflow) clickFirstEnabled(role, container string) error {
	return w.clickEnabledByIndex(role, container, 0)
}

// enabledButtons returns the enabled buttons under container, excluding
// those carrying the site's disabled styling.
func (w *Workflow) enabledButtons(container string) ([]*rod.Element, error) {
	elements, err := w.page.Timeout(10 * time.Second).Elements(container + " button")
	if err != nil {
		return nil, fmt.Errorf("list options in %q: %w", container, err)
	}
	disabledClass := w.site.Selectors.DisabledClass

	var enabled []*rod.Element
	for _, el := range elements {
		var disabledAttr *string
		if attr, err := el.Attribute("disabled"); err == nil {
			disabledAttr = attr
		}
		class := ""
		if cls, err := el.Attribute("class"); err == nil && cls != nil {
			class = *cls
		}
		if !buttonEnabled(disabledAttr, class, disabledClass) {
			continue
		}
		enabled = append(enabled, el)
	}
	return enabled, nil
}
