package task

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bookpilot/internal/browser"
	"bookpilot/internal/logging"
	"bookpilot/internal/workflow"
)

// RunRecorder receives run history events. Implemented by the history store.
type RunRecorder interface {
	RecordStart(taskID string, startedAt time.Time) (int64, error)
	RecordFinish(runID int64, outcome string, finishedAt time.Time) error
}

const (
	pollInterval = time.Second
	fireWindow   = 10 * time.Second
	runCeiling   = 300 * time.Second
	stopJoinWait = 15 * time.Second
)

// Manager owns the task collection and the polling loop that fires runs
// inside their scheduling window. Structural changes to the collection go
// through the Manager and are persisted synchronously.
type Manager struct {
	mu    sync.Mutex
	tasks []*Task

	store    *Store
	deps     RunDeps
	recorder RunRecorder
	sink     browser.ProgressFunc

	running  bool
	stopCh   chan struct{}
	loopDone chan struct{}
	runs     errgroup.Group

	// nowFn is the clock; replaced in tests.
	nowFn func() time.Time

	runDeadline time.Duration
}

// NewManager builds a manager over an initial task set. store and recorder
// may be nil when persistence or history is not wanted.
func NewManager(tasks []*Task, store *Store, deps RunDeps, recorder RunRecorder) *Manager {
	return &Manager{
		tasks:       tasks,
		store:       store,
		deps:        deps,
		recorder:    recorder,
		sink:        deps.Sink,
		nowFn:       time.Now,
		runDeadline: runCeiling,
	}
}

// Add creates and persists a new waiting task.
func (m *Manager) Add(params Params) (*Task, error) {
	t := New(params)
	m.mu.Lock()
	m.tasks = append(m.tasks, t)
	m.mu.Unlock()
	if err := m.persist(); err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryScheduler).Infof("task %s added (site %s, day %s, time %s)",
		t.ID, params.Site, params.Day, params.Time)
	return t, nil
}

// Remove cancels and drops the task with the given id.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	found := false
	kept := m.tasks[:0]
	for _, t := range m.tasks {
		if t.ID == id {
			found = true
			t.Cancel()
			continue
		}
		kept = append(kept, t)
	}
	m.tasks = kept
	m.mu.Unlock()
	if !found {
		return fmt.Errorf("no task with id %q", id)
	}
	return m.persist()
}

// Clear cancels and drops every task.
func (m *Manager) Clear() error {
	m.mu.Lock()
	for _, t := range m.tasks {
		t.Cancel()
	}
	m.tasks = nil
	m.mu.Unlock()
	return m.persist()
}

// Tasks returns a stable snapshot of the collection.
func (m *Manager) Tasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Get returns the task with the given id.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (m *Manager) persist() error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(m.Tasks())
}

// Start begins the background polling loop. Calling it on a running
// manager warns and does nothing.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		logging.Get(logging.CategoryScheduler).Warnf("scheduler already running, start ignored")
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.loopDone = make(chan struct{})
	m.mu.Unlock()

	logging.Get(logging.CategoryScheduler).Infof("scheduler started")
	go m.loop()
}

// Stop signals the loop to exit, cancels running tasks, and joins both the
// loop and in-flight runs with a bounded wait.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	for _, t := range m.Tasks() {
		if t.Status() == StatusRunning {
			t.Cancel()
		}
	}

	<-m.loopDone
	done := make(chan struct{})
	go func() {
		_ = m.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopJoinWait):
		logging.Get(logging.CategoryScheduler).Warnf("runs still draining after %s, detaching", stopJoinWait)
	}
	logging.Get(logging.CategoryScheduler).Infof("scheduler stopped")
}

func (m *Manager) loop() {
	defer close(m.loopDone)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick fires every waiting task whose scheduled moment lies within the
// lead window. A task that cannot be parsed logs and is skipped; the loop
// itself never stops for it.
func (m *Manager) tick() {
	log := logging.Get(logging.CategoryScheduler)
	now := m.nowFn()

	for _, t := range m.Tasks() {
		if t.Status() != StatusWaiting {
			continue
		}
		fireAt, err := computeFireTime(t.Params, now)
		if err != nil {
			log.Errorf("task %s: bad schedule: %v", t.ID, err)
			continue
		}
		delta := now.Sub(fireAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > fireWindow {
			continue
		}
		if !t.compareAndSetStatus(StatusWaiting, StatusRunning) {
			continue
		}
		log.Infof("task %s firing (scheduled %s)", t.ID, fireAt.Format("15:04:05"))
		m.launch(t)
	}
}

// launch runs the task on its own goroutine under the outer run deadline so
// the polling loop never blocks.
func (m *Manager) launch(t *Task) {
	m.runs.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), m.runDeadline)
		defer cancel()

		var runID int64
		if m.recorder != nil {
			id, err := m.recorder.RecordStart(t.ID, m.nowFn())
			if err != nil {
				logging.Get(logging.CategoryStore).Warnf("record run start: %v", err)
			} else {
				runID = id
			}
		}

		outcome := t.Run(ctx, m.deps)
		if outcome == workflow.OutcomeTimedOut && m.sink != nil {
			m.sink(fmt.Sprintf("[%s] run exceeded the %s ceiling", t.ID, m.runDeadline))
		}

		if m.recorder != nil && runID != 0 {
			if err := m.recorder.RecordFinish(runID, outcome.String(), m.nowFn()); err != nil {
				logging.Get(logging.CategoryStore).Warnf("record run finish: %v", err)
			}
		}
		if err := m.persist(); err != nil {
			logging.Get(logging.CategoryStore).Warnf("persist after run: %v", err)
		}
		return nil
	})
}

// computeFireTime builds the task's absolute scheduled timestamp from its
// day-of-month and time-of-day, always against the current month and year.
// The UI models only a day and a time, so the month is deliberately not
// stored.
func computeFireTime(p Params, now time.Time) (time.Time, error) {
	day, err := strconv.Atoi(strings.TrimSpace(p.Day))
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("day %q is not a day of month", p.Day)
	}

	parts := strings.Split(strings.TrimSpace(p.Time), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return time.Time{}, fmt.Errorf("time %q is not HH:MM or HH:MM:SS", p.Time)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("time %q has a bad hour", p.Time)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("time %q has a bad minute", p.Time)
	}
	second := 0
	if len(parts) == 3 {
		second, err = strconv.Atoi(parts[2])
		if err != nil || second < 0 || second > 59 {
			return time.Time{}, fmt.Errorf("time %q has a bad second", p.Time)
		}
	}

	return time.Date(now.Year(), now.Month(), day, hour, minute, second, 0, now.Location()), nil
}
