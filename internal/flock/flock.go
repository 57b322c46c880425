package flock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lantzproject/lantz-core/internal/depgraph"
)

// Instrument is the lifecycle surface the flock drives. instrument.Device
// satisfies it.
type Instrument interface {
	Name() string
	Initialize(ctx context.Context) error
	Finalize(ctx context.Context) error
}

// State is the lifecycle state of one member.
type State int

const (
	// StatePending means not yet initialised, or finalised again.
	StatePending State = iota

	// StateStarting means initialisation is in flight.
	StateStarting

	// StateReady means the member initialised successfully.
	StateReady

	// StateFailed means initialisation failed or was skipped because a
	// dependency failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is one member's outcome as seen by Report.
type Status struct {
	State State

	// Err is the initialisation or finalisation error behind a failed
	// state, nil otherwise.
	Err error
}

// Hooks receive lifecycle callbacks per member. All fields are optional.
// Hooks run on the worker performing the transition; keep them short.
type Hooks struct {
	OnStarting func(name string)
	OnReady    func(name string)
	OnFailed   func(name string, err error)
}

func (h Hooks) starting(name string) {
	if h.OnStarting != nil {
		h.OnStarting(name)
	}
}

func (h Hooks) ready(name string) {
	if h.OnReady != nil {
		h.OnReady(name)
	}
}

func (h Hooks) failed(name string, err error) {
	if h.OnFailed != nil {
		h.OnFailed(name, err)
	}
}

// Logger is the logging surface the flock writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures one Initialize or Finalize run.
type Option func(*runOptions)

type runOptions struct {
	concurrency int
	hooks       Hooks
}

// WithConcurrency bounds each dependency level to n concurrent workers.
// Values below 2 keep the run sequential.
func WithConcurrency(n int) Option {
	return func(o *runOptions) { o.concurrency = n }
}

// WithHooks attaches per-member lifecycle callbacks to the run.
func WithHooks(h Hooks) Option {
	return func(o *runOptions) { o.hooks = h }
}

func buildRunOptions(opts []Option) runOptions {
	o := runOptions{concurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Flock is a dependency-ordered group of instruments.
type Flock struct {
	mu      sync.Mutex
	members map[string]Instrument
	deps    map[string]depgraph.Set
	states  map[string]State
	errs    map[string]error
	logger  Logger
}

// New creates an empty flock.
func New() *Flock {
	return &Flock{
		members: make(map[string]Instrument),
		deps:    make(map[string]depgraph.Set),
		states:  make(map[string]State),
		errs:    make(map[string]error),
		logger:  noopLogger{},
	}
}

// SetLogger sets the flock's logger.
func (f *Flock) SetLogger(logger Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// Add registers an instrument and the members it depends on. Dependencies
// must already be registered, so a valid registration order is also a valid
// initialisation order and cycles cannot form.
func (f *Flock) Add(inst Instrument, dependsOn ...string) error {
	name := inst.Name()

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.members[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMember, name)
	}
	deps := depgraph.NewSet()
	for _, dep := range dependsOn {
		if dep == name {
			return fmt.Errorf("%w: %s", ErrSelfDependency, name)
		}
		if _, ok := f.members[dep]; !ok {
			return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, name, dep)
		}
		deps[dep] = struct{}{}
	}

	f.members[name] = inst
	f.deps[name] = deps
	f.states[name] = StatePending
	return nil
}

// Names returns the registered member names in sorted order.
func (f *Flock) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := depgraph.NewSet()
	for name := range f.members {
		all[name] = struct{}{}
	}
	return all.Sorted()
}

// Levels returns the member names grouped into dependency levels: every
// member appears strictly after all of its dependencies.
func (f *Flock) Levels() ([][]string, error) {
	f.mu.Lock()
	deps := make(map[string]depgraph.Set, len(f.deps))
	members := depgraph.NewSet()
	for name, d := range f.deps {
		deps[name] = d
		members[name] = struct{}{}
	}
	f.mu.Unlock()

	sets, err := depgraph.Solve(deps, members)
	if err != nil {
		return nil, err
	}
	levels := make([][]string, len(sets))
	for i, s := range sets {
		levels[i] = s.Sorted()
	}
	return levels, nil
}

// Report returns a snapshot of every member's status.
func (f *Flock) Report() map[string]Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]Status, len(f.states))
	for name, state := range f.states {
		out[name] = Status{State: state, Err: f.errs[name]}
	}
	return out
}

// State returns one member's status.
func (f *Flock) State(name string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, ok := f.states[name]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownMember, name)
	}
	return Status{State: state, Err: f.errs[name]}, nil
}

// failureLog collects run failures and decides the abort policy: with an
// OnFailed hook a failure is contained to its member and the run carries on,
// without one the first failure stops everything still pending.
type failureLog struct {
	mu      sync.Mutex
	fails   []error
	contain bool
	aborted bool
}

func newFailureLog(h Hooks) *failureLog {
	return &failureLog{contain: h.OnFailed != nil}
}

func (l *failureLog) record(err error) {
	l.mu.Lock()
	l.fails = append(l.fails, err)
	if !l.contain {
		l.aborted = true
	}
	l.mu.Unlock()
}

func (l *failureLog) stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aborted
}

func (l *failureLog) join(extra ...error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Join(append(l.fails, extra...)...)
}

// Initialize brings every pending member up in dependency order. With an
// OnFailed hook a failed member marks its transitive dependants failed
// without touching them and members on independent branches still
// initialise; without one the first failure stops every member not yet
// started. The returned error joins every failure, nil when all members
// came up.
func (f *Flock) Initialize(ctx context.Context, opts ...Option) error {
	_, err := f.initialize(ctx, buildRunOptions(opts))
	return err
}

// initialize runs the up pass and returns the names it transitioned to
// ready, for session tracking.
func (f *Flock) initialize(ctx context.Context, o runOptions) ([]string, error) {
	levels, err := f.Levels()
	if err != nil {
		return nil, err
	}

	var (
		resMu   sync.Mutex
		started []string
	)
	fails := newFailureLog(o.hooks)

	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			return started, fails.join(err)
		}

		var g errgroup.Group
		if o.concurrency > 1 {
			g.SetLimit(o.concurrency)
		} else {
			g.SetLimit(1)
		}

		for _, name := range level {
			name := name
			if fails.stop() {
				break
			}

			inst, run, skipErr := f.beginInitialize(name)
			if skipErr != nil {
				o.hooks.failed(name, skipErr)
				fails.record(skipErr)
				continue
			}
			if !run {
				continue
			}

			g.Go(func() error {
				o.hooks.starting(name)
				f.logger.Info("initializing " + name)

				if err := inst.Initialize(ctx); err != nil {
					err = fmt.Errorf("%s: %w", name, err)
					f.setState(name, StateFailed, err)
					o.hooks.failed(name, err)
					f.logger.Error("initialization failed", "member", name, "error", err)

					fails.record(err)
					return nil
				}

				f.setState(name, StateReady, nil)
				o.hooks.ready(name)
				f.logger.Info(name + " ready")

				resMu.Lock()
				started = append(started, name)
				resMu.Unlock()
				return nil
			})
		}

		// Level barrier: dependants never start before this level settles.
		_ = g.Wait()

		if fails.stop() {
			break
		}
	}

	return started, fails.join()
}

// beginInitialize decides what to do with one member: run it, skip it as
// already handled, or fail it because a dependency did not come up.
func (f *Flock) beginInitialize(name string) (inst Instrument, run bool, skipErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.states[name] != StatePending {
		return nil, false, nil
	}

	for dep := range f.deps[name] {
		if f.states[dep] != StateReady {
			err := fmt.Errorf("%w: %s needs %s (%s)", ErrDependencyFailed, name, dep, f.states[dep])
			f.states[name] = StateFailed
			f.errs[name] = err
			return nil, false, err
		}
	}

	f.states[name] = StateStarting
	f.errs[name] = nil
	return f.members[name], true, nil
}

// Finalize brings every ready member down in reverse dependency order.
// Hooks and the failure policy mirror Initialize: with an OnFailed hook a
// failed finalisation is recorded and the pass continues, without one the
// first failure stops the members not yet torn down. The returned error
// joins every failure.
func (f *Flock) Finalize(ctx context.Context, opts ...Option) error {
	return f.finalize(ctx, buildRunOptions(opts), nil)
}

// finalize runs the down pass. A non-nil only set restricts it to those
// members (session scope).
func (f *Flock) finalize(ctx context.Context, o runOptions, only map[string]struct{}) error {
	levels, err := f.Levels()
	if err != nil {
		return err
	}

	fails := newFailureLog(o.hooks)

	for i := len(levels) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return fails.join(err)
		}

		var g errgroup.Group
		if o.concurrency > 1 {
			g.SetLimit(o.concurrency)
		} else {
			g.SetLimit(1)
		}

		for _, name := range levels[i] {
			name := name
			if fails.stop() {
				break
			}
			if only != nil {
				if _, ok := only[name]; !ok {
					continue
				}
			}
			inst, run := f.beginFinalize(name)
			if !run {
				continue
			}

			g.Go(func() error {
				o.hooks.starting(name)
				f.logger.Info("finalizing " + name)

				if err := inst.Finalize(ctx); err != nil {
					err = fmt.Errorf("%s: %w", name, err)
					f.setState(name, StateFailed, err)
					o.hooks.failed(name, err)
					f.logger.Error("finalization failed", "member", name, "error", err)

					fails.record(err)
					return nil
				}

				f.setState(name, StatePending, nil)
				o.hooks.ready(name)
				f.logger.Info(name + " finalized")
				return nil
			})
		}

		_ = g.Wait()

		if fails.stop() {
			break
		}
	}

	return fails.join()
}

// beginFinalize claims one ready member for finalisation.
func (f *Flock) beginFinalize(name string) (Instrument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.states[name] != StateReady {
		return nil, false
	}
	f.states[name] = StateStarting
	return f.members[name], true
}

func (f *Flock) setState(name string, state State, err error) {
	f.mu.Lock()
	f.states[name] = state
	f.errs[name] = err
	f.mu.Unlock()
}
