// Package bench drives benchmark iterations against a backend so that only
// the operations under test are timed.
//
// Every iteration forks the backend, seeds it with background point links,
// runs a body that marks its measured regions with Fork.Elapsed, and unforks
// the backend again. Forking, seeding, unforking and anything the body does
// outside Elapsed never reach the accumulated duration.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/orneryd/linkbench/pkg/links"
)

// DefaultBackground is the number of point links created by every fork.
const DefaultBackground = 3000

// ErrState is returned when a lifecycle operation is called in the wrong state.
var ErrState = errors.New("bench: invalid session state")

// Benched is a backend that can take part in a benchmark session.
type Benched interface {
	links.Store[uint64]

	// Name identifies the backend in reports.
	Name() string

	// Fork prepares the backend for an iteration. Remote backends ensure
	// their schema and purge residue left by interrupted runs.
	Fork(ctx context.Context) error

	// Unfork removes everything the iteration created.
	Unfork(ctx context.Context) error
}

// State of a session.
type State int

const (
	Idle State = iota
	Primed
	Measuring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Primed:
		return "primed"
	case Measuring:
		return "measuring"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Timer is notified around every measured region. *testing.B satisfies it.
type Timer interface {
	StartTimer()
	StopTimer()
}

type nopTimer struct{}

func (nopTimer) StartTimer() {}
func (nopTimer) StopTimer()  {}

// Option configures a Session.
type Option func(*Session)

// WithBackground sets the number of point links created by every fork.
func WithBackground(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.background = n
		}
	}
}

// WithLogger sets the logger that receives swallowed teardown errors.
func WithLogger(log logr.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithTimer forwards measured-region boundaries to t.
func WithTimer(t Timer) Option {
	return func(s *Session) {
		if t != nil {
			s.timer = t
		}
	}
}

// WithClock replaces the wall clock used to time measured regions.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session owns one backend for the duration of a benchmark. It is driven
// from a single goroutine.
type Session struct {
	backend    Benched
	background int
	log        logr.Logger
	timer      Timer
	now        func() time.Time

	state    State
	current  *Fork
	measured time.Duration
}

// New creates an idle session over backend.
func New(backend Benched, opts ...Option) *Session {
	s := &Session{
		backend:    backend,
		background: DefaultBackground,
		log:        logr.Discard(),
		timer:      nopTimer{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the backend driven by the session.
func (s *Session) Backend() Benched { return s.backend }

// Background returns the number of point links created by every fork.
func (s *Session) Background() int { return s.background }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Measured returns the time accumulated by Elapsed since the last Fork.
func (s *Session) Measured() time.Duration { return s.measured }

// Fork prepares the backend and creates the background links. The measured
// duration restarts at zero. If preparation fails the backend is unforked and
// the session stays idle.
func (s *Session) Fork(ctx context.Context) (*Fork, error) {
	if s.state == Measuring {
		return nil, fmt.Errorf("%w: fork while %s", ErrState, s.state)
	}
	s.current = nil
	s.state = Idle
	s.measured = 0

	if err := s.backend.Fork(ctx); err != nil {
		s.Unfork(ctx)
		return nil, fmt.Errorf("fork %s: %w", s.backend.Name(), err)
	}
	for i := 0; i < s.background; i++ {
		if _, err := s.backend.CreatePoint(ctx); err != nil {
			s.Unfork(ctx)
			return nil, fmt.Errorf("fork %s: background link %d: %w", s.backend.Name(), i+1, err)
		}
	}

	s.current = &Fork{Store: s.backend, session: s}
	s.state = Primed
	return s.current, nil
}

// Unfork purges the backend and returns the session to idle. Errors are
// logged and otherwise ignored; calling Unfork again repeats the purge.
func (s *Session) Unfork(ctx context.Context) {
	if err := s.backend.Unfork(ctx); err != nil {
		s.log.Error(err, "unfork failed", "backend", s.backend.Name())
	}
	s.current = nil
	s.state = Idle
}

// Fork is the primed view of a backend handed to a benchmark body. Its
// store methods are not timed unless called inside Elapsed.
type Fork struct {
	links.Store[uint64]
	session *Session
}

// Elapsed runs fn as a measured region and adds its duration to the
// session. The duration is added even when fn fails.
func (f *Fork) Elapsed(fn func() error) error {
	s := f.session
	if s.current != f || s.state != Primed {
		return fmt.Errorf("%w: elapsed while %s", ErrState, s.state)
	}
	s.state = Measuring
	s.timer.StartTimer()
	start := s.now()
	err := fn()
	d := s.now().Sub(start)
	s.timer.StopTimer()
	s.measured += d
	s.state = Primed
	return err
}

// Body is one benchmark iteration run against a primed fork.
type Body func(ctx context.Context, f *Fork) error

// Samples runs iters iterations of body and returns the measured duration
// of each. A failing iteration is unforked and stops the run.
func (s *Session) Samples(ctx context.Context, iters int, body Body) ([]time.Duration, error) {
	out := make([]time.Duration, 0, iters)
	for i := 0; i < iters; i++ {
		d, err := s.Once(ctx, body)
		if err != nil {
			return out, fmt.Errorf("iteration %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Once runs a single fork, body, unfork cycle and returns the measured time.
func (s *Session) Once(ctx context.Context, body Body) (time.Duration, error) {
	f, err := s.Fork(ctx)
	if err != nil {
		return 0, err
	}
	err = body(ctx, f)
	d := s.measured
	s.Unfork(ctx)
	return d, err
}

// Iterate runs iters iterations and returns the sum of their measured time.
func (s *Session) Iterate(ctx context.Context, iters int, body Body) (time.Duration, error) {
	samples, err := s.Samples(ctx, iters, body)
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return total, err
}
