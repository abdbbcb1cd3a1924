package bench

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/linkbench/pkg/links"
	"github.com/orneryd/linkbench/pkg/storage"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time            { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// recorder logs lifecycle events and charges a second of fake time to every
// backend call, so any leak of unmeasured work into the totals is visible.
type recorder struct {
	*storage.Local[uint64]
	clock     *clock
	events    []string
	forkErr   error
	createErr error
	unforkErr error
}

func newRecorder(t *testing.T) *recorder {
	t.Helper()
	s, err := storage.NewUnitedVolatile[uint64]()
	require.NoError(t, err)
	r := &recorder{
		Local: storage.NewLocal[uint64]("recorder", s),
		clock: &clock{t: time.Unix(0, 0)},
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func (r *recorder) record(ev string) {
	r.events = append(r.events, ev)
	r.clock.advance(time.Second)
}

func (r *recorder) Fork(ctx context.Context) error {
	r.record("fork")
	if r.forkErr != nil {
		return r.forkErr
	}
	return r.Local.Fork(ctx)
}

func (r *recorder) CreatePoint(ctx context.Context) (links.Link[uint64], error) {
	r.record("create")
	if r.createErr != nil {
		return links.Link[uint64]{}, r.createErr
	}
	return r.Local.CreatePoint(ctx)
}

func (r *recorder) Unfork(ctx context.Context) error {
	r.record("unfork")
	if r.unforkErr != nil {
		return r.unforkErr
	}
	return r.Local.Unfork(ctx)
}

func (r *recorder) StartTimer() { r.events = append(r.events, "start") }
func (r *recorder) StopTimer()  { r.events = append(r.events, "stop") }

func (r *recorder) session(opts ...Option) *Session {
	base := []Option{WithBackground(3), WithTimer(r), WithClock(r.clock.now)}
	return New(r, append(base, opts...)...)
}

func measuredBody(r *recorder) Body {
	return func(ctx context.Context, f *Fork) error {
		if _, err := f.CreatePoint(ctx); err != nil {
			return err
		}
		if err := f.Elapsed(func() error {
			r.clock.advance(7 * time.Millisecond)
			return nil
		}); err != nil {
			return err
		}
		return f.Elapsed(func() error {
			r.clock.advance(3 * time.Millisecond)
			return nil
		})
	}
}

func TestSession_OnlyMarkedRegionsAreMeasured(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(t)
	s := r.session()

	d, err := s.Once(ctx, measuredBody(r))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, d)
	assert.Equal(t, []string{
		"fork", "create", "create", "create",
		"create", "start", "stop", "start", "stop",
		"unfork",
	}, r.events)
	assert.Equal(t, Idle, s.State())
}

func TestSession_SamplesAndIterate(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(t)
	s := r.session()

	samples, err := s.Samples(ctx, 3, measuredBody(r))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}, samples)

	total, err := s.Iterate(ctx, 4, measuredBody(r))
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, total)
}

func TestSession_ForkCreatesBackground(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(t)
	s := r.session(WithBackground(5))
	assert.Equal(t, 5, s.Background())

	f, err := s.Fork(ctx)
	require.NoError(t, err)
	assert.Equal(t, Primed, s.State())
	assert.Zero(t, s.Measured())

	all, err := links.Collect[uint64](ctx, f, nil)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, l := range all {
		assert.Equal(t, links.Point(uint64(i+1)), l)
	}
	s.Unfork(ctx)
}

func TestSession_UnforkTwiceLeavesEmptyState(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(t)
	s := r.session()

	_, err := s.Fork(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		s.Unfork(ctx)
		assert.Equal(t, Idle, s.State())
		n, err := r.Count(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	f, err := s.Fork(ctx)
	require.NoError(t, err)
	first, ok, err := f.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, links.Point[uint64](1), first)
	s.Unfork(ctx)
}

func TestSession_UnforkErrorIsLoggedAndSwallowed(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(t)

	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{})
	s := r.session(WithLogger(log))

	r.unforkErr = errors.New("purge refused")
	d, err := s.Once(ctx, measuredBody(r))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, d)
	assert.Equal(t, Idle, s.State())

	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0], "unfork failed"), lines[0])
	assert.True(t, strings.Contains(lines[0], "purge refused"), lines[0])
	assert.True(t, strings.Contains(lines[0], "recorder"), lines[0])
}

func TestSession_StateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("elapsed after unfork", func(t *testing.T) {
		r := newRecorder(t)
		s := r.session()
		f, err := s.Fork(ctx)
		require.NoError(t, err)
		s.Unfork(ctx)
		err = f.Elapsed(func() error { return nil })
		assert.ErrorIs(t, err, ErrState)
	})

	t.Run("stale fork", func(t *testing.T) {
		r := newRecorder(t)
		s := r.session()
		old, err := s.Fork(ctx)
		require.NoError(t, err)
		cur, err := s.Fork(ctx)
		require.NoError(t, err)
		assert.ErrorIs(t, old.Elapsed(func() error { return nil }), ErrState)
		assert.NoError(t, cur.Elapsed(func() error { return nil }))
		s.Unfork(ctx)
	})

	t.Run("nested elapsed", func(t *testing.T) {
		r := newRecorder(t)
		s := r.session()
		f, err := s.Fork(ctx)
		require.NoError(t, err)
		var inner error
		require.NoError(t, f.Elapsed(func() error {
			assert.Equal(t, Measuring, s.State())
			inner = f.Elapsed(func() error { return nil })
			return nil
		}))
		assert.ErrorIs(t, inner, ErrState)
		assert.Equal(t, Primed, s.State())
		s.Unfork(ctx)
	})

	t.Run("fork while measuring", func(t *testing.T) {
		r := newRecorder(t)
		s := r.session()
		f, err := s.Fork(ctx)
		require.NoError(t, err)
		require.NoError(t, f.Elapsed(func() error {
			_, err := s.Fork(ctx)
			assert.ErrorIs(t, err, ErrState)
			return nil
		}))
		s.Unfork(ctx)
	})
}

func TestSession_FailedElapsedStillCounts(t *testing.T) {
	ctx := context.Background()
	r := newRecorder(t)
	s := r.session()
	boom := errors.New("boom")

	d, err := s.Once(ctx, func(ctx context.Context, f *Fork) error {
		return f.Elapsed(func() error {
			r.clock.advance(time.Millisecond)
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, time.Millisecond, d)
	assert.Equal(t, "unfork", r.events[len(r.events)-1])
}

func TestSession_ForkFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("backend fork", func(t *testing.T) {
		r := newRecorder(t)
		r.forkErr = errors.New("no schema")
		s := r.session()
		_, err := s.Fork(ctx)
		assert.ErrorIs(t, err, r.forkErr)
		assert.Equal(t, Idle, s.State())
		assert.Equal(t, []string{"fork", "unfork"}, r.events)
	})

	t.Run("background create", func(t *testing.T) {
		r := newRecorder(t)
		r.createErr = errors.New("disk full")
		s := r.session()
		_, err := s.Samples(ctx, 2, measuredBody(r))
		assert.ErrorIs(t, err, r.createErr)
		assert.Equal(t, Idle, s.State())
		assert.Equal(t, []string{"fork", "create", "unfork"}, r.events)
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "primed", Primed.String())
	assert.Equal(t, "measuring", Measuring.String())
	assert.Equal(t, "State(9)", State(9).String())
}
