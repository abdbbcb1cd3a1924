// Package harness wires configuration, backends, workload groups and the
// report recorder into a benchmark run.
package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/orneryd/linkbench/pkg/bench"
	"github.com/orneryd/linkbench/pkg/config"
	"github.com/orneryd/linkbench/pkg/neo4j"
	"github.com/orneryd/linkbench/pkg/report"
	"github.com/orneryd/linkbench/pkg/storage"
	"github.com/orneryd/linkbench/pkg/workload"
)

// Backend is a named way to open a fresh benchmarked backend.
type Backend struct {
	Name   string
	Remote bool
	Open   func(ctx context.Context) (bench.Benched, error)
}

// Backends returns every backend the configuration can reach, local
// variants first. The Bolt driver backend is only listed when a Bolt URI is
// configured.
func Backends(cfg *config.Config, log logr.Logger) []Backend {
	var out []Backend
	for _, v := range storage.Variants() {
		v = v.WithLogger(log.WithName("storage"))
		out = append(out, Backend{
			Name: v.Name,
			Open: func(context.Context) (bench.Benched, error) {
				return v.Open(cfg.Storage.DataDir)
			},
		})
	}

	opts := neo4j.Options{
		URI:      cfg.Neo4j.URI,
		User:     cfg.Neo4j.User,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
		Logger:   log.WithName("neo4j"),
	}
	out = append(out,
		Backend{
			Name:   neo4j.NonTransactionName,
			Remote: true,
			Open: func(ctx context.Context) (bench.Benched, error) {
				return neo4j.Connect[uint64](ctx, opts)
			},
		},
		Backend{
			Name:   neo4j.TransactionName,
			Remote: true,
			Open: func(ctx context.Context) (bench.Benched, error) {
				return neo4j.ConnectTransaction[uint64](ctx, opts)
			},
		},
	)
	if cfg.Neo4j.BoltURI != "" {
		bopts := neo4j.BoltOptions{
			URI:      cfg.Neo4j.BoltURI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
			Logger:   log.WithName("bolt"),
		}
		out = append(out, Backend{
			Name:   neo4j.BoltName,
			Remote: true,
			Open: func(ctx context.Context) (bench.Benched, error) {
				return neo4j.ConnectBolt[uint64](ctx, bopts)
			},
		})
	}
	return out
}

// SelectBackends filters all by name, keeping the order of all. No names
// selects everything; an unknown name is an error.
func SelectBackends(all []Backend, names []string) ([]Backend, error) {
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Backend
	for _, b := range all {
		if want[b.Name] {
			out = append(out, b)
			delete(want, b.Name)
		}
	}
	for _, n := range names {
		if want[n] {
			return nil, fmt.Errorf("unknown backend %q", n)
		}
	}
	return out, nil
}

// SelectGroups resolves group names in report order. No names selects every
// group.
func SelectGroups(names []string) ([]workload.Group, error) {
	if len(names) == 0 {
		return workload.Groups(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := workload.Lookup(n); !ok {
			return nil, fmt.Errorf("unknown group %q", n)
		}
		want[n] = true
	}
	var out []workload.Group
	for _, g := range workload.Groups() {
		if want[g.Name] {
			out = append(out, g)
		}
	}
	return out, nil
}

// Runner executes groups against backends and records the results.
type Runner struct {
	Params     workload.Params
	Iterations int
	Recorder   *report.Recorder
	Log        logr.Logger
}

// NewRunner builds a runner from configuration.
func NewRunner(cfg *config.Config, rec *report.Recorder, log logr.Logger) *Runner {
	return &Runner{
		Params: workload.Params{
			LinkCount:  cfg.Benchmark.LinkCount,
			Background: cfg.Benchmark.Background,
		},
		Iterations: cfg.Benchmark.Iterations,
		Recorder:   rec,
		Log:        log,
	}
}

// Run measures every group on every backend. Each pair gets a freshly opened
// backend. A failing pair is recorded and logged, and the run moves on; the
// returned error joins all failures.
func (r *Runner) Run(ctx context.Context, groups []workload.Group, backends []Backend) error {
	if err := r.Params.Validate(); err != nil {
		return err
	}
	if r.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", r.Iterations)
	}

	var errs []error
	for _, g := range groups {
		for _, b := range backends {
			if err := ctx.Err(); err != nil {
				return errors.Join(append(errs, err)...)
			}
			key := report.Key{Group: g.Name, Backend: b.Name}
			if err := r.runOne(ctx, key, g, b); err != nil {
				r.Recorder.Fail(key, err)
				r.Log.Error(err, "benchmark failed", "group", g.Name, "backend", b.Name)
				errs = append(errs, fmt.Errorf("%s: %w", key.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) runOne(ctx context.Context, key report.Key, g workload.Group, b Backend) error {
	log := r.Log.WithValues("group", g.Name, "backend", b.Name)
	log.V(1).Info("opening backend")
	backend, err := b.Open(ctx)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error(err, "close failed")
		}
	}()

	s := bench.New(backend,
		bench.WithBackground(r.Params.Background),
		bench.WithLogger(log),
	)
	body := g.Body(r.Params)
	for i := 0; i < r.Iterations; i++ {
		d, err := s.Once(ctx, body)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		r.Recorder.Record(key, d)
		log.V(2).Info("iteration", "index", i, "measured", d)
	}
	log.V(1).Info("done", "iterations", r.Iterations)
	return nil
}

// Purge removes every link from the configured remote database.
func Purge(ctx context.Context, cfg *config.Config, log logr.Logger) error {
	c, err := neo4j.Connect[uint64](ctx, neo4j.Options{
		URI:      cfg.Neo4j.URI,
		User:     cfg.Neo4j.User,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	return c.DropAll(ctx)
}
