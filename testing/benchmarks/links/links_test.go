package links

import (
	"context"
	"os"
	"testing"

	"github.com/go-logr/logr"

	"github.com/orneryd/linkbench/pkg/bench"
	"github.com/orneryd/linkbench/pkg/config"
	"github.com/orneryd/linkbench/pkg/harness"
	"github.com/orneryd/linkbench/pkg/neo4j"
	"github.com/orneryd/linkbench/pkg/workload"
)

func backends(b *testing.B) ([]harness.Backend, workload.Params) {
	b.Helper()
	cfg := config.LoadFromEnv()
	cfg.Storage.DataDir = b.TempDir()
	params := workload.Params{LinkCount: cfg.Benchmark.LinkCount, Background: cfg.Benchmark.Background}
	if err := params.Validate(); err != nil {
		b.Fatal(err)
	}

	var out []harness.Backend
	_, remote := os.LookupEnv("NEO4J_URI")
	for _, be := range harness.Backends(cfg, logr.Discard()) {
		if be.Remote && !remote && be.Name != neo4j.BoltName {
			continue
		}
		out = append(out, be)
	}
	return out, params
}

func run(b *testing.B, group string) {
	g, ok := workload.Lookup(group)
	if !ok {
		b.Fatalf("unknown group %s", group)
	}
	all, params := backends(b)
	for _, be := range all {
		b.Run(be.Name, func(b *testing.B) {
			backend, err := be.Open(context.Background())
			if err != nil {
				b.Skipf("%s unavailable: %v", be.Name, err)
			}
			defer backend.Close()
			bench.RunB(b, backend, g.Body(params), bench.WithBackground(params.Background))
		})
	}
}

func BenchmarkCreate(b *testing.B)       { run(b, workload.Create) }
func BenchmarkDelete(b *testing.B)       { run(b, workload.Delete) }
func BenchmarkUpdate(b *testing.B)       { run(b, workload.Update) }
func BenchmarkEachAll(b *testing.B)      { run(b, workload.EachAll) }
func BenchmarkEachIdentity(b *testing.B) { run(b, workload.EachIdentity) }
func BenchmarkEachConcrete(b *testing.B) { run(b, workload.EachConcrete) }
func BenchmarkEachOutgoing(b *testing.B) { run(b, workload.EachOutgoing) }
func BenchmarkEachIncoming(b *testing.B) { run(b, workload.EachIncoming) }
