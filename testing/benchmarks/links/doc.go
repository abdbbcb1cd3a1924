// Package links holds the Go benchmark form of the link workloads, one
// benchmark per group with a sub-benchmark per backend:
//
//	go test ./testing/benchmarks/links -bench . -benchtime 10x
//
// Every iteration forks the backend and creates the background links with
// the timer stopped, so a fixed iteration count keeps the wall time bounded.
// The HTTP backends run only when NEO4J_URI is set and the Bolt backend when
// NEO4J_BOLT_URI is set. Sizes come from BENCHMARK_LINK_COUNT and
// BENCHMARK_BACKGROUND_LINKS.
package links
