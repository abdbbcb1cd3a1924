package bench

import (
	"context"
	"testing"
)

// RunB runs body b.N times against backend, timing only the regions marked
// with Fork.Elapsed. Options are applied after the timer binding.
func RunB(b *testing.B, backend Benched, body Body, opts ...Option) {
	b.Helper()
	s := New(backend, append([]Option{WithTimer(b)}, opts...)...)
	ctx := context.Background()

	b.StopTimer()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Once(ctx, body); err != nil {
			b.Fatalf("%s: %v", backend.Name(), err)
		}
	}
}
