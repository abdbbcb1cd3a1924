package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedMax struct {
	max uint64
	err error
}

func (f fixedMax) MaxIdentity(context.Context) (uint64, error) { return f.max, f.err }

func TestAllocatorFresh(t *testing.T) {
	a := New()
	assert.Equal(t, uint64(1), a.Peek())
	assert.Equal(t, uint64(1), a.Allocate())
	assert.Equal(t, uint64(2), a.Allocate())
	assert.Equal(t, uint64(3), a.Peek())
}

func TestSeed(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		a := New()
		require.NoError(t, a.Seed(context.Background(), fixedMax{}))
		assert.Equal(t, uint64(1), a.Allocate())
	})
	t.Run("existing links", func(t *testing.T) {
		a := New()
		require.NoError(t, a.Seed(context.Background(), fixedMax{max: 41}))
		assert.Equal(t, uint64(42), a.Allocate())
	})
	t.Run("failure keeps counter", func(t *testing.T) {
		a := New()
		boom := errors.New("boom")
		err := a.Seed(context.Background(), fixedMax{max: 10, err: boom})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, uint64(1), a.Peek())
	})
}

func TestRelease(t *testing.T) {
	a := New()
	id := a.Allocate()
	assert.True(t, a.Release(id))
	assert.Equal(t, id, a.Allocate())

	first := a.Allocate()
	second := a.Allocate()
	assert.False(t, a.Release(first), "a later allocation must not be handed out twice")
	assert.True(t, a.Release(second))
	assert.Equal(t, second, a.Peek())
}

func TestReset(t *testing.T) {
	a := New()
	require.NoError(t, a.Seed(context.Background(), fixedMax{max: 100}))
	a.Allocate()
	a.Reset()
	assert.Equal(t, uint64(1), a.Allocate())
}

func TestConcurrentAllocationIsUnique(t *testing.T) {
	const workers, each = 8, 500
	a := New()

	var mu sync.Mutex
	var got []uint64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, each)
			for j := 0; j < each; j++ {
				local = append(local, a.Allocate())
			}
			mu.Lock()
			got = append(got, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Len(t, got, workers*each)
	for i, id := range got {
		assert.Equal(t, uint64(i+1), id)
	}
}

func TestAllocatorProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("identities follow the seed and strictly increase", prop.ForAll(
		func(seed uint64, n int) bool {
			a := New()
			if err := a.Seed(context.Background(), fixedMax{max: seed}); err != nil {
				return false
			}
			prev := seed
			for i := 0; i < n; i++ {
				id := a.Allocate()
				if id != prev+1 {
					return false
				}
				prev = id
			}
			return true
		},
		gen.UInt64Range(0, 1<<40),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
