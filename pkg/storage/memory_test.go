package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapMemory_Grow(t *testing.T) {
	h := NewHeapMemory()
	assert.Empty(t, h.Bytes())

	require.NoError(t, h.Grow(10))
	require.GreaterOrEqual(t, len(h.Bytes()), 10)
	h.Bytes()[3] = 7

	require.NoError(t, h.Grow(minGrow*3))
	assert.GreaterOrEqual(t, len(h.Bytes()), minGrow*3)
	assert.Equal(t, byte(7), h.Bytes()[3], "contents survive growth")
	assert.Equal(t, byte(0), h.Bytes()[minGrow*3-1], "new bytes are zero")

	size := len(h.Bytes())
	require.NoError(t, h.Grow(5))
	assert.Len(t, h.Bytes(), size, "shrinking is a no-op")

	require.NoError(t, h.Close())
	assert.Nil(t, h.Bytes())
}

func TestMappedMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.links")

	t.Run("create and grow", func(t *testing.T) {
		m, err := OpenMappedMemory(path)
		require.NoError(t, err)
		assert.Equal(t, path, m.Path())
		assert.Equal(t, mapAlign, len(m.Bytes()))

		m.Bytes()[0] = 42
		require.NoError(t, m.Grow(mapAlign+1))
		assert.Equal(t, 0, len(m.Bytes())%mapAlign)
		assert.Greater(t, len(m.Bytes()), mapAlign)
		assert.Equal(t, byte(42), m.Bytes()[0])
		m.Bytes()[mapAlign] = 43

		require.NoError(t, m.Sync())
		require.NoError(t, m.Close())
		require.NoError(t, m.Close(), "second close is a no-op")
		assert.ErrorIs(t, m.Grow(1<<30), ErrStorageClosed)
	})

	t.Run("reopen keeps contents", func(t *testing.T) {
		st, err := os.Stat(path)
		require.NoError(t, err)

		m, err := OpenMappedMemory(path)
		require.NoError(t, err)
		defer m.Close()
		assert.Equal(t, int(st.Size()), len(m.Bytes()))
		assert.Equal(t, byte(42), m.Bytes()[0])
		assert.Equal(t, byte(43), m.Bytes()[mapAlign])
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := OpenMappedMemory(filepath.Join(t.TempDir(), "nope", "x.links"))
		assert.Error(t, err)
	})
}
