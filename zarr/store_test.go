package zarr

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		MemoryStoreType: NewMemoryStore(),
		LocalStoreType:  local,
	}
}

func TestStores(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, name, s.Type())

			_, err := s.Get("missing/.zarray")
			assert.ErrorIs(t, err, ErrNotfound)

			require.NoError(t, s.Put("a/.zarray", strings.NewReader("{}")))
			require.NoError(t, s.Put("a/0.0", strings.NewReader("chunk")))
			require.NoError(t, s.Put("b/.zarray", strings.NewReader("{}")))
			require.NoError(t, s.Put("a/0.0", strings.NewReader("rewritten")))

			f, err := s.Get("a/0.0")
			require.NoError(t, err)
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			require.NoError(t, f.Close())
			assert.Equal(t, "rewritten", string(data))

			keys, err := s.List("a/")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/.zarray", "a/0.0"}, keys)
			all, err := s.List("")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestNewPath(t *testing.T) {
	p, err := NewPath(`/group\\sub//tas/`)
	require.NoError(t, err)
	assert.Equal(t, "group/sub/tas", p.String())
	assert.Equal(t, "group/sub/tas/.zarray", p.Join(".zarray").String())
	assert.Equal(t, "group/sub/tas", p.String())

	_, err = NewPath("a/../b")
	assert.Error(t, err)
}
