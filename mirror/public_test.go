package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyPublic(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a", "b", "c.txt"), []byte("c"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("old"), 0644))

	var events []fmt.Stringer
	require.NoError(t, CopyPublic(src, dst, func(e fmt.Stringer) { events = append(events, e) }))

	data, err := os.ReadFile(filepath.Join(dst, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))
	assert.FileExists(t, filepath.Join(dst, "stale.txt"))
	require.Len(t, events, 1)
	assert.Contains(t, events[0].String(), `"mirror.EventPublicCopy"`)
}

func TestCopyPublicMissingSource(t *testing.T) {
	assert.NoError(t, CopyPublic(filepath.Join(t.TempDir(), "nope"), t.TempDir(), nil))
	assert.NoError(t, CopyPublic("", t.TempDir(), nil))
}
