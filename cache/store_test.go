package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/etnz/apt-release-mirror/errs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(day int) time.Time {
	return time.Date(2024, time.January, day, 10, 0, 0, 0, time.UTC)
}

func entry(tag, filename string, day int) Entry {
	return Entry{
		Repo:        "acme/tool",
		Tag:         tag,
		Filename:    filename,
		Arch:        "amd64",
		Package:     "Package: tool\nVersion: " + tag + "\nArchitecture: amd64\n\n",
		PublishedAt: date(day),
	}
}

func TestSetAddAndSort(t *testing.T) {
	s := NewSet(
		entry("v1.0.0", "tool_amd64.deb", 1),
		entry("v1.1.0", "tool_amd64.deb", 2),
		entry("v1.1.0", "tool_arm64.deb", 2),
	)
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Add(entry("v1.0.0", "tool_amd64.deb", 5)), "duplicate tag+filename must be ignored")
	assert.True(t, s.Has("v1.1.0", "tool_arm64.deb"))
	assert.False(t, s.Has("v1.2.0", "tool_arm64.deb"))

	var order []string
	for _, e := range s.Sorted() {
		order = append(order, e.Tag+"/"+e.Filename)
	}
	assert.Equal(t, []string{
		"v1.1.0/tool_arm64.deb",
		"v1.1.0/tool_amd64.deb",
		"v1.0.0/tool_amd64.deb",
	}, order)
	assert.Equal(t, date(1), s.Sorted()[2].PublishedAt, "the first entry added wins")
	assert.Equal(t, date(2), s.MaxPublished())
	assert.True(t, NewSet().MaxPublished().IsZero())
}

func TestSortTieBreakOnTag(t *testing.T) {
	s := NewSet(entry("a", "same.deb", 1), entry("b", "same.deb", 1))
	sorted := s.Sorted()
	assert.Equal(t, "b", sorted[0].Tag)
	assert.Equal(t, "a", sorted[1].Tag)
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())
	in := NewSet(entry("v1.0.0", "tool_amd64.deb", 1), entry("v1.1.0", "tool_amd64.deb", 2))

	changed, err := store.Save("acme/tool", in)
	require.NoError(t, err)
	assert.True(t, changed)

	out, err := store.Load("acme/tool")
	require.NoError(t, err)
	assert.Equal(t, in.Sorted(), out.Sorted())

	// Saving the same content again leaves the file untouched.
	changed, err = store.Save("acme/tool", out)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStoreFileFormat(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zerolog.Nop())
	e := entry("v1.0.0", "tool_amd64.deb", 1)
	e.PublishedAt = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	_, err := store.Save("acme/tool", NewSet(e))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "package-cache-acme-tool.json"))
	require.NoError(t, err)
	want := `[
  {
    "arch": "amd64",
    "filename": "tool_amd64.deb",
    "package": "Package: tool\nVersion: v1.0.0\nArchitecture: amd64\n\n",
    "published_at": "2024-01-01T11:00:00+00:00",
    "repo": "acme/tool",
    "tag": "v1.0.0"
  }
]`
	assert.Equal(t, want, string(data))
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())
	set, err := store.Load("acme/tool")
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestStoreLoadCorrupt(t *testing.T) {
	tests := map[string]string{
		"invalid json":  `[{"repo": "acme/tool",`,
		"unknown field": `[{"arch":"amd64","filename":"f.deb","package":"p","published_at":"2024-01-01T00:00:00+00:00","repo":"acme/tool","tag":"v1","extra":1}]`,
		"missing arch":  `[{"filename":"f.deb","package":"p","published_at":"2024-01-01T00:00:00+00:00","repo":"acme/tool","tag":"v1"}]`,
		"bad timestamp": `[{"arch":"amd64","filename":"f.deb","package":"p","published_at":"yesterday","repo":"acme/tool","tag":"v1"}]`,
		"wrong shape":   `{"acme/tool": []}`,
		"other repo":    `[{"arch":"amd64","filename":"f.deb","package":"p","published_at":"2024-01-01T00:00:00+00:00","repo":"acme-tool/x","tag":"v1"}]`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewStore(dir, zerolog.Nop())
			path := store.Path("acme/tool")
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			set, err := store.Load("acme/tool")
			require.Error(t, err)
			assert.Equal(t, errs.KindCacheCorrupt, errs.KindOf(err))
			assert.False(t, errs.Fatal(err))
			require.NotNil(t, set)
			assert.Equal(t, 0, set.Len())
			assert.NoFileExists(t, path)
		})
	}
}

func TestStoreLoadRejectsCollidingProject(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zerolog.Nop())
	require.Equal(t, store.Path("a-b/c"), store.Path("a/b-c"))

	e := entry("v1", "c_amd64.deb", 1)
	e.Repo = "a-b/c"
	_, err := store.Save("a-b/c", NewSet(e))
	require.NoError(t, err)

	set, err := store.Load("a/b-c")
	assert.True(t, errs.Is(err, errs.KindCacheCorrupt), "got %v", err)
	assert.Equal(t, 0, set.Len())
}

func TestStoreLoadDropsDuplicates(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zerolog.Nop())
	content := `[
  {"arch":"amd64","filename":"f.deb","package":"p","published_at":"2024-01-01T00:00:00+00:00","repo":"acme/tool","tag":"v1"},
  {"arch":"arm64","filename":"f.deb","package":"q","published_at":"2024-01-01T00:00:00+00:00","repo":"acme/tool","tag":"v1"}
]`
	require.NoError(t, os.WriteFile(store.Path("acme/tool"), []byte(content), 0644))

	set, err := store.Load("acme/tool")
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, "amd64", set.Sorted()[0].Arch)
}
