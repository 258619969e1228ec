// Package cache remembers which release assets of a project have already been
// downloaded and scanned, together with their package metadata.
package cache

import (
	"sort"
	"time"
)

// Entry is the durable record of one ingested asset.
//
// An entry exists only once the asset was downloaded and its metadata
// extracted. Assets are immutable upstream for a given tag and filename, so
// entries are never invalidated.
type Entry struct {
	Repo     string
	Tag      string
	Filename string
	// Arch is the value of the Architecture field of Package.
	Arch string
	// Package is the raw metadata block, written verbatim into the index.
	Package     string
	PublishedAt time.Time
}

type key struct {
	tag, filename string
}

// Set holds the entries of one project, keyed by tag and filename.
type Set struct {
	entries map[key]Entry
}

// NewSet returns a Set holding entries. Later duplicates are dropped.
func NewSet(entries ...Entry) *Set {
	s := &Set{entries: make(map[key]Entry, len(entries))}
	for _, e := range entries {
		s.Add(e)
	}
	return s
}

// Has reports whether an entry exists for the asset filename of release tag.
func (s *Set) Has(tag, filename string) bool {
	_, ok := s.entries[key{tag, filename}]
	return ok
}

// Add records e unless an entry already exists for its tag and filename.
// It reports whether e was added.
func (s *Set) Add(e Entry) bool {
	k := key{e.Tag, e.Filename}
	if _, ok := s.entries[k]; ok {
		return false
	}
	s.entries[k] = e
	return true
}

func (s *Set) Len() int { return len(s.entries) }

// Sorted returns the entries most recent first: by publication time
// descending, then filename descending, then tag descending.
func (s *Set) Sorted() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		if a.Filename != b.Filename {
			return a.Filename > b.Filename
		}
		return a.Tag > b.Tag
	})
	return out
}

// MaxPublished returns the most recent publication time in the set, or the
// zero time for an empty set.
func (s *Set) MaxPublished() time.Time {
	var max time.Time
	for _, e := range s.entries {
		if e.PublishedAt.After(max) {
			max = e.PublishedAt
		}
	}
	return max
}
