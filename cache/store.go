package cache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/etnz/apt-release-mirror/errs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// timeLayout renders UTC as "+00:00" rather than "Z".
const timeLayout = "2006-01-02T15:04:05.999999999-07:00"

// Store reads and writes one JSON cache file per project in a directory.
type Store struct {
	dir string
	log zerolog.Logger
}

func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{dir: dir, log: log}
}

// Path returns the cache file of project, e.g. package-cache-acme-tool.json.
func (s *Store) Path(project string) string {
	return filepath.Join(s.dir, "package-cache-"+strings.ReplaceAll(project, "/", "-")+".json")
}

// Load returns the cached entries of project. A missing file is an empty set.
//
// A file that cannot be decoded is removed and an empty set is returned along
// with a KindCacheCorrupt error, so callers can log it and carry on. Any other
// error is a KindIO error and the returned set is nil.
func (s *Store) Load(project string) (*Set, error) {
	path := s.Path(project)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSet(), nil
		}
		return nil, errs.New(errs.KindIO, "read cache "+path, err)
	}

	entries, err := decode(data, project)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, errs.New(errs.KindIO, "remove corrupt cache "+path, rmErr)
		}
		s.log.Warn().Str("path", path).Err(err).Msg("discarded corrupt cache file")
		return NewSet(), errs.New(errs.KindCacheCorrupt, "decode cache "+path, err)
	}

	set := NewSet(entries...)
	if dropped := len(entries) - set.Len(); dropped > 0 {
		s.log.Debug().Str("path", path).Int("dropped", dropped).Msg("dropped duplicate cache entries")
	}
	return set, nil
}

// Save overwrites the cache file of project with the sorted entries of set.
// It reports whether the file content changed.
func (s *Store) Save(project string, set *Set) (changed bool, err error) {
	path := s.Path(project)
	data, err := encode(set.Sorted())
	if err != nil {
		return false, errs.New(errs.KindIO, "encode cache "+path, err)
	}

	previous, err := os.ReadFile(path)
	if err == nil && bytes.Equal(previous, data) {
		return false, nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return false, errs.New(errs.KindIO, "create cache dir", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return false, errs.New(errs.KindIO, "write cache "+path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, errs.New(errs.KindIO, "replace cache "+path, err)
	}
	return true, nil
}

// Internal DTO for (de)serialization. Fields are declared in key order so the
// file has sorted keys.
type jsonEntry struct {
	Arch        string `json:"arch"`
	Filename    string `json:"filename"`
	Package     string `json:"package"`
	PublishedAt string `json:"published_at"`
	Repo        string `json:"repo"`
	Tag         string `json:"tag"`
}

// decode parses the cache file of project. Entries recorded for another
// project make the whole file invalid.
func decode(data []byte, project string) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var internal []*jsonEntry
	if err := dec.Decode(&internal); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after cache entries")
	}

	// Map from DTO to business object
	entries := make([]Entry, 0, len(internal))
	for i, e := range internal {
		if e == nil {
			return nil, errors.Errorf("entry %d: null", i)
		}
		switch {
		case e.Repo == "":
			return nil, errors.Errorf("entry %d: missing repo", i)
		case e.Repo != project:
			return nil, errors.Errorf("entry %d: repo %q does not match %q", i, e.Repo, project)
		case e.Tag == "":
			return nil, errors.Errorf("entry %d: missing tag", i)
		case e.Filename == "":
			return nil, errors.Errorf("entry %d: missing filename", i)
		case e.Arch == "":
			return nil, errors.Errorf("entry %d: missing arch", i)
		case e.Package == "":
			return nil, errors.Errorf("entry %d: missing package", i)
		}
		published, err := time.Parse(time.RFC3339Nano, e.PublishedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d: published_at", i)
		}
		entries = append(entries, Entry{
			Repo:        e.Repo,
			Tag:         e.Tag,
			Filename:    e.Filename,
			Arch:        e.Arch,
			Package:     e.Package,
			PublishedAt: published.UTC(),
		})
	}
	return entries, nil
}

func encode(entries []Entry) ([]byte, error) {
	// Map from business object to DTO
	internal := make([]jsonEntry, 0, len(entries))
	for _, e := range entries {
		internal = append(internal, jsonEntry{
			Arch:        e.Arch,
			Filename:    e.Filename,
			Package:     e.Package,
			PublishedAt: e.PublishedAt.UTC().Format(timeLayout),
			Repo:        e.Repo,
			Tag:         e.Tag,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(internal); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
