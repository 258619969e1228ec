package deb

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ReleaseInfo holds the descriptive fields of a suite Release file.
type ReleaseInfo struct {
	Origin        string
	Label         string
	Suite         string
	Codename      string
	Date          time.Time
	Architectures []string
	Components    []string
	Description   string
}

// IndexFile is one file listed in a Release file, with its path relative to
// the suite directory.
type IndexFile struct {
	Path string
	Checksums
}

// RenderRelease generates the content of the 'Release' file for a standard
// hierarchical repository (dists/...). It lists the checksums of every index
// file, sorted by path.
func RenderRelease(info ReleaseInfo, files []IndexFile) []byte {
	var b bytes.Buffer
	writeField := func(key ReleaseField, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}

	writeField(RelOrigin, info.Origin)
	writeField(RelLabel, info.Label)
	writeField(RelSuite, info.Suite)
	writeField(RelCodename, info.Codename)
	if !info.Date.IsZero() {
		writeField(RelDate, info.Date.UTC().Format(time.RFC1123Z))
	}
	writeField(RelArchitectures, strings.Join(info.Architectures, " "))
	writeField(RelComponents, strings.Join(info.Components, " "))
	writeField(RelDescription, info.Description)

	sorted := make([]IndexFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	sections := []struct {
		field ReleaseField
		hash  func(IndexFile) string
	}{
		{RelMD5Sum, func(f IndexFile) string { return f.MD5 }},
		{RelSHA1, func(f IndexFile) string { return f.SHA1 }},
		{RelSHA256, func(f IndexFile) string { return f.SHA256 }},
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "%s:\n", s.field)
		for _, f := range sorted {
			fmt.Fprintf(&b, " %s %d %s\n", s.hash(f), f.Size, f.Path)
		}
	}
	return b.Bytes()
}

// ParseRelease reads back the Date field and the checksum sections of a
// Release file. Files are returned sorted by path, with the checksums of every
// section merged. Other fields are ignored.
func ParseRelease(content []byte) (date time.Time, files []IndexFile, err error) {
	byPath := make(map[string]*IndexFile)
	var section ReleaseField
	for i, line := range strings.Split(string(content), "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") {
			section = ""
			key, value, _ := strings.Cut(line, ":")
			value = strings.TrimSpace(value)
			switch ReleaseField(key) {
			case RelDate:
				if date, err = time.Parse(time.RFC1123Z, value); err != nil {
					return time.Time{}, nil, errors.Wrapf(err, "line %d", i+1)
				}
			case RelMD5Sum, RelSHA1, RelSHA256:
				if value == "" {
					section = ReleaseField(key)
				}
			}
			continue
		}
		if section == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 3 {
			return time.Time{}, nil, errors.Errorf("line %d: malformed %s entry %q", i+1, section, line)
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return time.Time{}, nil, errors.Wrapf(err, "line %d", i+1)
		}
		f, ok := byPath[parts[2]]
		if !ok {
			f = &IndexFile{Path: parts[2]}
			byPath[parts[2]] = f
		}
		f.Size = size
		switch section {
		case RelMD5Sum:
			f.MD5 = parts[0]
		case RelSHA1:
			f.SHA1 = parts[0]
		case RelSHA256:
			f.SHA256 = parts[0]
		}
	}

	for _, f := range byPath {
		files = append(files, *f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return date, files, nil
}
