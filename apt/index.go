package apt

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/etnz/apt-release-mirror/cache"
	"github.com/etnz/apt-release-mirror/errs"
	"github.com/klauspost/pgzip"
)

// IndexWriter appends metadata blocks to the per-architecture Packages files
// of one component:
//
//	<root>/dists/<suite>/<component>/binary-<arch>/Packages
type IndexWriter struct {
	root      string
	suite     string
	component string
	// arches restricts the indexed architectures. Empty means all.
	arches map[string]bool
}

func NewIndexWriter(root, suite, component string, arches []string) *IndexWriter {
	w := &IndexWriter{root: root, suite: suite, component: component}
	if len(arches) > 0 {
		w.arches = make(map[string]bool, len(arches))
		for _, a := range arches {
			w.arches[a] = true
		}
	}
	return w
}

// Dir returns the component directory.
func (w *IndexWriter) Dir() string {
	return filepath.Join(w.root, "dists", w.suite, w.component)
}

// Reset wipes the component directory so the run rebuilds every index from
// scratch.
func (w *IndexWriter) Reset() error {
	if err := os.RemoveAll(w.Dir()); err != nil {
		return errs.New(errs.KindIO, "reset "+w.Dir(), err)
	}
	return nil
}

// Write appends the Package block of each entry to the index of its
// architecture, in the given order. Entries of filtered out architectures are
// skipped.
func (w *IndexWriter) Write(entries []cache.Entry) error {
	files := make(map[string]*os.File)
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	for _, e := range entries {
		if w.arches != nil && !w.arches[e.Arch] {
			continue
		}
		f, ok := files[e.Arch]
		if !ok {
			dir := filepath.Join(w.Dir(), "binary-"+e.Arch)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errs.New(errs.KindIO, "create "+dir, err)
			}
			var err error
			f, err = os.OpenFile(filepath.Join(dir, "Packages"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return errs.New(errs.KindIO, "open index", err)
			}
			files[e.Arch] = f
		}
		if _, err := io.WriteString(f, e.Package); err != nil {
			return errs.New(errs.KindIO, "append to "+f.Name(), err)
		}
	}

	for arch, f := range files {
		delete(files, arch)
		if err := f.Close(); err != nil {
			return errs.New(errs.KindIO, "close "+f.Name(), err)
		}
	}
	return nil
}

// Architectures lists the architectures that have an index, sorted.
func (w *IndexWriter) Architectures() ([]string, error) {
	entries, err := os.ReadDir(w.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.KindIO, "list "+w.Dir(), err)
	}
	var arches []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "binary-") {
			arches = append(arches, strings.TrimPrefix(e.Name(), "binary-"))
		}
	}
	sort.Strings(arches)
	return arches, nil
}

// Compress writes Packages.gz next to every Packages file.
func (w *IndexWriter) Compress() error {
	arches, err := w.Architectures()
	if err != nil {
		return err
	}
	for _, arch := range arches {
		path := filepath.Join(w.Dir(), "binary-"+arch, "Packages")
		if err := compressFile(path); err != nil {
			return errs.New(errs.KindIO, "compress "+path, err)
		}
	}
	return nil
}

// compressFile writes path.gz. The gzip header carries no name nor time, so
// identical input gives identical output.
func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	gzFile, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer gzFile.Close()

	gzWriter := pgzip.NewWriter(gzFile)
	if _, err := io.Copy(gzWriter, src); err != nil {
		gzWriter.Close()
		return err
	}
	if err := gzWriter.Close(); err != nil {
		return err
	}
	return gzFile.Close()
}
