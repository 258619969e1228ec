package mirror

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/etnz/apt-release-mirror/apt"
	"github.com/etnz/apt-release-mirror/cache"
	"github.com/etnz/apt-release-mirror/deb"
	"github.com/etnz/apt-release-mirror/errs"
	"github.com/etnz/apt-release-mirror/github"
	"github.com/rs/zerolog"
)

// sniffLen is the number of leading bytes inspected to recognize a package.
const sniffLen = 262

// Ingestor stages release assets under the pool tree and turns them into
// cache entries:
//
//	<root>/pool/<component>/<project>/<tag>/<filename>
type Ingestor struct {
	root       string
	component  string
	downloader Downloader
	extractor  apt.Extractor
	log        zerolog.Logger
}

func NewIngestor(root, component string, downloader Downloader, extractor apt.Extractor, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		root:       root,
		component:  component,
		downloader: downloader,
		extractor:  extractor,
		log:        log,
	}
}

// TagDir returns the staging directory of a release, relative to the root.
func (in *Ingestor) TagDir(project, tag string) string {
	return filepath.Join("pool", in.component, filepath.FromSlash(project), filepath.FromSlash(tag))
}

// Stage downloads asset a of release tag into its staging directory and
// checks it looks like a Debian package of the size announced by the release,
// when known. With clean set, the directory is emptied first so the asset is
// alone in it. It returns the path of the staged file relative to the root.
func (in *Ingestor) Stage(ctx context.Context, project, tag string, a github.Asset, clean bool) (string, error) {
	if a.Name == "" || filepath.Base(a.Name) != a.Name || a.Name == ".." {
		return "", errs.Errorf(errs.KindUpstream, "stage "+project+" "+tag, "invalid asset name %q", a.Name)
	}
	dir := filepath.Join(in.root, in.TagDir(project, tag))
	if clean {
		if err := os.RemoveAll(dir); err != nil {
			return "", errs.New(errs.KindIO, "clean "+dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errs.New(errs.KindIO, "create "+dir, err)
	}

	dest := filepath.Join(dir, a.Name)
	in.log.Debug().Str("url", a.URL).Int64("size", a.Size).Str("destination", dest).Msg("downloading asset")
	if err := in.downloader.Download(ctx, a.URL, dest); err != nil {
		os.Remove(dest)
		return "", errs.New(errs.KindUpstream, "download "+a.Name, err)
	}
	// A zero size means the listing did not report one.
	if a.Size > 0 {
		info, err := os.Stat(dest)
		if err != nil {
			return "", errs.New(errs.KindIO, "stat "+dest, err)
		}
		if info.Size() != a.Size {
			os.Remove(dest)
			return "", errs.Errorf(errs.KindUpstream, "download "+a.Name, "got %d bytes, release lists %d", info.Size(), a.Size)
		}
	}
	if err := sniff(dest); err != nil {
		return "", err
	}
	return filepath.Join(in.TagDir(project, tag), a.Name), nil
}

func sniff(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.New(errs.KindIO, "open "+path, err)
	}
	defer f.Close()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errs.New(errs.KindIO, "read "+path, err)
	}
	if !deb.IsArchive(head[:n]) {
		return errs.Errorf(errs.KindExtraction, "sniff "+filepath.Base(path), "not a Debian package")
	}
	return nil
}

// Ingest downloads asset a of release rel, scans it and returns the new cache
// entry. The staged binary is always removed before returning.
//
// A scan result without an Architecture field is a KindExtraction error and
// no entry is produced.
func (in *Ingestor) Ingest(ctx context.Context, project string, rel github.Release, a github.Asset) (cache.Entry, error) {
	tagDir := in.TagDir(project, rel.Tag)
	defer func() {
		if err := os.RemoveAll(filepath.Join(in.root, tagDir)); err != nil {
			in.log.Warn().Err(err).Str("dir", tagDir).Msg("could not remove staged asset")
		}
	}()

	if _, err := in.Stage(ctx, project, rel.Tag, a, true); err != nil {
		return cache.Entry{}, err
	}

	block, err := in.extractor.Extract(ctx, in.root, tagDir)
	if err != nil {
		return cache.Entry{}, err
	}
	arch, err := apt.ParseArchitecture(block)
	if err != nil {
		return cache.Entry{}, errs.New(errs.KindExtraction, "ingest "+project+" "+rel.Tag+" "+a.Name, err)
	}

	return cache.Entry{
		Repo:        project,
		Tag:         rel.Tag,
		Filename:    a.Name,
		Arch:        arch,
		Package:     block,
		PublishedAt: rel.PublishedAt,
	}, nil
}
