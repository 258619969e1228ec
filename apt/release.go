package apt

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/etnz/apt-release-mirror/deb"
	"github.com/etnz/apt-release-mirror/errs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	releaseFile    = "Release"
	inReleaseFile  = "InRelease"
	releaseGPGFile = "Release.gpg"
	publicKeyFile  = "public.asc"
)

// Summarizer produces the content of the Release file of a suite directory.
// info carries the suite description and the generation stamp.
type Summarizer interface {
	Summarize(ctx context.Context, distsDir string, info deb.ReleaseInfo) ([]byte, error)
}

// CommandSummarizer runs "apt-ftparchive release" on the suite directory,
// with root as working directory.
type CommandSummarizer struct {
	args []string
	root string
	// conf is the user supplied configuration. When it does not exist one is
	// generated under root/.ftparchive.
	conf string
}

func NewCommandSummarizer(cmdline, root, conf string) (*CommandSummarizer, error) {
	args, err := splitCommand(cmdline)
	if err != nil {
		return nil, errs.New(errs.KindConfig, "summarizer_command", err)
	}
	return &CommandSummarizer{args: args, root: root, conf: conf}, nil
}

func (s *CommandSummarizer) Summarize(ctx context.Context, distsDir string, info deb.ReleaseInfo) ([]byte, error) {
	conf, err := s.confFor(info)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(s.root, distsDir)
	if err != nil {
		return nil, errs.New(errs.KindIO, "summarize "+distsDir, err)
	}

	args := append([]string{}, s.args...)
	args = append(args,
		"-c", conf,
		"-o", "APT::FTPArchive::Release::Date="+info.Date.UTC().Format(time.RFC1123Z),
		"release", filepath.ToSlash(rel),
	)
	env := []string{"SOURCE_DATE_EPOCH=" + strconv.FormatInt(info.Date.Unix(), 10)}
	out, err := run(ctx, s.root, env, args)
	if err != nil {
		return nil, errs.New(errs.KindIO, "summarize "+rel, err)
	}
	return out, nil
}

func (s *CommandSummarizer) confFor(info deb.ReleaseInfo) (string, error) {
	if s.conf != "" {
		if _, err := os.Stat(s.conf); err == nil {
			return s.conf, nil
		}
	}
	content, err := renderFtparchiveConf(info)
	if err != nil {
		return "", errs.New(errs.KindIO, "render ftparchive conf", err)
	}
	path := filepath.Join(s.root, ".ftparchive", info.Suite+".conf")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errs.New(errs.KindIO, "write ftparchive conf", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errs.New(errs.KindIO, "write ftparchive conf", err)
	}
	return path, nil
}

// NativeSummarizer lists the checksums of every index file below the suite
// directory.
type NativeSummarizer struct{}

func (NativeSummarizer) Summarize(ctx context.Context, distsDir string, info deb.ReleaseInfo) ([]byte, error) {
	files, err := indexFiles(distsDir)
	if err != nil {
		return nil, err
	}
	return deb.RenderRelease(info, files), nil
}

// indexFiles returns the checksums of every regular file below distsDir except
// the Release file and its signatures.
func indexFiles(distsDir string) ([]deb.IndexFile, error) {
	var files []deb.IndexFile
	err := filepath.WalkDir(distsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(distsDir, path)
		if err != nil {
			return err
		}
		switch rel {
		case releaseFile, inReleaseFile, releaseGPGFile:
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		sums, err := deb.Sum(f)
		if err != nil {
			return errors.Wrap(err, rel)
		}
		files = append(files, deb.IndexFile{Path: filepath.ToSlash(rel), Checksums: sums})
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.KindIO, "summarize "+distsDir, err)
	}
	return files, nil
}

// ArchiveInfo holds metadata about the repository itself.
// These fields are written to the 'Release' file and help APT clients identify
// the repository (e.g., for pinning or trust).
type ArchiveInfo struct {
	Origin      string
	Label       string
	Codename    string
	Description string
}

// Generator writes dists/<suite>/Release, and when a signer is set its
// InRelease and Release.gpg companions plus the public key at the root.
type Generator struct {
	index      *IndexWriter
	info       ArchiveInfo
	summarizer Summarizer
	signer     *Signer
	log        zerolog.Logger
}

// NewGenerator returns a Generator for the suite of index. signer may be nil.
func NewGenerator(index *IndexWriter, info ArchiveInfo, summarizer Summarizer, signer *Signer, log zerolog.Logger) *Generator {
	return &Generator{index: index, info: info, summarizer: summarizer, signer: signer, log: log}
}

// SuiteDir returns dists/<suite>.
func (g *Generator) SuiteDir() string {
	return filepath.Join(g.index.root, "dists", g.index.suite)
}

func (g *Generator) ReleasePath() string {
	return filepath.Join(g.SuiteDir(), releaseFile)
}

// UpToDate reports whether the Release file on disk is dated stamp and lists
// exactly the current index files with their sizes and SHA256 checksums. With
// a signer, the signatures must exist too.
func (g *Generator) UpToDate(stamp time.Time) (bool, error) {
	content, err := os.ReadFile(g.ReleasePath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.New(errs.KindIO, "read Release", err)
	}
	date, listed, err := deb.ParseRelease(content)
	if err != nil {
		g.log.Warn().Err(err).Str("path", g.ReleasePath()).Msg("unreadable Release, regenerating")
		return false, nil
	}
	if !date.Equal(stamp.UTC().Truncate(time.Second)) {
		return false, nil
	}

	current, err := indexFiles(g.SuiteDir())
	if err != nil {
		return false, err
	}
	if len(current) != len(listed) {
		return false, nil
	}
	sort.Slice(current, func(i, j int) bool { return current[i].Path < current[j].Path })
	for i, f := range current {
		l := listed[i]
		if f.Path != l.Path || f.Size != l.Size || f.SHA256 != l.SHA256 {
			return false, nil
		}
	}

	if g.signer != nil {
		for _, name := range []string{inReleaseFile, releaseGPGFile} {
			if _, err := os.Stat(filepath.Join(g.SuiteDir(), name)); err != nil {
				return false, nil
			}
		}
	}
	return true, nil
}

// Generate regenerates the Release file stamped with stamp.
func (g *Generator) Generate(ctx context.Context, stamp time.Time) error {
	suiteDir := g.SuiteDir()
	if err := os.MkdirAll(suiteDir, 0755); err != nil {
		return errs.New(errs.KindIO, "create "+suiteDir, err)
	}
	for _, name := range []string{releaseFile, inReleaseFile, releaseGPGFile} {
		if err := os.Remove(filepath.Join(suiteDir, name)); err != nil && !os.IsNotExist(err) {
			return errs.New(errs.KindIO, "remove stale "+name, err)
		}
	}

	arches, err := g.index.Architectures()
	if err != nil {
		return err
	}
	info := deb.ReleaseInfo{
		Origin:        g.info.Origin,
		Label:         g.info.Label,
		Suite:         g.index.suite,
		Codename:      g.info.Codename,
		Date:          stamp.UTC(),
		Architectures: arches,
		Components:    []string{g.index.component},
		Description:   g.info.Description,
	}

	content, err := g.summarizer.Summarize(ctx, suiteDir, info)
	if err != nil {
		return err
	}
	if err := os.WriteFile(g.ReleasePath(), content, 0644); err != nil {
		return errs.New(errs.KindIO, "write Release", err)
	}
	g.log.Info().Str("path", g.ReleasePath()).Time("date", info.Date).Strs("architectures", arches).Msg("generated Release")

	if g.signer == nil {
		return nil
	}
	return g.sign(content)
}

func (g *Generator) sign(content []byte) error {
	inRelease, err := g.signer.ClearSign(content)
	if err != nil {
		return errs.New(errs.KindIO, "sign InRelease", err)
	}
	detached, err := g.signer.DetachSign(content)
	if err != nil {
		return errs.New(errs.KindIO, "sign Release.gpg", err)
	}
	publicKey, err := g.signer.PublicKey()
	if err != nil {
		return errs.New(errs.KindIO, "export public key", err)
	}

	outputs := []struct {
		path    string
		content []byte
	}{
		{filepath.Join(g.SuiteDir(), inReleaseFile), inRelease},
		{filepath.Join(g.SuiteDir(), releaseGPGFile), detached},
		{filepath.Join(g.index.root, publicKeyFile), publicKey},
	}
	for _, o := range outputs {
		if err := os.WriteFile(o.path, o.content, 0644); err != nil {
			return errs.New(errs.KindIO, "write "+o.path, err)
		}
	}
	g.log.Info().Str("path", g.SuiteDir()).Msg("signed Release")
	return nil
}
