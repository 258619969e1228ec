// Package mirror drives a synchronization run: it scans the releases of every
// configured project, ingests the new Debian packages, rebuilds the package
// indexes from the caches and regenerates the Release file.
package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/etnz/apt-release-mirror/apt"
	"github.com/etnz/apt-release-mirror/cache"
	"github.com/etnz/apt-release-mirror/deb"
	"github.com/etnz/apt-release-mirror/errs"
	"github.com/etnz/apt-release-mirror/github"
	"github.com/rs/zerolog"
)

// ReleaseLister lists the releases of a project, most recent first.
type ReleaseLister interface {
	ListReleases(ctx context.Context, project string) ([]github.Release, error)
}

// Options describes what a run mirrors and where.
type Options struct {
	OutputDir string
	Suite     string
	Component string
	// Projects are "owner/name" references.
	Projects      []string
	Architectures []string
	// PublicDir is copied as is into OutputDir. It may not exist.
	PublicDir string
	// CI selects the automated mode: assets are scanned and discarded, caches
	// and indexes are written and the Release file is generated. Otherwise
	// new assets are only downloaded into the pool for inspection.
	CI bool
}

// Deps are the collaborators of a Mirror.
type Deps struct {
	Releases  ReleaseLister
	Store     *cache.Store
	Ingestor  *Ingestor
	Index     *apt.IndexWriter
	Generator *apt.Generator
	Log       zerolog.Logger
	Listener  Listener
}

// ProjectReport summarizes the sync of one project.
type ProjectReport struct {
	Project string
	// Releases is the number of releases examined.
	Releases int
	// Ingested counts the new cache entries, Staged the binaries left in the
	// pool in exploratory mode.
	Ingested int
	Staged   int
	Entries  int
	// StoppedAt is the tag the scan stopped at, if any.
	StoppedAt string
	Changed   bool
}

// Report summarizes a run.
type Report struct {
	Projects []ProjectReport
	// Changed is true when at least one cache file changed.
	Changed bool
	// Stamp is the date written in the Release file.
	Stamp            time.Time
	ReleaseGenerated bool
}

// Mirror runs the synchronization pipeline. It is meant for a single run.
type Mirror struct {
	opts     Options
	deps     Deps
	log      zerolog.Logger
	listener Listener

	// newest is the publication time of the most recent release that brought
	// new entries during this run.
	newest time.Time
	// latest is the most recent publication time over every cached entry.
	latest time.Time
}

func New(opts Options, deps Deps) *Mirror {
	m := &Mirror{opts: opts, deps: deps, log: deps.Log, listener: deps.Listener}
	if m.listener == nil {
		m.listener = func(fmt.Stringer) {}
	}
	return m
}

// Run processes every project in lexicographic order. The first fatal error
// aborts the run, once the cache of the failing project has been saved. The
// Release file is only written when every project succeeded, and only when the
// one on disk does not already describe the current indexes.
func (m *Mirror) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	if err := os.MkdirAll(m.opts.OutputDir, 0755); err != nil {
		return report, errs.New(errs.KindIO, "create "+m.opts.OutputDir, err)
	}
	if err := CopyPublic(m.opts.PublicDir, m.opts.OutputDir, m.listener); err != nil {
		return report, err
	}

	if m.opts.CI {
		if err := m.deps.Index.Reset(); err != nil {
			return report, err
		}
	}

	projects := append([]string{}, m.opts.Projects...)
	sort.Strings(projects)
	for _, project := range projects {
		log := m.log.With().Str("project", project).Logger()
		pr, err := m.syncProject(ctx, project, log)
		report.Projects = append(report.Projects, pr)
		report.Changed = report.Changed || pr.Changed
		if err != nil {
			log.Error().Err(err).Str("kind", string(errs.KindOf(err))).Msg("project sync failed")
			return report, err
		}
	}

	if !m.opts.CI {
		return report, nil
	}
	if err := m.deps.Index.Compress(); err != nil {
		return report, err
	}
	return report, m.release(ctx, report)
}

func (m *Mirror) release(ctx context.Context, report *Report) error {
	report.Stamp = m.stamp()
	path := m.deps.Generator.ReleasePath()
	upToDate, err := m.deps.Generator.UpToDate(report.Stamp)
	if err != nil {
		return err
	}
	if upToDate {
		m.log.Info().Str("path", path).Bool("changed", report.Changed).Msg("Release is up to date")
		m.listener(EventReleaseFile{Path: path, Date: report.Stamp, Skipped: true})
		return nil
	}
	if err := m.deps.Generator.Generate(ctx, report.Stamp); err != nil {
		return err
	}
	report.ReleaseGenerated = true
	m.listener(EventReleaseFile{Path: path, Date: report.Stamp})
	return nil
}

// stamp returns the generation date of the Release file: the publication
// time of the newest release ingested during the run, or of the newest cached
// entry, or the epoch for an empty repository.
func (m *Mirror) stamp() time.Time {
	switch {
	case !m.newest.IsZero():
		return m.newest.UTC()
	case !m.latest.IsZero():
		return m.latest.UTC()
	default:
		return time.Unix(0, 0).UTC()
	}
}

// syncProject brings the cache and the index of project up to date. The cache
// is saved on every return path in automated mode.
func (m *Mirror) syncProject(ctx context.Context, project string, log zerolog.Logger) (pr ProjectReport, err error) {
	pr.Project = project

	set, err := m.deps.Store.Load(project)
	if err != nil {
		if errs.Fatal(err) {
			return pr, err
		}
		log.Warn().Err(err).Msg("corrupt cache discarded")
		m.listener(EventCacheReset{Project: project, Reason: err.Error()})
	}
	log.Debug().Int("entries", set.Len()).Msg("cache loaded")

	if m.opts.CI {
		defer func() {
			changed, saveErr := m.deps.Store.Save(project, set)
			if saveErr != nil {
				log.Error().Err(saveErr).Msg("could not save cache")
				if err == nil {
					err = saveErr
				}
				return
			}
			pr.Changed = changed
			pr.Entries = set.Len()
			m.listener(EventCacheSaved{Project: project, Entries: set.Len(), Changed: changed})
		}()
	}

	releases, err := m.deps.Releases.ListReleases(ctx, project)
	if err != nil {
		return pr, err
	}
	log.Info().Int("releases", len(releases)).Msg("listed releases")

	for _, rel := range releases {
		debs := rel.Debs()
		if len(debs) == 0 {
			continue
		}
		var missing []github.Asset
		for _, a := range debs {
			if !set.Has(rel.Tag, a.Name) {
				missing = append(missing, a)
			}
		}
		pr.Releases++
		m.listener(EventReleaseScan{
			Project:     project,
			Tag:         rel.Tag,
			PublishedAt: rel.PublishedAt,
			Prerelease:  rel.Prerelease,
			Debs:        len(debs),
			Missing:     len(missing),
		})

		if len(missing) == 0 {
			pr.StoppedAt = rel.Tag
			m.listener(EventEarlyExit{Project: project, Tag: rel.Tag, Reason: "release already cached"})
			break
		}

		if !m.opts.CI {
			n, err := m.stage(ctx, project, rel, missing)
			pr.Staged += n
			if err != nil {
				return pr, err
			}
			pr.StoppedAt = rel.Tag
			m.listener(EventEarlyExit{Project: project, Tag: rel.Tag, Reason: "exploratory mode stops after the first new release"})
			break
		}

		for _, a := range missing {
			e, err := m.deps.Ingestor.Ingest(ctx, project, rel, a)
			if err != nil {
				return pr, err
			}
			set.Add(e)
			pr.Ingested++
			if rel.PublishedAt.After(m.newest) {
				m.newest = rel.PublishedAt
			}
			name, _ := deb.Field(e.Package, deb.FieldPackage)
			version, _ := deb.Field(e.Package, deb.FieldVersion)
			m.listener(EventAssetIngested{
				Project:      project,
				Tag:          rel.Tag,
				Filename:     a.Name,
				Package:      name,
				Version:      version,
				Architecture: e.Arch,
			})
		}
	}

	if !m.opts.CI {
		return pr, nil
	}
	if latest := set.MaxPublished(); latest.After(m.latest) {
		m.latest = latest
	}
	return pr, m.deps.Index.Write(set.Sorted())
}

// stage downloads the missing assets of rel into the pool, leaving the files
// already present untouched. It returns the number of files downloaded.
func (m *Mirror) stage(ctx context.Context, project string, rel github.Release, missing []github.Asset) (int, error) {
	n := 0
	for _, a := range missing {
		path := filepath.Join(m.deps.Ingestor.TagDir(project, rel.Tag), a.Name)
		if _, err := os.Stat(filepath.Join(m.opts.OutputDir, path)); err == nil {
			m.listener(EventAssetStaged{Project: project, Tag: rel.Tag, Path: path, Skipped: true})
			continue
		}
		path, err := m.deps.Ingestor.Stage(ctx, project, rel.Tag, a, false)
		if err != nil {
			return n, err
		}
		n++
		m.log.Info().Str("project", project).Str("path", path).Msg("staged asset for inspection")
		m.listener(EventAssetStaged{Project: project, Tag: rel.Tag, Path: path})
	}
	return n, nil
}
