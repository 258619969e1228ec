package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/etnz/apt-release-mirror/apt"
	"github.com/etnz/apt-release-mirror/cache"
	"github.com/etnz/apt-release-mirror/errs"
	"github.com/etnz/apt-release-mirror/github"
	"github.com/etnz/apt-release-mirror/logging"
	"github.com/etnz/apt-release-mirror/manifest"
	"github.com/etnz/apt-release-mirror/mirror"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// syncFlags are the command line settings of a sync run.
type syncFlags struct {
	config   string
	ci       bool
	logLevel string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	_, isCI := os.LookupEnv("CI")
	flags := &syncFlags{}

	runE := func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), flags, env{
			token:  githubToken(),
			gpgKey: os.Getenv("GPG_PRIVATE_KEY"),
		}, stderr)
	}

	root := &cobra.Command{
		Use:           "apt-release-mirror",
		Short:         "Mirror the .deb assets of GitHub releases into an APT repository",
		Long:          "apt-release-mirror scans the releases of GitHub projects, indexes their Debian packages and writes a static APT repository tree.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runE,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&flags.config, "config", "config.toml", "path to the configuration file (.toml, .yaml or .json)")
	root.PersistentFlags().BoolVar(&flags.ci, "ci", isCI, "automated mode: scan, cache and index packages (defaults to true when $CI is set)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level, overrides the configuration")

	root.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Synchronize the repository with the upstream releases",
		Args:  cobra.NoArgs,
		RunE:  runE,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
		},
	})
	return root
}

// env holds the secrets read from the environment.
type env struct {
	token  string
	gpgKey string
}

// githubToken returns $GITHUB_TOKEN, or $PAT when unset.
func githubToken() string {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token
	}
	return os.Getenv("PAT")
}

func runSync(ctx context.Context, flags *syncFlags, secrets env, stderr io.Writer) error {
	cfg, err := manifest.Load(flags.config)
	if err != nil {
		log := logging.Setup(logging.Options{Level: flags.logLevel, Out: stderr})
		log.WithLevel(zerolog.FatalLevel).Err(err).Str("config", flags.config).Msg("could not load configuration")
		return err
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	log := logging.Setup(logging.Options{Level: level, Format: cfg.LogFormat, File: cfg.LogFile, Out: stderr})

	m, err := build(cfg, flags.ci, secrets, log)
	if err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("invalid setup")
		return err
	}

	log.Info().Bool("ci", flags.ci).Stringer("config", cfg).Strs("repositories", cfg.Repositories).Msg("starting sync")
	report, err := m.Run(ctx)
	if err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Str("kind", string(errs.KindOf(err))).Msg("sync failed")
		return err
	}
	for _, p := range report.Projects {
		log.Info().
			Str("project", p.Project).
			Int("releases", p.Releases).
			Int("ingested", p.Ingested).
			Int("staged", p.Staged).
			Int("entries", p.Entries).
			Str("stopped_at", p.StoppedAt).
			Msg("project done")
	}
	log.Info().Bool("changed", report.Changed).Bool("release_generated", report.ReleaseGenerated).Time("stamp", report.Stamp).Msg("sync done")
	return nil
}

// build wires the components of a run from the configuration.
func build(cfg *manifest.Config, ci bool, secrets env, log zerolog.Logger) (*mirror.Mirror, error) {
	var extractor apt.Extractor = apt.NativeExtractor{}
	if cfg.Extractor == manifest.ExtractorCommand {
		x, err := apt.NewCommandExtractor(cfg.ExtractorCommand)
		if err != nil {
			return nil, err
		}
		extractor = x
	}

	var summarizer apt.Summarizer = apt.NativeSummarizer{}
	if cfg.Summarizer == manifest.SummarizerCommand {
		s, err := apt.NewCommandSummarizer(cfg.SummarizerCommand, cfg.OutputDir, cfg.FtparchiveConf)
		if err != nil {
			return nil, err
		}
		summarizer = s
	}

	var signer *apt.Signer
	if secrets.gpgKey != "" {
		s, err := apt.NewSigner(secrets.gpgKey)
		if err != nil {
			return nil, err
		}
		signer = s
	}

	index := apt.NewIndexWriter(cfg.OutputDir, cfg.Suite, cfg.Component, cfg.Architectures)
	info := apt.ArchiveInfo{
		Origin:      cfg.ArchiveInfo.Origin,
		Label:       cfg.ArchiveInfo.Label,
		Codename:    cfg.ArchiveInfo.Codename,
		Description: cfg.ArchiveInfo.Description,
	}

	return mirror.New(mirror.Options{
		OutputDir:     cfg.OutputDir,
		Suite:         cfg.Suite,
		Component:     cfg.Component,
		Projects:      cfg.Repositories,
		Architectures: cfg.Architectures,
		PublicDir:     cfg.PublicDir,
		CI:            ci,
	}, mirror.Deps{
		Releases: github.NewClient(github.Options{
			BaseURL: cfg.APIURL,
			Token:   secrets.token,
			PerPage: cfg.PerPage,
			Rate:    cfg.APIRate,
			Log:     log,
		}),
		Store:     cache.NewStore(cfg.OutputDir, log),
		Ingestor:  mirror.NewIngestor(cfg.OutputDir, cfg.Component, mirror.NewGrabDownloader(nil, cfg.DownloadTimeout), extractor, log),
		Index:     index,
		Generator: apt.NewGenerator(index, info, summarizer, signer, log),
		Log:       log,
		Listener: func(e fmt.Stringer) {
			log.Info().RawJSON("event", []byte(e.String())).Msg("progress")
		},
	}), nil
}
