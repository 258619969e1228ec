// Package manifest loads the static configuration describing what to mirror
// and where to write the APT repository.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/etnz/apt-release-mirror/errs"
	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"
)

const (
	// MaxPerPage is the largest page the GitHub releases API serves.
	MaxPerPage = 100

	ExtractorCommand = "command"
	ExtractorNative  = "native"

	SummarizerCommand = "command"
	SummarizerNative  = "native"
)

// Config is the business object holding the mirror configuration.
type Config struct {
	// OutputDir is the root of the generated repository tree.
	OutputDir string
	// Suite is the APT distribution name, e.g. "stable".
	Suite string
	// Component is the APT section name, e.g. "main".
	Component string
	// Repositories lists the upstream projects as "owner/name", sorted and
	// without duplicates.
	Repositories []string
	// Architectures restricts which architectures are indexed. Empty means all.
	Architectures []string

	// PublicDir holds auxiliary files copied verbatim into OutputDir.
	PublicDir string

	APIURL          string
	PerPage         int
	DownloadTimeout time.Duration
	// APIRate is the number of release API requests allowed per second.
	APIRate float64

	Extractor        string
	ExtractorCommand string

	Summarizer        string
	SummarizerCommand string
	// FtparchiveConf is the apt-ftparchive configuration for the suite.
	FtparchiveConf string

	ArchiveInfo ArchiveInfo

	LogLevel  string
	LogFormat string
	LogFile   string
}

// ArchiveInfo holds the repository identity written to the Release file.
type ArchiveInfo struct {
	Origin      string
	Label       string
	Codename    string
	Description string
}

// Default returns a Config with every optional field set.
func Default() *Config {
	return &Config{
		PublicDir:         "public",
		APIURL:            "https://api.github.com",
		PerPage:           MaxPerPage,
		DownloadTimeout:   30 * time.Second,
		APIRate:           5,
		Extractor:         ExtractorCommand,
		ExtractorCommand:  "dpkg-scanpackages --multiversion",
		Summarizer:        SummarizerCommand,
		SummarizerCommand: "apt-ftparchive",
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Load reads and validates the configuration file at path. The format is
// chosen from the extension: YAML (.yaml, .yml), TOML (.toml), JSON otherwise.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.KindConfig, "read "+path, err)
	}
	cfg, err := Decode(path, content)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Decode parses content, using path only to pick the format, and validates
// the result. Relative paths are left untouched.
func Decode(path string, content []byte) (*Config, error) {
	// Internal DTOs for deserialization
	type dtoArchiveInfo struct {
		Origin      string `json:"origin" yaml:"origin" toml:"origin"`
		Label       string `json:"label" yaml:"label" toml:"label"`
		Codename    string `json:"codename" yaml:"codename" toml:"codename"`
		Description string `json:"description" yaml:"description" toml:"description"`
	}
	type dtoConfig struct {
		OutputDir         string          `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
		Suite             string          `json:"suite" yaml:"suite" toml:"suite"`
		Component         string          `json:"component" yaml:"component" toml:"component"`
		Repositories      []string        `json:"repositories" yaml:"repositories" toml:"repositories"`
		Architectures     []string        `json:"architectures" yaml:"architectures" toml:"architectures"`
		PublicDir         *string         `json:"public_dir" yaml:"public_dir" toml:"public_dir"`
		APIURL            string          `json:"api_url" yaml:"api_url" toml:"api_url"`
		PerPage           int             `json:"per_page" yaml:"per_page" toml:"per_page"`
		DownloadTimeout   string          `json:"download_timeout" yaml:"download_timeout" toml:"download_timeout"`
		APIRate           float64         `json:"api_rate" yaml:"api_rate" toml:"api_rate"`
		Extractor         string          `json:"extractor" yaml:"extractor" toml:"extractor"`
		ExtractorCommand  string          `json:"extractor_command" yaml:"extractor_command" toml:"extractor_command"`
		Summarizer        string          `json:"summarizer" yaml:"summarizer" toml:"summarizer"`
		SummarizerCommand string          `json:"summarizer_command" yaml:"summarizer_command" toml:"summarizer_command"`
		FtparchiveConf    string          `json:"ftparchive_conf" yaml:"ftparchive_conf" toml:"ftparchive_conf"`
		ArchiveInfo       *dtoArchiveInfo `json:"archive_info" yaml:"archive_info" toml:"archive_info"`
		LogLevel          string          `json:"log_level" yaml:"log_level" toml:"log_level"`
		LogFormat         string          `json:"log_format" yaml:"log_format" toml:"log_format"`
		LogFile           string          `json:"log_file" yaml:"log_file" toml:"log_file"`
	}

	var dto dtoConfig
	if err := unmarshal(path, content, &dto); err != nil {
		return nil, errs.New(errs.KindConfig, "parse "+path, err)
	}

	// Map DTO to business object
	cfg := Default()
	cfg.OutputDir = dto.OutputDir
	cfg.Suite = dto.Suite
	cfg.Component = dto.Component
	cfg.Architectures = dto.Architectures
	cfg.LogFile = dto.LogFile
	if dto.PublicDir != nil {
		cfg.PublicDir = *dto.PublicDir
	}
	if dto.APIURL != "" {
		cfg.APIURL = strings.TrimSuffix(dto.APIURL, "/")
	}
	if dto.PerPage != 0 {
		cfg.PerPage = dto.PerPage
	}
	if dto.DownloadTimeout != "" {
		d, err := time.ParseDuration(dto.DownloadTimeout)
		if err != nil {
			return nil, errs.New(errs.KindConfig, "download_timeout", err)
		}
		cfg.DownloadTimeout = d
	}
	if dto.APIRate != 0 {
		cfg.APIRate = dto.APIRate
	}
	if dto.Extractor != "" {
		cfg.Extractor = dto.Extractor
	}
	if dto.ExtractorCommand != "" {
		cfg.ExtractorCommand = dto.ExtractorCommand
	}
	if dto.Summarizer != "" {
		cfg.Summarizer = dto.Summarizer
	}
	if dto.SummarizerCommand != "" {
		cfg.SummarizerCommand = dto.SummarizerCommand
	}
	cfg.FtparchiveConf = dto.FtparchiveConf
	if cfg.FtparchiveConf == "" && dto.Suite != "" {
		cfg.FtparchiveConf = dto.Suite + ".conf"
	}
	if dto.ArchiveInfo != nil {
		cfg.ArchiveInfo = ArchiveInfo{
			Origin:      dto.ArchiveInfo.Origin,
			Label:       dto.ArchiveInfo.Label,
			Codename:    dto.ArchiveInfo.Codename,
			Description: dto.ArchiveInfo.Description,
		}
	}
	if dto.LogLevel != "" {
		cfg.LogLevel = dto.LogLevel
	}
	if dto.LogFormat != "" {
		cfg.LogFormat = dto.LogFormat
	}

	repos, err := normalizeRepositories(dto.Repositories)
	if err != nil {
		return nil, err
	}
	cfg.Repositories = repos

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the mandatory fields and the enumerations.
func (c *Config) Validate() error {
	switch {
	case c.OutputDir == "":
		return errs.Errorf(errs.KindConfig, "validate", "output_dir is required")
	case c.Suite == "":
		return errs.Errorf(errs.KindConfig, "validate", "suite is required")
	case c.Component == "":
		return errs.Errorf(errs.KindConfig, "validate", "component is required")
	case len(c.Repositories) == 0:
		return errs.Errorf(errs.KindConfig, "validate", "repositories must list at least one project")
	case c.PerPage < 1 || c.PerPage > MaxPerPage:
		return errs.Errorf(errs.KindConfig, "validate", "per_page must be between 1 and %d, got %d", MaxPerPage, c.PerPage)
	case c.DownloadTimeout <= 0:
		return errs.Errorf(errs.KindConfig, "validate", "download_timeout must be positive")
	case c.APIRate < 0:
		return errs.Errorf(errs.KindConfig, "validate", "api_rate must not be negative")
	}
	if c.Extractor != ExtractorCommand && c.Extractor != ExtractorNative {
		return errs.Errorf(errs.KindConfig, "validate", "unknown extractor %q (want %s or %s)", c.Extractor, ExtractorCommand, ExtractorNative)
	}
	if c.Summarizer != SummarizerCommand && c.Summarizer != SummarizerNative {
		return errs.Errorf(errs.KindConfig, "validate", "unknown summarizer %q (want %s or %s)", c.Summarizer, SummarizerCommand, SummarizerNative)
	}
	for _, name := range []string{c.Suite, c.Component} {
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return errs.Errorf(errs.KindConfig, "validate", "invalid suite or component name %q", name)
		}
	}
	return nil
}

// resolve makes relative paths relative to the configuration file directory.
func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.OutputDir = abs(c.OutputDir)
	c.PublicDir = abs(c.PublicDir)
	c.FtparchiveConf = abs(c.FtparchiveConf)
	c.LogFile = abs(c.LogFile)
}

// normalizeRepositories parses "owner/name" or "https://github.com/owner/name"
// references and returns them sorted and deduplicated. Two projects whose
// cache files would share a name, like a-b/c and a/b-c, are rejected.
func normalizeRepositories(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	flat := make(map[string]string, len(in))
	var out []string
	for _, s := range in {
		trimmed := strings.TrimSpace(s)
		trimmed = strings.TrimPrefix(trimmed, "https://")
		trimmed = strings.TrimPrefix(trimmed, "http://")
		trimmed = strings.TrimPrefix(trimmed, "github.com/")
		trimmed = strings.TrimSuffix(strings.TrimSuffix(trimmed, "/"), ".git")
		parts := strings.Split(trimmed, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] == ".." || parts[1] == ".." {
			return nil, errs.Errorf(errs.KindConfig, "repositories", "invalid project reference %q, expected owner/name", s)
		}
		ref := parts[0] + "/" + parts[1]
		if seen[ref] {
			continue
		}
		seen[ref] = true
		key := parts[0] + "-" + parts[1]
		if other, ok := flat[key]; ok {
			return nil, errs.Errorf(errs.KindConfig, "repositories", "projects %q and %q would share the cache file of %q", other, ref, key)
		}
		flat[key] = ref
		out = append(out, ref)
	}
	sort.Strings(out)
	return out, nil
}

// unmarshal parses YAML, TOML or JSON based on file extension.
func unmarshal(path string, data []byte, v interface{}) error {
	r := bytes.NewReader(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode(v)
	case ".toml":
		dec := toml.NewDecoder(r)
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// String renders a one-line summary, used in logs.
func (c *Config) String() string {
	return fmt.Sprintf("output=%s suite=%s component=%s repositories=%d", c.OutputDir, c.Suite, c.Component, len(c.Repositories))
}
