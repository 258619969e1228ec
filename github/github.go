// Package github lists the releases of GitHub projects and their assets.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/apt-release-mirror/errs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

// DebSuffix is the extension of the assets worth mirroring.
const DebSuffix = ".deb"

// Options configures a Client.
type Options struct {
	// BaseURL of the REST API, without trailing slash.
	BaseURL string
	// Token is sent as "Authorization: token <Token>" when not empty.
	Token string
	// PerPage is the size of the single page of releases fetched.
	PerPage int
	// Rate caps the requests per second. Zero or less disables throttling.
	Rate float64
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Log        zerolog.Logger
}

// Release is a published release of a project.
type Release struct {
	Tag         string
	PublishedAt time.Time
	Prerelease  bool
	Assets      []Asset
}

// Asset is a file attached to a release.
type Asset struct {
	Name string
	URL  string
	Size int64
}

// Debs returns the assets whose name ends in .deb, in upstream order.
func (r Release) Debs() []Asset {
	var debs []Asset
	for _, a := range r.Assets {
		if strings.HasSuffix(a.Name, DebSuffix) {
			debs = append(debs, a)
		}
	}
	return debs
}

// Client talks to the GitHub releases API.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if opts.PerPage <= 0 {
		opts.PerPage = 100
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Client{
		opts:    opts,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
	}
}

type release struct {
	TagName     string     `json:"tag_name"`
	Draft       bool       `json:"draft"`
	Prerelease  bool       `json:"prerelease"`
	PublishedAt *time.Time `json:"published_at"`
	Assets      []asset    `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// ListReleases fetches a single page of releases of project ("owner/name")
// and returns them most recent first. Unpublished drafts are skipped.
//
// Any failure is a KindUpstream error.
func (c *Client) ListReleases(ctx context.Context, project string) ([]Release, error) {
	op := "list releases " + project
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.New(errs.KindUpstream, op, err)
	}

	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.opts.PerPage))
	endpoint := fmt.Sprintf("%s/repos/%s/releases?%s", c.opts.BaseURL, project, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstream, op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "token "+c.opts.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.New(errs.KindUpstream, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.Errorf(errs.KindUpstream, op, "GitHub API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var dtos []release
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return nil, errs.New(errs.KindUpstream, op, errors.Wrap(err, "decode releases"))
	}

	releases := make([]Release, 0, len(dtos))
	for _, d := range dtos {
		if d.Draft || d.PublishedAt == nil {
			c.opts.Log.Debug().Str("project", project).Str("tag", d.TagName).Msg("skipping unpublished release")
			continue
		}
		r := Release{
			Tag:         d.TagName,
			PublishedAt: d.PublishedAt.UTC(),
			Prerelease:  d.Prerelease,
		}
		for _, a := range d.Assets {
			r.Assets = append(r.Assets, Asset{Name: a.Name, URL: a.BrowserDownloadURL, Size: a.Size})
		}
		releases = append(releases, r)
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].PublishedAt.After(releases[j].PublishedAt)
	})
	if len(dtos) == c.opts.PerPage {
		c.opts.Log.Debug().Str("project", project).Int("per_page", c.opts.PerPage).Msg("release page is full, older releases are not listed")
	}
	return releases, nil
}
