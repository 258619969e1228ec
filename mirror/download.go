package mirror

import (
	"context"
	"net/http"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/pkg/errors"
)

// Downloader fetches url into the file destination.
type Downloader interface {
	Download(ctx context.Context, url, destination string) error
}

// GrabDownloader downloads with grab, following redirects, each transfer
// bounded by a timeout.
type GrabDownloader struct {
	client  *grab.Client
	timeout time.Duration
}

// NewGrabDownloader returns a downloader using httpClient, or
// http.DefaultClient when nil.
func NewGrabDownloader(httpClient *http.Client, timeout time.Duration) *GrabDownloader {
	client := grab.NewClient()
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	client.UserAgent = "apt-release-mirror"
	return &GrabDownloader{client: client, timeout: timeout}
}

func (d *GrabDownloader) Download(ctx context.Context, url, destination string) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := grab.NewRequest(destination, url)
	if err != nil {
		return errors.Wrap(err, url)
	}
	req = req.WithContext(ctx)
	req.NoResume = true
	req.IgnoreRemoteTime = true

	resp := d.client.Do(req)
	if err := resp.Err(); err != nil {
		return errors.Wrap(err, url)
	}
	return nil
}
