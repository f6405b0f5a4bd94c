// Package fetch downloads remote rule lists into their cache files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/renameio/v2"

	logpkg "github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/domain"
)

const (
	defaultMaxSize   = 50 * datasize.MB
	defaultUserAgent = "simplefilter/1"
	cacheFilePerm    = 0o644
)

// ErrTooLarge is returned when a response body exceeds the configured limit.
var ErrTooLarge = errors.New("response exceeds size limit")

// StatusError reports a response status other than 200 or 304.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Options configures a Downloader. Zero values select defaults.
type Options struct {
	Client    *http.Client
	MaxSize   datasize.ByteSize
	UserAgent string
	Logger    logpkg.Logger
}

// Downloader fetches URLs into files. The destination is only replaced once
// the whole body has been received, so readers never see a partial file.
type Downloader struct {
	client    *http.Client
	maxSize   datasize.ByteSize
	userAgent string
	logger    logpkg.Logger
}

// New returns a Downloader.
func New(opts Options) *Downloader {
	d := &Downloader{
		client:    opts.Client,
		maxSize:   opts.MaxSize,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	if d.maxSize == 0 {
		d.maxSize = defaultMaxSize
	}
	if d.userAgent == "" {
		d.userAgent = defaultUserAgent
	}
	if d.logger == nil {
		d.logger = logpkg.NewNoopLogger()
	}
	return d
}

// Download requests rawURL and writes the body to dest. The ETag and
// Last-Modified of prev, when set, are sent as If-None-Match and
// If-Modified-Since. The caller bounds the attempt through ctx.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string, prev domain.FetchState) (domain.DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.DownloadResult{}, fmt.Errorf("making request for %q: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	if prev.ETag != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}
	if prev.LastModified != "" {
		req.Header.Set("If-Modified-Since", prev.LastModified)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return domain.DownloadResult{}, fmt.Errorf("requesting %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		d.logger.Debug(map[string]any{"url": rawURL}, "fetch_not_modified")
		return domain.DownloadResult{NotModified: true, ETag: prev.ETag, LastModified: prev.LastModified}, nil
	default:
		return domain.DownloadResult{}, &StatusError{Code: resp.StatusCode}
	}

	n, err := d.writeBody(resp.Body, dest)
	if err != nil {
		return domain.DownloadResult{}, fmt.Errorf("saving %q: %w", rawURL, err)
	}

	res := domain.DownloadResult{
		Size:         n,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	d.logger.Debug(map[string]any{
		"url":      rawURL,
		"dest":     dest,
		"bytes":    n,
		"duration": time.Since(start).String(),
	}, "fetch_complete")
	return res, nil
}

// writeBody streams body into a pending file next to dest and renames it over
// dest on success.
func (d *Downloader) writeBody(body io.Reader, dest string) (n int64, err error) {
	pf, err := renameio.NewPendingFile(dest, renameio.WithPermissions(cacheFilePerm))
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		// No-op after a successful CloseAtomicallyReplace.
		_ = pf.Cleanup()
	}()

	limit := int64(d.maxSize.Bytes())
	n, err = io.Copy(pf, io.LimitReader(body, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, fmt.Errorf("%w: more than %s", ErrTooLarge, d.maxSize.HR())
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return n, err
	}
	return n, nil
}
