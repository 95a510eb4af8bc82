package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/LabartaPablo/BUS-REALTIME/internal/logging"
)

// DefaultMaxBodyBytes bounds a feed payload after decompression.
const DefaultMaxBodyBytes = 25 * 1024 * 1024

var gzipMagic = []byte{0x1f, 0x8b}

// NewHTTPClient returns a client dedicated to feed fetching. The transport is
// cloned from http.DefaultTransport to keep proxy, dialer and HTTP/2
// defaults; compression is handled by the poller.
func NewHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 2
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second
	transport.DisableCompression = true

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, &FeedFetchError{URL: p.cfg.URL, Err: err}
	}

	if p.cfg.APIKey != "" {
		req.Header.Set(p.cfg.AuthHeader, p.cfg.APIKey)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &FeedFetchError{URL: p.cfg.URL, Err: err}
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		p.logger.With(slog.String("component", "feed_downloader")),
		"http_response_body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &FeedFetchError{
			URL:        p.cfg.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	limit := p.cfg.MaxBodyBytes
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &FeedFetchError{URL: p.cfg.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(raw)) > limit {
		return nil, &FeedFetchError{URL: p.cfg.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("body exceeds size limit of %d bytes", limit)}
	}

	if resp.Header.Get("Content-Encoding") != "gzip" && !bytes.HasPrefix(raw, gzipMagic) {
		return raw, nil
	}

	body, err := gunzip(raw, limit)
	if err != nil {
		return nil, &FeedFetchError{URL: p.cfg.URL, StatusCode: resp.StatusCode, Err: err}
	}
	return body, nil
}

func gunzip(raw []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("opening gzip body: %w", err)
	}
	defer func() { _ = zr.Close() }()

	body, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("decompressed body exceeds size limit of %d bytes", limit)
	}
	return body, nil
}
