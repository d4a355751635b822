// Package scrape implements the HTML fallback tier: fetching an
// opportunity's public detail page and extracting label/value pairs from
// whichever layout the site served.
package scrape

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// DetailURLVariants lists the page URL formats tried in order; the site
// has shipped all three and old ids still resolve on the older paths.
var DetailURLVariants = []string{
	"https://www.grants.gov/search-results-detail/%s",
	"https://www.grants.gov/search-grants/view-grant.html?oppId=%s",
	"https://www.grants.gov/web/grants/view-opportunity.html?oppId=%s",
}

// FetcherConfig controls the page collector.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
	BaseURLs  []string
}

// Fetcher retrieves detail pages with a colly collector.
type Fetcher struct {
	cfg           FetcherConfig
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewFetcher builds a Fetcher with pooled transport.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if len(cfg.BaseURLs) == 0 {
		cfg.BaseURLs = DetailURLVariants
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	})
	return &Fetcher{cfg: cfg, baseCollector: c, logger: logger}
}

// FetchDetailPage tries every URL variant for the id and returns the first
// 200 body. A non-200 on one variant moves to the next; exhausting all
// variants returns the last error.
func (f *Fetcher) FetchDetailPage(ctx context.Context, id string) ([]byte, error) {
	var lastErr error
	for _, template := range f.cfg.BaseURLs {
		url := fmt.Sprintf(template, id)
		body, err := f.fetch(ctx, url)
		if err == nil {
			f.logger.Debug("detail page fetched", zap.String("id", id), zap.String("url", url))
			return body, nil
		}
		lastErr = err
		f.logger.Debug("detail page variant failed",
			zap.String("id", id),
			zap.String("url", url),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("all detail page variants failed for %s: %w", id, lastErr)
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if status != http.StatusOK {
		return nil, &PageStatusError{StatusCode: status}
	}
	return body, nil
}

// PageStatusError reports a non-200 page response.
type PageStatusError struct {
	StatusCode int
}

func (e *PageStatusError) Error() string {
	return fmt.Sprintf("detail page returned status %d", e.StatusCode)
}
