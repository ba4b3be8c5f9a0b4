// Package scraper drives the fetch-extract-paginate loop over a listing site.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"retailpulse/config"
	"retailpulse/models"
	"retailpulse/pipeline"
)

// Scraper wraps the colly collector, retry logic, and the pagination guard.
type Scraper struct {
	cfg       *config.Config
	profile   Profile
	collector *colly.Collector
	retry     *retryManager
	visited   *lru.Cache[string, struct{}]
	Metrics   *Metrics

	requestCount int64
	pageCount    int64
	pagesScanned int64
	errorCount   int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
	fatal        error

	censusMu sync.Mutex
	census   map[string]*pageCensus

	handlersOnce sync.Once
}

// pageCensus tallies field hits for one fetched page so a vanished field is
// distinguishable from an occasionally missing one.
type pageCensus struct {
	items  int
	titles int
	links  int
	prices int
}

// NewScraper builds a scraper instance for the default site profile.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	return NewScraperWithProfile(cfg, DefaultProfile())
}

// NewScraperWithProfile builds a scraper instance configured from cfg using
// the given site profile.
func NewScraperWithProfile(cfg *config.Config, profile Profile) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	// Revisit policy is owned by the visited cache below; colly's internal
	// check would otherwise also block legitimate retries of failed URLs.
	collector.AllowURLRevisit = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	visitedSize := cfg.VisitedCacheSize
	if visitedSize <= 0 {
		visitedSize = 1024
	}
	visited, err := lru.New[string, struct{}](visitedSize)
	if err != nil {
		return nil, fmt.Errorf("visited cache: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		profile:      profile,
		collector:    collector,
		visited:      visited,
		errorsByType: make(map[string]int),
		census:       make(map[string]*pageCensus),
		Metrics:      NewMetrics(),
	}
	s.retry = newRetryManager(collector, cfg, s.Metrics)
	return s, nil
}

// Run starts the crawl and streams items through the pipeline. A schema
// mismatch aborts the run; per-page network failures are counted and skipped.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.retry.SetContext(ctx)
	s.configureHandlers(ctx, p)

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.collector.Wait()
			s.retry.Stop()
		case <-done:
		}
	}()

	s.visited.Add(canonicalURL(s.cfg.BaseURL), struct{}{})
	if err := s.collector.Visit(s.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("initial visit: %w", err)
	}

	s.collector.Wait()
	s.retry.Stop()

	if err := s.fatalErr(); err != nil {
		return nil, err
	}

	result := &models.ScraperResult{
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		FailedURLs:   s.snapshotFailedURLs(),
		ErrorsByType: s.snapshotErrors(),
		RetryCount:   s.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
		PageCount:    int(atomic.LoadInt64(&s.pagesScanned)),
	}

	if metrics := p.GetMetrics(); metrics != nil {
		if processed, ok := metrics["processed_items"].(int64); ok {
			result.TotalCount = int(processed)
		}
	}

	return result, nil
}

func (s *Scraper) configureHandlers(ctx context.Context, p *pipeline.Pipeline) {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			current := atomic.AddInt64(&s.requestCount, 1)
			if s.Metrics != nil {
				s.Metrics.IncRequest("started")
			}
			if current%50 == 0 {
				slog.Debug("scraper request progress",
					slog.Int64("requests", current),
					slog.Int64("pages", atomic.LoadInt64(&s.pagesScanned)),
					slog.String("url", r.URL.String()),
				)
			}
		})

		s.collector.OnResponse(func(r *colly.Response) {
			if r.StatusCode >= http.StatusBadRequest {
				slog.Error("non-200 response",
					slog.Int("status", r.StatusCode),
					slog.String("url", r.Request.URL.String()),
				)
			}
			if s.Metrics != nil {
				if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
					s.Metrics.ObserveDuration(time.Since(start))
				}
			}
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			atomic.AddInt64(&s.errorCount, 1)
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			classified := classifyError(err, statusCode)
			category := errorTypeLabel(classified)

			s.mu.Lock()
			s.errorsByType[category]++
			s.mu.Unlock()

			url := ""
			if r != nil && r.Request != nil && r.Request.URL != nil {
				url = r.Request.URL.String()
			}
			slog.Error("request error",
				slog.String("url", url),
				slog.String("category", category),
				slog.Any("error", err),
			)
			if s.Metrics != nil {
				s.Metrics.IncError(category)
			}

			if !s.retry.Schedule(url) {
				exhausted := ErrFetchExhausted{URL: url, Err: classified}
				slog.Warn("page skipped", slog.Any("error", exhausted))
				s.mu.Lock()
				s.failedURLs = append(s.failedURLs, url)
				s.mu.Unlock()
			}
		})

		s.collector.OnHTML(s.profile.ItemSelector, func(e *colly.HTMLElement) {
			listing := s.profile.extract(e)
			listing.ScrapedAt = time.Now()
			s.recordCensus(e.Request.URL.String(), listing)
			if s.Metrics != nil {
				s.Metrics.IncItems()
			}
			if err := p.Process(listing); err != nil && err != pipeline.ErrPipelineClosed {
				slog.Error("pipeline process error", slog.Any("error", err))
			}
		})

		s.collector.OnHTML(s.profile.NextPageSelector, func(e *colly.HTMLElement) {
			if s.fatalErr() != nil {
				return
			}
			currentPage := atomic.AddInt64(&s.pageCount, 1)
			if currentPage >= int64(s.cfg.MaxPages) {
				return
			}
			if ctx.Err() != nil {
				return
			}
			abs := canonicalURL(e.Request.AbsoluteURL(e.Attr("href")))
			if _, dup, _ := s.visited.PeekOrAdd(abs, struct{}{}); dup {
				slog.Warn("pagination cycle detected, stopping",
					slog.String("url", abs),
				)
				return
			}
			s.collector.Visit(abs)
		})

		s.collector.OnScraped(func(r *colly.Response) {
			page := atomic.AddInt64(&s.pagesScanned, 1)
			if s.Metrics != nil {
				s.Metrics.IncPages()
			}
			s.evaluateCensus(r.Request.URL.String(), page == 1)
		})
	})
}

func (s *Scraper) recordCensus(pageURL string, listing *models.Listing) {
	s.censusMu.Lock()
	defer s.censusMu.Unlock()

	c := s.census[pageURL]
	if c == nil {
		c = &pageCensus{}
		s.census[pageURL] = c
	}
	c.items++
	if listing.Title != "" {
		c.titles++
	}
	if listing.URL != "" {
		c.links++
	}
	if listing.Price != "" {
		c.prices++
	}
}

// evaluateCensus decides whether a fetched page proves the site markup
// drifted. An empty first page, or a required field absent from every item
// on a page, means the profile no longer matches.
func (s *Scraper) evaluateCensus(pageURL string, firstPage bool) {
	s.censusMu.Lock()
	c := s.census[pageURL]
	delete(s.census, pageURL)
	s.censusMu.Unlock()

	if c == nil || c.items == 0 {
		if firstPage {
			s.setFatal(ErrSchemaMismatch{Page: pageURL})
		} else {
			slog.Warn("no items found on page", slog.String("url", pageURL))
		}
		return
	}

	for field, hits := range map[string]int{
		"title": c.titles,
		"link":  c.links,
		"price": c.prices,
	} {
		if hits == 0 {
			s.setFatal(ErrSchemaMismatch{Page: pageURL, Field: field})
			return
		}
	}
}

func (s *Scraper) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

func (s *Scraper) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

// canonicalURL strips a trailing slash so the visited cache treats
// "/catalogue" and "/catalogue/" as the same page.
func canonicalURL(raw string) string {
	if len(raw) > 1 && raw[len(raw)-1] == '/' {
		return raw[:len(raw)-1]
	}
	return raw
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
