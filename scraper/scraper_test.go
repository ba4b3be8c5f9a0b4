package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/jarcoal/httpmock"

	"retailpulse/config"
	"retailpulse/models"
	"retailpulse/pipeline"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/"
	cfg.MaxPages = 3
	cfg.Parallelism = 1
	cfg.Delay = 0
	cfg.MaxRetries = 0
	cfg.PipelineBufferSize = 128
	cfg.BatchSize = 16
	return cfg
}

func TestRetryManagerScheduleRespectsLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Hour
	cfg.RetryBackoffMax = time.Hour

	rm := newRetryManager(colly.NewCollector(), cfg, NewMetrics())

	if !rm.Schedule("http://example.com/page") {
		t.Fatalf("first retry should be scheduled")
	}
	if !rm.Schedule("http://example.com/page") {
		t.Fatalf("second retry should be scheduled")
	}
	if rm.Schedule("http://example.com/page") {
		t.Fatalf("third retry should not be scheduled")
	}

	rm.Stop()
	if got := rm.TotalRetries(); got != 2 {
		t.Fatalf("total retries = %d, want 2", got)
	}
}

func TestRetryManagerBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	rm := newRetryManager(colly.NewCollector(), cfg, NewMetrics())

	delay := rm.backoff(4)
	if delay > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", delay, cfg.RetryBackoffMax)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestScraperHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxPages = 1

			transport := httpmock.NewMockTransport()
			responder := httpmock.NewStringResponder(tt.status, "")
			transport.RegisterResponder("GET", cfg.BaseURL, responder)
			transport.RegisterResponder("GET", strings.TrimSuffix(cfg.BaseURL, "/"), responder)

			s, err := NewScraper(cfg)
			if err != nil {
				t.Fatalf("new scraper: %v", err)
			}
			s.collector.WithTransport(transport)

			writer := &collectingWriter{}
			p := pipeline.NewPipeline(context.Background(), writer, cfg)
			p.Start(1)

			result, err := s.Run(context.Background(), p)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if err := p.Close(); err != nil {
				t.Fatalf("close pipeline: %v", err)
			}

			if got := result.ErrorsByType[tt.expected]; got == 0 {
				t.Fatalf("expected %q classification for status %d", tt.expected, tt.status)
			}
			if len(result.FailedURLs) == 0 {
				t.Fatalf("expected failed URL to be recorded")
			}
		})
	}
}

type collectingWriter struct {
	mu       sync.Mutex
	listings []*models.Listing
}

func (cw *collectingWriter) Write(listings []*models.Listing) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.listings = append(cw.listings, listings...)
	return nil
}

func (cw *collectingWriter) Close() error {
	return nil
}

func (cw *collectingWriter) Validate() error {
	return nil
}

func (cw *collectingWriter) Count() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return len(cw.listings)
}

func (cw *collectingWriter) All() []*models.Listing {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]*models.Listing, len(cw.listings))
	copy(out, cw.listings)
	return out
}

func TestScraper_Integration(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 3

	page1 := buildCatalogPage(1, "page-2.html")
	page2 := buildCatalogPage(2, "page-3.html")
	page3 := buildCatalogPage(3, "")

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.BaseURL, htmlResponder(page1))
	transport.RegisterResponder("GET", strings.TrimSuffix(cfg.BaseURL, "/"), htmlResponder(page1))
	transport.RegisterResponder("GET", cfg.BaseURL+"page-2.html", htmlResponder(page2))
	transport.RegisterResponder("GET", cfg.BaseURL+"page-3.html", htmlResponder(page3))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if got := writer.Count(); got != 60 {
		t.Fatalf("listings=%d, want 60 (requests=%d errors=%d failed=%v)", got, result.RequestCount, result.ErrorCount, result.FailedURLs)
	}
	if result.PageCount != 3 {
		t.Fatalf("pages=%d, want 3", result.PageCount)
	}

	listings := writer.All()
	expectedURL := "http://example.test/catalogue/item-1/index.html"
	var sample *models.Listing
	for _, listing := range listings {
		if listing.URL == expectedURL {
			sample = listing
			break
		}
	}
	if sample == nil {
		t.Fatalf("expected listing with URL %s", expectedURL)
	}
	if sample.Title != "Item 1" {
		t.Fatalf("title=%q, want %q", sample.Title, "Item 1")
	}
	if sample.Price != "1.00" {
		t.Fatalf("price=%q, want %q", sample.Price, "1.00")
	}
	if sample.RatingText != "Two" || sample.RatingNumeric != 2 {
		t.Fatalf("rating=%q/%d, want Two/2", sample.RatingText, sample.RatingNumeric)
	}
	if sample.Availability == "" {
		t.Fatalf("availability should not be empty")
	}
}

func TestScraperStopsWithoutNextLink(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 10 // far more budget than pages

	transport := httpmock.NewMockTransport()
	page := buildCatalogPage(1, "")
	transport.RegisterResponder("GET", cfg.BaseURL, htmlResponder(page))
	transport.RegisterResponder("GET", strings.TrimSuffix(cfg.BaseURL, "/"), htmlResponder(page))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if result.PageCount != 1 {
		t.Fatalf("pages=%d, want 1", result.PageCount)
	}
	if got := writer.Count(); got != 20 {
		t.Fatalf("listings=%d, want 20", got)
	}
}

func TestScraperHonorsMaxPages(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 2

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.BaseURL, htmlResponder(buildCatalogPage(1, "page-2.html")))
	transport.RegisterResponder("GET", strings.TrimSuffix(cfg.BaseURL, "/"), htmlResponder(buildCatalogPage(1, "page-2.html")))
	transport.RegisterResponder("GET", cfg.BaseURL+"page-2.html", htmlResponder(buildCatalogPage(2, "page-3.html")))
	transport.RegisterResponder("GET", cfg.BaseURL+"page-3.html", htmlResponder(buildCatalogPage(3, "")))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if result.PageCount != 2 {
		t.Fatalf("pages=%d, want 2", result.PageCount)
	}
	if got := writer.Count(); got != 40 {
		t.Fatalf("listings=%d, want 40", got)
	}
}

func TestScraperCycleGuard(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 10

	// Page 2's next link points back at page 1.
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.BaseURL, htmlResponder(buildCatalogPage(1, "page-2.html")))
	transport.RegisterResponder("GET", strings.TrimSuffix(cfg.BaseURL, "/"), htmlResponder(buildCatalogPage(1, "page-2.html")))
	transport.RegisterResponder("GET", cfg.BaseURL+"page-2.html", htmlResponder(buildCatalogPage(2, "/")))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if result.PageCount != 2 {
		t.Fatalf("pages=%d, want 2 (cycle should stop pagination)", result.PageCount)
	}
	if got := writer.Count(); got != 40 {
		t.Fatalf("listings=%d, want 40", got)
	}
}

func TestScraperSchemaMismatchEmptyFirstPage(t *testing.T) {
	cfg := testConfig()

	transport := httpmock.NewMockTransport()
	empty := "<html><body><div>nothing to see</div></body></html>"
	transport.RegisterResponder("GET", cfg.BaseURL, htmlResponder(empty))
	transport.RegisterResponder("GET", strings.TrimSuffix(cfg.BaseURL, "/"), htmlResponder(empty))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	_, err = s.Run(context.Background(), p)
	var mismatch ErrSchemaMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}
}

func TestScraperSchemaMismatchMissingField(t *testing.T) {
	cfg := testConfig()

	// Items exist but the price element is gone from every one of them.
	var builder strings.Builder
	builder.WriteString("<html><body>")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&builder, "<article class=\"product_pod\">")
		fmt.Fprintf(&builder, "<h3><a href=\"catalogue/item-%d/index.html\" title=\"Item %d\">Item %d</a></h3>", i, i, i)
		builder.WriteString("<p class=\"star-rating Two\"></p>")
		builder.WriteString("</article>")
	}
	builder.WriteString("</body></html>")

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", cfg.BaseURL, htmlResponder(builder.String()))
	transport.RegisterResponder("GET", strings.TrimSuffix(cfg.BaseURL, "/"), htmlResponder(builder.String()))

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	_, err = s.Run(context.Background(), p)
	var mismatch ErrSchemaMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	if mismatch.Field != "price" {
		t.Fatalf("mismatch field=%q, want price", mismatch.Field)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildCatalogPage(page int, nextHref string) string {
	var builder strings.Builder
	builder.WriteString("<html><body><section class=\"products\">")

	for i := 1; i <= 20; i++ {
		id := (page-1)*20 + i
		fmt.Fprintf(&builder, "<article class=\"product_pod\">")
		fmt.Fprintf(&builder, "<h3><a href=\"catalogue/item-%d/index.html\" title=\"Item %d\">Item %d</a></h3>", id, id, id)
		fmt.Fprintf(&builder, "<p class=\"price_color\">&pound;%0.2f</p>", float64(id))
		builder.WriteString("<p class=\"star-rating Two\"></p>")
		builder.WriteString("<p class=\"instock availability\">In stock</p>")
		fmt.Fprintf(&builder, "<img src=\"media/cache/item-%d.jpg\" />", id)
		builder.WriteString("</article>")
	}

	if nextHref != "" {
		fmt.Fprintf(&builder, "<li class=\"next\"><a href=\"%s\">next</a></li>", nextHref)
	}

	builder.WriteString("</section></body></html>")
	return builder.String()
}
