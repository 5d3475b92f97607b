package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/brandmesh/core"
)

// BackendAuto lets the scraper pick a backend per URL.
const BackendAuto = "auto"

// Backend extracts products from a URL.
type Backend interface {
	Name() string
	Supports(rawURL string) bool
	Scrape(ctx context.Context, rawURL string) (CompetitorSnapshot, error)
}

// ErrNoBackend is recorded for URLs no backend supports.
var ErrNoBackend = errors.New("no scraper backend supports url")

// ScraperOptions configure a Scraper.
type ScraperOptions struct {
	Concurrency int
	Clock       core.Clock
}

// Scraper runs backends over discovered URLs with bounded concurrency.
type Scraper struct {
	backends []Backend
	opts     ScraperOptions
}

// NewScraper creates a Scraper. Backends are tried in the given order when
// the preference is auto.
func NewScraper(backends []Backend, optFns ...func(o *ScraperOptions)) *Scraper {
	opts := ScraperOptions{Concurrency: 4, Clock: core.SystemClock{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Scraper{backends: backends, opts: opts}
}

// Backends lists the backend names in preference order.
func (s *Scraper) Backends() []string {
	names := make([]string, len(s.backends))
	for i, b := range s.backends {
		names[i] = b.Name()
	}

	return names
}

// Pick returns the backend for rawURL. An explicit preference must exist and
// support the URL.
func (s *Scraper) Pick(preference, rawURL string) (Backend, error) {
	if preference != "" && preference != BackendAuto {
		for _, b := range s.backends {
			if b.Name() == preference {
				if !b.Supports(rawURL) {
					return nil, fmt.Errorf("backend %s does not support %s", preference, rawURL)
				}
				return b, nil
			}
		}

		return nil, fmt.Errorf("unknown scraper backend %q", preference)
	}

	for _, b := range s.backends {
		if b.Supports(rawURL) {
			return b, nil
		}
	}

	return nil, ErrNoBackend
}

// Scrape extracts every URL. Per-URL failures, including panics inside a
// backend, are counted and never fail the stage; only cancellation of ctx
// does.
func (s *Scraper) Scrape(ctx context.Context, urls []DiscoveredURL, preference string, concurrency int) (ScraperResult, error) {
	if concurrency < 1 {
		concurrency = s.opts.Concurrency
	}

	type outcome struct {
		snap CompetitorSnapshot
		err  error
	}

	results := make([]outcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			snap, err := s.scrapeOne(gctx, preference, u.URL)
			results[i] = outcome{snap: snap, err: err}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return ScraperResult{}, err
	}

	var res ScraperResult

	for i, o := range results {
		if o.err != nil {
			res.Failed++
			res.Failures = append(res.Failures, URLFailure{URL: urls[i].URL, Error: o.err.Error()})

			continue
		}

		res.Succeeded++
		res.Snapshots = append(res.Snapshots, o.snap)
	}

	return res, nil
}

func (s *Scraper) scrapeOne(ctx context.Context, preference, rawURL string) (snap CompetitorSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()

	b, err := s.Pick(preference, rawURL)
	if err != nil {
		return CompetitorSnapshot{}, err
	}

	snap, err = b.Scrape(ctx, rawURL)
	if err != nil {
		return CompetitorSnapshot{}, fmt.Errorf("%s: %w", b.Name(), err)
	}

	snap.URL = rawURL
	snap.Backend = b.Name()

	if snap.Competitor == "" {
		snap.Competitor = hostOf(rawURL)
	}

	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = s.opts.Clock.Now()
	}

	return snap, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// StaticBackend serves fixed menus keyed by URL. It is used for fixtures,
// demos and replaying previously captured menus.
type StaticBackend struct {
	name  string
	menus map[string]CompetitorSnapshot
}

// NewStaticBackend creates a StaticBackend.
func NewStaticBackend(name string, menus map[string]CompetitorSnapshot) *StaticBackend {
	return &StaticBackend{name: name, menus: menus}
}

// Name implements Backend.
func (b *StaticBackend) Name() string { return b.name }

// Supports implements Backend.
func (b *StaticBackend) Supports(rawURL string) bool {
	_, ok := b.menus[rawURL]
	return ok
}

// Scrape implements Backend.
func (b *StaticBackend) Scrape(_ context.Context, rawURL string) (CompetitorSnapshot, error) {
	snap, ok := b.menus[rawURL]
	if !ok {
		return CompetitorSnapshot{}, fmt.Errorf("%w: %s", core.ErrNotFound, rawURL)
	}

	snap.Products = append([]Product(nil), snap.Products...)

	return snap, nil
}
