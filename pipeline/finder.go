package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/internal/util"
	"github.com/hupe1980/brandmesh/model"
	"github.com/hupe1980/brandmesh/planner"
	"github.com/hupe1980/brandmesh/tool"
)

// SearchWeb is the shim name the Finder hands to the planner.
const SearchWeb = "search_web"

// SourceManual tags URLs supplied by the caller.
const SourceManual = "manual"

// SearchResult is one hit returned by a search_web shim.
type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// ErrNoSearch is returned when discovery is needed but no search shim is set.
var ErrNoSearch = errors.New("pipeline: no search_web shim configured")

// FinderOptions configure a Finder.
type FinderOptions struct {
	// Model drives discovery. Without one the Finder issues a single search
	// for the query.
	Model         model.Model
	MaxIterations int
	Instructions  string
}

// Finder discovers candidate competitor URLs.
type Finder struct {
	search  tool.Handler
	planner *planner.Planner
	opts    FinderOptions
}

// NewFinder creates a Finder over a search_web shim.
func NewFinder(search tool.Handler, p *planner.Planner, optFns ...func(o *FinderOptions)) *Finder {
	opts := FinderOptions{
		MaxIterations: 4,
		Instructions: "You find web pages listing competitor cannabis menus with prices. " +
			"Call search_web with focused queries, then reply with a one-sentence summary.",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if p == nil {
		p = planner.New()
	}

	return &Finder{search: search, planner: p, opts: opts}
}

type searchArgs struct {
	Query string `json:"query" description:"search terms, for example a competitor name and city"`
	Limit int    `json:"limit,omitempty" description:"maximum number of results"`
}

func searchDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        SearchWeb,
		Description: "Search the web and return matching pages with url, title and relevance score.",
		Parameters:  util.CreateSchema(searchArgs{}),
	}
}

// Find returns discovered URLs. Manual URLs skip discovery. maxURLs caps the
// result after discovery when positive.
func (f *Finder) Find(ctx context.Context, tc *core.ToolContext, req Request, maxURLs int) (FinderResult, error) {
	if len(req.ManualURLs) > 0 {
		urls := make([]DiscoveredURL, 0, len(req.ManualURLs))
		for _, u := range req.ManualURLs {
			urls = append(urls, DiscoveredURL{URL: u, Source: SourceManual, RelevanceScore: 1.0})
		}

		urls = dedupe(urls)
		found := len(urls)

		return FinderResult{URLs: capURLs(urls, maxURLs), Discovered: found, Summary: "manual url list"}, nil
	}

	if f == nil || f.search == nil {
		return FinderResult{}, ErrNoSearch
	}

	var (
		mu   sync.Mutex
		hits []DiscoveredURL
	)

	recording := func(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
		res, err := f.search(tc, args)
		if err != nil {
			return res, err
		}

		found, derr := decodeSearch(res.Output)
		if derr != nil {
			return res, derr
		}

		mu.Lock()
		for _, h := range found {
			hits = append(hits, DiscoveredURL{URL: h.URL, Title: h.Title, Source: SearchWeb, RelevanceScore: h.Score})
		}
		mu.Unlock()

		return res, nil
	}

	summary := ""

	if f.opts.Model == nil {
		if _, err := recording(tc, map[string]any{"query": req.Query}); err != nil {
			return FinderResult{}, fmt.Errorf("search: %w", err)
		}
	} else {
		registry, err := tool.NewRegistry([]tool.Descriptor{searchDescriptor()}, tool.Shims{SearchWeb: recording})
		if err != nil {
			return FinderResult{}, err
		}

		out, err := f.planner.Run(ctx, planner.Task{
			UserQuery:          req.Query,
			SystemInstructions: f.opts.Instructions,
			Tools:              registry,
			Model:              f.opts.Model,
			MaxIterations:      f.opts.MaxIterations,
			ToolContext:        tc,
		})
		if err != nil && len(hits) == 0 {
			return FinderResult{}, fmt.Errorf("discovery: %w", err)
		}

		summary = out.FinalResult
	}

	urls := dedupe(hits)
	sort.SliceStable(urls, func(i, j int) bool { return urls[i].RelevanceScore > urls[j].RelevanceScore })

	return FinderResult{URLs: capURLs(urls, maxURLs), Discovered: len(urls), Summary: summary}, nil
}

func decodeSearch(out any) ([]SearchResult, error) {
	if rs, ok := out.([]SearchResult); ok {
		return rs, nil
	}

	var raw []byte
	if s, ok := out.(string); ok {
		raw = []byte(s)
	} else {
		b, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	var rs []SearchResult
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("unexpected search result format: %w", err)
	}

	return rs, nil
}

// dedupe drops invalid URLs and repeats, keeping the first occurrence.
func dedupe(urls []DiscoveredURL) []DiscoveredURL {
	seen := make(map[string]bool, len(urls))
	out := make([]DiscoveredURL, 0, len(urls))

	for _, u := range urls {
		key, ok := canonical(u.URL)
		if !ok || seen[key] {
			continue
		}

		seen[key] = true
		out = append(out, u)
	}

	return out
}

func canonical(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), true
}

func capURLs(urls []DiscoveredURL, maxURLs int) []DiscoveredURL {
	if maxURLs > 0 && len(urls) > maxURLs {
		return urls[:maxURLs]
	}

	return urls
}
