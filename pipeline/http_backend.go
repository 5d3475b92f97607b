package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/tool"
)

// maxMenuBytes bounds the response body read from a menu endpoint.
const maxMenuBytes = 2 << 20

// HTTPBackend fetches menus published as JSON, either a bare product array or
// an object with "competitor" and "products".
type HTTPBackend struct {
	client    *http.Client
	userAgent string
}

// HTTPBackendOptions configure an HTTPBackend.
type HTTPBackendOptions struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
}

// NewHTTPBackend creates an HTTPBackend.
func NewHTTPBackend(optFns ...func(o *HTTPBackendOptions)) *HTTPBackend {
	opts := HTTPBackendOptions{Timeout: 15 * time.Second, UserAgent: "brandmesh-scraper/1.0"}

	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPBackend{client: client, userAgent: opts.UserAgent}
}

// Name implements Backend.
func (b *HTTPBackend) Name() string { return "http_json" }

// Supports implements Backend.
func (b *HTTPBackend) Supports(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Scrape implements Backend.
func (b *HTTPBackend) Scrape(ctx context.Context, rawURL string) (CompetitorSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return CompetitorSnapshot{}, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return CompetitorSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CompetitorSnapshot{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMenuBytes))
	if err != nil {
		return CompetitorSnapshot{}, err
	}

	return decodeMenu(body)
}

func decodeMenu(body []byte) (CompetitorSnapshot, error) {
	trimmed := strings.TrimSpace(string(body))

	if strings.HasPrefix(trimmed, "[") {
		var products []Product
		if err := json.Unmarshal(body, &products); err != nil {
			return CompetitorSnapshot{}, fmt.Errorf("decode menu: %w", err)
		}

		return CompetitorSnapshot{Products: products}, nil
	}

	var doc struct {
		Competitor string    `json:"competitor"`
		Products   []Product `json:"products"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return CompetitorSnapshot{}, fmt.Errorf("decode menu: %w", err)
	}

	return CompetitorSnapshot{Competitor: doc.Competitor, Products: doc.Products}, nil
}

// NewHTTPSearch returns a search_web shim that queries endpoint with the
// query in "q" and an optional "limit", expecting a JSON array of
// SearchResult.
func NewHTTPSearch(endpoint string, client *http.Client) tool.Handler {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return func(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return tool.Result{}, err
		}

		q := u.Query()
		q.Set("q", tool.StringArg(args, "query"))
		if limit := tool.IntArg(args, "limit", 0); limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(tc.Context(), http.MethodGet, u.String(), nil)
		if err != nil {
			return tool.Result{}, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return tool.Result{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return tool.Result{}, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
		}

		var results []SearchResult
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxMenuBytes)).Decode(&results); err != nil {
			return tool.Result{}, fmt.Errorf("search: decode: %w", err)
		}

		return tool.Result{Output: results}, nil
	}
}
