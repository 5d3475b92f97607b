package pipeline

import (
	"fmt"
	"time"
)

// Stage is the position of a run in the pipeline.
type Stage string

// Pipeline stages.
const (
	StagePending   Stage = "pending"
	StageFinding   Stage = "finding"
	StageScraping  Stage = "scraping"
	StageAnalyzing Stage = "analyzing"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

var stageOrder = map[Stage]int{
	StagePending:   0,
	StageFinding:   1,
	StageScraping:  2,
	StageAnalyzing: 3,
	StageComplete:  4,
}

// Terminal reports whether no further stage follows.
func (s Stage) Terminal() bool { return s == StageComplete || s == StageError }

// Request starts a run.
type Request struct {
	TenantID   string   `json:"tenantId"`
	Query      string   `json:"query"`
	ManualURLs []string `json:"manualUrls,omitempty"`
	MaxURLs    int      `json:"maxUrls,omitempty"`
}

// Overrides adjust a single run.
type Overrides struct {
	// ScraperBackend names the preferred backend; empty or "auto" picks one
	// per URL.
	ScraperBackend string
	// TieBand replaces the comparator's parity band when positive.
	TieBand float64
	// MaxURLs replaces Request.MaxURLs when positive.
	MaxURLs int
	// Concurrency replaces the scraper's parallelism when positive.
	Concurrency int
}

// DiscoveredURL is a candidate source found by the Finder.
type DiscoveredURL struct {
	URL            string  `json:"url"`
	Title          string  `json:"title,omitempty"`
	Source         string  `json:"source"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// FinderResult is the output of the finding stage.
type FinderResult struct {
	URLs       []DiscoveredURL `json:"urls"`
	Discovered int             `json:"discovered"`
	Summary    string          `json:"summary,omitempty"`
}

// Product is a priced catalog or menu entry.
type Product struct {
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
}

// CompetitorSnapshot is what one backend extracted from one URL.
type CompetitorSnapshot struct {
	URL        string    `json:"url"`
	Competitor string    `json:"competitor"`
	Backend    string    `json:"backend"`
	Products   []Product `json:"products"`
	CapturedAt time.Time `json:"capturedAt"`
}

// URLFailure records a URL the scraper could not extract.
type URLFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// ScraperResult is the output of the scraping stage. Snapshots keep the
// discovery order.
type ScraperResult struct {
	Snapshots []CompetitorSnapshot `json:"snapshots"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Failures  []URLFailure         `json:"failures,omitempty"`
}

// Verdict classifies our price against a competitor's.
type Verdict string

// Verdicts.
const (
	VerdictUnderpriced Verdict = "underpriced"
	VerdictOverpriced  Verdict = "overpriced"
	VerdictParity      Verdict = "parity"
	VerdictNewProduct  Verdict = "new_product"
)

// Insight is one compared competitor product.
type Insight struct {
	Product         string   `json:"product"`
	Competitor      string   `json:"competitor"`
	URL             string   `json:"url,omitempty"`
	OurPrice        *float64 `json:"ourPrice,omitempty"`
	CompetitorPrice float64  `json:"competitorPrice"`
	DeltaPct        float64  `json:"deltaPct"`
	Verdict         Verdict  `json:"verdict"`
}

// AnalyzerResult is the output of the analyzing stage.
type AnalyzerResult struct {
	Insights    []Insight       `json:"insights"`
	Counts      map[Verdict]int `json:"counts"`
	AlertsSent  int             `json:"alertsSent"`
	AlertErrors []string        `json:"alertErrors,omitempty"`
}

// StageFailure is an error recorded against a stage.
type StageFailure struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is the full record of a run.
type State struct {
	RequestID      string          `json:"requestId"`
	TenantID       string          `json:"tenantId"`
	Query          string          `json:"query"`
	Stage          Stage           `json:"stage"`
	FinderResult   *FinderResult   `json:"finderResult,omitempty"`
	ScraperResult  *ScraperResult  `json:"scraperResult,omitempty"`
	AnalyzerResult *AnalyzerResult `json:"analyzerResult,omitempty"`
	Errors         []StageFailure  `json:"errors"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// Progress maps the stage to a percentage. Error reports 0.
func Progress(s State) int {
	rank, ok := stageOrder[s.Stage]
	if !ok {
		return 0
	}

	return rank * 25
}

// advance moves the run forward. Regressions and moves out of a terminal
// stage are refused; error is reachable from any non-terminal stage.
func (s *State) advance(to Stage) error {
	if s.Stage.Terminal() {
		return fmt.Errorf("pipeline: run %s already %s", s.RequestID, s.Stage)
	}

	if to == StageError {
		s.Stage = to
		return nil
	}

	from, ok := stageOrder[s.Stage]
	if !ok {
		return fmt.Errorf("pipeline: unknown stage %q", s.Stage)
	}

	next, ok := stageOrder[to]
	if !ok || next <= from {
		return fmt.Errorf("pipeline: cannot move from %s to %s", s.Stage, to)
	}

	s.Stage = to

	return nil
}
