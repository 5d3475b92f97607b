package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/logging"
)

var (
	tracer = otel.Tracer("brandmesh/pipeline")
	meter  = otel.GetMeterProvider().Meter("brandmesh/pipeline")
)

// ErrNoStore is returned by Load when runs are not persisted.
var ErrNoStore = errors.New("pipeline: no store configured")

// Options configure a Pipeline.
type Options struct {
	// Store persists a snapshot of the state after every stage. Optional.
	Store  docstore.Store
	Clock  core.Clock
	Logger logging.Logger
	// DefaultMaxURLs caps discovery when the request sets no limit.
	DefaultMaxURLs int
	Callbacks      []Callback
}

// Pipeline chains the Finder, Scraper and Analyzer.
type Pipeline struct {
	finder    *Finder
	scraper   *Scraper
	analyzer  *Analyzer
	callbacks callbacks
	opts      Options
}

// New creates a Pipeline.
func New(finder *Finder, scraper *Scraper, analyzer *Analyzer, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		Clock:          core.SystemClock{},
		Logger:         logging.NoOpLogger{},
		DefaultMaxURLs: 10,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	p := &Pipeline{
		finder:    finder,
		scraper:   scraper,
		analyzer:  analyzer,
		callbacks: callbacks{},
		opts:      opts,
	}

	for _, c := range opts.Callbacks {
		p.callbacks.register(c)
	}

	return p
}

// RegisterCallback adds a lifecycle callback. Call before starting runs.
func (p *Pipeline) RegisterCallback(c Callback) {
	p.callbacks.register(c)
}

// RunKey addresses a persisted run.
func RunKey(requestID string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionPipelineRuns, ID: requestID}
}

// Run executes the stages in order and returns the final state. Stage
// failures end the run in the error stage; they are reported in the state,
// not as a Go error.
func (p *Pipeline) Run(ctx context.Context, req Request, ov Overrides) State {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	st := &State{
		RequestID: core.NewID(),
		TenantID:  req.TenantID,
		Query:     req.Query,
		Stage:     StagePending,
		Errors:    []StageFailure{},
		StartedAt: p.opts.Clock.Now().UTC(),
	}

	span.SetAttributes(attribute.String("request_id", st.RequestID), attribute.String("tenant", st.TenantID))

	if err := validate(req); err != nil {
		p.fail(ctx, st, StagePending, err)
		return *st
	}

	p.save(ctx, st)

	maxURLs := p.opts.DefaultMaxURLs
	if req.MaxURLs > 0 {
		maxURLs = req.MaxURLs
	}
	if ov.MaxURLs > 0 {
		maxURLs = ov.MaxURLs
	}

	ok := p.stage(ctx, st, StageFinding, func(ctx context.Context) (int, error) {
		tc := core.NewToolContext(ctx, core.Scope{
			BrandID:      st.TenantID,
			AgentName:    "finder",
			InvocationID: st.RequestID,
		}, p.opts.Clock, p.opts.Logger)

		res, err := p.finder.Find(ctx, tc, req, maxURLs)
		if err != nil {
			return 0, err
		}

		st.FinderResult = &res

		return len(res.URLs), nil
	})
	if !ok {
		return *st
	}

	ok = p.stage(ctx, st, StageScraping, func(ctx context.Context) (int, error) {
		if p.scraper == nil {
			return 0, errors.New("pipeline: no scraper configured")
		}

		res, err := p.scraper.Scrape(ctx, st.FinderResult.URLs, ov.ScraperBackend, ov.Concurrency)
		if err != nil {
			return 0, err
		}

		st.ScraperResult = &res

		return res.Succeeded, nil
	})
	if !ok {
		return *st
	}

	ok = p.stage(ctx, st, StageAnalyzing, func(ctx context.Context) (int, error) {
		if p.analyzer == nil {
			return 0, errors.New("pipeline: no analyzer configured")
		}

		res, err := p.analyzer.Analyze(ctx, st.TenantID, st.ScraperResult.Snapshots, ov.TieBand)
		if err != nil {
			return 0, err
		}

		st.AnalyzerResult = &res

		return len(res.Insights), nil
	})
	if !ok {
		return *st
	}

	_ = st.advance(StageComplete)
	done := p.opts.Clock.Now().UTC()
	st.CompletedAt = &done

	p.save(ctx, st)
	count(ctx, string(StageComplete))

	p.opts.Logger.Info("pipeline.run.complete",
		"request_id", st.RequestID,
		"tenant", st.TenantID,
		"insights", len(st.AnalyzerResult.Insights),
		"alerts", st.AnalyzerResult.AlertsSent,
	)

	return *st
}

// Load reads a persisted run.
func (p *Pipeline) Load(ctx context.Context, requestID string) (State, error) {
	if p.opts.Store == nil {
		return State{}, ErrNoStore
	}

	doc, err := p.opts.Store.Get(ctx, RunKey(requestID))
	if err != nil {
		return State{}, err
	}

	var st State
	if err := docstore.Decode(doc.Data, &st); err != nil {
		return State{}, err
	}

	return st, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.TenantID) == "" {
		return &core.ValidationError{Field: "tenantId", Message: "is required"}
	}

	if strings.TrimSpace(req.Query) == "" && len(req.ManualURLs) == 0 {
		return &core.ValidationError{Field: "query", Message: "query or manual urls are required"}
	}

	if req.MaxURLs < 0 {
		return &core.ValidationError{Field: "maxUrls", Message: "must not be negative"}
	}

	return nil
}

// stage advances st into s and runs fn. It reports whether the run may
// continue.
func (p *Pipeline) stage(ctx context.Context, st *State, s Stage, fn func(ctx context.Context) (int, error)) bool {
	if err := st.advance(s); err != nil {
		p.fail(ctx, st, s, err)
		return false
	}

	p.save(ctx, st)

	ctx, span := tracer.Start(ctx, "pipeline."+string(s))
	defer span.End()

	start := time.Now()

	items, err := safely(ctx, func(ctx context.Context) (int, error) {
		if err := p.callbacks.execute(ctx, &CallbackContext{Type: CallbackBeforeStage, Stage: s, State: *st}); err != nil {
			return 0, err
		}

		return fn(ctx)
	})

	dur := time.Since(start)
	p.logStage(st.RequestID, s, items, dur, err)

	if err != nil {
		p.stageFailed(ctx, span, st, s, dur, err)
		return false
	}

	span.SetAttributes(attribute.Int("items", items))
	p.save(ctx, st)

	_, err = safely(ctx, func(ctx context.Context) (int, error) {
		return 0, p.callbacks.execute(ctx, &CallbackContext{Type: CallbackAfterStage, Stage: s, State: *st, Duration: dur})
	})
	if err != nil {
		p.stageFailed(ctx, span, st, s, dur, err)
		return false
	}

	return true
}

// stageFailed records err on the span and the state, then runs the on_error
// callbacks.
func (p *Pipeline) stageFailed(ctx context.Context, span trace.Span, st *State, s Stage, dur time.Duration, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	p.fail(ctx, st, s, err)

	if cerr := p.callbacks.execute(ctx, &CallbackContext{Type: CallbackOnError, Stage: s, State: *st, Duration: dur, Err: err}); cerr != nil {
		p.opts.Logger.Warn("pipeline.callback.failed", "request_id", st.RequestID, "stage", string(s), "error", cerr)
	}
}

func safely(ctx context.Context, fn func(ctx context.Context) (int, error)) (items int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx)
}

func (p *Pipeline) fail(ctx context.Context, st *State, s Stage, err error) {
	now := p.opts.Clock.Now().UTC()

	st.Errors = append(st.Errors, StageFailure{Stage: s, Message: err.Error(), At: now})
	st.Stage = StageError
	st.CompletedAt = &now

	p.save(ctx, st)
	count(ctx, string(StageError))

	p.opts.Logger.Error("pipeline.run.failed",
		"request_id", st.RequestID,
		"tenant", st.TenantID,
		"stage", string(s),
		"error", err,
	)
}

func (p *Pipeline) save(ctx context.Context, st *State) {
	if p.opts.Store == nil {
		return
	}

	data, err := docstore.Encode(st)
	if err == nil {
		_, err = p.opts.Store.Set(ctx, RunKey(st.RequestID), data)
	}

	if err != nil {
		p.opts.Logger.Warn("pipeline.snapshot.failed", "request_id", st.RequestID, "stage", string(st.Stage), "error", err)
	}
}

func (p *Pipeline) logStage(requestID string, s Stage, items int, dur time.Duration, err error) {
	if dl, ok := p.opts.Logger.(logging.DomainLogger); ok {
		dl.LogPipelineStage(requestID, string(s), items, dur, err)
		return
	}

	p.opts.Logger.Debug("pipeline.stage", "request_id", requestID, "stage", string(s), "items", items, "duration", dur)
}

func count(ctx context.Context, outcome string) {
	if c, err := meter.Int64Counter("brandmesh.pipeline.runs"); err == nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
