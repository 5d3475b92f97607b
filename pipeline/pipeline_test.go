package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
	"github.com/hupe1980/brandmesh/internal/testutil"
	"github.com/hupe1980/brandmesh/model"
	"github.com/hupe1980/brandmesh/pipeline"
	"github.com/hupe1980/brandmesh/tool"
)

type recordingAlerter struct {
	mu      sync.Mutex
	effects []core.AlertEffect
	err     error
}

func (a *recordingAlerter) Alert(_ context.Context, e core.AlertEffect) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return a.err
	}

	a.effects = append(a.effects, e)

	return nil
}

type panicBackend struct{}

func (panicBackend) Name() string           { return "broken" }
func (panicBackend) Supports(_ string) bool { return true }
func (panicBackend) Scrape(context.Context, string) (pipeline.CompetitorSnapshot, error) {
	panic("selector exploded")
}

func menus() map[string]pipeline.CompetitorSnapshot {
	return map[string]pipeline.CompetitorSnapshot{
		"https://green.example/menu": {
			Competitor: "Green Leaf",
			Products: []pipeline.Product{
				{Name: "Blue Dream 3.5g", Price: 30},
				{Name: "Gelato Gummies", Price: 20},
			},
		},
		"https://kind.example/menu": {
			Competitor: "Kind Co",
			Products: []pipeline.Product{
				{Name: "blue dream 3.5G", Price: 45},
				{Name: "OG Kush 1g", Price: 10.1},
			},
		},
	}
}

func catalog() *pipeline.StaticCatalog {
	return pipeline.NewStaticCatalog(map[string]float64{
		"Blue Dream 3.5g": 40,
		"OG Kush 1g":      10,
	})
}

type fixture struct {
	pipeline *pipeline.Pipeline
	alerter  *recordingAlerter
	store    docstore.Store
	clock    *testutil.FakeClock
}

func newFixture(t *testing.T, backends []pipeline.Backend, optFns ...func(o *pipeline.Options)) *fixture {
	t.Helper()

	clock := testutil.NewFakeClock(testutil.Epoch)
	store := docstore.NewInMemoryStore(clock)
	alerter := &recordingAlerter{}

	finder := pipeline.NewFinder(nil, nil)
	scraper := pipeline.NewScraper(backends, func(o *pipeline.ScraperOptions) { o.Clock = clock })
	analyzer := pipeline.NewAnalyzer(catalog(), func(o *pipeline.AnalyzerOptions) {
		o.Alerter = alerter
		o.Clock = clock
	})

	opts := append([]func(o *pipeline.Options){func(o *pipeline.Options) {
		o.Store = store
		o.Clock = clock
	}}, optFns...)

	return &fixture{
		pipeline: pipeline.New(finder, scraper, analyzer, opts...),
		alerter:  alerter,
		store:    store,
		clock:    clock,
	}
}

func TestFinder_ManualURLs(t *testing.T) {
	f := pipeline.NewFinder(nil, nil)
	tc := core.NewToolContext(context.Background(), core.Scope{BrandID: "t1"}, nil, nil)

	res, err := f.Find(context.Background(), tc, pipeline.Request{
		TenantID:   "t1",
		ManualURLs: []string{"https://a", "https://b"},
	}, 0)
	require.NoError(t, err)

	require.Len(t, res.URLs, 2)
	for _, u := range res.URLs {
		assert.Equal(t, pipeline.SourceManual, u.Source)
		assert.Equal(t, 1.0, u.RelevanceScore)
	}
	assert.Equal(t, "https://a", res.URLs[0].URL)
}

func TestFinder_SearchWithoutModel(t *testing.T) {
	var queries []string

	search := func(_ *core.ToolContext, args map[string]any) (tool.Result, error) {
		queries = append(queries, fmt.Sprint(args["query"]))

		return tool.Result{Output: []pipeline.SearchResult{
			{URL: "https://low.example/menu", Score: 0.2},
			{URL: "https://high.example/menu", Score: 0.9},
			{URL: "https://HIGH.example/menu/", Score: 0.8},
			{URL: "not a url"},
		}}, nil
	}

	f := pipeline.NewFinder(search, nil)
	tc := core.NewToolContext(context.Background(), core.Scope{BrandID: "t1"}, nil, nil)

	res, err := f.Find(context.Background(), tc, pipeline.Request{TenantID: "t1", Query: "denver dispensary menus"}, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"denver dispensary menus"}, queries)
	require.Len(t, res.URLs, 2)
	assert.Equal(t, "https://high.example/menu", res.URLs[0].URL)
	assert.Equal(t, "https://low.example/menu", res.URLs[1].URL)
	assert.Equal(t, pipeline.SearchWeb, res.URLs[0].Source)
}

func TestFinder_PlannerDrivesSearch(t *testing.T) {
	search := func(_ *core.ToolContext, args map[string]any) (tool.Result, error) {
		return tool.Result{Output: []pipeline.SearchResult{
			{URL: fmt.Sprintf("https://%s.example/menu", args["query"]), Score: 0.5},
		}}, nil
	}

	m := model.NewScriptedModel(
		model.ToolCallResponse(
			core.FunctionCall{ID: "c1", Name: pipeline.SearchWeb, Arguments: `{"query":"north"}`},
			core.FunctionCall{ID: "c2", Name: pipeline.SearchWeb, Arguments: `{"query":"south"}`},
		),
		model.TextResponse("found two menus"),
	)

	f := pipeline.NewFinder(search, nil, func(o *pipeline.FinderOptions) { o.Model = m })
	tc := core.NewToolContext(context.Background(), core.Scope{BrandID: "t1"}, nil, nil)

	res, err := f.Find(context.Background(), tc, pipeline.Request{TenantID: "t1", Query: "menus"}, 0)
	require.NoError(t, err)

	assert.Len(t, res.URLs, 2)
	assert.Equal(t, "found two menus", res.Summary)
}

func TestFinder_NoSearch(t *testing.T) {
	f := pipeline.NewFinder(nil, nil)
	tc := core.NewToolContext(context.Background(), core.Scope{}, nil, nil)

	_, err := f.Find(context.Background(), tc, pipeline.Request{TenantID: "t1", Query: "x"}, 0)
	assert.ErrorIs(t, err, pipeline.ErrNoSearch)
}

func TestComparator(t *testing.T) {
	cmp := pipeline.Comparator{TieBand: pipeline.DefaultTieBand}
	price := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		ours    *float64
		theirs  float64
		verdict pipeline.Verdict
	}{
		{"higher is overpriced", price(40), 30, pipeline.VerdictOverpriced},
		{"lower is underpriced", price(35), 45, pipeline.VerdictUnderpriced},
		{"missing is new product", nil, 30, pipeline.VerdictNewProduct},
		{"within band is parity", price(10), 10.1, pipeline.VerdictParity},
		{"equal is parity", price(25), 25, pipeline.VerdictParity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, _ := cmp.Compare(tt.ours, tt.theirs)
			assert.Equal(t, tt.verdict, verdict)
		})
	}

	_, delta := cmp.Compare(price(40), 30)
	assert.InDelta(t, 33.33, delta, 0.001)
}

func TestProgress(t *testing.T) {
	stages := []pipeline.Stage{
		pipeline.StagePending,
		pipeline.StageFinding,
		pipeline.StageScraping,
		pipeline.StageAnalyzing,
		pipeline.StageComplete,
		pipeline.StageError,
	}

	got := make([]int, len(stages))
	for i, s := range stages {
		got[i] = pipeline.Progress(pipeline.State{Stage: s})
	}

	assert.Equal(t, []int{0, 25, 50, 75, 100, 0}, got)
}

func TestRun_Complete(t *testing.T) {
	fx := newFixture(t, []pipeline.Backend{pipeline.NewStaticBackend("static", menus())})

	st := fx.pipeline.Run(context.Background(), pipeline.Request{
		TenantID:   "t1",
		Query:      "competitor menus",
		ManualURLs: []string{"https://green.example/menu", "https://kind.example/menu"},
	}, pipeline.Overrides{})

	require.Equal(t, pipeline.StageComplete, st.Stage, st.Errors)
	assert.Empty(t, st.Errors)
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, 100, pipeline.Progress(st))

	require.NotNil(t, st.ScraperResult)
	assert.Equal(t, 2, st.ScraperResult.Succeeded)
	assert.Equal(t, "Green Leaf", st.ScraperResult.Snapshots[0].Competitor)
	assert.Equal(t, "static", st.ScraperResult.Snapshots[0].Backend)

	require.NotNil(t, st.AnalyzerResult)
	counts := st.AnalyzerResult.Counts
	assert.Equal(t, 1, counts[pipeline.VerdictOverpriced])
	assert.Equal(t, 1, counts[pipeline.VerdictUnderpriced])
	assert.Equal(t, 1, counts[pipeline.VerdictNewProduct])
	assert.Equal(t, 1, counts[pipeline.VerdictParity])

	require.Len(t, fx.alerter.effects, 1)
	alert := fx.alerter.effects[0]
	assert.Equal(t, "marketing", alert.ToAgent)
	assert.Equal(t, "t1", alert.BrandID)
	assert.Equal(t, "Blue Dream 3.5g", alert.Alert.Product)
	assert.Equal(t, 40.0, alert.Alert.OurPrice)
	assert.Equal(t, 30.0, alert.Alert.CompetitorPrice)
	assert.Equal(t, 1, st.AnalyzerResult.AlertsSent)

	loaded, err := fx.pipeline.Load(context.Background(), st.RequestID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageComplete, loaded.Stage)
	assert.Len(t, loaded.AnalyzerResult.Insights, 4)
}

func TestRun_AlertIDsAreStable(t *testing.T) {
	fx := newFixture(t, []pipeline.Backend{pipeline.NewStaticBackend("static", menus())})
	req := pipeline.Request{TenantID: "t1", ManualURLs: []string{"https://green.example/menu"}}

	fx.pipeline.Run(context.Background(), req, pipeline.Overrides{})
	fx.pipeline.Run(context.Background(), req, pipeline.Overrides{})

	require.Len(t, fx.alerter.effects, 2)
	assert.Equal(t, fx.alerter.effects[0].Alert.ID, fx.alerter.effects[1].Alert.ID)
}

func TestRun_AlertFailuresAreRecorded(t *testing.T) {
	fx := newFixture(t, []pipeline.Backend{pipeline.NewStaticBackend("static", menus())})
	fx.alerter.err = errors.New("mailbox down")

	st := fx.pipeline.Run(context.Background(), pipeline.Request{
		TenantID:   "t1",
		ManualURLs: []string{"https://green.example/menu"},
	}, pipeline.Overrides{})

	require.Equal(t, pipeline.StageComplete, st.Stage)
	assert.Equal(t, 0, st.AnalyzerResult.AlertsSent)
	require.Len(t, st.AnalyzerResult.AlertErrors, 1)
	assert.Contains(t, st.AnalyzerResult.AlertErrors[0], "mailbox down")
}

func TestRun_CapsURLs(t *testing.T) {
	fx := newFixture(t, []pipeline.Backend{pipeline.NewStaticBackend("static", menus())})

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://shop%d.example/menu", i)
	}

	st := fx.pipeline.Run(context.Background(), pipeline.Request{TenantID: "t1", ManualURLs: urls, MaxURLs: 5}, pipeline.Overrides{})

	require.NotNil(t, st.FinderResult)
	assert.LessOrEqual(t, len(st.FinderResult.URLs), 5)
	assert.Equal(t, 20, st.FinderResult.Discovered)

	require.Equal(t, pipeline.StageComplete, st.Stage)
	assert.Equal(t, len(st.FinderResult.URLs), st.ScraperResult.Failed)
	assert.Equal(t, 0, st.ScraperResult.Succeeded)
}

func TestRun_StagePanicKeepsEarlierResults(t *testing.T) {
	boom := pipeline.NewFunctionCallback(pipeline.CallbackBeforeStage, func(_ context.Context, cc *pipeline.CallbackContext) error {
		if cc.Stage == pipeline.StageScraping {
			panic("scraper crashed")
		}
		return nil
	})

	var failed []pipeline.Stage

	onError := pipeline.NewFunctionCallback(pipeline.CallbackOnError, func(_ context.Context, cc *pipeline.CallbackContext) error {
		failed = append(failed, cc.Stage)
		return nil
	})

	fx := newFixture(t, []pipeline.Backend{pipeline.NewStaticBackend("static", menus())}, func(o *pipeline.Options) {
		o.Callbacks = []pipeline.Callback{boom, onError}
	})

	st := fx.pipeline.Run(context.Background(), pipeline.Request{
		TenantID:   "t1",
		ManualURLs: []string{"https://green.example/menu"},
	}, pipeline.Overrides{})

	assert.Equal(t, pipeline.StageError, st.Stage)
	assert.Equal(t, 0, pipeline.Progress(st))
	require.NotNil(t, st.FinderResult)
	assert.Len(t, st.FinderResult.URLs, 1)
	assert.Nil(t, st.ScraperResult)
	require.NotEmpty(t, st.Errors)
	assert.Equal(t, pipeline.StageScraping, st.Errors[0].Stage)
	assert.Contains(t, st.Errors[0].Message, "scraper crashed")
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, []pipeline.Stage{pipeline.StageScraping}, failed)

	loaded, err := fx.pipeline.Load(context.Background(), st.RequestID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StageError, loaded.Stage)
	assert.NotNil(t, loaded.FinderResult)
}

func TestRun_InvalidRequest(t *testing.T) {
	fx := newFixture(t, nil)

	st := fx.pipeline.Run(context.Background(), pipeline.Request{TenantID: "t1"}, pipeline.Overrides{})

	assert.Equal(t, pipeline.StageError, st.Stage)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, pipeline.StagePending, st.Errors[0].Stage)
	assert.Nil(t, st.FinderResult)
}

func TestScraper_BackendPanicIsAFailure(t *testing.T) {
	s := pipeline.NewScraper([]pipeline.Backend{panicBackend{}})

	res, err := s.Scrape(context.Background(), []pipeline.DiscoveredURL{
		{URL: "https://a.example"},
		{URL: "https://b.example"},
	}, pipeline.BackendAuto, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Contains(t, res.Failures[0].Error, "selector exploded")
}

func TestScraper_Pick(t *testing.T) {
	static := pipeline.NewStaticBackend("static", menus())
	s := pipeline.NewScraper([]pipeline.Backend{static, pipeline.NewHTTPBackend()})

	b, err := s.Pick(pipeline.BackendAuto, "https://green.example/menu")
	require.NoError(t, err)
	assert.Equal(t, "static", b.Name())

	b, err = s.Pick("", "https://elsewhere.example/menu")
	require.NoError(t, err)
	assert.Equal(t, "http_json", b.Name())

	b, err = s.Pick("http_json", "https://green.example/menu")
	require.NoError(t, err)
	assert.Equal(t, "http_json", b.Name())

	_, err = s.Pick("static", "https://elsewhere.example/menu")
	assert.Error(t, err)

	_, err = s.Pick("missing", "https://green.example/menu")
	assert.Error(t, err)

	_, err = s.Pick(pipeline.BackendAuto, "ftp://nothing")
	assert.ErrorIs(t, err, pipeline.ErrNoBackend)

	assert.Equal(t, []string{"static", "http_json"}, s.Backends())
}

func TestScraper_KeepsDiscoveryOrder(t *testing.T) {
	s := pipeline.NewScraper([]pipeline.Backend{pipeline.NewStaticBackend("static", menus())})

	res, err := s.Scrape(context.Background(), []pipeline.DiscoveredURL{
		{URL: "https://kind.example/menu"},
		{URL: "https://missing.example/menu"},
		{URL: "https://green.example/menu"},
	}, "", 3)
	require.NoError(t, err)

	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, "Kind Co", res.Snapshots[0].Competitor)
	assert.Equal(t, "Green Leaf", res.Snapshots[1].Competitor)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "https://missing.example/menu", res.Failures[0].URL)
}

func TestStoreCatalog(t *testing.T) {
	store := docstore.NewInMemoryStore(testutil.NewFakeClock(testutil.Epoch))
	c := pipeline.NewStoreCatalog(store)

	_, ok, err := c.Price(context.Background(), "t1", "Blue Dream 3.5g")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, pipeline.SaveCatalog(context.Background(), store, "t1", map[string]float64{"Blue Dream 3.5g": 40}))

	price, ok, err := c.Price(context.Background(), "t1", "blue dream 3.5G")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 40.0, price)
}

func TestRun_AfterStageFailureRunsOnError(t *testing.T) {
	reject := pipeline.NewFunctionCallback(pipeline.CallbackAfterStage, func(_ context.Context, cc *pipeline.CallbackContext) error {
		if cc.Stage == pipeline.StageFinding {
			return errors.New("too few urls")
		}
		return nil
	})

	var seen []*pipeline.CallbackContext

	onError := pipeline.NewFunctionCallback(pipeline.CallbackOnError, func(_ context.Context, cc *pipeline.CallbackContext) error {
		seen = append(seen, cc)
		return nil
	})

	fx := newFixture(t, []pipeline.Backend{pipeline.NewStaticBackend("static", menus())}, func(o *pipeline.Options) {
		o.Callbacks = []pipeline.Callback{reject, onError}
	})

	st := fx.pipeline.Run(context.Background(), pipeline.Request{
		TenantID:   "t1",
		ManualURLs: []string{"https://green.example/menu"},
	}, pipeline.Overrides{})

	assert.Equal(t, pipeline.StageError, st.Stage)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, pipeline.StageFinding, st.Errors[0].Stage)
	assert.Contains(t, st.Errors[0].Message, "too few urls")
	assert.NotNil(t, st.FinderResult)
	assert.Nil(t, st.ScraperResult)

	require.Len(t, seen, 1)
	assert.Equal(t, pipeline.StageFinding, seen[0].Stage)
	assert.EqualError(t, seen[0].Err, "too few urls")
	assert.Equal(t, pipeline.StageError, seen[0].State.Stage)
}

type countingStore struct {
	docstore.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, key docstore.Key) (docstore.Document, error) {
	s.gets++
	return s.Store.Get(ctx, key)
}

func TestAnalyzer_ReadsStoreCatalogOnce(t *testing.T) {
	store := &countingStore{Store: docstore.NewInMemoryStore(testutil.NewFakeClock(testutil.Epoch))}
	require.NoError(t, pipeline.SaveCatalog(context.Background(), store, "t1", map[string]float64{
		"Blue Dream 3.5g": 40,
		"OG Kush 1g":      10,
	}))

	a := pipeline.NewAnalyzer(pipeline.NewStoreCatalog(store))

	snapshots := make([]pipeline.CompetitorSnapshot, 0, 2)
	for _, m := range menus() {
		snapshots = append(snapshots, m)
	}

	res, err := a.Analyze(context.Background(), "t1", snapshots, 0)
	require.NoError(t, err)
	assert.Len(t, res.Insights, 4)
	assert.Equal(t, 1, store.gets)
}
