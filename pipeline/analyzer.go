package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/docstore"
)

// DefaultTieBand is the relative price difference treated as parity.
const DefaultTieBand = 0.02

// Comparator classifies our price against a competitor's.
type Comparator struct {
	// TieBand is a fraction of the competitor price, e.g. 0.02 for 2%.
	TieBand float64
}

// Compare returns the verdict and the delta of our price relative to the
// competitor's, in percent. A nil ours means the product is not in our
// catalog.
func (c Comparator) Compare(ours *float64, theirs float64) (Verdict, float64) {
	if ours == nil {
		return VerdictNewProduct, 0
	}

	band := c.TieBand
	if band < 0 {
		band = 0
	}

	if theirs <= 0 {
		if *ours <= 0 {
			return VerdictParity, 0
		}
		return VerdictOverpriced, 100
	}

	delta := (*ours - theirs) / theirs

	switch {
	case math.Abs(delta) <= band:
		return VerdictParity, round2(delta * 100)
	case delta > 0:
		return VerdictOverpriced, round2(delta * 100)
	default:
		return VerdictUnderpriced, round2(delta * 100)
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Catalog resolves a tenant's own price for a product.
type Catalog interface {
	Price(ctx context.Context, tenantID, product string) (price float64, ok bool, err error)
}

// Snapshotter is a Catalog that can load a tenant's prices once for a whole
// analysis.
type Snapshotter interface {
	Snapshot(ctx context.Context, tenantID string) (Catalog, error)
}

// StaticCatalog is an in-memory catalog keyed by normalized product name.
type StaticCatalog struct {
	prices map[string]float64
}

// NewStaticCatalog creates a StaticCatalog from product names to prices.
func NewStaticCatalog(prices map[string]float64) *StaticCatalog {
	c := &StaticCatalog{prices: make(map[string]float64, len(prices))}
	for name, p := range prices {
		c.prices[NormalizeProduct(name)] = p
	}

	return c
}

// Price implements Catalog.
func (c *StaticCatalog) Price(_ context.Context, _ string, product string) (float64, bool, error) {
	p, ok := c.prices[NormalizeProduct(product)]
	return p, ok, nil
}

// NormalizeProduct folds case, punctuation and repeated whitespace so menu
// names match catalog names.
func NormalizeProduct(name string) string {
	var b strings.Builder

	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.':
			b.WriteRune(r)
			space = false
		case !space && b.Len() > 0:
			b.WriteRune(' ')
			space = true
		}
	}

	return strings.TrimSpace(b.String())
}

// Alerter delivers pricing alerts to an agent's memory.
type Alerter interface {
	Alert(ctx context.Context, effect core.AlertEffect) error
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, effect core.AlertEffect) error

// Alert implements Alerter.
func (f AlerterFunc) Alert(ctx context.Context, effect core.AlertEffect) error { return f(ctx, effect) }

// AnalyzerOptions configure an Analyzer.
type AnalyzerOptions struct {
	TieBand float64
	// AlertAgent receives overpriced alerts.
	AlertAgent string
	Alerter    Alerter
	Clock      core.Clock
}

// Analyzer compares snapshots against the tenant's catalog.
type Analyzer struct {
	catalog Catalog
	opts    AnalyzerOptions
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(catalog Catalog, optFns ...func(o *AnalyzerOptions)) *Analyzer {
	opts := AnalyzerOptions{
		TieBand:    DefaultTieBand,
		AlertAgent: "marketing",
		Clock:      core.SystemClock{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Analyzer{catalog: catalog, opts: opts}
}

// Analyze compares every snapshot product. tieBand replaces the configured
// band when positive. Alert delivery failures are recorded, not returned.
func (a *Analyzer) Analyze(ctx context.Context, tenantID string, snapshots []CompetitorSnapshot, tieBand float64) (AnalyzerResult, error) {
	if a.catalog == nil {
		return AnalyzerResult{}, fmt.Errorf("pipeline: no catalog configured")
	}

	catalog := a.catalog
	if sn, ok := catalog.(Snapshotter); ok {
		snap, err := sn.Snapshot(ctx, tenantID)
		if err != nil {
			return AnalyzerResult{}, fmt.Errorf("load catalog: %w", err)
		}
		catalog = snap
	}

	cmp := Comparator{TieBand: a.opts.TieBand}
	if tieBand > 0 {
		cmp.TieBand = tieBand
	}

	res := AnalyzerResult{Counts: map[Verdict]int{}}

	for _, snap := range snapshots {
		for _, p := range snap.Products {
			if strings.TrimSpace(p.Name) == "" {
				continue
			}

			price, ok, err := catalog.Price(ctx, tenantID, p.Name)
			if err != nil {
				return res, fmt.Errorf("catalog lookup %q: %w", p.Name, err)
			}

			var ours *float64
			if ok {
				ours = &price
			}

			verdict, delta := cmp.Compare(ours, p.Price)

			insight := Insight{
				Product:         p.Name,
				Competitor:      snap.Competitor,
				URL:             snap.URL,
				OurPrice:        ours,
				CompetitorPrice: p.Price,
				DeltaPct:        delta,
				Verdict:         verdict,
			}

			res.Insights = append(res.Insights, insight)
			res.Counts[verdict]++

			if verdict == VerdictOverpriced && a.opts.Alerter != nil {
				if err := a.opts.Alerter.Alert(ctx, a.alertFor(tenantID, insight)); err != nil {
					res.AlertErrors = append(res.AlertErrors, fmt.Sprintf("%s: %v", insight.Product, err))
					continue
				}
				res.AlertsSent++
			}
		}
	}

	return res, nil
}

// alertFor derives the alert id from its content so a rerun of the same
// comparison does not raise a second alert.
func (a *Analyzer) alertFor(tenantID string, in Insight) core.AlertEffect {
	key := fmt.Sprintf("%s|%s|%s|%.2f|%.2f", tenantID, in.Competitor, NormalizeProduct(in.Product), *in.OurPrice, in.CompetitorPrice)

	return core.AlertEffect{
		BrandID: tenantID,
		ToAgent: a.opts.AlertAgent,
		Alert: core.PricingAlert{
			ID:              uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
			Product:         in.Product,
			Competitor:      in.Competitor,
			OurPrice:        *in.OurPrice,
			CompetitorPrice: in.CompetitorPrice,
			ReceivedAt:      a.opts.Clock.Now(),
		},
	}
}

// StoreCatalog reads a tenant's catalog document from the catalogs
// collection. The document maps product names to prices under "products".
type StoreCatalog struct {
	store docstore.Store
}

// NewStoreCatalog creates a StoreCatalog.
func NewStoreCatalog(store docstore.Store) *StoreCatalog {
	return &StoreCatalog{store: store}
}

// CatalogKey addresses a tenant's catalog document.
func CatalogKey(tenantID string) docstore.Key {
	return docstore.Key{Collection: docstore.CollectionCatalogs, ID: tenantID}
}

// Price implements Catalog. A tenant without a catalog document has no
// products.
func (c *StoreCatalog) Price(ctx context.Context, tenantID, product string) (float64, bool, error) {
	snap, err := c.Snapshot(ctx, tenantID)
	if err != nil {
		return 0, false, err
	}

	return snap.Price(ctx, tenantID, product)
}

// Snapshot reads the tenant's catalog document once.
func (c *StoreCatalog) Snapshot(ctx context.Context, tenantID string) (Catalog, error) {
	doc, err := c.store.Get(ctx, CatalogKey(tenantID))
	if errors.Is(err, core.ErrNotFound) {
		return NewStaticCatalog(nil), nil
	}
	if err != nil {
		return nil, err
	}

	var stored struct {
		Products map[string]float64 `json:"products"`
	}
	if err := docstore.Decode(doc.Data, &stored); err != nil {
		return nil, err
	}

	return NewStaticCatalog(stored.Products), nil
}

// SaveCatalog replaces a tenant's catalog document.
func SaveCatalog(ctx context.Context, store docstore.Store, tenantID string, prices map[string]float64) error {
	products := make(map[string]any, len(prices))
	for name, p := range prices {
		products[name] = p
	}

	_, err := store.Set(ctx, CatalogKey(tenantID), map[string]any{"products": products})

	return err
}
