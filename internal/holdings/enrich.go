package holdings

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"benritz/fundcalc/internal/bond"
	"benritz/fundcalc/internal/types"
)

const DefaultWorkers = 8

// EnrichedHolding is a holding with its normalised terms and metrics. Err is
// set when the row could not be turned into bond terms, in which case every
// metric carries the same error.
type EnrichedHolding struct {
	Holding *types.Holding
	Terms   types.BondTerms
	Metrics types.BondMetrics
	Err     error
}

type Enricher struct {
	Solver bond.Solver
	// Curve is optional; without it Z-spread is unavailable.
	Curve   types.SpotCurve
	Workers int
	Logger  *logrus.Logger
}

func NewEnricher(solver bond.Solver, workers int, logger *logrus.Logger) *Enricher {
	return &Enricher{
		Solver:  solver,
		Workers: workers,
		Logger:  logger,
	}
}

// Enrich computes the metrics of every holding as of settlement, n periods
// per year. Row failures are kept on the row; only cancellation of ctx fails
// the batch. The output is in input order.
func (e *Enricher) Enrich(ctx context.Context, settlement time.Time, n int, rows []*types.Holding) ([]*EnrichedHolding, error) {
	workers := e.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	out := make([]*EnrichedHolding, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, h := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.enrichOne(i, settlement, n, h)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func (e *Enricher) enrichOne(row int, settlement time.Time, n int, h *types.Holding) *EnrichedHolding {
	eh := &EnrichedHolding{Holding: h}

	terms, err := h.Terms(settlement, n)
	if err != nil {
		eh.Err = err
		eh.Metrics = allUnavailable(err)
		e.logFailure(row, h, "terms", err)
		return eh
	}
	eh.Terms = terms

	if h.ZeroCoupon {
		eh.Metrics = bond.AnalyzeZeroCoupon(terms)
	} else {
		eh.Metrics = e.Solver.Analyze(terms, e.Curve)
	}

	for _, m := range Metrics {
		if v := m.Get(eh.Metrics); !v.Ok() && m.Name != MetricZSpread && m.Name != MetricMarketPrice {
			e.logFailure(row, h, m.Name, v.Err)
		}
	}

	return eh
}

func (e *Enricher) logFailure(row int, h *types.Holding, metric string, err error) {
	if e.Logger == nil {
		return
	}

	fields := logrus.Fields{
		"row":    row,
		"metric": metric,
	}
	if h != nil {
		fields["ticker"] = h.Ticker
		fields["name"] = h.Name
	}

	e.Logger.WithFields(fields).WithError(err).Warn("metric unavailable")
}

func allUnavailable(err error) types.BondMetrics {
	return types.BondMetrics{
		YTM:              types.Unavailable(err),
		CurrentYield:     types.Unavailable(err),
		MacaulayDuration: types.Unavailable(err),
		ModifiedDuration: types.Unavailable(err),
		Convexity:        types.Unavailable(err),
		ZSpread:          types.Unavailable(err),
		MarketPrice:      types.Unavailable(err),
	}
}
