// Package matching selects and ranks providers for a lead.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"conectapro/internal/intent"
	"conectapro/internal/leads/domain"
	"conectapro/internal/locality"
	"conectapro/platform/logger"
)

// overFetchFactor leaves room to drop blocked providers without a second query.
const overFetchFactor = 3

// ProviderStore reads provider data.
type ProviderStore interface {
	// ListActiveServices returns the distinct service labels of active providers, sorted.
	ListActiveServices(ctx context.Context) ([]string, error)
	// ListLocalities returns every comuna named by providers or their coverage.
	ListLocalities(ctx context.Context) ([]string, error)
	// ListProvidersForServices returns active providers offering any of services, with coverage.
	ListProvidersForServices(ctx context.Context, services []string) ([]domain.Provider, error)
	// ListCandidates returns active providers for service covering localityKey, best rated
	// first, at most limit rows when limit > 0.
	ListCandidates(ctx context.Context, service, localityKey string, limit int) ([]domain.Provider, error)
}

// Engine answers matching questions against live provider data.
type Engine struct {
	store      ProviderStore
	normalizer *locality.Normalizer
	limit      int
	now        func() time.Time
	log        *logger.Logger
}

// NewEngine returns an Engine. limit is the default number of offers per round.
func NewEngine(store ProviderStore, normalizer *locality.Normalizer, limit int, log *logger.Logger) *Engine {
	return &Engine{
		store:      store,
		normalizer: normalizer,
		limit:      limit,
		now:        time.Now,
		log:        log,
	}
}

// WithClock replaces the clock used for block checks.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Limit returns the configured number of offers per round.
func (e *Engine) Limit() int {
	return e.limit
}

// Services returns the live catalogue of service labels.
func (e *Engine) Services(ctx context.Context) ([]string, error) {
	services, err := e.store.ListActiveServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active services: %w", err)
	}
	return services, nil
}

// Localities returns the directory of comunas present in provider data.
func (e *Engine) Localities(ctx context.Context) (locality.Directory, error) {
	names, err := e.store.ListLocalities(ctx)
	if err != nil {
		return locality.Directory{}, fmt.Errorf("list localities: %w", err)
	}
	return e.normalizer.NewDirectory(names), nil
}

// FindTopProviders returns up to limit eligible providers for service in comuna, ordered by
// rating average, then rating count, then id. A non-positive limit returns every match.
func (e *Engine) FindTopProviders(ctx context.Context, service, comuna string, limit int) ([]domain.Provider, error) {
	key := e.normalizer.Key(comuna)
	if strings.TrimSpace(service) == "" || key == "" {
		return nil, nil
	}

	fetch := 0
	if limit > 0 {
		fetch = limit * overFetchFactor
	}
	rows, err := e.store.ListCandidates(ctx, service, key, fetch)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return e.SelectTop(rows, service, key, limit), nil
}

// SelectTop filters rows down to eligible providers and ranks them.
func (e *Engine) SelectTop(rows []domain.Provider, service, localityKey string, limit int) []domain.Provider {
	now := e.now()
	seen := make(map[int64]struct{}, len(rows))
	out := make([]domain.Provider, 0, len(rows))
	for _, p := range rows {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if !strings.EqualFold(strings.TrimSpace(p.Service), strings.TrimSpace(service)) {
			continue
		}
		if e.eligible(p, localityKey, now) {
			out = append(out, p)
		}
	}
	Rank(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Rank orders providers by rating average desc, rating count desc, id asc.
func Rank(ps []domain.Provider) {
	sort.SliceStable(ps, func(a, b int) bool {
		pa, pb := ps[a], ps[b]
		if pa.RatingAvg != pb.RatingAvg {
			return pa.RatingAvg > pb.RatingAvg
		}
		if pa.RatingCount != pb.RatingCount {
			return pa.RatingCount > pb.RatingCount
		}
		return pa.ID < pb.ID
	})
}

// Covers reports whether p serves the comuna with localityKey. Coverage rows replace the
// primary comuna when present.
func (e *Engine) Covers(p domain.Provider, localityKey string) bool {
	for _, name := range p.Localities() {
		if e.normalizer.Key(name) == localityKey {
			return true
		}
	}
	return false
}

func (e *Engine) eligible(p domain.Provider, localityKey string, now time.Time) bool {
	return p.Active && !p.BlockedAt(now) && e.Covers(p, localityKey)
}

type serviceAggregate struct {
	count int
	sum   float64
}

func (a serviceAggregate) avg() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// PickBestServiceForIntent returns the service mapped to intentID with the most eligible
// providers in comuna, then the best average rating. Ties keep index order.
func (e *Engine) PickBestServiceForIntent(ctx context.Context, intentID, comuna string, idx *intent.ServiceIndex) (string, bool, error) {
	candidates := idx.ServicesFor(intentID)
	key := e.normalizer.Key(comuna)
	if len(candidates) == 0 || key == "" {
		return "", false, nil
	}

	providers, err := e.store.ListProvidersForServices(ctx, candidates)
	if err != nil {
		return "", false, fmt.Errorf("list providers for services: %w", err)
	}

	now := e.now()
	seen := make(map[int64]struct{}, len(providers))
	agg := make(map[string]serviceAggregate, len(candidates))
	for _, p := range providers {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		if !e.eligible(p, key, now) {
			continue
		}
		seen[p.ID] = struct{}{}
		svc := canonicalService(candidates, p.Service)
		a := agg[svc]
		a.count++
		a.sum += p.RatingAvg
		agg[svc] = a
	}

	best, bestAgg, found := "", serviceAggregate{}, false
	for _, svc := range candidates {
		a, ok := agg[svc]
		if !ok {
			continue
		}
		if !found || a.count > bestAgg.count || (a.count == bestAgg.count && a.avg() > bestAgg.avg()) {
			best, bestAgg, found = svc, a, true
		}
	}

	if e.log != nil {
		e.log.WithContext(ctx).Debug("picked service for intent", "intentId", intentID, "comuna", key, "service", best, "candidates", len(candidates))
	}
	return best, found, nil
}

// AvailableLocalities returns display names of comunas where intentID can be served,
// nearest to reference first. An empty reference orders them alphabetically.
func (e *Engine) AvailableLocalities(ctx context.Context, intentID string, idx *intent.ServiceIndex, reference string) ([]string, error) {
	candidates := idx.ServicesFor(intentID)
	if len(candidates) == 0 {
		return nil, nil
	}

	providers, err := e.store.ListProvidersForServices(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("list providers for services: %w", err)
	}

	now := e.now()
	var names []string
	for _, p := range providers {
		if !p.Active || p.BlockedAt(now) {
			continue
		}
		names = append(names, p.Localities()...)
	}

	dir := e.normalizer.NewDirectory(names)
	ordered := e.normalizer.OrderByProximity(reference, dir.Keys())
	out := make([]string, 0, len(ordered))
	for _, key := range ordered {
		out = append(out, dir.Display(key))
	}
	return out, nil
}

func canonicalService(candidates []string, service string) string {
	for _, c := range candidates {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(service)) {
			return c
		}
	}
	return service
}
