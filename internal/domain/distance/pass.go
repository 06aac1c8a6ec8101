package distance

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/metrics"
)

// Pass memoizes resolutions for the lifetime of one computation, such as a
// calendar classification, so repeated pairs skip the store entirely.
type Pass struct {
	r    *Resolver
	mu   sync.Mutex
	memo map[string]passEntry
}

type passEntry struct {
	res Result
	err error
}

// Pass starts a new memoized pass.
func (r *Resolver) Pass() *Pass {
	return &Pass{r: r, memo: make(map[string]passEntry)}
}

// Resolve behaves like Resolver.Resolve with per-pass reuse.
func (p *Pass) Resolve(ctx context.Context, from, to model.Location) (Result, error) {
	key := locationKey(from) + "->" + locationKey(to)

	p.mu.Lock()
	if e, ok := p.memo[key]; ok {
		p.mu.Unlock()
		metrics.RecordDistanceMemoReuse()
		return e.res, e.err
	}
	p.mu.Unlock()

	res, err := p.r.Resolve(ctx, from, to)

	p.mu.Lock()
	p.memo[key] = passEntry{res: res, err: err}
	p.mu.Unlock()
	return res, err
}

// Len is the number of distinct pairs resolved in this pass.
func (p *Pass) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.memo)
}

func locationKey(l model.Location) string {
	coords := "-"
	if pt, ok := l.Point(); ok {
		coords = fmt.Sprintf("%.6f,%.6f", pt.Lat, pt.Lng)
	}
	return model.NormalizePostalCode(l.PostalCode) + "|" + model.NormalizeName(l.Neighborhood) + "|" + coords
}
