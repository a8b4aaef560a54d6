package integrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run integrates every category of in and aggregates the result. Shared
// preparation happens once, then categories are regridded on at most
// p.Workers goroutines. The first failure cancels the remaining work.
func Run(ctx context.Context, in Inputs, p Params) (*ReportGrid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pl, err := prepare(in, p)
	if err != nil {
		return nil, err
	}

	cats := pl.categories()
	grids := make([]*CategoryGrid, len(cats))
	workers := p.Workers
	if workers <= 0 || workers > len(cats) {
		workers = len(cats)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range cats {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			cg, err := pl.regrid(id)
			if err != nil {
				return err
			}
			grids[i] = cg
			p.Metrics.ObserveCategory(id, time.Since(start))
			pl.logf("category %d regridded in %s", id, time.Since(start).Round(time.Millisecond))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("regrid categories: %w", err)
	}

	rg, err := Aggregate(grids)
	if err != nil {
		return nil, err
	}
	p.Metrics.SetOutputBins(rg.Cells())
	return rg, nil
}
