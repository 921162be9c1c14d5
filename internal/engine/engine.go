package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CraigglesO/mercator-to-s2/internal/log"
	"github.com/CraigglesO/mercator-to-s2/internal/store"
	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

// Stats summarizes one pipeline run.
type Stats struct {
	Built   int64
	Skipped int64
	Failed  int64
	Total   int64
	Elapsed time.Duration
}

// Progress is the completion feed handed to observers: one value per
// finished tile, whether built or skipped.
type Progress struct {
	Completed int64
	Total     int64
}

// event is what a worker reports back per descriptor.
type event struct {
	worker int
	desc   tile.Descriptor
	built  bool
	err    error
}

// Engine drives the worker pool over a tile queue.
type Engine struct {
	cfg        Config
	src        store.SourceStore
	out        store.OutputStore
	mirror     store.OutputStore
	onProgress func(Progress)
}

// Option tweaks an Engine at construction time.
type Option func(*Engine)

// WithMirror adds a secondary sink every built tile is also written to.
func WithMirror(m store.OutputStore) Option {
	return func(e *Engine) { e.mirror = m }
}

// WithProgress installs the completion observer.
func WithProgress(fn func(Progress)) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// New assembles an engine around a source store and an output store.
func New(cfg Config, src store.SourceStore, out store.OutputStore, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, src: src, out: out}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drains the queue through the worker pool and blocks until every
// handed-out tile has been finished. Workers pull lazily: whichever is
// idle takes the next descriptor, so an uneven tile cost balances itself.
// Cancelling the context stops the feed; in-flight tiles still complete,
// there is no mid-tile preemption.
func (e *Engine) Run(ctx context.Context, q *Queue) (Stats, error) {
	if err := e.cfg.Validate(); err != nil {
		return Stats{}, err
	}
	workers := e.cfg.Workers
	if n := runtime.NumCPU(); workers > n {
		workers = n
	}

	start := time.Now()
	stats := Stats{Total: q.Total()}

	jobs := make(chan tile.Descriptor)
	events := make(chan event)
	stop := make(chan struct{})
	var stopOnce sync.Once
	halt := func() { stopOnce.Do(func() { close(stop) }) }

	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.work(id, jobs, events)
		}(id)
	}

	// Feed the queue until it is drained, the run is halted or the
	// context is cancelled.
	go func() {
		defer close(jobs)
		for {
			d, ok := q.Next()
			if !ok {
				return
			}
			select {
			case jobs <- d:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		// With no workers left the feeder would block forever.
		halt()
		close(events)
	}()

	var firstErr error
	for ev := range events {
		if ev.err != nil {
			stats.Failed++
			if firstErr == nil {
				firstErr = ev.err
			}
			log.Error("worker died",
				zap.Int("worker", ev.worker),
				zap.Stringer("tile", ev.desc),
				zap.Error(ev.err))
			if e.cfg.FailFast {
				halt()
			}
			continue
		}

		if ev.built {
			stats.Built++
		} else {
			stats.Skipped++
		}
		log.Debug("tile finished",
			zap.Stringer("tile", ev.desc),
			zap.Bool("built", ev.built))
		if e.onProgress != nil {
			e.onProgress(Progress{Completed: stats.Built + stats.Skipped, Total: stats.Total})
		}
	}

	stats.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if e.cfg.FailFast && firstErr != nil {
		return stats, firstErr
	}
	if firstErr != nil && stats.Failed >= int64(workers) {
		remaining := stats.Total - stats.Built - stats.Skipped - stats.Failed
		return stats, fmt.Errorf("all %d workers failed, %d tiles unprocessed: %w", workers, remaining, firstErr)
	}
	return stats, nil
}

// work is one execution unit: it sets up its private reprojector once,
// then pulls descriptors until the feed closes. Any failure is terminal
// for the unit; the tile it died on is never re-issued.
func (e *Engine) work(id int, jobs <-chan tile.Descriptor, events chan<- event) {
	r := NewReprojector(e.cfg, e.src, e.out)
	for d := range jobs {
		built, err := e.buildOne(r, d)
		if err != nil {
			events <- event{worker: id, desc: d, err: err}
			return
		}
		events <- event{worker: id, desc: d, built: built}
	}
}

// buildOne reprojects and persists a single tile, converting panics out
// of the pixel pipeline into ordinary unit-fatal errors.
func (e *Engine) buildOne(r *Reprojector, d tile.Descriptor) (built bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic building %s: %v", d, rec)
		}
	}()

	raster, meta, err := r.Reproject(d)
	if err != nil || raster == nil {
		return false, err
	}
	if err = e.out.WriteTile(d, raster, meta); err != nil {
		return false, fmt.Errorf("writing %s: %w", d, err)
	}
	if e.mirror != nil {
		if err = e.mirror.WriteTile(d, raster, meta); err != nil {
			return false, fmt.Errorf("mirroring %s: %w", d, err)
		}
	}
	return true, nil
}
