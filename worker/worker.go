// Package worker provides the bounded worker pool used for channel expansion
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// TaskFunc processes a single work item
type TaskFunc func(ctx context.Context, item string) error

// Stats summarizes a Run
type Stats struct {
	Processed int
	Success   int
	Error     int
	Skipped   int // items never dispatched because the context was cancelled
	Duration  time.Duration
}

// Pool runs tasks with at most Concurrency in flight. A failing or panicking
// task is counted and logged without affecting its siblings.
type Pool struct {
	ID          string
	Concurrency int
}

// NewPool creates a pool. Concurrency below 1 is raised to 1.
func NewPool(id string, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{ID: id, Concurrency: concurrency}
}

// Run dispatches fn over items and blocks until every started task returns.
// Once ctx is cancelled no further items are dispatched.
func (p *Pool) Run(ctx context.Context, items []string, fn TaskFunc) Stats {
	start := time.Now()
	log.Debug().
		Str("worker_id", p.ID).
		Int("items", len(items)).
		Int("concurrency", p.Concurrency).
		Msg("Starting worker pool")

	var processed, success, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(p.Concurrency)

	dispatched := 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := p.runTask(ctx, item, fn)
			processed.Add(1)
			if err != nil {
				failed.Add(1)
				log.Warn().
					Err(err).
					Str("worker_id", p.ID).
					Str("item", item).
					Msg("Task failed")
				return nil
			}
			success.Add(1)
			return nil
		})
	}

	// tasks never return errors to the group
	_ = g.Wait()

	stats := Stats{
		Processed: int(processed.Load()),
		Success:   int(success.Load()),
		Error:     int(failed.Load()),
		Skipped:   len(items) - int(processed.Load()),
		Duration:  time.Since(start),
	}

	log.Info().
		Str("worker_id", p.ID).
		Int("dispatched", dispatched).
		Int("processed", stats.Processed).
		Int("success", stats.Success).
		Int("errors", stats.Error).
		Int("skipped", stats.Skipped).
		Dur("duration", stats.Duration).
		Msg("Worker pool finished")

	return stats
}

func (p *Pool) runTask(ctx context.Context, item string, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, item)
}
