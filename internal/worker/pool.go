// Package worker runs analysis jobs in the background with bounded concurrency.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/patent-analysis-service/internal/analysis"
	"github.com/toricodesthings/patent-analysis-service/internal/extract"
	"github.com/toricodesthings/patent-analysis-service/internal/task"
)

type Analyzer interface {
	Analyze(ctx context.Context, path, mimeType string) (analysis.Result, error)
}

type Job struct {
	TaskID  string
	Scratch extract.ScratchFile
}

type Pool struct {
	registry *task.Registry
	analyzer Analyzer
	sem      *semaphore.Weighted

	wg      sync.WaitGroup
	running atomic.Int64
}

// New returns a pool running at most maxConcurrent analyses at once. A
// non-positive limit means unbounded.
func New(registry *task.Registry, analyzer Analyzer, maxConcurrent int64) *Pool {
	p := &Pool{registry: registry, analyzer: analyzer}
	if maxConcurrent > 0 {
		p.sem = semaphore.NewWeighted(maxConcurrent)
	}
	return p
}

// Submit starts job in its own goroutine and returns immediately. The task
// stays pending until a slot is free.
func (p *Pool) Submit(job Job) {
	p.wg.Add(1)
	go p.run(job)
}

// Running reports how many analyses are executing right now.
func (p *Pool) Running() int64 { return p.running.Load() }

// Wait blocks until every submitted job has finished or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(job Job) {
	defer p.wg.Done()
	defer job.Scratch.Cleanup()

	// Started jobs are never cancelled.
	ctx := context.Background()
	logger := log.With().Str("task_id", job.TaskID).Logger()

	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			logger.Error().Err(err).Msg("acquire analysis slot")
			return
		}
		defer p.sem.Release(1)
	}
	p.running.Add(1)
	defer p.running.Add(-1)

	if err := p.registry.Start(job.TaskID); err != nil {
		logger.Error().Err(err).Msg("start task")
		return
	}

	res, err := p.analyze(ctx, job)
	if err != nil {
		logger.Warn().Err(err).Msg("analysis failed")
		if ferr := p.registry.Fail(job.TaskID, err); ferr != nil {
			logger.Error().Err(ferr).Msg("mark task failed")
		}
		return
	}

	if err := p.registry.Progress(job.TaskID, task.ProgressReport, task.MsgReporting); err != nil {
		logger.Error().Err(err).Msg("report progress")
	}
	if err := p.registry.Complete(job.TaskID, res); err != nil {
		logger.Error().Err(err).Msg("complete task")
		return
	}
	logger.Info().
		Int("formulas", len(res.ChemicalFormulas)).
		Int("structures", len(res.SMILESStructures)).
		Msg("analysis complete")
}

func (p *Pool) analyze(ctx context.Context, job Job) (res analysis.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during analysis: %v", r)
		}
	}()
	return p.analyzer.Analyze(ctx, job.Scratch.Path, job.Scratch.MIMEType)
}
