package pipeline

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/snipd/internal/job"
	"go.uber.org/zap"
)

// Pool runs a fixed set of workers that claim and process jobs until the
// context ends.
type Pool struct {
	jobs      job.Store
	processor *Processor
	workers   int
	logger    *zap.Logger
}

// NewPool creates a worker pool of the given size.
func NewPool(jobs job.Store, processor *Processor, workers int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{jobs: jobs, processor: processor, workers: workers, logger: logger}
}

// Run blocks until ctx is done and all workers have drained their current
// job.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			log := p.logger.With(zap.Int("worker", worker))
			log.Debug("worker started")
			for {
				j, ok := p.jobs.Claim(ctx)
				if !ok {
					log.Debug("worker stopping")
					return
				}
				p.processor.Process(ctx, j)
			}
		}(i)
	}
	wg.Wait()
}
