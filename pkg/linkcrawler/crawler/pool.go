package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPoolWidth is the number of devices crawled concurrently.
const DefaultPoolWidth = 10

// ─────────────────────────────────────────────────────────────────────────────
// Pool: bounded fan-out with a hard join
// ─────────────────────────────────────────────────────────────────────────────

// Pool fans jobs out to a fixed number of worker goroutines.
type Pool struct {
	width   int
	crawler Crawler
	logger  *slog.Logger
}

// NewPool creates a pool of width goroutines running c.
func NewPool(width int, c Crawler, logger *slog.Logger) *Pool {
	if width <= 0 {
		width = DefaultPoolWidth
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Pool{width: width, crawler: c, logger: logger}
}

// Run crawls every job and returns when all of them have finished. Results
// are in job order. Jobs not started before ctx is cancelled are reported
// with ctx's error.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	queue := make(chan int, len(jobs))
	for i := range jobs {
		queue <- i
	}
	close(queue)

	width := p.width
	if width > len(jobs) {
		width = len(jobs)
	}

	var wg sync.WaitGroup
	for n := 0; n < width; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				job := jobs[i]
				if err := ctx.Err(); err != nil {
					results[i] = Result{
						Device: job.Device,
						Cycle:  job.Cycle,
						Err:    &DeviceError{Device: job.Device.Name, Stage: StageDeadline, Err: err},
					}
					continue
				}
				results[i] = p.crawl(ctx, job)
			}
		}()
	}
	wg.Wait()

	p.logger.Debug("crawler: pool joined", "jobs", len(jobs), "width", width)
	return results
}

// crawl isolates the pool from a Crawler that panics.
func (p *Pool) crawl(ctx context.Context, job Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("crawler: worker panic", "device", job.Device.Name, "panic", fmt.Sprint(r))
			res = Result{
				Device:   job.Device,
				Cycle:    job.Cycle,
				Finished: time.Now(),
				Err:      &DeviceError{Device: job.Device.Name, Stage: StagePanic, Err: fmt.Errorf("%v", r)},
			}
		}
	}()
	return p.crawler.Crawl(ctx, job)
}
