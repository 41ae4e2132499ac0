package concurrency

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

type Work func(ctx context.Context) (interface{}, error)

// Result carries the Index of the job it belongs to, in AddJob order.
type Result struct {
	Index int
	Value interface{}
	Error error
}

type indexedWork struct {
	index int
	work  Work
}

// WorkPool runs queued jobs on a fixed number of workers, optionally paced
// by a token bucket shared across workers.
type WorkPool struct {
	workChannel   chan indexedWork
	resultChannel chan Result
	wg            sync.WaitGroup
	workerCount   int
	limiter       *rate.Limiter
	works         []Work
}

func NewWorkPool(workerCount int) *WorkPool {
	if workerCount < 1 {
		workerCount = 1
	}

	return &WorkPool{
		workerCount: workerCount,
		works:       []Work{},
	}
}

// WithRateLimit paces job starts to perSecond with the given burst. A
// non-positive perSecond disables pacing.
func (w *WorkPool) WithRateLimit(perSecond float64, burst int) *WorkPool {
	if perSecond <= 0 {
		w.limiter = nil
		return w
	}
	if burst < 1 {
		burst = 1
	}
	w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return w
}

func (w *WorkPool) AddJob(job Work) {
	w.works = append(w.works, job)
}

// Run executes every queued job and returns the results ordered by Index.
// Jobs not started before ctx is cancelled report ctx.Err().
func (w *WorkPool) Run(ctx context.Context) []Result {
	w.workChannel = make(chan indexedWork, len(w.works))
	w.resultChannel = make(chan Result, len(w.works))

	for i := 0; i < w.workerCount; i++ {
		w.wg.Add(1)
		go w.worker(ctx)
	}

	for i, work := range w.works {
		w.workChannel <- indexedWork{index: i, work: work}
	}
	close(w.workChannel)

	r := make([]Result, len(w.works))
	for i := 0; i < len(w.works); i++ {
		result := <-w.resultChannel
		r[result.Index] = result
	}

	w.wg.Wait()
	close(w.resultChannel)
	w.works = nil

	return r
}

func (w *WorkPool) worker(ctx context.Context) {
	defer w.wg.Done()
	for job := range w.workChannel {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				w.resultChannel <- Result{Index: job.index, Error: err}
				continue
			}
		} else if err := ctx.Err(); err != nil {
			w.resultChannel <- Result{Index: job.index, Error: err}
			continue
		}
		v, err := func() (v interface{}, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("paniced with %v", r)
					v = nil
				}
			}()
			return job.work(ctx)
		}()
		w.resultChannel <- Result{
			Index: job.index,
			Value: v,
			Error: err,
		}
	}
}
