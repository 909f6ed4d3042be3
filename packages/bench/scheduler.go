package bench

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Scheduler paces request starts and bounds how many run at once.
type Scheduler struct {
	limiter *rate.Limiter
	sem     chan struct{}
	limit   int64
	issued  atomic.Int64
}

func NewScheduler(config *Config) *Scheduler {
	limit := rate.Inf
	if config.Rate > 0 {
		limit = rate.Limit(config.Rate)
	}
	return &Scheduler{
		limiter: rate.NewLimiter(limit, 1),
		sem:     make(chan struct{}, config.Concurrency),
		limit:   int64(config.Count),
	}
}

// Next blocks until another request may start. It returns false once the
// count is exhausted or ctx is done.
func (s *Scheduler) Next(ctx context.Context) bool {
	if s.limit > 0 && s.issued.Load() >= s.limit {
		return false
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return false
	}
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	s.issued.Add(1)
	return true
}

// Release frees the slot taken by Next.
func (s *Scheduler) Release() {
	<-s.sem
}

func (s *Scheduler) Issued() int64 {
	return s.issued.Load()
}
