package main

import (
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// summary describes one load phase.
type summary struct {
	elapsed  time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

func (s summary) rate() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.ops) / s.elapsed.Seconds()
}

func (s summary) String() string {
	return fmt.Sprintf("ops=%d failed=%d in %s (%.0f/s) p50=%s p95=%s p99=%s",
		s.ops, s.failures, s.elapsed.Round(time.Millisecond), s.rate(),
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
}

// runPhase runs op ops times across concurrency workers. Each worker gets its own
// rand source and keeps its own latency samples; they are merged at the end.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) summary {
	jobs := make(chan struct{}, concurrency)
	go func() {
		for range ops {
			jobs <- struct{}{}
		}
		close(jobs)
	}()

	var failures atomic.Int64
	perWorker := make([][]time.Duration, concurrency)
	var wg sync.WaitGroup
	start := time.Now()
	for w := range concurrency {
		wg.Go(func() {
			r := rand.New(rand.NewSource(seed*int64(w+1) + time.Now().UnixNano()))
			for range jobs {
				began := time.Now()
				if err := op(r); err != nil {
					failures.Add(1)
				}
				perWorker[w] = append(perWorker[w], time.Since(began))
			}
		})
	}
	wg.Wait()

	return summarize(time.Since(start), slices.Concat(perWorker...), failures.Load())
}

func summarize(elapsed time.Duration, samples []time.Duration, failures int64) summary {
	slices.Sort(samples)
	return summary{
		elapsed:  elapsed,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
	}
}

// percentile reads the p-th percentile from sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	p = min(max(p, 0), 100)
	return sorted[(len(sorted)-1)*p/100]
}
