package sim

import (
	"context"
	"sync"
)

// RunReplicates runs every configured replicate on a bounded worker pool
// and returns results ordered by replicate. The first failure is returned.
func (r *Runner) RunReplicates(ctx context.Context) ([]RunResult, error) {
	type job struct {
		replicate int
	}
	type result struct {
		idx int
		run RunResult
		err error
	}

	total := r.spec.Replicates
	jobs := make(chan job)
	results := make(chan result, total)

	workerCount := r.spec.Workers
	if workerCount > total {
		workerCount = total
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.replicate, err: err}
					continue
				}
				run, err := r.Run(ctx, j.replicate)
				results <- result{idx: j.replicate, run: run, err: err}
			}
		}()
	}

	for i := 0; i < total; i++ {
		jobs <- job{replicate: i}
	}
	close(jobs)

	wg.Wait()
	close(results)

	runs := make([]RunResult, total)
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		runs[res.idx] = res.run
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return runs, nil
}
