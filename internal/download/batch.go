package download

import (
	"context"
	"sync"

	"packfetch/internal/manifest"
	"packfetch/internal/utils"
)

// Outcome records the result of one task in a batch.
type Outcome struct {
	Task manifest.DownloadTask
	Err  error
}

// Batch fetches every task with at most limit fetches in flight. All tasks
// are attempted regardless of sibling failures; the gate slot is released
// unconditionally so a failing task never starves the rest. The returned
// error is the first failure in task order, after every task has finished,
// so a rerun still benefits from whatever did land on disk.
func (f *Fetcher) Batch(ctx context.Context, tasks []manifest.DownloadTask, limit int) ([]Outcome, error) {
	if limit < 1 {
		limit = 1
	}

	outcomes := make([]Outcome, len(tasks))
	gate := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task manifest.DownloadTask) {
			defer wg.Done()
			gate <- struct{}{}
			defer func() { <-gate }()
			outcomes[i] = Outcome{Task: task, Err: f.Fetch(ctx, task)}
		}(i, task)
	}
	wg.Wait()

	var firstErr error
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = outcome.Err
			}
		}
	}
	if failed > 0 {
		utils.Debug("Batch finished: %d/%d tasks failed", failed, len(tasks))
	}
	return outcomes, firstErr
}
