// Package bulk runs many independent merges from a plan file.
package bulk

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Operation configures how a list of items is worked through.
type Operation struct {
	// Jobs is the number of workers. 0 means one per CPU.
	Jobs            int
	ContinueOnError bool
	// Progress receives one line per finished item. Nil is silent.
	Progress io.Writer
	Logger   *zap.Logger
}

// Result summarizes an Execute call.
type Result struct {
	TotalItems int         `json:"total"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Errors     []ItemError `json:"errors,omitempty"`
}

// ItemError is the failure of one item.
type ItemError struct {
	Item  string `json:"item"`
	Error error  `json:"-"`
}

// ItemFunc processes one item.
type ItemFunc func(ctx context.Context, item string) error

func (op *Operation) logger() *zap.Logger {
	if op.Logger == nil {
		return zap.NewNop()
	}
	return op.Logger
}

// Execute runs fn for every item. Without ContinueOnError the first
// failure stops the remaining items, which are counted as skipped.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	if len(items) == 0 {
		return &Result{}
	}

	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs == 1 {
		return op.executeSequential(ctx, items, fn)
	}
	return op.executeParallel(ctx, items, fn, min(jobs, len(items)))
}

func (op *Operation) executeSequential(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{TotalItems: len(items)}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			result.Skipped = len(items) - i
			break
		}

		err := fn(ctx, item)
		op.report(i+1, len(items), item, err)
		if err == nil {
			result.Succeeded++
			continue
		}

		result.Failed++
		result.Errors = append(result.Errors, ItemError{Item: item, Error: err})
		if !op.ContinueOnError {
			result.Skipped = len(items) - i - 1
			break
		}
	}
	return result
}

func (op *Operation) executeParallel(ctx context.Context, items []string, fn ItemFunc, workers int) *Result {
	result := &Result{TotalItems: len(items)}

	workQueue := make(chan string, len(items))
	for _, item := range items {
		workQueue <- item
	}
	close(workQueue)

	var (
		completed  int32
		succeeded  int32
		failed     int32
		errorsMux  sync.Mutex
		stopSignal int32
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for item := range workQueue {
				if atomic.LoadInt32(&stopSignal) == 1 || ctx.Err() != nil {
					return
				}

				err := fn(ctx, item)
				n := atomic.AddInt32(&completed, 1)

				errorsMux.Lock()
				op.report(int(n), len(items), item, err)
				if err != nil {
					result.Errors = append(result.Errors, ItemError{Item: item, Error: err})
				}
				errorsMux.Unlock()

				if err != nil {
					atomic.AddInt32(&failed, 1)
					if !op.ContinueOnError {
						atomic.StoreInt32(&stopSignal, 1)
					}
					continue
				}
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}

	wg.Wait()

	result.Succeeded = int(succeeded)
	result.Failed = int(failed)
	result.Skipped = len(items) - result.Succeeded - result.Failed
	return result
}

func (op *Operation) report(n, total int, item string, err error) {
	log := op.logger().With(zap.String("item", item))
	if err != nil {
		log.Warn("bulk item failed", zap.Error(err))
	} else {
		log.Debug("bulk item done")
	}

	if op.Progress == nil {
		return
	}
	if err != nil {
		fmt.Fprintf(op.Progress, "[%d/%d] ✗ %s: %v\n", n, total, item, err)
		return
	}
	fmt.Fprintf(op.Progress, "[%d/%d] ✓ %s\n", n, total, item)
}

// Err folds the item errors into one error, or nil when nothing failed.
func (r *Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	if r.Failed == 1 && len(r.Errors) == 1 {
		return fmt.Errorf("%s: %w", r.Errors[0].Item, r.Errors[0].Error)
	}
	return fmt.Errorf("%d of %d operations failed", r.Failed, r.TotalItems)
}

// PrintSummary prints a human-readable summary of the result.
func (r *Result) PrintSummary(w io.Writer) {
	switch {
	case r.Failed == 0 && r.Skipped == 0:
		fmt.Fprintf(w, "\n✓ All %d operations succeeded\n", r.TotalItems)
	case r.Succeeded == 0 && r.Failed > 0:
		fmt.Fprintf(w, "\n✗ No operation succeeded: %d failed, %d skipped (out of %d)\n",
			r.Failed, r.Skipped, r.TotalItems)
	default:
		fmt.Fprintf(w, "\n⚠ Partial success: %d succeeded, %d failed, %d skipped (out of %d)\n",
			r.Succeeded, r.Failed, r.Skipped, r.TotalItems)
	}

	errs := r.Errors
	if len(errs) > 10 {
		fmt.Fprintf(w, "\nShowing first 10 errors (of %d):\n", len(errs))
		errs = errs[:10]
	} else if len(errs) > 0 {
		fmt.Fprintf(w, "\nErrors:\n")
	}
	for _, e := range errs {
		fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
	}
}

func (r *Result) String() string {
	var b strings.Builder
	r.PrintSummary(&b)
	return strings.TrimSpace(b.String())
}
