// runner.go - Parallel ROI Runner (C8), spec.md §4.4. The teacher's
// internal/ratelimit/rate_limiter.go bounds *concurrent Gemini requests* with
// a mutex-guarded token bucket refilled over time; ROI fan-out instead needs
// a fixed concurrency cap for the lifetime of one group, so this adapts the
// same "bound concurrent work" concern with the idiomatic Go primitive for
// that shape: a buffered channel used as a counting semaphore of size W.
package runner

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sort"
	"sync"

	"github.com/visualaoi/inspector/internal/common"
	"github.com/visualaoi/inspector/internal/executor"
	"github.com/visualaoi/inspector/internal/roi"
)

// workerPoolSize returns W = min(roiCount, hardwareParallelism), or the
// configured override when positive.
func workerPoolSize(roiCount, configuredMax int) int {
	limit := runtime.GOMAXPROCS(0)
	if configuredMax > 0 {
		limit = configuredMax
	}
	if roiCount < limit {
		return roiCount
	}
	return limit
}

// Run fans out recs (a single (focus,exposure) group sharing one decoded
// frame) over a bounded worker pool and returns results ordered ascending by
// idx regardless of completion order (P4). A cancelled ctx causes
// outstanding, not-yet-started tasks to report an executor.Result whose Err
// wraps both common.ErrTimeout and ctx.Err() instead of running; already-started tasks are not
// interrupted mid-flight (spec.md §4.4's "failures of one task must not
// cancel others" combined with §5's cooperative-cancellation-at-boundary
// model).
func Run(ctx context.Context, recs []*roi.Record, frame image.Image, deps executor.Deps, sessionOutputDir string, configuredMax int) []executor.Result {
	if len(recs) == 0 {
		return nil
	}

	results := make([]executor.Result, len(recs))
	sem := make(chan struct{}, workerPoolSize(len(recs), configuredMax))
	var wg sync.WaitGroup

	for i, rec := range recs {
		i, rec := i, rec
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = executor.Result{Idx: rec.Idx, DeviceLocation: rec.DeviceLocation, TypeName: rec.Type.String(), Err: fmt.Errorf("%w: %w", common.ErrTimeout, ctx.Err())}
				return
			}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[i] = executor.Result{Idx: rec.Idx, DeviceLocation: rec.DeviceLocation, TypeName: rec.Type.String(), Err: fmt.Errorf("%w: %w", common.ErrTimeout, ctx.Err())}
				return
			}

			results[i] = runTask(rec, frame, deps, sessionOutputDir)
		}()
	}

	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Idx < results[b].Idx })
	return results
}

// runTask calls executor.Execute behind a recover() guard - the single
// per-task goroutine boundary where an adapter panic (gozxing, the Gemini
// SDK, image.Decode, ...) is turned into a ROITaskFailed result instead of
// crashing the whole inspection (spec.md §7's propagation policy).
func runTask(rec *roi.Record, frame image.Image, deps executor.Deps, sessionOutputDir string) (result executor.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = executor.Result{
				Idx:            rec.Idx,
				DeviceLocation: rec.DeviceLocation,
				TypeName:       rec.Type.String(),
				Err:            fmt.Errorf("%w: panic: %v", common.ErrROITaskFailed, r),
			}
		}
	}()
	return executor.Execute(rec, frame, deps, sessionOutputDir)
}
