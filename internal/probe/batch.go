package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/urlchecker/internal/domain"
)

// Checker checks a single URL. *URLChecker implements it.
type Checker interface {
	Check(ctx context.Context, target string) domain.CheckResult
}

// BatchRunner checks a list of URLs concurrently. Admission control
// (batch size) is the caller's job; there is no internal cap.
type BatchRunner struct {
	Checker Checker
	Logger  *zap.Logger
}

func NewBatchRunner(logger *zap.Logger, checker Checker) *BatchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{Checker: checker, Logger: logger}
}

// CheckAll returns one result per input, in input order, after every check
// has finished. The error is non-nil only when a check crashed; the
// crashed slot still holds a result carrying InternalError.
func (b *BatchRunner) CheckAll(ctx context.Context, urls []string) ([]domain.CheckResult, error) {
	start := time.Now()
	results := make([]domain.CheckResult, len(urls))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		faults error
	)
	for i, raw := range urls {
		wg.Add(1)
		go func(i int, raw string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = domain.CheckResult{URL: raw, Error: InternalError}
					mu.Lock()
					faults = multierr.Append(faults, fmt.Errorf("check %q: panic: %v", raw, r))
					mu.Unlock()
				}
			}()
			results[i] = b.Checker.Check(ctx, raw)
		}(i, raw)
	}
	wg.Wait()

	b.Logger.Info("batch_done",
		zap.Int("count", len(urls)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("faults", len(multierr.Errors(faults))),
	)
	return results, faults
}
