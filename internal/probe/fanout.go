package probe

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// fanOut runs probes concurrently and waits for all of them. A panicking
// probe is logged and counted; its slot keeps whatever zero value it had.
type fanOut struct {
	wg      sync.WaitGroup
	ctx     context.Context
	logger  *zap.Logger
	metrics Recorder
}

func (f *fanOut) Go(probe string, fn func()) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("probe_panic", zap.String("probe", probe), zap.Any("panic", r))
				f.metrics.RecordProbeFailure(f.ctx, probe)
			}
		}()
		fn()
	}()
}

func (f *fanOut) Wait() { f.wg.Wait() }
