package engine

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// StartSweeper launches the periodic fault-detector sweep on a gocron
// schedule. It returns a shutdown function that stops the scheduler and
// waits for any in-flight sweep to finish, or gives up once waitCtx is
// done.
func (e *Engine) StartSweeper(ctx context.Context) func(context.Context) {
	scheduler := gocron.NewScheduler(time.UTC)
	var wg sync.WaitGroup

	seconds := uint64(e.cfg.SweepInterval.Seconds())
	if seconds == 0 {
		seconds = 1
	}
	scheduler.Every(seconds).Seconds().Do(func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		wg.Add(1)
		defer wg.Done()
		e.Sweep()
	})
	scheduler.StartAsync()

	return func(waitCtx context.Context) {
		scheduler.Stop()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-waitCtx.Done():
		}
	}
}
