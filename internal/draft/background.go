package draft

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Background runs tasks whose lifetime is independent of whoever started
// them, such as the final sync of a closed session. Wait lets the process
// drain them before exit.
type Background struct {
	logger  *slog.Logger
	wg      sync.WaitGroup
	running atomic.Int64
}

// NewBackground creates an empty runner.
func NewBackground(logger *slog.Logger) *Background {
	return &Background{logger: logger}
}

// Go starts fn on a context derived from context.Background. The returned
// cancel func cancels that context; what fn does with it is up to fn.
func (b *Background) Go(name string, fn func(ctx context.Context)) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())

	b.wg.Add(1)
	b.running.Add(1)

	go func() {
		defer b.wg.Done()
		defer b.running.Add(-1)
		defer cancel()

		b.logger.Debug("background task started", slog.String("task", name))
		fn(ctx)
		b.logger.Debug("background task finished", slog.String("task", name))
	}()

	return cancel
}

// Wait blocks until every started task has returned or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running returns the number of tasks that have not returned yet.
func (b *Background) Running() int {
	return int(b.running.Load())
}
