package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one periodic re-read of the shared store.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Poller runs its tasks on independent tickers until the context is done.
// A failed run is logged and not retried; the next tick tries again.
type Poller struct {
	tasks  []Task
	logger *slog.Logger
}

func New(logger *slog.Logger, tasks ...Task) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{tasks: tasks, logger: logger}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, task := range p.tasks {
		if task.Interval <= 0 || task.Run == nil {
			continue
		}
		g.Go(func() error {
			return p.loop(gCtx, task)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start runs the poller in the background. The returned stop function cancels
// every task and waits until none is running.
func (p *Poller) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() {
		_ = p.Run(ctx)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func (p *Poller) loop(ctx context.Context, task Task) error {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := task.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Warn("poll task failed", "task", task.Name, "error", err)
			}
		}
	}
}
