package events

import (
	"context"
	"sync"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/pkg/logger"
	"golang.org/x/sync/errgroup"
)

type HandlerFunc func(ctx context.Context, ev UploadEvent) error

// Dispatcher fans upload events out to a fixed number of workers. Each event
// is handled by exactly one worker.
type Dispatcher struct {
	handle  HandlerFunc
	queue   chan UploadEvent
	workers int

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(handle HandlerFunc, cfg config.WorkerConfig) *Dispatcher {
	workers := cfg.Count
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		handle:  handle,
		queue:   make(chan UploadEvent, cfg.QueueBufferSize),
		workers: workers,
	}
}

// Enqueue never blocks. It reports false when the queue is full or closed.
func (d *Dispatcher) Enqueue(ev UploadEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- ev:
		return true
	default:
		logger.Warn("upload_queue_full", map[string]interface{}{
			"drive_id":  ev.DriveID.String(),
			"file_path": ev.FilePath,
			"dropped":   true,
		})
		return false
	}
}

// Close stops accepting events. Workers drain what is queued and exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
}

// Run blocks until ctx is done or the dispatcher is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-d.queue:
					if !ok {
						return nil
					}
					d.process(gctx, worker, ev)
				}
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) process(ctx context.Context, worker int, ev UploadEvent) {
	if err := d.handle(ctx, ev); err != nil {
		logger.ErrorWithUser(ev.Author.String(), "upload_event_failed", err, map[string]interface{}{
			"worker":    worker,
			"drive_id":  ev.DriveID.String(),
			"file_path": ev.FilePath,
		})
	}
}
