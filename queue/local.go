package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LocalQueue ist eine In-Process-Queue über einem gepufferten Channel.
type LocalQueue struct {
	jobs    chan Job
	done    chan struct{}
	workers int
	logger  *zap.Logger

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
}

// NewLocalQueue erstellt eine Queue mit workers parallelen Verarbeitern.
func NewLocalQueue(buffer, workers int, logger *zap.Logger) *LocalQueue {
	if workers < 1 {
		workers = 1
	}
	return &LocalQueue{jobs: make(chan Job, buffer), done: make(chan struct{}), workers: workers, logger: logger}
}

// Enqueue blockiert bei vollem Puffer, bis Platz frei wird, ctx endet oder Close aufgerufen wird.
func (q *LocalQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start blockiert, bis ctx beendet ist oder nach Close der Puffer leer ist.
// Bei Abbruch von ctx bleiben gepufferte Jobs liegen; der Sweeper stellt sie später erneut ein.
func (q *LocalQueue) Start(ctx context.Context, h Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job, ok := <-q.jobs:
					if !ok {
						return nil
					}
					if err := h(ctx, job); err != nil {
						q.logger.Warn("Job fehlgeschlagen",
							zap.Int("worker", worker), zap.Uint("analysis_id", job.AnalysisID), zap.Error(err))
					}
				}
			}
		})
	}
	return g.Wait()
}

// Close weist wartende und neue Enqueue-Aufrufe mit ErrClosed ab und schließt danach den Channel.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.senders.Wait()
	close(q.jobs)
	return nil
}
