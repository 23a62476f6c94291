package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otp-agent/internal/bucketing"
	"otp-agent/internal/model"
)

// Fanout is a purchase observer that writes every finished session to all
// recorders. Writes run in the background; Close waits for them.
type Fanout struct {
	recorders []Recorder
	buckets   *bucketing.BucketingManager
	logger    *zap.Logger
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewFanout(buckets *bucketing.BucketingManager, logger *zap.Logger, recorders ...Recorder) *Fanout {
	return &Fanout{
		recorders: recorders,
		buckets:   buckets,
		logger:    logger,
		timeout:   10 * time.Second,
	}
}

func (f *Fanout) OnSessionEvent(ev model.SessionEvent) {
	if len(f.recorders) == 0 {
		return
	}
	rec, ok := NewRecord(ev.Session, f.buckets)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.logger.Warn("history closed, dropping finished session", zap.String("session_id", rec.SessionID))
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if err := f.Record(ctx, rec); err != nil {
			f.logger.Warn("failed to record purchase history",
				zap.String("session_id", rec.SessionID),
				zap.Error(err),
			)
		}
	}()
}

// Record writes rec to every recorder concurrently. One failing recorder
// does not stop the others; the first error is returned.
func (f *Fanout) Record(ctx context.Context, rec Record) error {
	var g errgroup.Group
	for _, r := range f.recorders {
		r := r
		g.Go(func() error {
			if err := r.Record(ctx, rec); err != nil {
				f.logger.Warn("history recorder failed",
					zap.String("recorder", r.Name()),
					zap.String("request_id", rec.RequestID),
					zap.Error(err),
				)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Close stops accepting sessions and waits for background writes or until
// ctx ends.
func (f *Fanout) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
