package signalfence

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/store"
)

// DefaultTaskTimeout bounds a single background task of the GoScheduler.
const DefaultTaskTimeout = 10 * time.Second

// GoScheduler runs background work on goroutines and tracks them so a server can wait
// for outstanding writes before exiting.
type GoScheduler struct {
	wg      sync.WaitGroup
	timeout time.Duration
	log     logrus.FieldLogger
}

// Ensure GoScheduler implements store.Scheduler
var _ store.Scheduler = (*GoScheduler)(nil)

// NewGoScheduler creates a scheduler whose tasks run under timeout (DefaultTaskTimeout if <= 0).
func NewGoScheduler(log logrus.FieldLogger, timeout time.Duration) *GoScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &GoScheduler{timeout: timeout, log: log}
}

// Schedule runs work in the background. A panic in work is logged and swallowed.
func (s *GoScheduler) Schedule(work func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("panic", r).Error("background task failed")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		work(ctx)
	}()
}

// Wait blocks until every scheduled task has finished or ctx is done.
func (s *GoScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SchedulerFunc adapts a host-supplied callback, such as a platform's "wait until" hook,
// to store.Scheduler.
type SchedulerFunc func(work func(ctx context.Context))

// Schedule calls f(work).
func (f SchedulerFunc) Schedule(work func(ctx context.Context)) { f(work) }

// InlineScheduler runs work on the caller's goroutine before returning. Useful in tests
// and one-shot tools where nothing outlives the call.
type InlineScheduler struct{}

// Schedule runs work immediately.
func (InlineScheduler) Schedule(work func(ctx context.Context)) { work(context.Background()) }
