package util

import (
	"context"
	"sync"
	"time"
)

// ContextJob is a context that outlives its parent by at most a grace period: once the
// parent is cancelled, the job context is cancelled either when Done is called or when
// maxDelay runs out, whichever comes first.
type ContextJob struct {
	jobDone chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// Done reports that the job finished on its own. Safe to call repeatedly.
func (cj *ContextJob) Done() {
	cj.once.Do(func() {
		close(cj.jobDone)
	})
}

func (cj *ContextJob) GetContext() context.Context {
	return cj.ctx
}

// Cancel releases the job context immediately.
func (cj *ContextJob) Cancel() {
	cj.Done()
	cj.cancel()
}

func DelayedCancelContextWithJob(
	parent context.Context,
	maxDelay time.Duration,
) *ContextJob {
	jobDone := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-parent.Done():
		case <-jobDone:
			cancel()
			return
		}
		// Parent is gone: give the job up to maxDelay to wrap up.
		timer := time.NewTimer(maxDelay)
		defer timer.Stop()
		select {
		case <-jobDone:
		case <-timer.C:
		}
		cancel()
	}()

	return &ContextJob{
		ctx:     ctx,
		cancel:  cancel,
		jobDone: jobDone,
	}
}
