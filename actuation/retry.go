package actuation

import (
	"time"

	"github.com/cenkalti/backoff"
)

// retryState wraps a fixed backoff.ConstantBackOff the way comm.RemoteDevice
// schedules its reconnect attempts, generalized from "reopen a socket" to
// "re-enter the running state after a fault" (spec §4.3.1 retry_interval_ms).
type retryState struct {
	b *backoff.ConstantBackOff
}

func newRetryState(intervalMS int64) *retryState {
	return &retryState{b: backoff.NewConstantBackOff(time.Duration(intervalMS) * time.Millisecond)}
}

// next returns the retry delay in milliseconds to add to the current
// monotonic clock to compute next_retry_deadline.
func (r *retryState) next() int64 {
	return r.b.NextBackOff().Milliseconds()
}
