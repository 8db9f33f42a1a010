package helpers

import (
	"sync/atomic"
	"time"

	"github.com/aerolink/mavbridge/helpers/atomic_clock"
)

// Limited exponential backoff for retry delays.
// DelayAfter(false) or Failure() increases next delay by K.
// Delay is never below Min, so a retry loop cannot spin.
type Backoff struct {
	next int64 // atomic align
	last atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms
}

// Use scenario:
// for {
//   err := op()
//   time.Sleep(backoff.DelayAfter(err==nil))
// }
func (b *Backoff) DelayAfter(success bool) time.Duration {
	atomic.CompareAndSwapInt64(&b.next, 0, int64(b.Min))
	if success {
		b.Reset()
	} else {
		b.Failure()
	}
	return b.limit(time.Duration(atomic.LoadInt64(&b.next)))
}

// Increase next delay
func (b *Backoff) Failure() {
	atomic.CompareAndSwapInt64(&b.next, 0, int64(b.Min))
	next := time.Duration(atomic.LoadInt64(&b.next))
	// first failure after Reset waits Min
	if !b.last.IsZero() {
		next = time.Duration(float32(next) * b.K)
	}
	next = b.limit(next)
	b.last.SetNow()
	atomic.StoreInt64(&b.next, int64(next))
}

func (b *Backoff) Reset() {
	b.last.Set(0)
	atomic.StoreInt64(&b.next, int64(b.Min))
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if d > b.Max {
		d = b.Max
	}
	if r := b.round(d); r > 0 {
		return r
	}
	return d
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
