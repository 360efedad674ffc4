package ingest

import (
	"sync/atomic"
	"time"
)

// receiptClock hands out receipt timestamps in call order. A stamp never
// precedes an earlier one, even if the wall clock steps back.
type receiptClock struct {
	now func() time.Time

	// last is the latest stamp in Unix milliseconds.
	last atomic.Int64
}

func newReceiptClock(now func() time.Time) *receiptClock {
	return &receiptClock{now: now}
}

// stamp returns max(now, previous stamp) at the millisecond precision the
// store keeps.
func (c *receiptClock) stamp() time.Time {
	t := c.now().UnixMilli()
	for {
		prev := c.last.Load()
		if t < prev {
			t = prev
		}
		if c.last.CompareAndSwap(prev, t) {
			return time.UnixMilli(t).UTC()
		}
	}
}
