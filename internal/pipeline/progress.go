package pipeline

import (
	"sync"
	"time"
)

// progressTracker is the synchronized install counter. Workers report each
// completed package; the ETA is the rolling average duration multiplied by
// the remaining count.
type progressTracker struct {
	mu        sync.Mutex
	total     int
	completed int
	durations []time.Duration
	callback  func(completed, total int, eta time.Duration)
}

// rollingWindow bounds how many recent durations feed the average.
const rollingWindow = 16

func newProgressTracker(total int, callback func(int, int, time.Duration)) *progressTracker {
	return &progressTracker{total: total, callback: callback}
}

func (pt *progressTracker) observe(d time.Duration) {
	pt.mu.Lock()
	pt.completed++
	pt.durations = append(pt.durations, d)
	if len(pt.durations) > rollingWindow {
		pt.durations = pt.durations[1:]
	}

	var sum time.Duration
	for _, dur := range pt.durations {
		sum += dur
	}
	avg := sum / time.Duration(len(pt.durations))
	remaining := pt.total - pt.completed
	eta := avg * time.Duration(remaining)

	completed, total, cb := pt.completed, pt.total, pt.callback
	pt.mu.Unlock()

	if cb != nil {
		cb(completed, total, eta)
	}
}
