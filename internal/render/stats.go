package render

import (
	"log/slog"
	"time"

	"github.com/loov/hrtime"
)

// Clock returns a monotonic timestamp. hrtime.Now is the default.
type Clock func() time.Duration

// Stats counts what the loop has done since it started.
type Stats struct {
	Frames      uint64
	Presented   uint64
	Skipped     uint64
	Recreations int
}

// frameTimer tracks elapsed time for animation and logs a frame-rate summary
// every interval.
type frameTimer struct {
	clock    Clock
	interval time.Duration
	log      *slog.Logger

	start        time.Duration
	windowStart  time.Duration
	windowFrames int
}

func newFrameTimer(clock Clock, interval time.Duration, log *slog.Logger) *frameTimer {
	if clock == nil {
		clock = hrtime.Now
	}
	now := clock()
	return &frameTimer{
		clock:       clock,
		interval:    interval,
		log:         log,
		start:       now,
		windowStart: now,
	}
}

// elapsed returns the seconds since the timer was created.
func (t *frameTimer) elapsed() float64 {
	return (t.clock() - t.start).Seconds()
}

func (t *frameTimer) presented(stats Stats) {
	t.windowFrames++
	if t.interval <= 0 {
		return
	}

	now := t.clock()
	window := now - t.windowStart
	if window < t.interval {
		return
	}

	perFrame := window / time.Duration(t.windowFrames)
	t.log.Info("frame statistics",
		"fps", float64(t.windowFrames)/window.Seconds(),
		"frame_time", perFrame,
		"presented", stats.Presented,
		"skipped", stats.Skipped,
		"recreations", stats.Recreations,
	)
	t.windowStart = now
	t.windowFrames = 0
}
