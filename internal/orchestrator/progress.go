package orchestrator

import (
	"sync"
	"time"
)

// progressSampleWindow is the sliding window over which Tracker
// computes instantaneous speed (§4.6 Progress tracker).
const progressSampleWindow = 3 * time.Second

// minSampleInterval coalesces samples taken closer together than
// this, so a burst of small chunks doesn't flood the sample slice.
const minSampleInterval = 100 * time.Millisecond

type progressSample struct {
	at    time.Time
	bytes uint64
}

// Tracker accumulates bytes transferred for one session and reports
// speed and ETA from a sliding window of recent samples, rather than
// an all-time average, so the reported speed reacts to recent
// conditions (a stall, a relay hop) within a few seconds.
type Tracker struct {
	mu          sync.Mutex
	bytesTotal  uint64
	transferred uint64
	startedAt   time.Time
	samples     []progressSample
}

// NewTracker creates a tracker for a transfer of bytesTotal bytes.
func NewTracker(bytesTotal uint64) *Tracker {
	now := time.Now()
	return &Tracker{
		bytesTotal: bytesTotal,
		startedAt:  now,
		samples:    []progressSample{{at: now, bytes: 0}},
	}
}

// Add records n more bytes transferred.
func (t *Tracker) Add(n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transferred += n

	now := time.Now()
	if len(t.samples) > 0 && now.Sub(t.samples[len(t.samples)-1].at) < minSampleInterval {
		t.samples[len(t.samples)-1] = progressSample{at: now, bytes: t.transferred}
		return
	}
	t.samples = append(t.samples, progressSample{at: now, bytes: t.transferred})
	t.trimLocked(now)
}

// trimLocked drops samples older than progressSampleWindow, always
// keeping at least one so speed computation has a baseline.
func (t *Tracker) trimLocked(now time.Time) {
	cutoff := now.Add(-progressSampleWindow)
	i := 0
	for i < len(t.samples)-1 && t.samples[i].at.Before(cutoff) {
		i++
	}
	t.samples = t.samples[i:]
}

// Snapshot reports the current progress, speed, and ETA.
func (t *Tracker) Snapshot() (transferred, total uint64, speedBps, etaSeconds, percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	transferred = t.transferred
	total = t.bytesTotal

	if total > 0 {
		percent = float64(transferred) / float64(total) * 100
	}

	if len(t.samples) >= 2 {
		first := t.samples[0]
		last := t.samples[len(t.samples)-1]
		dt := last.at.Sub(first.at).Seconds()
		if dt > 0 {
			speedBps = float64(last.bytes-first.bytes) / dt
		}
	}

	etaSeconds = 0
	if speedBps > 0 && total > transferred {
		etaSeconds = float64(total-transferred) / speedBps
	}
	return transferred, total, speedBps, etaSeconds, percent
}
