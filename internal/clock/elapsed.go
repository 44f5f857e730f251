package clock

import (
	"fmt"
	"sync"
	"time"
)

// Elapsed is the pause-aware time worked on a job: wall-clock time since
// startedAt minus the accumulated paused duration, never negative. A job
// without a start timestamp has worked zero time.
func Elapsed(startedAt *time.Time, totalPausedMS int64, now time.Time) time.Duration {
	if startedAt == nil {
		return 0
	}
	elapsed := now.Sub(*startedAt) - time.Duration(totalPausedMS)*time.Millisecond
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Format renders a duration as zero-padded HH:MM:SS.
func Format(d time.Duration) string {
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Monitor recomputes the elapsed value on a fixed interval while a job is
// running or paused and hands each tick to a callback. The interval only
// runs while a start timestamp is present and is always stopped on teardown.
type Monitor struct {
	mu            sync.Mutex
	startedAt     *time.Time
	totalPausedMS int64
	interval      time.Duration
	onTick        func(elapsed time.Duration, display string)
	stop          chan struct{}
	now           func() time.Time
}

func NewMonitor(interval time.Duration, onTick func(elapsed time.Duration, display string)) *Monitor {
	return &Monitor{
		interval: interval,
		onTick:   onTick,
		now:      time.Now,
	}
}

// SetBaseline updates the timestamps the elapsed value derives from. Called
// after every confirmed transition so a resumed job never double-counts its
// paused interval.
func (m *Monitor) SetBaseline(startedAt *time.Time, totalPausedMS int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startedAt = startedAt
	m.totalPausedMS = totalPausedMS
}

// Current returns the elapsed value and its HH:MM:SS rendering right now.
func (m *Monitor) Current() (time.Duration, string) {
	m.mu.Lock()
	startedAt := m.startedAt
	pausedMS := m.totalPausedMS
	m.mu.Unlock()

	elapsed := Elapsed(startedAt, pausedMS, m.now())
	return elapsed, Format(elapsed)
}

// Start begins ticking. A monitor without a baseline still ticks zero values
// once a baseline arrives; starting twice is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})

	go m.run(m.stop)
}

func (m *Monitor) run(stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			startedAt := m.startedAt
			pausedMS := m.totalPausedMS
			m.mu.Unlock()

			if startedAt == nil {
				continue
			}

			elapsed := Elapsed(startedAt, pausedMS, m.now())
			if m.onTick != nil {
				m.onTick(elapsed, Format(elapsed))
			}

		case <-stop:
			return
		}
	}
}

// Stop cancels the interval. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == nil {
		return
	}
	close(m.stop)
	m.stop = nil
}
