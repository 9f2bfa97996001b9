package engine

import "time"

// Meter rate-limits progress emission and derives speed from the bytes
// moved since the previous emission.
type Meter struct {
	interval  time.Duration
	last      time.Time
	lastBytes int64
	now       func() time.Time
}

func NewMeter(interval time.Duration, startBytes int64) *Meter {
	m := &Meter{interval: interval, now: time.Now}
	m.last = m.now()
	m.lastBytes = startBytes
	return m
}

// Due reports whether an update is owed at total bytes, and if so the speed
// in bytes per second over the elapsed window.
func (m *Meter) Due(total int64) (int64, bool) {
	now := m.now()
	if now.Sub(m.last) < m.interval {
		return 0, false
	}
	return m.advance(now, total), true
}

// Flush forces an update regardless of the interval.
func (m *Meter) Flush(total int64) int64 {
	return m.advance(m.now(), total)
}

func (m *Meter) advance(now time.Time, total int64) int64 {
	elapsed := now.Sub(m.last).Milliseconds()
	var speed int64
	if elapsed > 0 {
		speed = (total - m.lastBytes) * 1000 / elapsed
	}
	m.last = now
	m.lastBytes = total
	return speed
}
