package scheduler

import "time"

// offsetSchedule fires at anchor+delay and then every interval. With no
// delay the first firing is one interval after anchor.
type offsetSchedule struct {
	first    time.Time
	interval time.Duration
}

func newOffsetSchedule(anchor time.Time, delay, interval time.Duration) offsetSchedule {
	if delay <= 0 {
		delay = interval
	}
	return offsetSchedule{first: anchor.Add(delay), interval: interval}
}

// Next implements cron.Schedule.
func (o offsetSchedule) Next(t time.Time) time.Time {
	if t.Before(o.first) {
		return o.first
	}
	n := t.Sub(o.first)/o.interval + 1
	return o.first.Add(n * o.interval)
}
