package decay

import (
	"time"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
)

// Policy holds the decay period. A zero period disables rotation.
type Policy struct {
	Period time.Duration
}

// New returns a policy with the given period.
func New(period time.Duration) Policy {
	return Policy{Period: period}
}

// Seconds returns the period in whole seconds.
func (p Policy) Seconds() int64 {
	return int64(p.Period / time.Second)
}

// Enabled reports whether rotation is active.
func (p Policy) Enabled() bool {
	return p.Seconds() > 0
}

// PeriodStart returns the start of the period containing ts.
func (p Policy) PeriodStart(ts int64) int64 {
	return periodStart(ts, p.Seconds())
}

// Due reports whether a write at ts crosses rec's decay boundary.
func (p Policy) Due(rec domain.Sighting, ts int64) bool {
	return due(rec, ts, p.Seconds())
}

// Apply returns the record that results from a write of incr at ts.
//
// prev is nil for a first sighting. suppress skips rotation; internal
// writes such as ACL bindings use it with a zero increment.
func (p Policy) Apply(prev *domain.Sighting, ts int64, incr uint64, suppress bool) domain.Sighting {
	period := p.Seconds()

	if prev == nil {
		return domain.Sighting{
			Count:       incr,
			FirstSeen:   ts,
			LastSeen:    ts,
			LastDecayAt: periodStart(ts, period),
		}
	}

	next := *prev
	if !suppress && due(next, ts, period) {
		next = rotate(next, ts, period)
		next.Count = incr
	} else {
		next.Count = domain.AddCount(next.Count, incr)
	}

	next.LastSeen = ts
	if next.LastSeen < next.FirstSeen {
		next.LastSeen = next.FirstSeen
	}
	return next
}

// Sweep rotates rec if its boundary has passed at ts, leaving the current
// count at zero. It reports whether anything changed.
func (p Policy) Sweep(rec domain.Sighting, ts int64) (domain.Sighting, bool) {
	return SweepWithPeriod(rec, ts, p.Seconds())
}

// SweepWithPeriod is Sweep with an explicit period in seconds. Replay uses
// it so that a logged sweep re-applies with the period it was taken under.
func SweepWithPeriod(rec domain.Sighting, ts, period int64) (domain.Sighting, bool) {
	if !due(rec, ts, period) {
		return rec, false
	}
	next := rotate(rec, ts, period)
	next.Count = 0
	return next, true
}

func rotate(rec domain.Sighting, ts, period int64) domain.Sighting {
	rec.ShadowCount = rec.Count
	rec.LastDecayAt = periodStart(ts, period)
	return rec
}

func due(rec domain.Sighting, ts, period int64) bool {
	if period <= 0 {
		return false
	}
	return ts >= rec.LastDecayAt+period
}

func periodStart(ts, period int64) int64 {
	if period <= 0 {
		return 0
	}
	start := ts - ts%period
	if ts < 0 && ts%period != 0 {
		start -= period
	}
	return start
}
