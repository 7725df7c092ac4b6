package attendance

import "time"

// DefaultPresentThreshold is how late a scan may be and still count as Presente.
const DefaultPresentThreshold = 20 * time.Minute

// Classify maps a scan instant to an attendance state. Elapsed time is
// compared at full precision, so start+20m is Presente and start+20m1s is
// Tardanza. Scans before the start are Presente.
func Classify(markedAt, startedAt time.Time, closedAt *time.Time, threshold time.Duration) State {
	if threshold <= 0 {
		threshold = DefaultPresentThreshold
	}
	if markedAt.Sub(startedAt) <= threshold {
		return Presente
	}
	if closedAt == nil || !markedAt.After(*closedAt) {
		return Tardanza
	}
	return Ausente
}

// LateMinutes is the whole minutes between start and mark, never negative.
func LateMinutes(markedAt, startedAt time.Time) int {
	m := int(markedAt.Sub(startedAt) / time.Minute)
	if m < 0 {
		return 0
	}
	return m
}
