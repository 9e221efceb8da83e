// Package engine coordinates the per-provider pipeline: it sequences
// reading, aggregation, matching, attribution, and the warehouse write,
// and owns cancellation and failure propagation.
package engine

// Stage is one phase of a provider run. Transitions only move forward;
// a restart is a fresh run.
type Stage int

const (
	StageIdle Stage = iota
	StageReading
	StageAggregating
	StageMatching
	StageAttributing
	StageWriting
	StageCommitted
	StageFailed
)

// String returns the stage name
func (s Stage) String() string {
	names := []string{
		"idle", "reading", "aggregating", "matching",
		"attributing", "writing", "committed", "failed",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// stageTracker enforces forward-only stage transitions
type stageTracker struct {
	current Stage
}

// advance moves to the next stage; moving backward panics, which would
// indicate a sequencing bug rather than a runtime condition.
func (t *stageTracker) advance(next Stage) Stage {
	if next < t.current && t.current != StageFailed {
		panic("stage machine moved backward: " + t.current.String() + " -> " + next.String())
	}
	t.current = next
	return next
}
