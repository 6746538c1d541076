package pipeline

import (
	"sync"

	"github.com/edgewatch/edgewatch/internal/classifier"
)

// Stats accumulates run counters across shard workers. A completed run
// always logs these, so excluded work is visible rather than silently
// shrinking the dataset.
type Stats struct {
	mu sync.Mutex

	Pairs           int
	Flagged         int
	NotFlagged      int
	Excluded        map[classifier.ExcludeReason]int
	HotspotsSkipped int
}

// NewStats returns an empty counter set.
func NewStats() *Stats {
	return &Stats{Excluded: make(map[classifier.ExcludeReason]int)}
}

// Record counts one pair evaluation.
func (s *Stats) Record(ev classifier.Evaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Pairs++
	switch ev.Outcome {
	case classifier.OutcomeFlagged:
		s.Flagged++
	case classifier.OutcomeNotFlagged:
		s.NotFlagged++
	case classifier.OutcomeExcluded:
		s.Excluded[ev.Reason]++
	}
}

// SkipHotspot counts a hotspot abandoned wholesale (store failure, no
// metadata).
func (s *Stats) SkipHotspot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HotspotsSkipped++
}

// Fields renders the counters as alternating key/value pairs for structured
// logging.
func (s *Stats) Fields() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := []interface{}{
		"pairs", s.Pairs,
		"flagged", s.Flagged,
		"not_flagged", s.NotFlagged,
		"hotspots_skipped", s.HotspotsSkipped,
	}
	for reason, n := range s.Excluded {
		fields = append(fields, "excluded_"+reason.String(), n)
	}
	return fields
}
