package storage

import (
	"sync"
	"time"
)

// StatsTracker accumulates per-operation counts and a moving-average
// latency, shared by filestore and memstore (spec §4.1's "statistics"
// requirement).
type StatsTracker struct {
	mu   sync.Mutex
	data map[string]*OperationStats
}

// NewStatsTracker builds an empty tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{data: make(map[string]*OperationStats)}
}

// Record folds one operation's outcome and latency into op's running
// stats using an exponential moving average (alpha = 0.2).
func (s *StatsTracker) Record(op string, start time.Time, err error) {
	elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
	const alpha = 0.2

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[op]
	if !ok {
		st = &OperationStats{}
		s.data[op] = st
	}
	st.Count++
	if err != nil {
		st.ErrorCount++
	}
	if st.Count == 1 {
		st.AvgLatencyMS = elapsedMS
	} else {
		st.AvgLatencyMS = alpha*elapsedMS + (1-alpha)*st.AvgLatencyMS
	}
}

// Snapshot returns a copy of the current per-operation stats.
func (s *StatsTracker) Snapshot() map[string]OperationStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OperationStats, len(s.data))
	for k, v := range s.data {
		out[k] = *v
	}
	return out
}
