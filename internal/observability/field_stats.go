package observability

import (
	"sort"
	"sync"
	"time"
)

// FieldStats tracks which dataset fields analysts actually filter and
// aggregate on across slide edits. The counts feed the ops surface and
// show which columns carry the reporting workload.
type FieldStats struct {
	mu         sync.RWMutex
	filterFreq map[string]*FieldUsage
	metricFreq map[string]*FieldUsage
	window     time.Duration
}

// FieldUsage holds usage counts for one dataset field.
type FieldUsage struct {
	Field     string         `json:"field"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Operators map[string]int `json:"operators,omitempty"`
}

// NewFieldStats creates a field usage tracker. Entries older than
// window are dropped on Prune.
func NewFieldStats(window time.Duration) *FieldStats {
	return &FieldStats{
		filterFreq: make(map[string]*FieldUsage),
		metricFreq: make(map[string]*FieldUsage),
		window:     window,
	}
}

// RecordFilter records one filter predicate against a field.
// This method is O(1) and thread-safe.
func (f *FieldStats) RecordFilter(field, operator string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	usage, exists := f.filterFreq[field]
	if !exists {
		usage = &FieldUsage{
			Field:     field,
			Operators: make(map[string]int),
		}
		f.filterFreq[field] = usage
	}

	usage.Frequency++
	usage.LastSeen = time.Now()
	usage.Operators[operator]++
}

// RecordMetric records one metric column appearing in a slide row.
// This method is O(1) and thread-safe.
func (f *FieldStats) RecordMetric(field string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	usage, exists := f.metricFreq[field]
	if !exists {
		usage = &FieldUsage{Field: field}
		f.metricFreq[field] = usage
	}

	usage.Frequency++
	usage.LastSeen = time.Now()
}

// TopFilters returns the top N filtered fields by frequency.
func (f *FieldStats) TopFilters(n int) []FieldUsage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return topUsage(f.filterFreq, n)
}

// TopMetrics returns the top N metric fields by frequency.
func (f *FieldStats) TopMetrics(n int) []FieldUsage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return topUsage(f.metricFreq, n)
}

func topUsage(freq map[string]*FieldUsage, n int) []FieldUsage {
	if n <= 0 || len(freq) == 0 {
		return []FieldUsage{}
	}

	out := make([]FieldUsage, 0, len(freq))
	for _, u := range freq {
		cp := FieldUsage{
			Field:     u.Field,
			Frequency: u.Frequency,
			LastSeen:  u.LastSeen,
		}
		if len(u.Operators) > 0 {
			cp.Operators = make(map[string]int, len(u.Operators))
			for op, count := range u.Operators {
				cp.Operators[op] = count
			}
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Field < out[j].Field
	})

	if n > len(out) {
		n = len(out)
	}
	return out[:n]
}

// Prune removes entries not seen within the window. Call periodically.
func (f *FieldStats) Prune() {
	f.mu.Lock()
	defer f.mu.Unlock()

	threshold := time.Now().Add(-f.window)
	for field, usage := range f.filterFreq {
		if usage.LastSeen.Before(threshold) {
			delete(f.filterFreq, field)
		}
	}
	for field, usage := range f.metricFreq {
		if usage.LastSeen.Before(threshold) {
			delete(f.metricFreq, field)
		}
	}
}
