package tracker

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCapacity bounds each sample store when no capacity is configured.
const DefaultCapacity = 100

// Sample is a single observed price point. Immutable once created.
type Sample struct {
	Time  time.Time
	Price decimal.Decimal
}

// sampleStore keeps a bounded arrival-ordered window of samples for one
// (symbol, channel) pair. Appending beyond capacity evicts the oldest entry.
type sampleStore struct {
	samples []Sample
	head    int
	size    int
}

func newSampleStore(capacity int) *sampleStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &sampleStore{samples: make([]Sample, capacity)}
}

func (s *sampleStore) append(sample Sample) {
	if s.size < len(s.samples) {
		s.samples[(s.head+s.size)%len(s.samples)] = sample
		s.size++
		return
	}
	s.samples[s.head] = sample
	s.head = (s.head + 1) % len(s.samples)
}

// latest returns the most recently appended sample.
func (s *sampleStore) latest() (Sample, bool) {
	if s.size == 0 {
		return Sample{}, false
	}
	return s.samples[(s.head+s.size-1)%len(s.samples)], true
}

// baseline scans from the oldest retained sample forward and returns the
// first one recorded at least window before now. If the buffer does not yet
// span the window the result is empty and callers must skip evaluation.
func (s *sampleStore) baseline(now time.Time, window time.Duration) (Sample, bool) {
	cutoff := now.Add(-window)
	for i := 0; i < s.size; i++ {
		sample := s.samples[(s.head+i)%len(s.samples)]
		if !sample.Time.After(cutoff) {
			return sample, true
		}
	}
	return Sample{}, false
}

func (s *sampleStore) len() int {
	return s.size
}

// snapshot copies the retained samples in arrival order.
func (s *sampleStore) snapshot() []Sample {
	out := make([]Sample, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.samples[(s.head+i)%len(s.samples)]
	}
	return out
}
