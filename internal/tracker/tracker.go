package tracker

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Channel names for the two price sources tracked per symbol.
const (
	ChannelPerp = "perp"
	ChannelSpot = "spot"
)

var (
	// ErrInsufficientData marks a metric that cannot be computed yet: missing
	// samples, a window the buffer does not span, or a stale channel.
	ErrInsufficientData = errors.New("tracker: insufficient data")
	// ErrDataQuality marks upstream data unusable for a metric, e.g. a zero
	// baseline price. Callers log it and skip; it never aborts a pass.
	ErrDataQuality = errors.New("tracker: data quality")
)

var dec100 = decimal.NewFromInt(100)

// Options parameterise a PriceTracker.
type Options struct {
	// Capacity bounds each per-(symbol, channel) store.
	Capacity int
	// Staleness is the maximum tolerated age of a channel's latest sample
	// when computing a cross-channel spread.
	Staleness time.Duration
}

// channelStore pairs one bounded buffer with its own mutex. Ingestion into
// distinct (symbol, channel) pairs never contends on a shared lock.
type channelStore struct {
	mu    sync.Mutex
	store *sampleStore
}

// PriceTracker owns one bounded sample store per (symbol, channel) pair and
// computes windowed change and cross-channel spread metrics over them.
type PriceTracker struct {
	opts Options

	mu      sync.RWMutex
	symbols map[string]map[string]*channelStore
}

// New constructs a PriceTracker.
func New(opts Options) *PriceTracker {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &PriceTracker{
		opts:    opts,
		symbols: make(map[string]map[string]*channelStore),
	}
}

func (t *PriceTracker) channel(symbol, channel string) *channelStore {
	t.mu.RLock()
	if chans, ok := t.symbols[symbol]; ok {
		if cs, ok := chans[channel]; ok {
			t.mu.RUnlock()
			return cs
		}
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	chans, ok := t.symbols[symbol]
	if !ok {
		chans = make(map[string]*channelStore, 2)
		t.symbols[symbol] = chans
	}
	cs, ok := chans[channel]
	if !ok {
		cs = &channelStore{store: newSampleStore(t.opts.Capacity)}
		chans[channel] = cs
	}
	return cs
}

// Ingest records one sample, creating the (symbol, channel) store on first
// reference. Always succeeds.
func (t *PriceTracker) Ingest(symbol, channel string, sample Sample) {
	cs := t.channel(symbol, channel)
	cs.mu.Lock()
	cs.store.append(sample)
	cs.mu.Unlock()
}

// IngestBatch records one poll cycle's prices, all stamped at the same
// receipt time.
func (t *PriceTracker) IngestBatch(channel string, prices map[string]decimal.Decimal, at time.Time) {
	for symbol, price := range prices {
		t.Ingest(symbol, channel, Sample{Time: at, Price: price})
	}
}

// Latest returns the most recent sample for a (symbol, channel) pair.
func (t *PriceTracker) Latest(symbol, channel string) (Sample, error) {
	cs := t.lookup(symbol, channel)
	if cs == nil {
		return Sample{}, ErrInsufficientData
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	latest, ok := cs.store.latest()
	if !ok {
		return Sample{}, ErrInsufficientData
	}
	return latest, nil
}

func (t *PriceTracker) lookup(symbol, channel string) *channelStore {
	t.mu.RLock()
	defer t.mu.RUnlock()
	chans, ok := t.symbols[symbol]
	if !ok {
		return nil
	}
	return chans[channel]
}

// Symbols lists every tracked symbol in deterministic order.
func (t *PriceTracker) Symbols() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.symbols))
	for symbol := range t.symbols {
		out = append(out, symbol)
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len reports how many samples a (symbol, channel) store currently holds.
func (t *PriceTracker) Len(symbol, channel string) int {
	cs := t.lookup(symbol, channel)
	if cs == nil {
		return 0
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.store.len()
}

// PercentChange computes the change of the latest price against the
// window baseline, as a signed percentage.
func (t *PriceTracker) PercentChange(symbol, channel string, window time.Duration) (decimal.Decimal, error) {
	cs := t.lookup(symbol, channel)
	if cs == nil {
		return decimal.Decimal{}, ErrInsufficientData
	}
	cs.mu.Lock()
	samples := cs.store.snapshot()
	cs.mu.Unlock()
	return percentChange(samples, time.Now().UTC(), window)
}

// SpreadQuote carries the two latest channel prices and their relative
// spread. Positive Pct means the reference channel trades at a premium.
type SpreadQuote struct {
	Reference  Sample
	Derivative Sample
	Pct        decimal.Decimal
}

// Spread computes the relative spread between the reference and derivative
// channels' latest prices. Either side older than the staleness bound makes
// the spread unusable rather than misleading.
func (t *PriceTracker) Spread(symbol, refChannel, derivChannel string) (SpreadQuote, error) {
	ref, err := t.Latest(symbol, refChannel)
	if err != nil {
		return SpreadQuote{}, err
	}
	deriv, err := t.Latest(symbol, derivChannel)
	if err != nil {
		return SpreadQuote{}, err
	}
	return spreadOf(ref, deriv, time.Now().UTC(), t.opts.Staleness)
}

// Snapshot copies every store so one evaluation pass observes a consistent
// view, never one channel mid-ingestion relative to the other.
func (t *PriceTracker) Snapshot() *Snapshot {
	t.mu.RLock()
	refs := make(map[string]map[string]*channelStore, len(t.symbols))
	for symbol, chans := range t.symbols {
		inner := make(map[string]*channelStore, len(chans))
		for channel, cs := range chans {
			inner[channel] = cs
		}
		refs[symbol] = inner
	}
	t.mu.RUnlock()

	snap := &Snapshot{
		At:        time.Now().UTC(),
		staleness: t.opts.Staleness,
		data:      make(map[string]map[string][]Sample, len(refs)),
	}
	for symbol, chans := range refs {
		inner := make(map[string][]Sample, len(chans))
		for channel, cs := range chans {
			cs.mu.Lock()
			inner[channel] = cs.store.snapshot()
			cs.mu.Unlock()
		}
		snap.data[symbol] = inner
	}
	return snap
}

// Snapshot is a read-only copy of tracker state taken at a single instant.
// All metrics are computed relative to At.
type Snapshot struct {
	At        time.Time
	staleness time.Duration
	data      map[string]map[string][]Sample
}

// Symbols lists the snapshotted symbols in deterministic order.
func (s *Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.data))
	for symbol := range s.data {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Latest returns the most recent snapshotted sample for a pair.
func (s *Snapshot) Latest(symbol, channel string) (Sample, error) {
	samples := s.data[symbol][channel]
	if len(samples) == 0 {
		return Sample{}, ErrInsufficientData
	}
	return samples[len(samples)-1], nil
}

// PercentChange mirrors PriceTracker.PercentChange against the snapshot.
func (s *Snapshot) PercentChange(symbol, channel string, window time.Duration) (decimal.Decimal, error) {
	samples := s.data[symbol][channel]
	return percentChange(samples, s.At, window)
}

// Spread mirrors PriceTracker.Spread against the snapshot.
func (s *Snapshot) Spread(symbol, refChannel, derivChannel string) (SpreadQuote, error) {
	ref, err := s.Latest(symbol, refChannel)
	if err != nil {
		return SpreadQuote{}, err
	}
	deriv, err := s.Latest(symbol, derivChannel)
	if err != nil {
		return SpreadQuote{}, err
	}
	return spreadOf(ref, deriv, s.At, s.staleness)
}

func percentChange(samples []Sample, now time.Time, window time.Duration) (decimal.Decimal, error) {
	if len(samples) == 0 {
		return decimal.Decimal{}, ErrInsufficientData
	}
	latest := samples[len(samples)-1]

	cutoff := now.Add(-window)
	var baseline Sample
	found := false
	for _, sample := range samples {
		if !sample.Time.After(cutoff) {
			baseline = sample
			found = true
			break
		}
	}
	if !found {
		return decimal.Decimal{}, ErrInsufficientData
	}
	if baseline.Price.Sign() <= 0 {
		return decimal.Decimal{}, ErrDataQuality
	}

	change := latest.Price.Sub(baseline.Price).Div(baseline.Price).Mul(dec100)
	return change, nil
}

func spreadOf(ref, deriv Sample, now time.Time, staleness time.Duration) (SpreadQuote, error) {
	if staleness > 0 {
		if now.Sub(ref.Time) > staleness || now.Sub(deriv.Time) > staleness {
			return SpreadQuote{}, ErrInsufficientData
		}
	}
	if deriv.Price.Sign() <= 0 {
		return SpreadQuote{}, ErrDataQuality
	}

	pct := ref.Price.Sub(deriv.Price).Div(deriv.Price).Mul(dec100)
	return SpreadQuote{Reference: ref, Derivative: deriv, Pct: pct}, nil
}
