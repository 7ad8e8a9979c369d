package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks usage statistics per provider.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats

	// Engine-level counters
	questionsGenerated int64
	filesSkipped       int64
	editsApplied       int64
	resolutionsBailed  int64
}

// ProviderStats holds metrics for a specific provider.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits   int64
	CacheMisses int64
	APISuccess  int64
	APIFailures int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*ProviderStats),
	}
}

// getStats returns the stats object for a provider, creating it if needed.
func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheMisses, 1)
}

func (t *Tracker) TrackAPISuccess(provider string) {
	atomic.AddInt64(&t.getStats(provider).APISuccess, 1)
}

func (t *Tracker) TrackAPIFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIFailures, 1)
}

// TrackQuestionGenerated counts an emitted review question.
func (t *Tracker) TrackQuestionGenerated() {
	atomic.AddInt64(&t.questionsGenerated, 1)
}

// TrackFileSkipped counts a traversed file that produced no question.
func (t *Tracker) TrackFileSkipped() {
	atomic.AddInt64(&t.filesSkipped, 1)
}

// TrackEditApplied counts a recorded external edit.
func (t *Tracker) TrackEditApplied() {
	atomic.AddInt64(&t.editsApplied, 1)
}

// TrackResolutionBailed counts a resolution aborted before any write.
func (t *Tracker) TrackResolutionBailed() {
	atomic.AddInt64(&t.resolutionsBailed, 1)
}

// Snapshot holds a copy of all counters.
type Snapshot struct {
	Providers          map[string]ProviderStats
	QuestionsGenerated int64
	FilesSkipped       int64
	EditsApplied       int64
	ResolutionsBailed  int64
}

// GetSnapshot returns a copy of the current stats.
func (t *Tracker) GetSnapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	providers := make(map[string]ProviderStats)
	for k, v := range t.stats {
		providers[k] = ProviderStats{
			CacheHits:   atomic.LoadInt64(&v.CacheHits),
			CacheMisses: atomic.LoadInt64(&v.CacheMisses),
			APISuccess:  atomic.LoadInt64(&v.APISuccess),
			APIFailures: atomic.LoadInt64(&v.APIFailures),
		}
	}

	return Snapshot{
		Providers:          providers,
		QuestionsGenerated: atomic.LoadInt64(&t.questionsGenerated),
		FilesSkipped:       atomic.LoadInt64(&t.filesSkipped),
		EditsApplied:       atomic.LoadInt64(&t.editsApplied),
		ResolutionsBailed:  atomic.LoadInt64(&t.resolutionsBailed),
	}
}
