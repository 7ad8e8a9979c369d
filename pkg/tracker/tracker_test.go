package tracker

import (
	"sync"
	"testing"
)

func TestTrackerConcurrent(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.TrackAPISuccess("commons")
				tr.TrackCacheHit("wikidata")
				tr.TrackQuestionGenerated()
			}
		}()
	}
	wg.Wait()

	snap := tr.GetSnapshot()
	if snap.Providers["commons"].APISuccess != 1000 {
		t.Errorf("expected 1000 successes, got %d", snap.Providers["commons"].APISuccess)
	}
	if snap.Providers["wikidata"].CacheHits != 1000 {
		t.Errorf("expected 1000 cache hits, got %d", snap.Providers["wikidata"].CacheHits)
	}
	if snap.QuestionsGenerated != 1000 {
		t.Errorf("expected 1000 questions, got %d", snap.QuestionsGenerated)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := New()
	tr.TrackAPIFailure("commons")

	snap := tr.GetSnapshot()
	tr.TrackAPIFailure("commons")

	if snap.Providers["commons"].APIFailures != 1 {
		t.Errorf("snapshot should be a copy, got %d", snap.Providers["commons"].APIFailures)
	}
}
