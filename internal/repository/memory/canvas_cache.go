package memory

import (
	"time"

	"ai-tutor-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

const (
	snapshotKeyPrefix = "canvas:"
	analysisKeyPrefix = "analysis:"
)

// CanvasCache holds the most recent canvas snapshot and its cached vision
// analysis per student, expiring after the configured TTL.
type CanvasCache struct {
	cache *cache.Cache
}

func NewCanvasCache(ttl time.Duration) *CanvasCache {
	c := cache.New(ttl, 10*time.Minute)
	return &CanvasCache{
		cache: c,
	}
}

// SaveSnapshot stores the latest canvas for a student. Any cached analysis
// is dropped because it was computed from an older image.
func (r *CanvasCache) SaveSnapshot(snapshot *store.CanvasSnapshot) {
	r.cache.Set(snapshotKeyPrefix+snapshot.StudentId, snapshot, cache.DefaultExpiration)
	r.cache.Delete(analysisKeyPrefix + snapshot.StudentId)
}

// SaveSnapshotFor stores a snapshot with an explicit lifetime. Used when
// rehydrating an older durable record so the cache entry expires when the
// upload leaves the TTL window, not a full TTL later.
func (r *CanvasCache) SaveSnapshotFor(snapshot *store.CanvasSnapshot, lifetime time.Duration) {
	if lifetime <= 0 {
		return
	}
	r.cache.Set(snapshotKeyPrefix+snapshot.StudentId, snapshot, lifetime)
	r.cache.Delete(analysisKeyPrefix + snapshot.StudentId)
}

func (r *CanvasCache) GetSnapshot(studentId string) (*store.CanvasSnapshot, bool) {
	if x, found := r.cache.Get(snapshotKeyPrefix + studentId); found {
		return x.(*store.CanvasSnapshot), true
	}
	return nil, false
}

func (r *CanvasCache) SaveAnalysis(studentId string, analysis *store.CanvasAnalysis) {
	r.cache.Set(analysisKeyPrefix+studentId, analysis, cache.DefaultExpiration)
}

// GetAnalysis returns the cached analysis if it still matches the student's
// current image path. A stale entry is removed and reported as a miss.
func (r *CanvasCache) GetAnalysis(studentId string, currentImagePath string) (*store.CanvasAnalysis, bool) {
	x, found := r.cache.Get(analysisKeyPrefix + studentId)
	if !found {
		return nil, false
	}
	analysis := x.(*store.CanvasAnalysis)
	if analysis.ImagePath != currentImagePath {
		r.cache.Delete(analysisKeyPrefix + studentId)
		return nil, false
	}
	return analysis, true
}
