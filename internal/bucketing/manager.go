package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"otp-agent/internal/config"
)

// BucketingManager spreads history rows over a fixed number of buckets so
// one busy day does not land on a single partition.
type BucketingManager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

type BucketAssignment struct {
	EventBucket int    `json:"event_bucket"`
	DateBucket  string `json:"date_bucket"`
}

func NewBucketingManager(cfg config.BucketingConfig) *BucketingManager {
	buckets := cfg.EventBuckets
	if buckets <= 0 {
		buckets = 64
	}
	bm := &BucketingManager{eventBuckets: buckets}
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// EventBucket returns a stable bucket in [0, EventBuckets) for identifier.
func (bm *BucketingManager) EventBucket(identifier string) int {
	return int(bm.hash(identifier) % uint64(bm.eventBuckets))
}

// DateBucket is the UTC day of t.
func (bm *BucketingManager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) Assign(identifier string, at time.Time) BucketAssignment {
	return BucketAssignment{
		EventBucket: bm.EventBucket(identifier),
		DateBucket:  bm.DateBucket(at),
	}
}

func (bm *BucketingManager) EventBuckets() int {
	return bm.eventBuckets
}

func (bm *BucketingManager) hash(key string) uint64 {
	h := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}
