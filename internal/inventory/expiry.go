package inventory

import (
	"fmt"
	"math"
	"time"
)

// Bucket classifies an item by how close its expiry date is
type Bucket string

const (
	// BucketExpired means the expiry date has passed
	BucketExpired Bucket = "expired"
	// BucketExpiringSoon means the item expires within three days
	BucketExpiringSoon Bucket = "expiring-soon"
	// BucketSafe means the item expires more than three days out
	BucketSafe Bucket = "safe"

	// BucketAll is a filter sentinel matching every bucket. It is never
	// assigned to an item.
	BucketAll Bucket = "all"
)

// expiringSoonDays is the upper bound, in whole days, of the
// expiring-soon window.
const expiringSoonDays = 3

// ParseBucket validates a bucket filter value. The empty string means
// no bucket filter.
func ParseBucket(s string) (Bucket, error) {
	switch Bucket(s) {
	case BucketExpired, BucketExpiringSoon, BucketSafe, BucketAll:
		return Bucket(s), nil
	case "":
		return BucketAll, nil
	default:
		return "", fmt.Errorf("invalid bucket %q (valid: expired, expiring-soon, safe, all)", s)
	}
}

// DaysUntil returns the whole number of days from now until expiry,
// rounding toward negative infinity. An expiry 36 hours out is 1 day;
// an expiry 12 hours ago is -1 days.
func DaysUntil(expiry, now time.Time) int {
	diff := expiry.Sub(now).Hours() / 24
	return int(math.Floor(diff))
}

// BucketOf classifies an expiry date relative to now:
// negative days expired, zero through three expiring soon, beyond
// three safe.
func BucketOf(expiry, now time.Time) Bucket {
	days := DaysUntil(expiry, now)
	switch {
	case days < 0:
		return BucketExpired
	case days <= expiringSoonDays:
		return BucketExpiringSoon
	default:
		return BucketSafe
	}
}
