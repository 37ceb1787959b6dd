package inventory

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BucketOf", func() {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	days := func(n int) time.Time {
		return now.AddDate(0, 0, n)
	}

	It("classifies by whole days until expiry", func() {
		Expect(BucketOf(days(-1), now)).To(Equal(BucketExpired))
		Expect(BucketOf(days(0), now)).To(Equal(BucketExpiringSoon))
		Expect(BucketOf(days(3), now)).To(Equal(BucketExpiringSoon))
		Expect(BucketOf(days(4), now)).To(Equal(BucketSafe))
	})

	It("treats a partial day in the past as expired", func() {
		// 12 hours ago floors to -1 days
		Expect(BucketOf(now.Add(-12*time.Hour), now)).To(Equal(BucketExpired))
	})

	It("floors a partial day in the future to the current day", func() {
		// 36 hours out floors to 1 day, still expiring soon
		Expect(BucketOf(now.Add(36*time.Hour), now)).To(Equal(BucketExpiringSoon))
	})

	It("is a pure function of its inputs", func() {
		expiry := days(2)
		first := BucketOf(expiry, now)
		second := BucketOf(expiry, now)
		Expect(first).To(Equal(second))
	})
})

var _ = Describe("DaysUntil", func() {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	It("rounds toward negative infinity", func() {
		Expect(DaysUntil(now.Add(36*time.Hour), now)).To(Equal(1))
		Expect(DaysUntil(now.Add(-12*time.Hour), now)).To(Equal(-1))
		Expect(DaysUntil(now, now)).To(Equal(0))
	})

	It("counts exact day boundaries", func() {
		Expect(DaysUntil(now.AddDate(0, 0, 5), now)).To(Equal(5))
		Expect(DaysUntil(now.AddDate(0, 0, -3), now)).To(Equal(-3))
	})
})

var _ = Describe("ParseBucket", func() {
	It("accepts the bucket values and the all sentinel", func() {
		for _, value := range []string{"expired", "expiring-soon", "safe", "all"} {
			bucket, err := ParseBucket(value)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(bucket)).To(Equal(value))
		}
	})

	It("treats the empty string as no filter", func() {
		bucket, err := ParseBucket("")
		Expect(err).NotTo(HaveOccurred())
		Expect(bucket).To(Equal(BucketAll))
	})

	It("rejects unknown values", func() {
		_, err := ParseBucket("stale")
		Expect(err).To(HaveOccurred())
	})
})
