package inventory

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Filter", func() {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	var items []*FoodItem

	names := func(filtered []*FoodItem) []string {
		result := make([]string, 0, len(filtered))
		for _, item := range filtered {
			result = append(result, item.Name)
		}
		return result
	}

	BeforeEach(func() {
		items = []*FoodItem{
			{ID: "1", Name: "Milk", Category: "dairy", ExpiryDate: now.AddDate(0, 0, 5)},
			{ID: "2", Name: "Bread", Category: "bakery", ExpiryDate: now.AddDate(0, 0, 2)},
			{ID: "3", Name: "Yogurt", Category: "dairy", ExpiryDate: now.AddDate(0, 0, -1)},
		}
	})

	It("returns everything for the zero criteria", func() {
		Expect(names(Filter(items, Criteria{}, now))).To(Equal([]string{"Milk", "Bread", "Yogurt"}))
	})

	It("treats explicit all values the same as unset", func() {
		filtered := Filter(items, Criteria{Category: "all", Bucket: BucketAll}, now)
		Expect(names(filtered)).To(Equal([]string{"Milk", "Bread", "Yogurt"}))
	})

	It("matches the search text against names case-insensitively", func() {
		Expect(names(Filter(items, Criteria{Search: "mIlK"}, now))).To(Equal([]string{"Milk"}))
	})

	It("matches the search text against categories", func() {
		Expect(names(Filter(items, Criteria{Search: "dairy"}, now))).To(Equal([]string{"Milk", "Yogurt"}))
	})

	It("narrows by exact category", func() {
		Expect(names(Filter(items, Criteria{Category: "dairy"}, now))).To(Equal([]string{"Milk", "Yogurt"}))
	})

	It("narrows by expiry bucket", func() {
		Expect(names(Filter(items, Criteria{Bucket: BucketExpired}, now))).To(Equal([]string{"Yogurt"}))
		Expect(names(Filter(items, Criteria{Bucket: BucketExpiringSoon}, now))).To(Equal([]string{"Bread"}))
		Expect(names(Filter(items, Criteria{Bucket: BucketSafe}, now))).To(Equal([]string{"Milk"}))
	})

	It("applies the stages conjunctively", func() {
		criteria := Criteria{Search: "y", Category: "dairy", Bucket: BucketExpired}
		Expect(names(Filter(items, criteria, now))).To(Equal([]string{"Yogurt"}))
	})

	It("preserves the input order", func() {
		filtered := Filter(items, Criteria{Category: "dairy"}, now)
		Expect(filtered[0].Name).To(Equal("Milk"))
		Expect(filtered[1].Name).To(Equal("Yogurt"))
	})

	It("is idempotent", func() {
		criteria := Criteria{Search: "r", Bucket: BucketExpiringSoon}
		once := Filter(items, criteria, now)
		twice := Filter(once, criteria, now)
		Expect(twice).To(Equal(once))
	})

	It("does not mutate the input", func() {
		Filter(items, Criteria{Category: "dairy"}, now)
		Expect(items).To(HaveLen(3))
		Expect(items[1].Name).To(Equal("Bread"))
	})

	It("returns an empty slice when nothing matches", func() {
		Expect(Filter(items, Criteria{Search: "pineapple"}, now)).To(BeEmpty())
	})
})
