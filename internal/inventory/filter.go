package inventory

import (
	"strings"
	"time"
)

// Criteria narrows an item listing. Zero values (and "all") leave their
// dimension unfiltered, so the zero Criteria returns the full list.
type Criteria struct {
	// Search matches case-insensitively against name or category
	Search string
	// Category matches exactly; "" or "all" disables the stage
	Category string
	// Bucket matches the expiry classification; "" or BucketAll disables
	// the stage
	Bucket Bucket
}

// Filter applies the three narrowing stages in order: text search, then
// category, then expiry bucket. The result preserves the input order
// and is a new slice; the input is never mutated. Classification is
// computed against the supplied now, so the same inputs always produce
// the same output.
func Filter(items []*FoodItem, criteria Criteria, now time.Time) []*FoodItem {
	result := make([]*FoodItem, 0, len(items))

	search := strings.ToLower(strings.TrimSpace(criteria.Search))
	category := strings.ToLower(strings.TrimSpace(criteria.Category))
	bucket := criteria.Bucket

	for _, item := range items {
		if search != "" {
			name := strings.ToLower(item.Name)
			itemCategory := strings.ToLower(item.Category)
			if !strings.Contains(name, search) && !strings.Contains(itemCategory, search) {
				continue
			}
		}

		if category != "" && category != "all" {
			if strings.ToLower(item.Category) != category {
				continue
			}
		}

		if bucket != "" && bucket != BucketAll {
			if BucketOf(item.ExpiryDate, now) != bucket {
				continue
			}
		}

		result = append(result, item)
	}

	return result
}
