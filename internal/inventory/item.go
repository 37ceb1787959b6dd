package inventory

import (
	"strings"
	"time"
)

// Source records how an item entered the inventory
type Source string

const (
	// SourceScanned marks items promoted from a recognition session
	SourceScanned Source = "scanned"
	// SourceManual marks items entered by hand
	SourceManual Source = "manual"
)

// FoodItem is a tracked inventory entry
type FoodItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	ExpiryDate time.Time `json:"expiry_date"`
	ImageURL   string    `json:"image_url,omitempty"`
	Consumed   bool      `json:"consumed"`
	Source     Source    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// Categories recognized by the grouping heuristics, in display order
var Categories = []string{
	"dairy",
	"fruit",
	"vegetables",
	"bakery",
	"meat",
	"frozen",
	"pantry",
	"other",
}

// categoryKeywords maps item name fragments to a category. Matching is
// first-hit in Categories order.
var categoryKeywords = map[string][]string{
	"dairy":      {"milk", "cheese", "yogurt", "yoghurt", "butter", "cream", "egg"},
	"fruit":      {"apple", "banana", "orange", "berry", "berries", "grape", "lemon", "lime", "mango", "peach", "pear", "melon"},
	"vegetables": {"lettuce", "tomato", "carrot", "broccoli", "spinach", "onion", "pepper", "cucumber", "potato", "salad"},
	"bakery":     {"bread", "bagel", "bun", "roll", "croissant", "muffin", "cake", "pastry"},
	"meat":       {"chicken", "beef", "pork", "fish", "salmon", "tuna", "turkey", "ham", "bacon", "sausage"},
	"frozen":     {"frozen", "ice cream", "pizza"},
	"pantry":     {"rice", "pasta", "cereal", "flour", "sugar", "oil", "sauce", "beans", "soup", "can"},
}

// GuessCategory picks a category for a recognized item name. Unknown
// names fall into "other".
func GuessCategory(name string) string {
	lower := strings.ToLower(name)
	for _, category := range Categories {
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(lower, keyword) {
				return category
			}
		}
	}
	return "other"
}

// NormalizeCategory lowercases a category and maps unknown values to
// "other". The empty string stays empty so callers can detect absence.
func NormalizeCategory(category string) string {
	lower := strings.ToLower(strings.TrimSpace(category))
	if lower == "" {
		return ""
	}
	for _, known := range Categories {
		if lower == known {
			return lower
		}
	}
	return "other"
}
