package constants

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

type Category string

const (
	Groceries   Category = "Groceries"
	Dining      Category = "Dining"
	Fuel        Category = "Fuel"
	Pharmacy    Category = "Pharmacy"
	Electronics Category = "Electronics"
	Utilities   Category = "Utilities"
	Travel      Category = "Travel"
	Shopping    Category = "Shopping"
	Health      Category = "Health"
	Other       Category = "Other"
)

var allCategories = []Category{
	Groceries,
	Dining,
	Fuel,
	Pharmacy,
	Electronics,
	Utilities,
	Travel,
	Shopping,
	Health,
	Other,
}

var synonyms = map[string]Category{
	"grocery":     Groceries,
	"supermarket": Groceries,
	"restaurant":  Dining,
	"cafe":        Dining,
	"gas":         Fuel,
	"gas station": Fuel,
	"petrol":      Fuel,
	"drugstore":   Pharmacy,
	"electricity": Utilities,
}

// Fuzzy matching only applies to labels at least minFuzzyLen long and only
// within maxEditDistance, so short real labels ("Meds") are never rewritten.
const (
	maxEditDistance = 1
	minFuzzyLen     = 6
)

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps a free-form label onto a known category. Category is an
// open set, so ok=false means the caller should keep its own label.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" || normalized == "unknown" {
		return "", false
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}
	if len(normalized) < minFuzzyLen {
		return "", false
	}
	for _, cat := range allCategories {
		if levenshtein.ComputeDistance(normalized, strings.ToLower(string(cat))) <= maxEditDistance {
			return cat, true
		}
	}
	return "", false
}
