package enums

import "strings"

// ContentCategory is supplied by the content subsystem with each watch event.
// Unknown categories are accepted and priced at the default rate.
type ContentCategory string

const (
	CategoryFinance       ContentCategory = "FINANCE"
	CategoryEducation     ContentCategory = "EDUCATION"
	CategoryTechnology    ContentCategory = "TECHNOLOGY"
	CategoryHealth        ContentCategory = "HEALTH"
	CategoryBusiness      ContentCategory = "BUSINESS"
	CategoryLifestyle     ContentCategory = "LIFESTYLE"
	CategoryEntertainment ContentCategory = "ENTERTAINMENT"
	CategoryGaming        ContentCategory = "GAMING"
)

var knownContentCategories = []ContentCategory{
	CategoryFinance,
	CategoryEducation,
	CategoryTechnology,
	CategoryHealth,
	CategoryBusiness,
	CategoryLifestyle,
	CategoryEntertainment,
	CategoryGaming,
}

// KnownContentCategories returns the categories with a dedicated base rate.
func KnownContentCategories() []ContentCategory {
	out := make([]ContentCategory, len(knownContentCategories))
	copy(out, knownContentCategories)
	return out
}

// IsKnown reports whether the category has a dedicated base rate.
func (c ContentCategory) IsKnown() bool {
	for _, candidate := range knownContentCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// NormalizeContentCategory upper-cases and trims raw category input.
func NormalizeContentCategory(value string) ContentCategory {
	return ContentCategory(strings.ToUpper(strings.TrimSpace(value)))
}
