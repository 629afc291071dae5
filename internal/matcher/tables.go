package matcher

import "github.com/tropicallease/adcontext/internal/ads"

// Tables holds the keyword data the matcher runs on. Kept as data rather
// than code so deployments can tune them without touching the algorithm.
type Tables struct {
	// ExclusionsByTopic maps a page topic to keyword substrings that
	// disqualify a product outright, before any scoring.
	ExclusionsByTopic map[string][]string

	// CategoryKeywords is checked in order; the first list containing a
	// matching keyword decides the product's category.
	CategoryKeywords []CategoryKeywords

	// TopicCategories maps page topics onto product categories.
	TopicCategories map[string]ads.Category

	// FallbackTopicKeywords drives MatchByTopics when no embedding exists.
	FallbackTopicKeywords map[string][]string
}

// CategoryKeywords pairs one category with the substrings that select it.
type CategoryKeywords struct {
	Category ads.Category
	Keywords []string
}

// DefaultTables returns the built-in keyword tables.
func DefaultTables() Tables {
	return Tables{
		ExclusionsByTopic: map[string][]string{
			"lifestyle": {
				"camping", "outdoor", "hiking", "trail", "backpacking", "wilderness",
				"tent", "lantern", "survival", "cot",
				"headphone", "earphone", "bluetooth", "wireless", "technology",
				"electronic", "projector", "ipad", "tablet", "printer",
			},
			"health": {
				"camping", "outdoor", "hiking", "adventure",
				"headphone", "earphone", "technology", "electronic",
			},
			"outdoor": {
				"headphone", "earphone", "ipad", "tablet", "printer", "projector",
				"technology", "electronic",
				"bedding", "comforter", "pillow", "mirror", "vase", "silverware",
				"decor", "furniture",
			},
			"technology": {
				"camping", "outdoor", "hiking", "tent", "lantern", "cot", "backpacking",
				"bedding", "comforter", "pillow", "mirror", "vase", "silverware",
				"decor", "furniture",
			},
		},

		// Technology is checked first so tech items do not fall through to
		// lifestyle on shared words.
		CategoryKeywords: []CategoryKeywords{
			{
				Category: ads.CategoryTechnology,
				Keywords: []string{
					"headphone", "earphone", "sleep headphone", "bluetooth headphone",
					"ipad", "tablet", "computer", "laptop", "printer", "projector",
					"tech", "electronic", "bluetooth", "wireless", "gadget", "camera",
				},
			},
			{
				Category: ads.CategoryOutdoor,
				Keywords: []string{
					"camping", "outdoor", "hiking", "trail", "backpacking", "wilderness",
					"tent", "lantern", "survival", "cot", "camping cot", "camping tent",
					"camping light",
				},
			},
			{
				Category: ads.CategoryLifestyle,
				Keywords: []string{
					"bedding", "comforter", "pillow", "mirror", "vase", "ceramic vase",
					"silverware", "decor", "furniture", "home", "fashion", "beauty",
					"jewelry", "necklace", "farmhouse", "irregular mirror",
				},
			},
		},

		TopicCategories: map[string]ads.Category{
			"lifestyle":  ads.CategoryLifestyle,
			"health":     ads.CategoryLifestyle,
			"outdoor":    ads.CategoryOutdoor,
			"technology": ads.CategoryTechnology,
			"tech":       ads.CategoryTechnology,
		},

		FallbackTopicKeywords: map[string][]string{
			"outdoor":    {"camping", "outdoor", "adventure", "hiking", "survival"},
			"technology": {"tech", "computer", "software", "gadget", "electronic"},
			"lifestyle":  {"fashion", "home", "decor", "wellness", "beauty"},
			"health":     {"fitness", "health", "wellness", "medical"},
			"business":   {"business", "professional", "office", "productivity"},
		},
	}
}
