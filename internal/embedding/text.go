// Package embedding converts page contexts and products into fixed-dimension
// vectors via an OpenAI-compatible embeddings API.
package embedding

import (
	"fmt"
	"strings"

	"github.com/tropicallease/adcontext/internal/ads"
)

// TextConfig bounds the structured fields folded into an embedding input.
type TextConfig struct {
	MaxKeywords     int
	MaxContentChars int
	MaxHeadings     int
}

// DefaultTextConfig mirrors the tuned production limits.
func DefaultTextConfig() TextConfig {
	return TextConfig{MaxKeywords: 20, MaxContentChars: 1000, MaxHeadings: 10}
}

func (c TextConfig) withDefaults() TextConfig {
	d := DefaultTextConfig()
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = d.MaxKeywords
	}
	if c.MaxContentChars <= 0 {
		c.MaxContentChars = d.MaxContentChars
	}
	if c.MaxHeadings <= 0 {
		c.MaxHeadings = d.MaxHeadings
	}
	return c
}

// PageText builds the combined text representation of a page, ordered by
// signal weight: title, topics, description, keywords, content excerpt,
// headings.
func PageText(enriched *ads.EnrichedPageContext, cfg TextConfig) string {
	if enriched == nil {
		return ""
	}
	cfg = cfg.withDefaults()

	var parts []string
	if enriched.Title != "" {
		parts = append(parts, "Title: "+enriched.Title)
	}
	if len(enriched.Topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(enriched.Topics, ", "))
	}
	if enriched.Description != "" {
		parts = append(parts, "Description: "+enriched.Description)
	}
	if len(enriched.Keywords) > 0 {
		keywords := enriched.Keywords
		if len(keywords) > cfg.MaxKeywords {
			keywords = keywords[:cfg.MaxKeywords]
		}
		parts = append(parts, "Keywords: "+strings.Join(keywords, ", "))
	}
	if enriched.MainContent != "" {
		content := enriched.MainContent
		if len(content) > cfg.MaxContentChars {
			content = content[:cfg.MaxContentChars]
		}
		parts = append(parts, "Content: "+content)
	}
	if len(enriched.Headings) > 0 {
		headings := enriched.Headings
		if len(headings) > cfg.MaxHeadings {
			headings = headings[:cfg.MaxHeadings]
		}
		parts = append(parts, "Headings: "+strings.Join(headings, ", "))
	}
	return strings.Join(parts, "\n\n")
}

// ProductText builds the text representation of a product: name, a coarse
// price tier for audience matching, and the description.
func ProductText(product ads.Product) string {
	var parts []string
	if product.Name != "" {
		parts = append(parts, "Product: "+product.Name)
	}
	if product.Price != nil {
		parts = append(parts, fmt.Sprintf("Price tier: %s", priceTier(*product.Price)))
	}
	if product.Description != "" {
		parts = append(parts, "Description: "+product.Description)
	}
	return strings.Join(parts, "\n\n")
}

func priceTier(price float64) string {
	switch {
	case price > 100:
		return "luxury"
	case price > 30:
		return "mid-range"
	default:
		return "budget"
	}
}
