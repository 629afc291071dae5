package embedding_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/embedding"
)

func TestPageTextOrdering(t *testing.T) {
	enriched := &ads.EnrichedPageContext{
		Title:       "Camping in the Rockies",
		Topics:      []string{"outdoor", "travel"},
		Description: "A trail guide",
		Keywords:    []string{"camping", "hiking"},
		MainContent: "Day one we set out early.",
		Headings:    []string{"Gear", "Routes"},
	}
	text := embedding.PageText(enriched, embedding.TextConfig{})

	// Title weighs highest, then topics, description, keywords, content,
	// headings.
	idxTitle := strings.Index(text, "Title: Camping in the Rockies")
	idxTopics := strings.Index(text, "Topics: outdoor, travel")
	idxDesc := strings.Index(text, "Description: A trail guide")
	idxKeywords := strings.Index(text, "Keywords: camping, hiking")
	idxContent := strings.Index(text, "Content: Day one")
	idxHeadings := strings.Index(text, "Headings: Gear, Routes")

	assert.True(t, idxTitle >= 0 && idxTitle < idxTopics)
	assert.True(t, idxTopics < idxDesc)
	assert.True(t, idxDesc < idxKeywords)
	assert.True(t, idxKeywords < idxContent)
	assert.True(t, idxContent < idxHeadings)
}

func TestPageTextTruncation(t *testing.T) {
	keywords := make([]string, 30)
	for i := range keywords {
		keywords[i] = "kw"
	}
	headings := make([]string, 15)
	for i := range headings {
		headings[i] = "h"
	}
	enriched := &ads.EnrichedPageContext{
		Keywords:    keywords,
		Headings:    headings,
		MainContent: strings.Repeat("x", 5000),
	}
	text := embedding.PageText(enriched, embedding.TextConfig{})

	assert.Equal(t, 20, strings.Count(text, "kw"))
	assert.Equal(t, 10, strings.Count(text, "h"))
	assert.Equal(t, 1000, strings.Count(text, "x"))
}

func TestPageTextNil(t *testing.T) {
	assert.Empty(t, embedding.PageText(nil, embedding.TextConfig{}))
}

func TestProductTextPriceTiers(t *testing.T) {
	price := func(v float64) *float64 { return &v }

	tests := []struct {
		price *float64
		want  string
	}{
		{price(299.99), "luxury"},
		{price(49.99), "mid-range"},
		{price(9.99), "budget"},
	}
	for _, tt := range tests {
		p := ads.Product{Name: "Thing", Description: "A thing", Price: tt.price}
		assert.Contains(t, embedding.ProductText(p), "Price tier: "+tt.want)
	}

	noPrice := ads.Product{Name: "Thing", Description: "A thing"}
	assert.NotContains(t, embedding.ProductText(noPrice), "Price tier")
}
