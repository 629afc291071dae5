// Package matcher ranks catalog products against a page's semantic
// embedding, with topic-based exclusion, category boosting and
// diversification across categories for mixed-topic pages.
package matcher

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tropicallease/adcontext/internal/ads"
)

// Config holds the tunable scoring constants.
type Config struct {
	// DominanceThreshold is the fraction of mapped topics one category must
	// reach for the page to be treated as single-category.
	DominanceThreshold float64
	// CategoryBoost multiplies scores of products in a single-category
	// page's preferred category, capped at 1.0.
	CategoryBoost float64
	// CategoryPenalty multiplies scores of products in the other named
	// categories on a single-category page.
	CategoryPenalty float64
}

// Matcher scores and selects products for enriched pages.
type Matcher struct {
	tables Tables
	cfg    Config
	logger *zap.Logger
}

// New builds a Matcher. Zero config fields fall back to the stock constants.
func New(tables Tables, cfg Config, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DominanceThreshold <= 0 {
		cfg.DominanceThreshold = 0.66
	}
	if cfg.CategoryBoost <= 0 {
		cfg.CategoryBoost = 1.15
	}
	if cfg.CategoryPenalty <= 0 {
		cfg.CategoryPenalty = 0.7
	}
	return &Matcher{tables: tables, cfg: cfg, logger: logger}
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// clamped to [0, 1]. Mismatched lengths, absent or zero-norm vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	score, _ := cosine(a, b)
	return score
}

// cosine reports ok=false when either vector is absent, zero-norm or the
// lengths disagree.
func cosine(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, math.Min(1, score)), true
}

// FindBestProducts ranks products against a page embedding. Inactive
// products, products without embeddings and products vetoed by the topic
// exclusion tables never appear. Returns at most topK results; an absent
// page embedding yields an empty list.
func (m *Matcher) FindBestProducts(pageEmbedding []float64, products []ads.Product, topK int, minScore float64, pageTopics []string) []ads.MatchResult {
	if len(pageEmbedding) == 0 || topK <= 0 {
		return []ads.MatchResult{}
	}

	single, preferred, pageCategories := m.pageCategorization(pageTopics)

	excluded := 0
	scored := make([]ads.MatchResult, 0, len(products))
	for _, p := range products {
		if !p.Active || len(p.Embedding) == 0 {
			continue
		}
		if m.isExcluded(p, pageTopics) {
			excluded++
			continue
		}
		raw, ok := cosine(pageEmbedding, p.Embedding)
		if !ok || raw < minScore {
			continue
		}

		category := m.Categorize(p)
		score := raw
		if single && preferred != "" {
			switch {
			case category == preferred:
				score = math.Min(1.0, raw*m.cfg.CategoryBoost)
			case category != ads.CategoryOther:
				score = raw * m.cfg.CategoryPenalty
			}
		}
		scored = append(scored, ads.MatchResult{
			Product:  p,
			Score:    score,
			RawScore: raw,
			Category: category,
		})
	}

	if excluded > 0 {
		m.logger.Debug("products vetoed by topic exclusion tables",
			zap.Int("excluded", excluded),
			zap.Strings("topics", pageTopics),
		)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].RawScore != scored[j].RawScore {
			return scored[i].RawScore > scored[j].RawScore
		}
		return scored[i].Product.ID < scored[j].Product.ID
	})

	if single && preferred != "" {
		return selectSingleCategory(scored, preferred, topK)
	}
	if len(pageCategories) > 1 {
		return selectDiversified(scored, pageCategories, topK)
	}
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// MatchByTopics is the embedding-free fallback: every active product whose
// name+description contains a keyword associated with any of the topics,
// each at most once. A topic absent from the table matches on the topic
// string itself.
func (m *Matcher) MatchByTopics(topics []string, products []ads.Product) []ads.Product {
	if len(topics) == 0 {
		return []ads.Product{}
	}

	matched := make([]ads.Product, 0)
	for _, p := range products {
		if !p.Active {
			continue
		}
		text := productText(p)
		for _, topic := range topics {
			keywords, ok := m.tables.FallbackTopicKeywords[topic]
			if !ok {
				keywords = []string{topic}
			}
			if containsAny(text, keywords) {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched
}

// Categorize assigns a product its single category by first match against
// the ordered keyword lists.
func (m *Matcher) Categorize(p ads.Product) ads.Category {
	text := productText(p)
	for _, ck := range m.tables.CategoryKeywords {
		if containsAny(text, ck.Keywords) {
			return ck.Category
		}
	}
	return ads.CategoryOther
}

// pageCategorization maps topics onto categories and decides whether the
// page is single-category. pageCategories preserves first-appearance order
// of the topics for round-robin diversification.
func (m *Matcher) pageCategorization(pageTopics []string) (single bool, preferred ads.Category, pageCategories []ads.Category) {
	counts := make(map[ads.Category]int)
	for _, topic := range pageTopics {
		category, ok := m.tables.TopicCategories[topic]
		if !ok {
			continue
		}
		if counts[category] == 0 {
			pageCategories = append(pageCategories, category)
		}
		counts[category]++
	}
	if len(pageCategories) == 0 {
		return false, "", nil
	}
	if len(pageCategories) == 1 {
		return true, pageCategories[0], pageCategories
	}

	total := 0
	dominant := pageCategories[0]
	for _, c := range pageCategories {
		total += counts[c]
		if counts[c] > counts[dominant] {
			dominant = c
		}
	}
	if float64(counts[dominant])/float64(total) >= m.cfg.DominanceThreshold {
		m.logger.Debug("dominant category detected",
			zap.String("category", string(dominant)),
			zap.Int("topics", counts[dominant]),
			zap.Int("total", total),
		)
		return true, dominant, []ads.Category{dominant}
	}
	return false, "", pageCategories
}

func (m *Matcher) isExcluded(p ads.Product, pageTopics []string) bool {
	if len(pageTopics) == 0 {
		return false
	}
	text := productText(p)
	for _, topic := range pageTopics {
		if containsAny(text, m.tables.ExclusionsByTopic[topic]) {
			return true
		}
	}
	return false
}

// selectSingleCategory takes preferred-category products first and backfills
// the remaining slots from the rest, all in score order.
func selectSingleCategory(scored []ads.MatchResult, preferred ads.Category, topK int) []ads.MatchResult {
	result := make([]ads.MatchResult, 0, topK)
	for _, r := range scored {
		if len(result) >= topK {
			return result
		}
		if r.Category == preferred {
			result = append(result, r)
		}
	}
	for _, r := range scored {
		if len(result) >= topK {
			break
		}
		if r.Category != preferred {
			result = append(result, r)
		}
	}
	return result
}

// selectDiversified round-robins one product per page category per round,
// then fills leftover slots with the globally best remaining scores. No
// product appears twice.
func selectDiversified(scored []ads.MatchResult, pageCategories []ads.Category, topK int) []ads.MatchResult {
	byCategory := make(map[ads.Category][]ads.MatchResult)
	for _, r := range scored {
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	result := make([]ads.MatchResult, 0, topK)
	used := make(map[string]bool)
	for len(result) < topK {
		progressed := false
		for _, category := range pageCategories {
			if len(result) >= topK {
				break
			}
			for _, r := range byCategory[category] {
				if used[r.Product.ID] {
					continue
				}
				result = append(result, r)
				used[r.Product.ID] = true
				progressed = true
				break
			}
		}
		if !progressed {
			break
		}
	}
	for _, r := range scored {
		if len(result) >= topK {
			break
		}
		if !used[r.Product.ID] {
			result = append(result, r)
			used[r.Product.ID] = true
		}
	}
	return result
}

func productText(p ads.Product) string {
	return strings.ToLower(p.Name + " " + p.Description)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
