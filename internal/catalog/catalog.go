// Package catalog is the durable product inventory: an in-memory map with
// write-through JSON persistence, plus batch embedding backfill.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/embedding"
	"github.com/tropicallease/adcontext/internal/persist"
)

// ErrNotFound is returned when a product ID does not exist.
var ErrNotFound = errors.New("product not found")

// Catalog holds all advertised products.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]ads.Product
	persist  *persist.Store
	ids      ads.IDGenerator
	clock    ads.Clock
	logger   *zap.Logger
}

// New loads the catalog from the persist store, skipping malformed records
// with a warning.
func New(backing *persist.Store, ids ads.IDGenerator, clock ads.Clock, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{
		products: make(map[string]ads.Product),
		persist:  backing,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}

	raw, err := backing.Load()
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for id, data := range raw {
		var p ads.Product
		if err := json.Unmarshal(data, &p); err != nil {
			logger.Warn("skipping malformed product record",
				zap.String("id", id),
				zap.Error(err),
			)
			continue
		}
		c.products[id] = p
	}
	return c, nil
}

// NewProduct is the payload for Create. Active defaults to true.
type NewProduct struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	LandingURL  string   `json:"landing_url,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

// Create inserts a product under a fresh ID.
func (c *Catalog) Create(np NewProduct) (ads.Product, error) {
	if np.Name == "" {
		return ads.Product{}, fmt.Errorf("product name is required")
	}

	id, err := c.ids.NewID()
	if err != nil {
		return ads.Product{}, fmt.Errorf("allocate product id: %w", err)
	}

	now := c.clock.Now()
	p := ads.Product{
		ID:          id,
		Name:        np.Name,
		Description: np.Description,
		Price:       np.Price,
		Currency:    np.Currency,
		ImageURL:    np.ImageURL,
		LandingURL:  np.LandingURL,
		Active:      np.Active == nil || *np.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[id] = p
	if err := c.flushLocked(); err != nil {
		delete(c.products, id)
		return ads.Product{}, err
	}
	return p, nil
}

// Get returns a product by ID.
func (c *Catalog) Get(id string) (ads.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// All returns the products sorted by creation time then ID, optionally
// restricted to active ones.
func (c *Catalog) All(activeOnly bool) []ads.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ads.Product, 0, len(c.products))
	for _, p := range c.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ProductPatch updates only the fields that are set.
type ProductPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    *string  `json:"currency,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
	LandingURL  *string  `json:"landing_url,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

// Update applies a patch. Changing name or description invalidates the
// stored embedding; the next backfill regenerates it.
func (c *Catalog) Update(id string, patch ProductPatch) (ads.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return ads.Product{}, ErrNotFound
	}
	prev := p

	textChanged := false
	if patch.Name != nil && *patch.Name != p.Name {
		p.Name = *patch.Name
		textChanged = true
	}
	if patch.Description != nil && *patch.Description != p.Description {
		p.Description = *patch.Description
		textChanged = true
	}
	if patch.Price != nil {
		p.Price = patch.Price
	}
	if patch.Currency != nil {
		p.Currency = *patch.Currency
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.LandingURL != nil {
		p.LandingURL = *patch.LandingURL
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if textChanged {
		p.Embedding = nil
	}
	p.UpdatedAt = c.clock.Now()

	c.products[id] = p
	if err := c.flushLocked(); err != nil {
		c.products[id] = prev
		return ads.Product{}, err
	}
	return p, nil
}

// Delete removes a product.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return ErrNotFound
	}
	delete(c.products, id)
	if err := c.flushLocked(); err != nil {
		c.products[id] = p
		return err
	}
	return nil
}

// Len reports the number of products.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// BackfillEmbeddings generates embeddings for active products that lack
// one, in a single batch call, and persists the result. Returns the number
// of products updated.
func (c *Catalog) BackfillEmbeddings(ctx context.Context, embedder ads.EmbeddingProvider) (int, error) {
	c.mu.RLock()
	var pending []ads.Product
	for _, p := range c.products {
		if p.Active && len(p.Embedding) == 0 {
			pending = append(pending, p)
		}
	}
	c.mu.RUnlock()

	if len(pending) == 0 {
		return 0, nil
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = embedding.ProductText(p)
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed products: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	updated := 0
	for i, p := range pending {
		current, ok := c.products[p.ID]
		if !ok || len(current.Embedding) > 0 {
			continue
		}
		current.Embedding = vectors[i]
		current.UpdatedAt = c.clock.Now()
		c.products[p.ID] = current
		updated++
	}
	if updated > 0 {
		if err := c.flushLocked(); err != nil {
			return updated, err
		}
	}
	c.logger.Info("product embedding backfill complete", zap.Int("updated", updated))
	return updated, nil
}

func (c *Catalog) flushLocked() error {
	if err := c.persist.Save(c.products); err != nil {
		return fmt.Errorf("flush products: %w", err)
	}
	return nil
}
