package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicallease/adcontext/internal/ads"
	"github.com/tropicallease/adcontext/internal/catalog"
	"github.com/tropicallease/adcontext/internal/persist"
)

type seqClock struct {
	now time.Time
}

func (c *seqClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	n int
}

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return string(rune('a' + g.n - 1)), nil
}

type countingEmbedder struct {
	batches int
}

func (e *countingEmbedder) Dimension() int { return 2 }

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	e.batches++
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{float64(i) + 1, 0}
	}
	return out, nil
}

func newTestCatalog(t *testing.T) (*catalog.Catalog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	backing, err := persist.New(path)
	require.NoError(t, err)

	c, err := catalog.New(backing, &seqIDs{}, &seqClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}, nil)
	require.NoError(t, err)
	return c, path
}

func TestCreateAndGet(t *testing.T) {
	c, _ := newTestCatalog(t)

	price := 49.99
	p, err := c.Create(catalog.NewProduct{
		Name:        "Camping Lantern",
		Description: "Rechargeable LED lantern",
		Price:       &price,
		Currency:    "USD",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.Active)
	assert.False(t, p.CreatedAt.IsZero())

	got, ok := c.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestCreateRequiresName(t *testing.T) {
	c, _ := newTestCatalog(t)
	_, err := c.Create(catalog.NewProduct{Description: "nameless"})
	assert.Error(t, err)
}

func TestAllSortedAndFiltered(t *testing.T) {
	c, _ := newTestCatalog(t)

	first, err := c.Create(catalog.NewProduct{Name: "First"})
	require.NoError(t, err)
	inactive := false
	second, err := c.Create(catalog.NewProduct{Name: "Second", Active: &inactive})
	require.NoError(t, err)
	third, err := c.Create(catalog.NewProduct{Name: "Third"})
	require.NoError(t, err)

	all := c.All(false)
	require.Len(t, all, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID},
		[]string{all[0].ID, all[1].ID, all[2].ID})

	active := c.All(true)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, third.ID, active[1].ID)
}

func TestUpdatePatchSemantics(t *testing.T) {
	c, _ := newTestCatalog(t)
	p, err := c.Create(catalog.NewProduct{Name: "Tent", Description: "2-person tent"})
	require.NoError(t, err)

	desc := "4-person tent"
	updated, err := c.Update(p.ID, catalog.ProductPatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Tent", updated.Name)
	assert.Equal(t, "4-person tent", updated.Description)
	assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))

	inactive := false
	updated, err = c.Update(p.ID, catalog.ProductPatch{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "4-person tent", updated.Description)

	_, err = c.Update("missing", catalog.ProductPatch{})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestUpdateTextChangeInvalidatesEmbedding(t *testing.T) {
	c, _ := newTestCatalog(t)
	p, err := c.Create(catalog.NewProduct{Name: "Tent", Description: "2-person tent"})
	require.NoError(t, err)

	embedder := &countingEmbedder{}
	_, err = c.BackfillEmbeddings(context.Background(), embedder)
	require.NoError(t, err)
	got, _ := c.Get(p.ID)
	require.NotEmpty(t, got.Embedding)

	name := "Expedition Tent"
	updated, err := c.Update(p.ID, catalog.ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Empty(t, updated.Embedding)

	// Price-only change keeps the embedding.
	_, err = c.BackfillEmbeddings(context.Background(), embedder)
	require.NoError(t, err)
	price := 10.0
	updated, err = c.Update(p.ID, catalog.ProductPatch{Price: &price})
	require.NoError(t, err)
	assert.NotEmpty(t, updated.Embedding)
}

func TestDelete(t *testing.T) {
	c, _ := newTestCatalog(t)
	p, err := c.Create(catalog.NewProduct{Name: "Vase"})
	require.NoError(t, err)

	require.NoError(t, c.Delete(p.ID))
	_, ok := c.Get(p.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, c.Delete(p.ID), catalog.ErrNotFound)
}

func TestBackfillEmbeddings(t *testing.T) {
	c, _ := newTestCatalog(t)
	inactive := false

	_, err := c.Create(catalog.NewProduct{Name: "Lantern"})
	require.NoError(t, err)
	_, err = c.Create(catalog.NewProduct{Name: "Mirror"})
	require.NoError(t, err)
	skipped, err := c.Create(catalog.NewProduct{Name: "Retired", Active: &inactive})
	require.NoError(t, err)

	embedder := &countingEmbedder{}
	updated, err := c.BackfillEmbeddings(context.Background(), embedder)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, 1, embedder.batches)

	for _, p := range c.All(true) {
		assert.NotEmpty(t, p.Embedding)
	}
	got, _ := c.Get(skipped.ID)
	assert.Empty(t, got.Embedding)

	// Second run has nothing to do and calls no API.
	updated, err = c.BackfillEmbeddings(context.Background(), embedder)
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Equal(t, 1, embedder.batches)
}

func TestPersistenceAcrossRestarts(t *testing.T) {
	c, path := newTestCatalog(t)
	p, err := c.Create(catalog.NewProduct{Name: "Durable"})
	require.NoError(t, err)

	backing, err := persist.New(path)
	require.NoError(t, err)
	reloaded, err := catalog.New(backing, &seqIDs{}, &seqClock{now: time.Now()}, nil)
	require.NoError(t, err)

	got, ok := reloaded.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Durable", got.Name)
}

func TestMalformedRecordSkippedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	payload := `{
		"good": {"id": "good", "name": "Fine", "active": true},
		"bad": 42
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	backing, err := persist.New(path)
	require.NoError(t, err)
	c, err := catalog.New(backing, &seqIDs{}, &seqClock{now: time.Now()}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get("good")
	require.True(t, ok)
	assert.Equal(t, ads.Product{ID: "good", Name: "Fine", Active: true}, got)
}
