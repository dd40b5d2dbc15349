package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "catalog.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	_, err = repo.Seed(context.Background(), DemoSeed())
	require.NoError(t, err)
	return repo
}

func TestSearch(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     SearchRequest
		wantIDs []string
	}{
		{
			name:    "query matches name and category, ordered by rating",
			req:     SearchRequest{BusinessType: models.BusinessEcommerce, Query: "Laptop"},
			wantIDs: []string{"laptop-002", "laptop-001", "laptop-004", "laptop-003"},
		},
		{
			name: "price ceiling",
			req: SearchRequest{BusinessType: models.BusinessEcommerce, Query: "laptop",
				Filters: Filters{MaxPrice: price(1000)}},
			wantIDs: []string{"laptop-001", "laptop-003"},
		},
		{
			name: "brand attribute is case insensitive",
			req: SearchRequest{BusinessType: models.BusinessEcommerce,
				Filters: Filters{Attributes: map[string]string{"brand": "apple"}}},
			wantIDs: []string{"laptop-002", "phone-002"},
		},
		{
			name: "category and availability",
			req: SearchRequest{BusinessType: models.BusinessEcommerce,
				Filters: Filters{Category: "laptops", Available: boolPtr(false)}},
			wantIDs: []string{"laptop-004"},
		},
		{
			name:    "other business types are not visible",
			req:     SearchRequest{BusinessType: models.BusinessHotel, Query: "laptop"},
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.Search(ctx, tt.req)
			require.NoError(t, err)

			var ids []string
			for _, item := range res.Items {
				ids = append(ids, item.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), res.TotalCount)
		})
	}
}

func TestSearchLimitFacetsAndSuggestions(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	res, err := repo.Search(context.Background(), SearchRequest{BusinessType: models.BusinessEcommerce, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 7, res.TotalCount)
	assert.Equal(t, []string{"audio", "laptops", "phones"}, res.Facets["category"])
	assert.Len(t, res.Facets["price_range"], 3)
	assert.Contains(t, res.Suggestions, "Broaden search")

	res, err = repo.Search(context.Background(), SearchRequest{BusinessType: models.BusinessEcommerce, Query: "zeppelin"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, []string{"Browse all products", "Check categories", "Adjust filters"}, res.Suggestions)
}

func TestSearchRejectsBadAttribute(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	_, err := repo.Search(context.Background(), SearchRequest{BusinessType: models.BusinessEcommerce,
		Filters: Filters{Attributes: map[string]string{"brand') OR 1=1 --": "x"}}})
	require.Error(t, err)
}

func TestLookups(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.GetByID(ctx, models.BusinessEcommerce, "phone-001")
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8", p.Name)
	require.NotNil(t, p.Price)
	assert.Equal(t, 699.0, *p.Price)
	assert.Equal(t, "Google", p.Metadata["brand"])
	assert.True(t, p.Availability)

	_, err = repo.GetByID(ctx, models.BusinessHotel, "phone-001")
	assert.ErrorIs(t, err, ErrNotFound)

	p, err = repo.FindByName(ctx, models.BusinessEcommerce, "dell xps 13")
	require.NoError(t, err)
	assert.Equal(t, "laptop-001", p.ID)

	p, err = repo.FindByName(ctx, models.BusinessEcommerce, "macbook")
	require.NoError(t, err)
	assert.Equal(t, "laptop-002", p.ID)

	_, err = repo.FindByName(ctx, models.BusinessEcommerce, "")
	assert.ErrorIs(t, err, ErrNotFound)

	top, err := repo.TopRated(ctx, models.BusinessEcommerce, "laptops", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "laptop-002", top[0].ID)
	assert.Equal(t, "laptop-001", top[1].ID)

	n, err := repo.Count(ctx, models.BusinessHotel)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSeedIsIdempotent(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Seed(ctx, DemoSeed())
	require.NoError(t, err)
	n, err := repo.Count(ctx, models.BusinessEcommerce)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestLoadSeedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"rental": [{"id": "r1", "name": "Kayak", "availability": true}]}`), 0o644))

	seeds, err := LoadSeedFile(good)
	require.NoError(t, err)
	require.Len(t, seeds[models.BusinessRental], 1)
	assert.Equal(t, "Kayak", seeds[models.BusinessRental][0].Name)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"spaceport": []}`), 0o644))
	_, err = LoadSeedFile(bad)
	assert.Error(t, err)
}

func boolPtr(b bool) *bool { return &b }
