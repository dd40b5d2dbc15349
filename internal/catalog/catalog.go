// Package catalog is the product store the capability handlers search.
package catalog

import (
	"context"
	"errors"

	"github.com/avvvet/chatbuddy/internal/models"
)

// ErrNotFound is returned when a product does not exist for a business type.
var ErrNotFound = errors.New("product not found")

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Filters narrows a search. Zero values do not filter.
type Filters struct {
	Category   string            `json:"category,omitempty"`
	MinPrice   *float64          `json:"min_price,omitempty"`
	MaxPrice   *float64          `json:"max_price,omitempty"`
	Available  *bool             `json:"availability,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"` // matched against product metadata, e.g. brand, color
}

func (f Filters) Empty() bool {
	return f.Category == "" && f.MinPrice == nil && f.MaxPrice == nil && f.Available == nil && len(f.Attributes) == 0
}

type SearchRequest struct {
	BusinessType models.BusinessType `json:"business_type"`
	Query        string              `json:"query"`
	Filters      Filters             `json:"filters"`
	Limit        int                 `json:"limit"`
}

type SearchResult struct {
	Items       []models.Product    `json:"items"`
	TotalCount  int                 `json:"total_count"`
	Facets      map[string][]string `json:"facets"`
	Suggestions []string            `json:"suggestions"`
}

// Repository is the read side of the catalog used by handlers.
type Repository interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	GetByID(ctx context.Context, bt models.BusinessType, id string) (*models.Product, error)
	FindByName(ctx context.Context, bt models.BusinessType, name string) (*models.Product, error)
	TopRated(ctx context.Context, bt models.BusinessType, category string, limit int) ([]models.Product, error)
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
