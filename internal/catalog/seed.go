package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/avvvet/chatbuddy/internal/models"
)

// SeedFile is the JSON layout accepted by LoadSeedFile: products keyed by business type.
type SeedFile map[models.BusinessType][]models.Product

// LoadSeedFile reads seed products from a JSON file.
func LoadSeedFile(path string) (SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seeds SeedFile
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for bt := range seeds {
		if !bt.Valid() {
			return nil, fmt.Errorf("unknown business type %q in seed file", bt)
		}
	}
	return seeds, nil
}

// Seed writes every product of seeds and returns how many were stored.
func (r *SQLiteRepository) Seed(ctx context.Context, seeds SeedFile) (int, error) {
	total := 0
	for bt, products := range seeds {
		if err := r.Upsert(ctx, bt, products); err != nil {
			return total, fmt.Errorf("seed %s: %w", bt, err)
		}
		total += len(products)
	}
	return total, nil
}

func price(v float64) *float64  { return &v }
func rating(v float64) *float64 { return &v }

// DemoSeed returns a small catalog for local runs and tests.
func DemoSeed() SeedFile {
	return SeedFile{
		models.BusinessEcommerce: {
			{ID: "laptop-001", Name: "Dell XPS 13", Description: "Ultra-thin 13 inch laptop with Intel Core i7 and 16GB RAM",
				Price: price(999.99), Category: "laptops", Availability: true, Rating: rating(4.6),
				Metadata: map[string]any{"brand": "Dell", "color": "silver", "model": "XPS 13"}},
			{ID: "laptop-002", Name: "MacBook Air M2", Description: "Apple laptop with M2 chip and all-day battery life",
				Price: price(1199.00), Category: "laptops", Availability: true, Rating: rating(4.8),
				Metadata: map[string]any{"brand": "Apple", "color": "midnight", "model": "Air M2"}},
			{ID: "laptop-003", Name: "Lenovo IdeaPad 5", Description: "Affordable everyday laptop with AMD Ryzen 5",
				Price: price(649.00), Category: "laptops", Availability: true, Rating: rating(4.3),
				Metadata: map[string]any{"brand": "Lenovo", "color": "red", "model": "IdeaPad 5"}},
			{ID: "laptop-004", Name: "HP Spectre x360", Description: "Convertible laptop with OLED touch display",
				Price: price(1399.00), Category: "laptops", Availability: false, Rating: rating(4.5),
				Metadata: map[string]any{"brand": "HP", "color": "black", "model": "Spectre x360"}},
			{ID: "phone-001", Name: "Pixel 8", Description: "Google phone with a great camera",
				Price: price(699.00), Category: "phones", Availability: true, Rating: rating(4.4),
				Metadata: map[string]any{"brand": "Google", "color": "black", "model": "Pixel 8"}},
			{ID: "phone-002", Name: "iPhone 15", Description: "Apple phone with USB-C and Dynamic Island",
				Price: price(799.00), Category: "phones", Availability: true, Rating: rating(4.7),
				Metadata: map[string]any{"brand": "Apple", "color": "blue", "model": "15"}},
			{ID: "audio-001", Name: "Sony WH-1000XM5", Description: "Noise cancelling wireless headphones",
				Price: price(349.99), Category: "audio", Availability: true, Rating: rating(4.7),
				Metadata: map[string]any{"brand": "Sony", "color": "black", "model": "WH-1000XM5"}},
		},
		models.BusinessHotel: {
			{ID: "room-001", Name: "Deluxe King Room", Description: "King bed, city view, free breakfast",
				Price: price(189.00), Category: "rooms", Availability: true, Rating: rating(4.5),
				Metadata: map[string]any{"beds": "1 king", "view": "city"}},
			{ID: "room-002", Name: "Family Suite", Description: "Two bedrooms and a kitchenette for up to five guests",
				Price: price(329.00), Category: "suites", Availability: true, Rating: rating(4.6),
				Metadata: map[string]any{"beds": "2 queen", "view": "garden"}},
		},
		models.BusinessRealEstate: {
			{ID: "prop-001", Name: "Downtown Loft", Description: "Two bedroom loft close to transit",
				Price: price(450000), Category: "apartment", Availability: true,
				Metadata: map[string]any{"bedrooms": "2", "location": "downtown"}},
		},
		models.BusinessRental: {
			{ID: "rent-001", Name: "Mountain Bike", Description: "Full suspension bike, helmet included",
				Price: price(35), Category: "bikes", Availability: true, Rating: rating(4.2),
				Metadata: map[string]any{"condition": "excellent"}},
		},
	}
}
