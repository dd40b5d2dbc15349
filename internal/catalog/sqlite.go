package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/avvvet/chatbuddy/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var attributeKey = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SQLiteRepository implements Repository on a SQLite file.
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteRepository(dbPath string, logger *zap.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db, logger: logger}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT NOT NULL,
		business_type TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price REAL,
		category TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		availability INTEGER NOT NULL DEFAULT 1,
		image_url TEXT NOT NULL DEFAULT '',
		rating REAL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (business_type, id)
	);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(business_type, category);
	CREATE INDEX IF NOT EXISTS idx_products_price ON products(price);
	CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const productColumns = `id, name, description, price, category, metadata, availability, image_url, rating`

func (r *SQLiteRepository) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	where, args, err := buildWhere(req)
	if err != nil {
		return nil, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE ` + where +
		` ORDER BY rating IS NULL, rating DESC, name LIMIT ?`
	items, err := r.queryProducts(ctx, query, append(args, normalizeLimit(req.Limit))...)
	if err != nil {
		return nil, err
	}

	facets, err := r.facets(ctx, req.BusinessType, req.Filters)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("catalog search",
		zap.String("business_type", string(req.BusinessType)),
		zap.String("query", req.Query),
		zap.Int("total", total),
		zap.Int("returned", len(items)))

	return &SearchResult{
		Items:       items,
		TotalCount:  total,
		Facets:      facets,
		Suggestions: suggestions(items),
	}, nil
}

func buildWhere(req SearchRequest) (string, []any, error) {
	clauses := []string{"business_type = ?"}
	args := []any{string(req.BusinessType)}

	if q := strings.ToLower(strings.TrimSpace(req.Query)); q != "" {
		term := "%" + q + "%"
		clauses = append(clauses, "(lower(name) LIKE ? OR lower(description) LIKE ? OR lower(category) LIKE ?)")
		args = append(args, term, term, term)
	}

	f := req.Filters
	if f.Category != "" {
		clauses = append(clauses, "lower(category) = lower(?)")
		args = append(args, f.Category)
	}
	if f.MinPrice != nil {
		clauses = append(clauses, "price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		clauses = append(clauses, "price <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.Available != nil {
		clauses = append(clauses, "availability = ?")
		args = append(args, *f.Available)
	}

	keys := make([]string, 0, len(f.Attributes))
	for key := range f.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !attributeKey.MatchString(key) {
			return "", nil, fmt.Errorf("invalid attribute filter %q", key)
		}
		clauses = append(clauses, "lower(json_extract(metadata, ?)) = lower(?)")
		args = append(args, "$."+key, f.Attributes[key])
	}

	return strings.Join(clauses, " AND "), args, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, bt models.BusinessType, id string) (*models.Product, error) {
	items, err := r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE business_type = ? AND id = ?`,
		string(bt), id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

// FindByName returns the best match for a product name: exact match first,
// then the highest rated partial match.
func (r *SQLiteRepository) FindByName(ctx context.Context, bt models.BusinessType, name string) (*models.Product, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, ErrNotFound
	}
	items, err := r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products
		WHERE business_type = ? AND lower(name) LIKE ?
		ORDER BY lower(name) = ? DESC, rating IS NULL, rating DESC
		LIMIT 1`,
		string(bt), "%"+name+"%", name)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

func (r *SQLiteRepository) TopRated(ctx context.Context, bt models.BusinessType, category string, limit int) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE business_type = ? AND availability = 1`
	args := []any{string(bt)}
	if category != "" {
		query += ` AND lower(category) = lower(?)`
		args = append(args, category)
	}
	query += ` ORDER BY rating IS NULL, rating DESC, name LIMIT ?`
	args = append(args, normalizeLimit(limit))
	return r.queryProducts(ctx, query, args...)
}

// Count returns the number of products stored for a business type.
func (r *SQLiteRepository) Count(ctx context.Context, bt models.BusinessType) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE business_type = ?`, string(bt)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// Upsert stores products for a business type, replacing existing rows with the same id.
func (r *SQLiteRepository) Upsert(ctx context.Context, bt models.BusinessType, products []models.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO products (id, business_type, name, description, price, category, metadata, availability, image_url, rating, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(business_type, id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		price = excluded.price,
		category = excluded.category,
		metadata = excluded.metadata,
		availability = excluded.availability,
		image_url = excluded.image_url,
		rating = excluded.rating`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range products {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("product id and name are required")
		}
		metadata := p.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, string(bt), p.Name, p.Description, nullFloat(p.Price), p.Category,
			string(metaJSON), p.Availability, p.ImageURL, nullFloat(p.Rating), now,
		); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	items := []models.Product{}
	for rows.Next() {
		var (
			p        models.Product
			price    sql.NullFloat64
			rating   sql.NullFloat64
			metadata string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Category,
			&metadata, &p.Availability, &p.ImageURL, &rating); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		if price.Valid {
			p.Price = &price.Float64
		}
		if rating.Valid {
			p.Rating = &rating.Float64
		}
		if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", p.ID, err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) facets(ctx context.Context, bt models.BusinessType, filters Filters) (map[string][]string, error) {
	facets := make(map[string][]string)

	if filters.Category == "" {
		rows, err := r.db.QueryContext(ctx,
			`SELECT DISTINCT category FROM products WHERE business_type = ? AND category != '' ORDER BY category`,
			string(bt))
		if err != nil {
			return nil, fmt.Errorf("query categories: %w", err)
		}
		var categories []string
		for rows.Next() {
			var c string
			if err := rows.Scan(&c); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan category: %w", err)
			}
			categories = append(categories, c)
		}
		rows.Close()
		if len(categories) > 0 {
			facets["category"] = categories
		}
	}

	var minPrice, maxPrice sql.NullFloat64
	if err := r.db.QueryRowContext(ctx,
		`SELECT MIN(price), MAX(price) FROM products WHERE business_type = ?`, string(bt),
	).Scan(&minPrice, &maxPrice); err != nil {
		return nil, fmt.Errorf("query price range: %w", err)
	}
	if minPrice.Valid && maxPrice.Valid && minPrice.Float64 < maxPrice.Float64 {
		lo, hi := minPrice.Float64, maxPrice.Float64
		a := lo + (hi-lo)*0.33
		b := lo + (hi-lo)*0.67
		facets["price_range"] = []string{
			fmt.Sprintf("$%d-$%d", int(lo), int(a)),
			fmt.Sprintf("$%d-$%d", int(a), int(b)),
			fmt.Sprintf("$%d-$%d", int(b), int(hi)),
		}
	}
	return facets, nil
}

func suggestions(items []models.Product) []string {
	if len(items) == 0 {
		return []string{"Browse all products", "Check categories", "Adjust filters"}
	}

	var out []string
	seen := make(map[string]bool)
	for _, item := range items {
		if item.Category == "" || seen[item.Category] {
			continue
		}
		seen[item.Category] = true
		if len(out) < 3 {
			out = append(out, "More "+item.Category)
		}
	}
	if len(items) > 5 {
		out = append(out, "Narrow search")
	} else {
		out = append(out, "Broaden search")
	}
	return out
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
