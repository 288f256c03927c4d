package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the storage gateway for the products collection.
type Repository interface {
	ListAll(ctx context.Context, sortKey SortKey, dir SortDirection) ([]Product, error)
	FindByID(ctx context.Context, id string) (Product, error)
	Insert(ctx context.Context, product Product) (Product, error)
	DeleteByID(ctx context.Context, id string) (int64, error)
}

const productsTable = "products"

// Schema creates the products table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	price       BIGINT NOT NULL,
	description TEXT NOT NULL,
	category    TEXT NOT NULL,
	images      TEXT[] NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS products_created_at_idx ON products (created_at DESC);
`

const pgUniqueViolation = "23505"

var (
	psql           = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	productColumns = []string{"id", "name", "price", "description", "category", "images", "created_at"}
)

// PGRepository implements Repository on PostgreSQL. The schema is applied on
// the first call that reaches the server, so a database that was down at
// startup is prepared once it comes back.
type PGRepository struct {
	pool        *pgxpool.Pool
	schemaMu    sync.Mutex
	schemaReady atomic.Bool
}

// NewPGRepository constructs a PostgreSQL repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// EnsureSchema applies Schema unless an earlier call already succeeded.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	if r.schemaReady.Load() {
		return nil
	}
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	if r.schemaReady.Load() {
		return nil
	}
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: ensure schema: %w", err)
	}
	r.schemaReady.Store(true)
	return nil
}

// ListAll returns every product ordered by sortKey, ties broken by id.
func (r *PGRepository) ListAll(ctx context.Context, sortKey SortKey, dir SortDirection) ([]Product, error) {
	if err := r.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	query, args, err := psql.Select(productColumns...).
		From(productsTable).
		OrderBy(orderBy(sortKey, dir)...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("catalog: build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("catalog: scan products: %w", err)
	}
	return products, nil
}

// FindByID fetches one product or ErrNotFound.
func (r *PGRepository) FindByID(ctx context.Context, id string) (Product, error) {
	if err := r.EnsureSchema(ctx); err != nil {
		return Product{}, err
	}
	query, args, err := psql.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("catalog: build get query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	product, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	return product, nil
}

// Insert stores product as given.
func (r *PGRepository) Insert(ctx context.Context, product Product) (Product, error) {
	if err := r.EnsureSchema(ctx); err != nil {
		return Product{}, err
	}
	if product.Images == nil {
		product.Images = []string{}
	}
	query, args, err := psql.Insert(productsTable).
		SetMap(map[string]any{
			"id":          product.ID,
			"name":        product.Name,
			"price":       product.Price,
			"description": product.Description,
			"category":    product.Category,
			"images":      product.Images,
			"created_at":  product.CreatedAt,
		}).
		ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("catalog: build insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Product{}, ErrDuplicate
		}
		return Product{}, fmt.Errorf("catalog: insert product: %w", err)
	}
	return product, nil
}

// DeleteByID removes the product and reports how many rows were deleted.
func (r *PGRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	if err := r.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	query, args, err := psql.Delete(productsTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("catalog: build delete: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("catalog: delete product: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanProduct(row pgx.CollectableRow) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.Category, &p.Images, &p.CreatedAt)
	if p.Images == nil {
		p.Images = []string{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

func orderBy(key SortKey, dir SortDirection) []string {
	column := "created_at"
	switch key {
	case SortByName:
		column = "name"
	case SortByPrice:
		column = "price"
	}
	direction := "DESC"
	if dir == Ascending {
		direction = "ASC"
	}
	return []string{column + " " + direction, "id " + direction}
}

var _ Repository = (*PGRepository)(nil)
