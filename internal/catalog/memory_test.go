package catalog

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bensupplier/catalog/internal/media"
)

// memoryRepository is an in-process Repository used by the service and
// handler tests.
type memoryRepository struct {
	mu       sync.Mutex
	products map[string]Product

	listErr   error
	insertErr error
	block     bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{products: make(map[string]Product)}
}

func (r *memoryRepository) wait(ctx context.Context) error {
	if !r.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (r *memoryRepository) ListAll(ctx context.Context, sortKey SortKey, dir SortDirection) ([]Product, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		less := out[i].CreatedAt.Before(out[j].CreatedAt) ||
			(out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID)
		if dir == Descending {
			return !less
		}
		return less
	})
	return out, nil
}

func (r *memoryRepository) FindByID(ctx context.Context, id string) (Product, error) {
	if err := r.wait(ctx); err != nil {
		return Product{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) Insert(ctx context.Context, product Product) (Product, error) {
	if err := r.wait(ctx); err != nil {
		return Product{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return Product{}, r.insertErr
	}
	if _, exists := r.products[product.ID]; exists {
		return Product{}, ErrDuplicate
	}
	product.ImageURLs = nil
	r.products[product.ID] = product
	return product, nil
}

func (r *memoryRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return 0, nil
	}
	delete(r.products, id)
	return 1, nil
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products)
}

var _ Repository = (*memoryRepository)(nil)

const testMaxFileSize = 4096

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngOfSize(size int) []byte {
	data := make([]byte, size)
	copy(data, pngHeader)
	return data
}

func upload(name string, data []byte) FileUpload {
	return FileUpload{
		Filename: name,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func pillowInput(files ...FileUpload) CreateProductInput {
	return CreateProductInput{
		Name:        "Travel Pillow",
		Price:       "150000",
		Description: "Soft",
		Category:    "Travel Comfort",
		Files:       files,
	}
}

func newTestMediaStore(t *testing.T) *media.Store {
	t.Helper()
	store := media.NewStore(media.Config{Root: filepath.Join(t.TempDir(), "uploads"), MaxFileSize: testMaxFileSize})
	require.NoError(t, store.EnsureRoot())
	return store
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2024, 5, 1, 8, 0, 0, 123456789, time.FixedZone("WIB", 7*3600))
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func newTestService(t *testing.T) (*Service, *memoryRepository, *media.Store) {
	t.Helper()
	repo := newMemoryRepository()
	store := newTestMediaStore(t)
	svc := NewService(repo, store, ServiceConfig{Timeout: time.Second})
	svc.now = steppingClock()
	return svc, repo, store
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
