package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bensupplier/catalog/internal/media"
)

// MediaStore is the subset of media.Store used by the service.
type MediaStore interface {
	Stage(ctx context.Context, r io.Reader, originalName string) (media.StagedFile, error)
	Commit(ctx context.Context, files ...media.StagedFile) error
	Discard(files ...media.StagedFile)
	MaxFileSize() int64
}

// Recorder receives catalog events for metrics.
type Recorder interface {
	ProductCreated()
	MediaStored(bytes int64)
}

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	// Timeout bounds every storage and media call. Zero means five seconds.
	Timeout time.Duration
	// MediaURLPrefix is joined with image names to build imageUrls.
	MediaURLPrefix string
	Logger         *slog.Logger
	Recorder       Recorder
}

// Service implements the catalog operations on top of a Repository and a
// MediaStore.
type Service struct {
	repo      Repository
	media     MediaStore
	logger    *slog.Logger
	recorder  Recorder
	timeout   time.Duration
	urlPrefix string
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string
}

// NewService constructs a Service.
func NewService(repo Repository, store MediaStore, cfg ServiceConfig) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.TrimRight(cfg.MediaURLPrefix, "/")
	if prefix == "" {
		prefix = "/uploads"
	}
	return &Service{
		repo:      repo,
		media:     store,
		logger:    logger,
		recorder:  cfg.Recorder,
		timeout:   timeout,
		urlPrefix: prefix,
		validate:  newValidator(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// List returns all products, newest first.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	products, err := s.repo.ListAll(ctx, SortByCreatedAt, Descending)
	if err != nil {
		return nil, wrapStorage(err)
	}
	out := make([]Product, 0, len(products))
	for _, p := range products {
		out = append(out, s.present(p))
	}
	return out, nil
}

// Get returns the product with id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	if id == "" {
		return Product{}, ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Product{}, wrapStorage(err)
	}
	return s.present(product), nil
}

// Create validates in, stages its images, stores the record and only then
// publishes the images. Staged files are discarded when any step fails.
func (s *Service) Create(ctx context.Context, in CreateProductInput) (Product, error) {
	product, err := s.normalise(in)
	if err != nil {
		return Product{}, err
	}
	if len(in.Files) > media.MaxFiles {
		return Product{}, wrapMedia(media.ErrTooManyFiles)
	}
	for _, f := range in.Files {
		if f.Size > s.media.MaxFileSize() {
			return Product{}, wrapMedia(media.ErrFileTooLarge)
		}
	}

	staged, err := s.stageAll(ctx, in.Files)
	if err != nil {
		return Product{}, err
	}

	product.ID = s.newID()
	product.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	product.Images = make([]string, 0, len(staged))
	for _, f := range staged {
		product.Images = append(product.Images, f.Name)
	}

	insertCtx, cancel := context.WithTimeout(ctx, s.timeout)
	stored, err := s.repo.Insert(insertCtx, product)
	cancel()
	if err != nil {
		s.media.Discard(staged...)
		return Product{}, wrapStorage(err)
	}

	// The record is visible now; publishing must not be cut short by the caller.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.media.Commit(commitCtx, staged...); err != nil {
		s.logger.Error("commit product images", slog.String("id", stored.ID), slog.Any("error", err))
		if _, delErr := s.repo.DeleteByID(commitCtx, stored.ID); delErr != nil {
			s.logger.Error("roll back product after image commit", slog.String("id", stored.ID), slog.Any("error", delErr))
		}
		s.media.Discard(staged...)
		return Product{}, wrapMedia(err)
	}

	if s.recorder != nil {
		s.recorder.ProductCreated()
		for _, f := range staged {
			s.recorder.MediaStored(f.Size)
		}
	}
	s.logger.Info("product created", slog.String("id", stored.ID), slog.Int("images", len(stored.Images)))
	return s.present(stored), nil
}

func (s *Service) stageAll(ctx context.Context, files []FileUpload) ([]media.StagedFile, error) {
	if len(files) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	staged := make([]media.StagedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("catalog: open upload %q: %w", f.Filename, err)
			}
			defer rc.Close()
			sf, err := s.media.Stage(gctx, rc, f.Filename)
			if err != nil {
				return err
			}
			staged[i] = sf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, sf := range staged {
			if sf.Name != "" {
				s.media.Discard(sf)
			}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, wrapStorage(err)
		}
		return nil, wrapMedia(err)
	}
	return staged, nil
}

// Delete removes the product record. Its image files are left on disk for
// the media reaper.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return wrapStorage(err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	s.logger.Info("product deleted", slog.String("id", id))
	return nil
}

// ReferencedImages returns the set of image names used by any product.
func (s *Service) ReferencedImages(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	products, err := s.repo.ListAll(ctx, SortByCreatedAt, Descending)
	if err != nil {
		return nil, wrapStorage(err)
	}
	refs := make(map[string]struct{})
	for _, p := range products {
		for _, img := range p.Images {
			refs[img] = struct{}{}
		}
	}
	return refs, nil
}

func (s *Service) present(p Product) Product {
	if p.Images == nil {
		p.Images = []string{}
	}
	p.ImageURLs = make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		p.ImageURLs = append(p.ImageURLs, s.urlPrefix+"/"+img)
	}
	return p
}
