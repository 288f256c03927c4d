// Package media persists uploaded product images under the public media root.
//
// Uploads are written to a staging directory first and only renamed into the
// public root once the owning product record is stored, so a failed create
// never leaves a servable file behind.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/bensupplier/catalog/internal/platform/httpx"
)

const (
	// MaxFiles is the number of images accepted per product.
	MaxFiles = 4
	// DefaultMaxFileSize bounds a single image (5 MiB).
	DefaultMaxFileSize int64 = 5 << 20

	namePrefix = "product-"
	sniffLen   = 3072
)

var (
	ErrFileTooLarge    = httpx.NewError(httpx.ErrTooLarge, "image exceeds the maximum file size")
	ErrTooManyFiles    = httpx.NewError(httpx.ErrValidation, fmt.Sprintf("at most %d images are allowed", MaxFiles))
	ErrUnsupportedType = httpx.NewError(httpx.ErrUnsupportedMedia, "only JPEG, PNG, GIF and WebP images are allowed")
	ErrEmptyFile       = httpx.NewError(httpx.ErrValidation, "image file is empty")
	ErrInvalidName     = errors.New("media: invalid file name")
)

// allowedTypes maps accepted sniffed MIME types to the extension written to disk.
var allowedTypes = []struct {
	mime string
	ext  string
}{
	{"image/jpeg", ".jpg"},
	{"image/png", ".png"},
	{"image/gif", ".gif"},
	{"image/webp", ".webp"},
}

// Config configures a Store.
type Config struct {
	Root        string
	MaxFileSize int64
}

// StagedFile is an accepted upload waiting to be committed.
type StagedFile struct {
	Name        string
	Size        int64
	ContentType string
}

// Store writes images below Root. A Store is safe for concurrent use.
type Store struct {
	root    string
	staging string
	maxSize int64
	now     func() time.Time
	newID   func() string
}

// NewStore builds a Store. Call EnsureRoot before serving traffic.
func NewStore(cfg Config) *Store {
	root := filepath.Clean(cfg.Root)
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Store{
		root:    root,
		staging: root + ".staging",
		maxSize: maxSize,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Root returns the public media directory.
func (s *Store) Root() string { return s.root }

// MaxFileSize returns the per-file byte limit.
func (s *Store) MaxFileSize() int64 { return s.maxSize }

// EnsureRoot creates the media root and staging directories if absent.
func (s *Store) EnsureRoot() error {
	for _, dir := range []string{s.root, s.staging} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("media: create %s: %w", dir, err)
		}
	}
	return nil
}

// Stage validates and writes r to the staging area under a fresh name.
func (s *Store) Stage(ctx context.Context, r io.Reader, originalName string) (StagedFile, error) {
	if err := ctx.Err(); err != nil {
		return StagedFile{}, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return StagedFile{}, fmt.Errorf("media: read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return StagedFile{}, ErrEmptyFile
	}
	if int64(n) > s.maxSize {
		return StagedFile{}, ErrFileTooLarge
	}

	contentType, ext, ok := sniff(head)
	if !ok {
		return StagedFile{}, ErrUnsupportedType
	}
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(originalName))
	}

	name := namePrefix + s.newID() + ext
	path := filepath.Join(s.staging, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return StagedFile{}, fmt.Errorf("media: create staged file: %w", err)
	}

	written, err := s.copy(ctx, f, head, r)
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("media: close staged file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return StagedFile{}, err
	}

	return StagedFile{Name: name, Size: written, ContentType: contentType}, nil
}

func (s *Store) copy(ctx context.Context, dst io.Writer, head []byte, rest io.Reader) (int64, error) {
	if _, err := dst.Write(head); err != nil {
		return 0, fmt.Errorf("media: write staged file: %w", err)
	}
	remaining := s.maxSize - int64(len(head))
	// One byte past the limit is enough to tell an oversized upload apart.
	n, err := io.Copy(dst, io.LimitReader(contextReader{ctx: ctx, r: rest}, remaining+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("media: write staged file: %w", err)
	}
	if n > remaining {
		return 0, ErrFileTooLarge
	}
	return int64(len(head)) + n, nil
}

// Commit moves staged files into the public root in order.
func (s *Store) Commit(ctx context.Context, files ...StagedFile) error {
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !validName(file.Name) {
			return ErrInvalidName
		}
		if err := os.Rename(filepath.Join(s.staging, file.Name), filepath.Join(s.root, file.Name)); err != nil {
			return fmt.Errorf("media: commit %s: %w", file.Name, err)
		}
	}
	return nil
}

// Discard removes staged files. Missing files are ignored.
func (s *Store) Discard(files ...StagedFile) {
	for _, file := range files {
		if !validName(file.Name) {
			continue
		}
		_ = os.Remove(filepath.Join(s.staging, file.Name))
	}
}

// Store stages and immediately commits a single file, returning its name.
func (s *Store) Store(ctx context.Context, r io.Reader, originalName string) (string, error) {
	staged, err := s.Stage(ctx, r, originalName)
	if err != nil {
		return "", err
	}
	if err := s.Commit(ctx, staged); err != nil {
		s.Discard(staged)
		return "", err
	}
	return staged.Name, nil
}

func sniff(head []byte) (string, string, bool) {
	mt := mimetype.Detect(head)
	for _, t := range allowedTypes {
		if mt.Is(t.mime) {
			return t.mime, t.ext, true
		}
	}
	return "", "", false
}

func validName(name string) bool {
	return name != "" && name == filepath.Base(name) && !strings.HasPrefix(name, ".")
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
