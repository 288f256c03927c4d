package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bensupplier/catalog/internal/media"
	"github.com/bensupplier/catalog/internal/platform/httpx"
	"github.com/bensupplier/catalog/internal/shared"
)

const (
	imagesField       = "images"
	idempotencyHeader = "Idempotency-Key"
	idempotencyScope  = "products"
	multipartMemory   = 8 << 20
	formOverhead      = 1 << 20
)

// Handler exposes the catalog REST API.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	idempotency  *shared.IdempotencyStore
	auditLogger  *shared.AuditLogger
	requireAdmin func(http.Handler) http.Handler
	maxBody      int64
}

// HandlerConfig collects Handler dependencies. Idempotency and RequireAdmin
// are optional.
type HandlerConfig struct {
	Logger       *slog.Logger
	Service      *Service
	Idempotency  *shared.IdempotencyStore
	RequireAdmin func(http.Handler) http.Handler
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:       logger,
		service:      cfg.Service,
		idempotency:  cfg.Idempotency,
		auditLogger:  shared.NewAuditLogger(logger),
		requireAdmin: cfg.RequireAdmin,
		maxBody:      int64(media.MaxFiles)*cfg.Service.media.MaxFileSize() + formOverhead,
	}
}

// MountRoutes registers the product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Group(func(r chi.Router) {
		if h.requireAdmin != nil {
			r.Use(h.requireAdmin)
		}
		r.Post("/", h.create)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, r, err, "Failed to fetch products")
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err, "Failed to fetch product")
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httpx.Error(w, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	key := r.Header.Get(idempotencyHeader)
	scope := idempotencyScopeFor(r)
	if key != "" && h.idempotency != nil {
		existingID, err := h.idempotency.Begin(r.Context(), scope, key)
		if err != nil {
			h.respondError(w, r, err, "Failed to create product")
			return
		}
		if existingID != "" {
			h.replay(w, r, existingID)
			return
		}
	}

	created, err := h.service.Create(r.Context(), createInput(r.MultipartForm))
	// The outcome must be recorded even if the client has gone away, or the
	// key would stay pending until it expires.
	keyCtx := context.WithoutCancel(r.Context())
	if err != nil {
		if key != "" && h.idempotency != nil {
			if relErr := h.idempotency.Release(keyCtx, scope, key); relErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		h.respondError(w, r, err, "Failed to create product")
		return
	}
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Complete(keyCtx, scope, key, created.ID); err != nil {
			h.logger.Warn("complete idempotency key", slog.String("id", created.ID), slog.Any("error", err))
		}
	}
	h.audit(r, "product.create", created.ID, map[string]any{"images": len(created.Images)})
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request, id string) {
	product, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpx.Error(w, http.StatusConflict, "the product created with this Idempotency-Key has been deleted")
		return
	}
	if err != nil {
		h.respondError(w, r, err, "Failed to create product")
		return
	}
	w.Header().Set("Idempotent-Replayed", "true")
	httpx.JSON(w, http.StatusCreated, product)
}

// idempotencyScopeFor keeps each operator's keys apart. The operator name is
// escaped so it cannot contain the ':' separator.
func idempotencyScopeFor(r *http.Request) string {
	return idempotencyScope + ":" + url.QueryEscape(shared.OperatorFromContext(r.Context()))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err, "Failed to delete product")
		return
	}
	h.audit(r, "product.delete", id, nil)
	httpx.Message(w, http.StatusOK, "Product deleted successfully")
}

func (h *Handler) audit(r *http.Request, action, id string, meta map[string]any) {
	err := h.auditLogger.Record(r.Context(), shared.AuditLog{
		Action:    action,
		Entity:    "product",
		EntityID:  id,
		RequestID: middleware.GetReqID(r.Context()),
		Meta:      meta,
	})
	if err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}

type validationBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		httpx.JSON(w, http.StatusBadRequest, validationBody{Error: verr.Error(), Fields: verr.Fields})
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(fallback,
			slog.Any("error", err),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
	httpx.RespondError(w, err, fallback)
}

func createInput(form *multipart.Form) CreateProductInput {
	value := func(name string) string {
		if vs := form.Value[name]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}
	in := CreateProductInput{
		Name:        value("name"),
		Price:       value("price"),
		Description: value("description"),
		Category:    value("category"),
	}
	for _, fh := range form.File[imagesField] {
		in.Files = append(in.Files, FileUpload{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open:     func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return in
}
