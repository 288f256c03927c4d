package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bensupplier/catalog/internal/auth"
	"github.com/bensupplier/catalog/internal/catalog"
	"github.com/bensupplier/catalog/internal/observability"
	"github.com/bensupplier/catalog/internal/platform/httpx"
	"github.com/bensupplier/catalog/internal/shared"
	"github.com/bensupplier/catalog/internal/view"
	"github.com/bensupplier/catalog/jobs"
	"github.com/bensupplier/catalog/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	CatalogHandler *catalog.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// MediaRoot is the directory served under Config.MediaURLPrefix.
	MediaRoot string
}

// NewRouter constructs the chi.Router with catalog defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Pages and API routes share one per-IP budget; files below are not counted.
	limiter := RateLimiter(params.Config)
	r.Group(func(r chi.Router) {
		r.Use(limiter)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			data := pageData(r, params, "Ben Supplier")
			if err := params.Templates.Render(w, http.StatusOK, "pages/storefront.html", data); err != nil {
				params.Logger.Error("render storefront", slog.Any("error", err))
			}
		})

		r.With(auth.RequireOperatorPage).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
			data := pageData(r, params, "Catalog Admin")
			data.Categories = catalog.Categories
			if err := params.Templates.Render(w, http.StatusOK, "pages/admin.html", data); err != nil {
				params.Logger.Error("render admin", slog.Any("error", err))
			}
		})

		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/api/products", params.CatalogHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", cacheHandler(fileServer, "public, max-age=3600"))
	}

	prefix := "/uploads"
	if params.Config != nil && params.Config.MediaURLPrefix != "" {
		prefix = strings.TrimRight(params.Config.MediaURLPrefix, "/")
	}
	// An absolute URL prefix means images are served by a CDN, not by us.
	if params.MediaRoot != "" && strings.HasPrefix(prefix, "/") && len(prefix) > 1 {
		media := http.StripPrefix(prefix+"/", http.FileServer(fileOnlyFS{http.Dir(params.MediaRoot)}))
		// Image names are never reused, so clients may keep them for a long time.
		r.Handle(prefix+"/*", cacheHandler(media, "public, max-age=604800, immutable"))
	}

	return r
}

// pageData fills the layout fields shared by every page. A CSRF token is only
// issued for signed-in operators so anonymous visitors leave no session behind.
func pageData(r *http.Request, params RouterParams, title string) view.TemplateData {
	data := view.TemplateData{Title: title, CurrentPath: r.URL.Path}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return data
	}
	data.Flash = sess.PopFlash()
	if user := sess.User(); user != "" {
		data.Operator = user
		token, err := params.CSRFManager.EnsureToken(r.Context(), sess)
		if err != nil {
			params.Logger.Error("issue csrf token", slog.Any("error", err))
		}
		data.CSRFToken = token
	}
	return data
}

// cacheHandler wraps a file server with a Cache-Control header.
func cacheHandler(next http.Handler, policy string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", policy)
		next.ServeHTTP(w, r)
	})
}

// fileOnlyFS hides directories so the media root cannot be listed.
type fileOnlyFS struct {
	fs http.FileSystem
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}
