package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bensupplier/catalog/internal/auth"
	"github.com/bensupplier/catalog/internal/catalog"
	"github.com/bensupplier/catalog/internal/media"
	"github.com/bensupplier/catalog/internal/observability"
	"github.com/bensupplier/catalog/internal/shared"
	"github.com/bensupplier/catalog/internal/view"
)

const routerAPIToken = "router-token"

var testPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type sliceRepository struct {
	mu       sync.Mutex
	products []catalog.Product
}

func (r *sliceRepository) ListAll(ctx context.Context, _ catalog.SortKey, _ catalog.SortDirection) ([]catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.Product, len(r.products))
	for i, p := range r.products {
		out[len(r.products)-1-i] = p
	}
	return out, nil
}

func (r *sliceRepository) FindByID(ctx context.Context, id string) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.ID == id {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (r *sliceRepository) Insert(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = append(r.products, p)
	return p, nil
}

func (r *sliceRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.products {
		if p.ID == id {
			r.products = append(r.products[:i], r.products[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type routerFixture struct {
	handler   http.Handler
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	mediaRoot string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	return newRouterFixtureWith(t, func(*Config) {})
}

func newRouterFixtureWith(t *testing.T, mutate func(*Config)) *routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{
		AppEnv:             "development",
		MediaURLPrefix:     "/uploads/",
		AppRequestTimeout:  5 * time.Second,
		RateLimitPerMinute: 1000,
	}
	mutate(cfg)

	templates, err := view.NewEngine()
	require.NoError(t, err)

	sessions := shared.NewSessionManager(client, "catalog_session", "session-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")

	hash, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	authService := auth.NewService(auth.NewStaticRepository("admin", string(hash)), routerAPIToken)

	root := filepath.Join(t.TempDir(), "uploads")
	store := media.NewStore(media.Config{Root: root, MaxFileSize: 4096})
	require.NoError(t, store.EnsureRoot())

	metrics := observability.NewMetrics()
	svc := catalog.NewService(&sliceRepository{}, store, catalog.ServiceConfig{
		Timeout:        time.Second,
		MediaURLPrefix: cfg.MediaURLPrefix,
		Logger:         logger,
		Recorder:       metrics,
	})

	handler := NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    auth.NewHandler(logger, authService, templates, sessions, csrf),
		CatalogHandler: catalog.NewHandler(catalog.HandlerConfig{
			Logger:       logger,
			Service:      svc,
			Idempotency:  shared.NewIdempotencyStore(client, time.Hour),
			RequireAdmin: authService.RequireOperator,
		}),
		Metrics:   metrics,
		MediaRoot: root,
	})
	return &routerFixture{handler: handler, sessions: sessions, csrf: csrf, mediaRoot: root}
}

func (f *routerFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

// signedIn stores an operator session in Redis and returns its cookie and
// CSRF token.
func (f *routerFixture) signedIn(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	sess := shared.NewSession()
	sess.SetUser("admin")
	token, err := f.csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	require.NoError(t, f.sessions.Commit(context.Background(), rr, sess))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], token
}

func productForm(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("name", "Travel Pillow"))
	require.NoError(t, mw.WriteField("price", "150000"))
	require.NoError(t, mw.WriteField("description", "Soft"))
	require.NoError(t, mw.WriteField("category", "Travel Comfort"))
	part, err := mw.CreateFormFile("images", "pillow.png")
	require.NoError(t, err)
	_, err = part.Write(testPNG)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestStorefrontIsAnonymous(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.serve(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Empty(t, rr.Result().Cookies(), "visitors get no session")
}

func TestAdminPageRequiresLogin(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.serve(httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))

	cookie, _ := f.signedIn(t)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(cookie)
	rr = f.serve(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Travel Comfort")
}

func TestAnonymousCreateIsUnauthorized(t *testing.T) {
	f := newRouterFixture(t)
	body, contentType := productForm(t)
	req := httptest.NewRequest(http.MethodPost, "/api/products", body)
	req.Header.Set("Content-Type", contentType)

	rr := f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBearerCreateServesMedia(t *testing.T) {
	f := newRouterFixture(t)
	body, contentType := productForm(t)
	req := httptest.NewRequest(http.MethodPost, "/api/products", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+routerAPIToken)

	rr := f.serve(req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created catalog.Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Len(t, created.ImageURLs, 1)
	assert.True(t, strings.HasPrefix(created.ImageURLs[0], "/uploads/"))

	rr = f.serve(httptest.NewRequest(http.MethodGet, created.ImageURLs[0], nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, testPNG, rr.Body.Bytes())
	assert.Contains(t, rr.Header().Get("Cache-Control"), "immutable")

	rr = f.serve(httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []catalog.Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
}

func TestWrongBearerTokenIsRejected(t *testing.T) {
	f := newRouterFixture(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/products/abc", nil)
	req.Header.Set("Authorization", "Bearer nope")

	rr := f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSessionWritesRequireCSRF(t *testing.T) {
	f := newRouterFixture(t)
	cookie, token := f.signedIn(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/products/abc", nil)
	req.AddCookie(cookie)
	rr := f.serve(req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/products/abc", nil)
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", token)
	rr = f.serve(req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLogoutFormCarriesCSRF(t *testing.T) {
	f := newRouterFixture(t)
	cookie, token := f.signedIn(t)

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		return f.serve(req)
	}

	assert.Equal(t, http.StatusForbidden, post(url.Values{}).Code)
	assert.Equal(t, http.StatusSeeOther, post(url.Values{"csrf_token": {token}}).Code)
}

func TestStaticAssets(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.serve(httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/css")
}

func TestMediaDirectoryIsNotListed(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, os.Mkdir(filepath.Join(f.mediaRoot, "nested"), 0o755))

	for _, path := range []string{"/uploads/", "/uploads/nested/", "/uploads/missing.png"} {
		rr := f.serve(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	f.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := f.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `catalog_http_requests_total{code="200",route="/healthz"}`)
}

func TestRateLimitSkipsFiles(t *testing.T) {
	f := newRouterFixtureWith(t, func(c *Config) { c.RateLimitPerMinute = 3 })
	require.NoError(t, os.WriteFile(filepath.Join(f.mediaRoot, "product-x.png"), testPNG, 0o644))

	for i := 0; i < 10; i++ {
		for _, path := range []string{"/uploads/product-x.png", "/static/css/app.css", "/healthz"} {
			rr := f.serve(httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, rr.Code, "%s request %d", path, i)
		}
	}

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		codes[f.serve(httptest.NewRequest(http.MethodGet, "/api/products", nil)).Code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 3, http.StatusTooManyRequests: 2}, codes)

	rr := f.serve(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "pages share the API budget")
}

func TestForgedSessionCookieIsAnonymous(t *testing.T) {
	f := newRouterFixture(t)
	cookie, _ := f.signedIn(t)
	id, _, _ := strings.Cut(cookie.Value, ".")

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: "catalog_session", Value: id})
	rr := f.serve(req)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}
