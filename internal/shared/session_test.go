package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func cookieFrom(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestUntouchedNewSessionIsNotStored(t *testing.T) {
	mr, client := newTestRedis(t)
	sm := NewSessionManager(client, "sid", "session-secret", time.Hour, false)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))
	assert.Empty(t, rr.Result().Cookies())
	assert.Empty(t, mr.Keys())
}

func TestSessionRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	sm := NewSessionManager(client, "sid", "session-secret", time.Hour, true)
	ctx := context.Background()

	sess := NewSession()
	sess.Set("k", "v")
	sess.SetUser("admin")
	sess.AddFlash(FlashMessage{Kind: "success", Message: "hi"})

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))
	cookie := cookieFrom(t, rr)
	assert.Equal(t, "sid", cookie.Name)
	assert.Equal(t, sm.sign(sess.ID), cookie.Value)
	assert.True(t, strings.HasPrefix(cookie.Value, sess.ID+"."))
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, time.Hour, mr.TTL(sessionKeyPrefix+sess.ID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "v", loaded.Get("k"))
	assert.Equal(t, "admin", loaded.User())

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "hi", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestLoadIgnoresForeignCookies(t *testing.T) {
	_, client := newTestRedis(t)
	sm := NewSessionManager(client, "sid", "session-secret", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "../../etc/passwd"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "../../etc/passwd", sess.ID)
	assert.Empty(t, sess.User())
}

func TestLoadExpiredSession(t *testing.T) {
	mr, client := newTestRedis(t)
	sm := NewSessionManager(client, "sid", "session-secret", time.Minute, false)
	ctx := context.Background()

	sess := NewSession()
	sess.SetUser("admin")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	mr.FastForward(2 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sm.sign(sess.ID)})
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, loaded.User())
	assert.NotEqual(t, sess.ID, loaded.ID)
}

func TestRenewDropsPreviousKey(t *testing.T) {
	mr, client := newTestRedis(t)
	sm := NewSessionManager(client, "sid", "session-secret", time.Hour, false)
	ctx := context.Background()

	sess := NewSession()
	sess.Set("k", "v")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	oldID := sess.ID

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sm.sign(oldID)})
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	loaded.Renew()
	loaded.SetUser("admin")

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, loaded))
	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists(sessionKeyPrefix+oldID))
	assert.True(t, mr.Exists(sessionKeyPrefix+loaded.ID))
	assert.Equal(t, sm.sign(loaded.ID), cookieFrom(t, rr).Value)
}

func TestUnchangedSessionRefreshesTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	sm := NewSessionManager(client, "sid", "session-secret", time.Hour, false)
	ctx := context.Background()

	sess := NewSession()
	sess.SetUser("admin")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	mr.FastForward(30 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sm.sign(sess.ID)})
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, loaded))
	assert.Equal(t, time.Hour, mr.TTL(sessionKeyPrefix+sess.ID))
	assert.Equal(t, sm.sign(sess.ID), cookieFrom(t, rr).Value)
}

func TestDestroyRemovesSession(t *testing.T) {
	mr, client := newTestRedis(t)
	sm := NewSessionManager(client, "sid", "session-secret", time.Hour, false)
	ctx := context.Background()

	sess := NewSession()
	sess.SetUser("admin")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))

	sm.Destroy(sess)
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))
	assert.False(t, mr.Exists(sessionKeyPrefix+sess.ID))
	assert.Negative(t, cookieFrom(t, rr).MaxAge)
}

func TestLoadRejectsUnsignedOrForgedCookies(t *testing.T) {
	_, client := newTestRedis(t)
	sm := NewSessionManager(client, "sid", "session-secret", time.Hour, false)
	ctx := context.Background()

	sess := NewSession()
	sess.SetUser("admin")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))

	other := NewSessionManager(client, "sid", "another-secret", time.Hour, false)
	for name, value := range map[string]string{
		"bare id":        sess.ID,
		"other secret":   other.sign(sess.ID),
		"tampered mac":   sess.ID + ".AAAA",
		"swapped id":     NewSession().ID + "." + strings.SplitN(sm.sign(sess.ID), ".", 2)[1],
		"not base64 mac": sess.ID + ".%%%",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "sid", Value: value})
			loaded, err := sm.Load(ctx, req)
			require.NoError(t, err)
			assert.Empty(t, loaded.User())
			assert.NotEqual(t, sess.ID, loaded.ID)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sm.sign(sess.ID)})
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "admin", loaded.User())
}
