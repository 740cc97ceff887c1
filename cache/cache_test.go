package cache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageKey(t *testing.T) {
	assert.Equal(t, PageKey("about"), PageKey("about"))
	assert.NotEqual(t, PageKey("about"), PageKey("contact"))
	assert.Len(t, PageKey("about"), len("page:")+16)
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_CopiesValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	value := []byte("original")
	require.NoError(t, store.Set(ctx, "k", value, 0))
	value[0] = 'X'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	require.NoError(t, store.Set(ctx, "short", []byte("v"), time.Millisecond))
	require.NoError(t, store.Set(ctx, "long", []byte("v"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "short2", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func setupTestRouter(store Store, calls *int32, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/pages/:slug",
		Middleware(store, time.Minute, func(c *gin.Context) string { return PageKey(c.Param("slug")) }),
		func(c *gin.Context) {
			atomic.AddInt32(calls, 1)
			c.JSON(status, gin.H{"slug": c.Param("slug")})
		})
	return router
}

func TestMiddleware_HitAfterMiss(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	var calls int32
	router := setupTestRouter(store, &calls, http.StatusOK)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pages/about", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pages/about", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"slug":"about"}`, w.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMiddleware_InvalidatedKeyMisses(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	var calls int32
	router := setupTestRouter(store, &calls, http.StatusOK)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pages/about", nil))
	require.NoError(t, store.Delete(context.Background(), PageKey("about")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pages/about", nil))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddleware_DoesNotCacheErrors(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	var calls int32
	router := setupTestRouter(store, &calls, http.StatusNotFound)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pages/missing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, store.Len())
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("STAVWEB_TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping Redis tests: STAVWEB_TEST_REDIS_URL not set")
	}

	store, err := NewRedisStore(url, "stavweb-test:", time.Minute)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedisStore_RequiresURL(t *testing.T) {
	_, err := NewRedisStore("", "p:", time.Minute)
	assert.Error(t, err)
}
