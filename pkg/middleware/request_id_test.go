package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"settlement-service/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestIDMiddleware_GenerateID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(zap.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	responseID := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(responseID)
	assert.NoError(t, err)
	assert.Contains(t, w.Body.String(), responseID)
}

func TestRequestIDMiddleware_UseProvidedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(zap.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	providedID := uuid.New().String()
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, providedID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, providedID, w.Header().Get(RequestIDHeader))
}

// setupIdempotentRouter mounts a counting POST handler behind the same chain
// cmd/api uses for protected write routes
func setupIdempotentRouter(store RequestIDStore, userID string, status int, calls *int32) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	router := gin.New()
	router.Use(RequestIDMiddleware(logger))
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	router.Use(IdempotencyMiddleware(store, logger))
	router.Use(StoreResponseMiddleware(store, logger, 5*time.Minute))
	router.POST("/orders", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	return router
}

func post(router *gin.Engine, requestID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/orders", nil)
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotencyMiddleware_ReplaysStatusAndBody(t *testing.T) {
	var calls int32
	router := setupIdempotentRouter(NewInMemoryRequestIDStore(), "admin", http.StatusCreated, &calls)
	requestID := uuid.New().String()

	first := post(router, requestID)
	second := post(router, requestID)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotencyMiddleware_WithoutHeaderAlwaysExecutes(t *testing.T) {
	var calls int32
	router := setupIdempotentRouter(NewInMemoryRequestIDStore(), "admin", http.StatusCreated, &calls)

	post(router, "")
	post(router, "")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyMiddleware_FailedResponsesAreNotStored(t *testing.T) {
	var calls int32
	router := setupIdempotentRouter(NewInMemoryRequestIDStore(), "admin", http.StatusConflict, &calls)
	requestID := uuid.New().String()

	post(router, requestID)
	post(router, requestID)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyMiddleware_ScopedToUser(t *testing.T) {
	var calls int32
	store := NewInMemoryRequestIDStore()
	requestID := uuid.New().String()

	post(setupIdempotentRouter(store, "admin", http.StatusCreated, &calls), requestID)
	w := post(setupIdempotentRouter(store, "operator", http.StatusCreated, &calls), requestID)

	assert.Empty(t, w.Header().Get(ReplayedHeader))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyMiddleware_CacheBackedStore(t *testing.T) {
	var calls int32
	store := NewCacheRequestIDStore(cache.NewInMemoryCache(zap.NewNop()))
	router := setupIdempotentRouter(store, "admin", http.StatusCreated, &calls)
	requestID := uuid.New().String()

	post(router, requestID)
	second := post(router, requestID)

	var body map[string]int
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, 1, body["call"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotencyMiddleware_GETRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewInMemoryRequestIDStore()
	router := gin.New()
	router.Use(RequestIDMiddleware(zap.NewNop()))
	router.Use(IdempotencyMiddleware(store, zap.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "response"})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestInMemoryRequestIDStore_Expiration(t *testing.T) {
	store := NewInMemoryRequestIDStore()
	defer store.Stop()
	requestID := uuid.New().String()

	err := store.Store(context.Background(), requestID, []byte(`{"message":"test"}`), 100*time.Millisecond)
	require.NoError(t, err)

	exists, err := store.Exists(context.Background(), requestID)
	require.NoError(t, err)
	assert.True(t, exists)

	time.Sleep(150 * time.Millisecond)

	exists, err = store.Exists(context.Background(), requestID)
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = store.Get(context.Background(), requestID)
	assert.Equal(t, ErrRequestIDNotFound, err)
}

func TestCacheRequestIDStore_Miss(t *testing.T) {
	store := NewCacheRequestIDStore(cache.NewInMemoryCache(zap.NewNop()))

	_, err := store.Get(context.Background(), "missing")

	assert.Equal(t, ErrRequestIDNotFound, err)
}
