package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"settlement-service/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader is the HTTP header name for request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDContextKey is the context key for request ID
	RequestIDContextKey = "request_id"
	// ReplayedHeader marks a response served from the idempotency store
	ReplayedHeader = "X-Idempotent-Replay"
)

// RequestIDStore stores processed request IDs for idempotency
type RequestIDStore interface {
	// Store stores a request ID with its response
	Store(ctx context.Context, requestID string, response []byte, ttl time.Duration) error
	// Get retrieves a stored response by request ID
	Get(ctx context.Context, requestID string) ([]byte, error)
	// Exists checks if a request ID exists
	Exists(ctx context.Context, requestID string) (bool, error)
}

var ErrRequestIDNotFound = &RequestIDError{Message: "request ID not found"}

type RequestIDError struct {
	Message string
}

func (e *RequestIDError) Error() string {
	return e.Message
}

// InMemoryRequestIDStore is an in-memory implementation of RequestIDStore
type InMemoryRequestIDStore struct {
	mu      sync.Mutex
	store   map[string]requestIDEntry
	cleanup *time.Ticker
	done    chan struct{}
}

type requestIDEntry struct {
	response  []byte
	expiresAt time.Time
}

// NewInMemoryRequestIDStore creates a new in-memory request ID store
func NewInMemoryRequestIDStore() *InMemoryRequestIDStore {
	store := &InMemoryRequestIDStore{
		store:   make(map[string]requestIDEntry),
		cleanup: time.NewTicker(1 * time.Minute),
		done:    make(chan struct{}),
	}

	go store.cleanupExpired()

	return store
}

func (s *InMemoryRequestIDStore) Store(ctx context.Context, requestID string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store[requestID] = requestIDEntry{
		response:  response,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

func (s *InMemoryRequestIDStore) Get(ctx context.Context, requestID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(requestID)
	if !ok {
		return nil, ErrRequestIDNotFound
	}
	return entry.response, nil
}

func (s *InMemoryRequestIDStore) Exists(ctx context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(requestID)
	return ok, nil
}

// lookup must be called with mu held
func (s *InMemoryRequestIDStore) lookup(requestID string) (requestIDEntry, bool) {
	entry, exists := s.store[requestID]
	if !exists {
		return requestIDEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.store, requestID)
		return requestIDEntry{}, false
	}
	return entry, true
}

// Stop ends the background cleanup
func (s *InMemoryRequestIDStore) Stop() {
	s.cleanup.Stop()
	close(s.done)
}

func (s *InMemoryRequestIDStore) cleanupExpired() {
	for {
		select {
		case <-s.done:
			return
		case <-s.cleanup.C:
			s.mu.Lock()
			now := time.Now()
			for id, entry := range s.store {
				if now.After(entry.expiresAt) {
					delete(s.store, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// CacheRequestIDStore keeps idempotency records in the shared cache so
// replays work across instances
type CacheRequestIDStore struct {
	cache cache.Cache
}

// NewCacheRequestIDStore creates a RequestIDStore on top of c
func NewCacheRequestIDStore(c cache.Cache) *CacheRequestIDStore {
	return &CacheRequestIDStore{cache: c}
}

func idempotencyKey(requestID string) string {
	return "idempotency:" + requestID
}

func (s *CacheRequestIDStore) Store(ctx context.Context, requestID string, response []byte, ttl time.Duration) error {
	return s.cache.Set(ctx, idempotencyKey(requestID), response, ttl)
}

func (s *CacheRequestIDStore) Get(ctx context.Context, requestID string) ([]byte, error) {
	response, err := s.cache.Get(ctx, idempotencyKey(requestID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrRequestIDNotFound
	}
	return response, err
}

func (s *CacheRequestIDStore) Exists(ctx context.Context, requestID string) (bool, error) {
	return s.cache.Exists(ctx, idempotencyKey(requestID))
}

// RequestIDMiddleware extracts or generates X-Request-ID header
func RequestIDMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			logger.Debug("Generated new request ID",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
		}

		c.Set(RequestIDContextKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDContextKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// storedResponse is what the idempotency store keeps per request
type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// replayKey scopes a request ID to the caller and route, so one tenant can
// never be served another tenant's response
func replayKey(c *gin.Context, requestID string) string {
	return c.GetString("user_id") + ":" + c.Request.Method + ":" + c.FullPath() + ":" + requestID
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// IdempotencyMiddleware replays the stored response of a write request whose
// X-Request-ID was already processed successfully. It must run after
// authentication.
func IdempotencyMiddleware(store RequestIDStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWrite(c.Request.Method) || c.GetHeader(RequestIDHeader) == "" {
			c.Next()
			return
		}

		requestID := GetRequestID(c)
		key := replayKey(c, requestID)

		raw, err := store.Get(c.Request.Context(), key)
		if err != nil {
			if !errors.Is(err, ErrRequestIDNotFound) {
				// fail open
				logger.Warn("Error reading idempotency record",
					zap.String("request_id", requestID),
					zap.Error(err),
				)
			}
			c.Next()
			return
		}

		var cached storedResponse
		if err := json.Unmarshal(raw, &cached); err != nil || cached.Status == 0 {
			logger.Warn("Discarding unreadable idempotency record", zap.String("request_id", requestID))
			c.Next()
			return
		}

		logger.Info("Duplicate request detected, returning cached response",
			zap.String("request_id", requestID),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		c.Header(ReplayedHeader, "true")
		c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
		c.Abort()
	}
}

// StoreResponseMiddleware stores 2xx responses of write requests that carried
// an X-Request-ID. Register it after IdempotencyMiddleware so replays are not
// stored again.
func StoreResponseMiddleware(store RequestIDStore, logger *zap.Logger, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWrite(c.Request.Method) || c.GetHeader(RequestIDHeader) == "" {
			c.Next()
			return
		}

		requestID := GetRequestID(c)
		writer := &responseWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		// handler errors are rendered later by ErrorHandler
		status := writer.Status()
		if len(c.Errors) > 0 || len(writer.body) == 0 || status < 200 || status >= 300 {
			return
		}

		record, err := json.Marshal(storedResponse{Status: status, Body: writer.body})
		if err != nil {
			logger.Warn("Failed to encode idempotency record", zap.String("request_id", requestID), zap.Error(err))
			return
		}
		if err := store.Store(c.Request.Context(), replayKey(c, requestID), record, ttl); err != nil {
			logger.Warn("Failed to store response for idempotency",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			return
		}
		logger.Debug("Stored response for idempotency",
			zap.String("request_id", requestID),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
		)
	}
}

// responseWriter captures the response body
type responseWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body = append(w.body, s...)
	return w.ResponseWriter.WriteString(s)
}
