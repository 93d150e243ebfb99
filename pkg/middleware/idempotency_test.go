package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: make(map[string]string)}
}

func (m *memoryRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (m *memoryRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func setupIdempotencyRouter(store RedisClient, status *int, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Idempotency(&IdempotencyConfig{Redis: store}))
	router.POST("/bookings", func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"booking_id": "b-1"})
	})
	return router
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	status, calls := http.StatusCreated, 0
	router := setupIdempotencyRouter(newMemoryRedis(), &status, &calls)

	first := post(router, "key-1", `{"class_instance_id":"c-1"}`)
	second := post(router, "key-1", `{"class_instance_id":"c-1"}`)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotency_KeyReusedWithDifferentBody(t *testing.T) {
	status, calls := http.StatusCreated, 0
	router := setupIdempotencyRouter(newMemoryRedis(), &status, &calls)

	post(router, "key-1", `{"class_instance_id":"c-1"}`)
	w := post(router, "key-1", `{"class_instance_id":"c-2"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_KEY_REUSED")
	assert.Equal(t, 1, calls)
}

func TestIdempotency_ServerErrorsAreNotCached(t *testing.T) {
	status, calls := http.StatusInternalServerError, 0
	router := setupIdempotencyRouter(newMemoryRedis(), &status, &calls)

	post(router, "key-1", `{}`)
	status = http.StatusCreated
	w := post(router, "key-1", `{}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	status, calls := http.StatusCreated, 0
	router := setupIdempotencyRouter(newMemoryRedis(), &status, &calls)

	post(router, "", `{}`)
	post(router, "", `{}`)

	assert.Equal(t, 2, calls)
}

func TestIdempotency_InFlightRequestConflicts(t *testing.T) {
	store := newMemoryRedis()
	status, calls := http.StatusCreated, 0
	router := setupIdempotencyRouter(store, &status, &calls)

	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{}`))
	hash := hashRequest(&gin.Context{Request: req}, []byte(`{}`))
	_ = saveRecord(context.Background(), store, IdempotencyKeyPrefix+"key-1", &IdempotencyRecord{
		Key: "key-1", Status: StatusProcessing, RequestHash: hash,
	}, time.Minute)

	w := post(router, "key-1", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, calls)
}
