package httpsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

func TestIdempotentCreateReplaysResponse(t *testing.T) {
	env := newTestEnv(t)
	body := createBody(map[string]any{"_id": "p-80", "qty": 1})

	first, firstResp := env.do(t, http.MethodPost, "/api/orders", env.user, body, idempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second, secondResp := env.do(t, http.MethodPost, "/api/orders", env.user, body, idempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(idempotencyReplayHeader))
	assert.JSONEq(t, string(firstResp.Data), string(secondResp.Data))

	rec, resp := env.do(t, http.MethodGet, "/api/orders/total-orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalOrders":1}`, string(resp.Data))
}

func TestIdempotentCreateRejectsDifferentPayload(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/orders", env.user, createBody(map[string]any{"_id": "p-80", "qty": 1}), idempotencyKeyHeader, "key-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/api/orders", env.user, createBody(map[string]any{"_id": "p-80", "qty": 2}), idempotencyKeyHeader, "key-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, resp.Message, "different request payload")
}

func TestIdempotencyKeyIsScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	body := createBody(map[string]any{"_id": "p-40", "qty": 1})

	rec, _ := env.do(t, http.MethodPost, "/api/orders", env.user, body, idempotencyKeyHeader, "shared")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/orders", env.other, body, idempotencyKeyHeader, "shared")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get(idempotencyReplayHeader))
}

func TestIdempotentFailureIsReplayed(t *testing.T) {
	env := newTestEnv(t)
	body := createBody(map[string]any{"_id": "missing", "qty": 1})

	first, _ := env.do(t, http.MethodPost, "/api/orders", env.user, body, idempotencyKeyHeader, "key-404")
	require.Equal(t, http.StatusNotFound, first.Code)

	second, resp := env.do(t, http.MethodPost, "/api/orders", env.user, body, idempotencyKeyHeader, "key-404")
	assert.Equal(t, http.StatusNotFound, second.Code)
	assert.Equal(t, "true", second.Header().Get(idempotencyReplayHeader))
	assert.Contains(t, resp.Message, "missing")
}

func TestIdempotentPay(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, env.user, map[string]any{"_id": "p-40", "qty": 1})
	path := "/api/orders/" + order.ID + "/pay"
	body := map[string]any{"id": "PAY-1", "status": "COMPLETED"}

	first, firstResp := env.do(t, http.MethodPut, path, env.user, body, idempotencyKeyHeader, "pay-1")
	require.Equal(t, http.StatusOK, first.Code)

	time.Sleep(5 * time.Millisecond)
	second, secondResp := env.do(t, http.MethodPut, path, env.user, body, idempotencyKeyHeader, "pay-1")
	require.Equal(t, http.StatusOK, second.Code)

	var a, b orderResponse
	require.NoError(t, json.Unmarshal(firstResp.Data, &a))
	require.NoError(t, json.Unmarshal(secondResp.Data, &b))
	require.NotNil(t, a.PaidAt)
	assert.True(t, a.PaidAt.Equal(*b.PaidAt), "replayed pay must not re-run the transition")
}

type processingRepo struct {
	domain.IdempotencyRepository
	record domain.IdempotencyRecord
	err    error
}

func (r processingRepo) CreateProcessing(context.Context, string, string, time.Time) (domain.IdempotencyRecord, error) {
	return r.record, r.err
}

func TestReplayIdempotency_States(t *testing.T) {
	tests := []struct {
		name   string
		record domain.IdempotencyRecord
		err    error
		status int
	}{
		{
			name:   "still processing",
			record: domain.IdempotencyRecord{Status: domain.IdempotencyStatusProcessing},
			err:    domain.ErrIdempotencyKeyAlreadyExists,
			status: http.StatusConflict,
		},
		{
			name:   "empty cache",
			record: domain.IdempotencyRecord{Status: domain.IdempotencyStatusDone},
			err:    domain.ErrIdempotencyKeyAlreadyExists,
			status: http.StatusInternalServerError,
		},
		{
			name:   "storage failure",
			err:    errors.New("redis down"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			h := NewHandler(nil, env.tokens, WithIdempotency(processingRepo{record: tc.record, err: tc.err}))
			env.handler = h.Router()

			rec, resp := env.do(t, http.MethodPost, "/api/orders", env.user, createBody(), idempotencyKeyHeader, "k")
			assert.Equal(t, tc.status, rec.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestRequestHash(t *testing.T) {
	base := requestHash(http.MethodPost, "/api/orders", "user-1", []byte(`{"a":1}`))

	assert.Equal(t, base, requestHash(http.MethodPost, "/api/orders", "user-1", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, requestHash(http.MethodPut, "/api/orders", "user-1", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, requestHash(http.MethodPost, "/api/orders", "user-2", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, requestHash(http.MethodPost, "/api/orders", "user-1", []byte(`{"a":2}`)))
}
