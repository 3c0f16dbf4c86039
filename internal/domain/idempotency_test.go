package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyStatusValid(t *testing.T) {
	assert.True(t, IdempotencyStatusProcessing.Valid())
	assert.True(t, IdempotencyStatusDone.Valid())
	assert.True(t, IdempotencyStatusFailed.Valid())
	assert.False(t, IdempotencyStatus("broken").Valid())
}

func TestStatusForHTTP(t *testing.T) {
	assert.Equal(t, IdempotencyStatusDone, StatusForHTTP(201))
	assert.Equal(t, IdempotencyStatusDone, StatusForHTTP(200))
	assert.Equal(t, IdempotencyStatusFailed, StatusForHTTP(409))
	assert.Equal(t, IdempotencyStatusFailed, StatusForHTTP(500))
}

func TestScopedIdempotencyKey(t *testing.T) {
	assert.Equal(t, "user-1:key", ScopedIdempotencyKey(" user-1", "key "))
	assert.NotEqual(t, ScopedIdempotencyKey("user-1", "key"), ScopedIdempotencyKey("user-2", "key"))
}

func TestIdempotencyRecordState(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		record     IdempotencyRecord
		expired    bool
		finished   bool
		replayable bool
	}{
		{
			name:   "processing",
			record: IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now.Add(time.Hour)},
		},
		{
			name:       "done with body",
			record:     IdempotencyRecord{Status: IdempotencyStatusDone, HTTPStatus: 201, ResponseBody: []byte(`{}`), TTLAt: now.Add(time.Hour)},
			finished:   true,
			replayable: true,
		},
		{
			name:       "failed with body",
			record:     IdempotencyRecord{Status: IdempotencyStatusFailed, HTTPStatus: 400, ResponseBody: []byte(`{}`), TTLAt: now.Add(time.Hour)},
			finished:   true,
			replayable: true,
		},
		{
			name:     "done without body",
			record:   IdempotencyRecord{Status: IdempotencyStatusDone, HTTPStatus: 201, TTLAt: now.Add(time.Hour)},
			finished: true,
		},
		{
			name:    "expired exactly at ttl",
			record:  IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now},
			expired: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expired, tc.record.Expired(now))
			assert.Equal(t, tc.finished, tc.record.Finished())
			assert.Equal(t, tc.replayable, tc.record.Replayable())
		})
	}
}
