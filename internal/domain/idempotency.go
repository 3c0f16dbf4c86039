package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// IdempotencyStatusFailed: ответ с кодом 4xx/5xx, он тоже повторяется клиенту.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyTTL задаёт срок хранения ответа по ключу.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyRecord хранит запрос, пришедший с Idempotency-Key, и сохранённый ответ на него.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// StatusForHTTP выбирает итоговый статус записи по коду ответа.
func StatusForHTTP(httpStatus int) IdempotencyStatus {
	if httpStatus >= 400 {
		return IdempotencyStatusFailed
	}
	return IdempotencyStatusDone
}

// ScopedIdempotencyKey ограничивает ключ клиента пользователем: одинаковые ключи разных
// пользователей не пересекаются.
func ScopedIdempotencyKey(ownerID, key string) string {
	return strings.TrimSpace(ownerID) + ":" + strings.TrimSpace(key)
}

// Expired сообщает, истёк ли срок записи к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Finished сообщает, что обработка завершена и ответ сохранён.
func (r IdempotencyRecord) Finished() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Replayable сообщает, можно ли вернуть сохранённый ответ вместо повторной обработки.
func (r IdempotencyRecord) Replayable() bool {
	return r.Finished() && r.HTTPStatus != 0 && len(r.ResponseBody) > 0
}
