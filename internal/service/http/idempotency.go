package httpsvc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/auth"
	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotent-Replayed"
	idempotencyStoreTimeout = 2 * time.Second
)

// idempotent запоминает ответ на запрос с заголовком Idempotency-Key и повторяет его
// для запроса с тем же ключом и телом. Без заголовка запрос проходит как обычно.
func (h *Handler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if h.idempotency == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, _ := auth.FromContext(r.Context())
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeFailure(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		scopedKey := domain.ScopedIdempotencyKey(identity.UserID, key)
		reqHash := requestHash(r.Method, r.URL.Path, identity.UserID, body)

		record, err := h.idempotency.CreateProcessing(r.Context(), scopedKey, reqHash, h.now().UTC().Add(domain.IdempotencyTTL))
		if err != nil {
			h.replayIdempotency(w, r, err, record)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Запрос клиента мог быть отменён, ответ всё равно нужно сохранить.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), idempotencyStoreTimeout)
		defer cancel()

		store := h.idempotency.MarkDone
		if domain.StatusForHTTP(rec.status) == domain.IdempotencyStatusFailed {
			store = h.idempotency.MarkFailed
		}
		if err := store(ctx, scopedKey, rec.body.Bytes(), rec.status); err != nil {
			h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
	})
}

func (h *Handler) replayIdempotency(w http.ResponseWriter, r *http.Request, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeFailure(w, r, http.StatusConflict, "idempotency key is already used with different request payload")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch {
		case record.Replayable():
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(idempotencyReplayHeader, "true")
			w.WriteHeader(record.HTTPStatus)
			_, _ = w.Write(record.ResponseBody)
		case record.Finished():
			writeFailure(w, r, http.StatusInternalServerError, "idempotency cache is empty")
		case record.Status == domain.IdempotencyStatusProcessing:
			writeFailure(w, r, http.StatusConflict, "request with the same idempotency key is already processing")
		default:
			writeFailure(w, r, http.StatusInternalServerError, "unknown idempotency record status")
		}
	default:
		h.logger.WithError(createErr).WithFields(log.Fields{
			"path": r.URL.Path,
		}).Warn("failed to create idempotency record")
		writeFailure(w, r, http.StatusInternalServerError, "failed to initialize idempotency request")
	}
}

func requestHash(method, path, ownerID string, body []byte) string {
	sum := sha256.New()
	for _, part := range []string{method, path, ownerID} {
		sum.Write([]byte(part))
		sum.Write([]byte{0})
	}
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// responseRecorder пишет ответ клиенту и одновременно копирует его для кэша.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
