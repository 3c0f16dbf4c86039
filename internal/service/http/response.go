package httpsvc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

// envelope задаёт общий формат ответов API.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeFailure совместима с auth.ErrorWriter.
func writeFailure(w http.ResponseWriter, _ *http.Request, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// statusFromError переводит категорию доменной ошибки в HTTP-статус.
func statusFromError(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrorKindInvalidRequest:
		return http.StatusBadRequest
	case domain.ErrorKindNotFound:
		return http.StatusNotFound
	case domain.ErrorKindInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError пишет ошибку сервиса. Детали сбоев хранилища клиенту не отдаются.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		entry := h.logger.WithError(err).WithField("path", r.URL.Path)
		var perr *domain.PersistenceError
		if errors.As(err, &perr) {
			entry = entry.WithField("op", perr.Op)
		}
		entry.Error(fallback)
		writeFailure(w, r, status, fallback)
		return
	}
	writeFailure(w, r, status, err.Error())
}
