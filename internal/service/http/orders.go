package httpsvc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/epiccart/internal/auth"
	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

const maxBodyBytes = 1 << 20

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.Create(r.Context(), req.toInput(identity.UserID))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to create order")
		return
	}
	writeSuccess(w, http.StatusCreated, "Order created successfully", toOrderResponse(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	list, err := h.orders.List(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to retrieve orders")
		return
	}
	writeSuccess(w, http.StatusOK, "Orders retrieved successfully", toOrderResponses(list))
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	list, err := h.orders.ListByOwner(r.Context(), identity.UserID, limit)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to retrieve user orders")
		return
	}
	writeSuccess(w, http.StatusOK, "User orders retrieved successfully", toOrderResponses(list))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r, "Failed to retrieve order")
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, "Order retrieved successfully", toOrderResponse(order))
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r, "Failed to retrieve order timeline")
	if !ok {
		return
	}
	events, err := h.orders.Timeline(r.Context(), order.ID)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to retrieve order timeline")
		return
	}
	writeSuccess(w, http.StatusOK, "Order timeline retrieved successfully", toTimelineResponses(events))
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	var req payOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.Pay(r.Context(), chi.URLParam(r, "id"), req.toResult())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to mark order as paid")
		return
	}
	writeSuccess(w, http.StatusOK, "Order marked as paid successfully", toOrderResponse(order))
}

func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Deliver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to mark order as delivered")
		return
	}
	writeSuccess(w, http.StatusOK, "Order marked as delivered successfully", toOrderResponse(order))
}

func (h *Handler) countOrders(w http.ResponseWriter, r *http.Request) {
	total, err := h.orders.CountOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to count orders")
		return
	}
	writeSuccess(w, http.StatusOK, "Total orders counted successfully", map[string]int64{"totalOrders": total})
}

func (h *Handler) totalSales(w http.ResponseWriter, r *http.Request) {
	total, err := h.orders.TotalSales(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to calculate total sales")
		return
	}
	writeSuccess(w, http.StatusOK, "Total sales calculated successfully", map[string]string{"totalSales": money(total)})
}

func (h *Handler) salesByDate(w http.ResponseWriter, r *http.Request) {
	sales, err := h.orders.SalesByDate(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to retrieve sales by date")
		return
	}
	writeSuccess(w, http.StatusOK, "Sales by date retrieved successfully", toDailySalesResponses(sales))
}

func (h *Handler) paypalConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"clientId": h.paypalClientID})
}

// loadVisibleOrder читает заказ и проверяет, что он принадлежит пользователю либо пользователь является админом.
func (h *Handler) loadVisibleOrder(w http.ResponseWriter, r *http.Request, fallback string) (domain.Order, bool) {
	identity, _ := auth.FromContext(r.Context())

	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, fallback)
		return domain.Order{}, false
	}
	if order.OwnerID != identity.UserID && !identity.IsAdmin {
		writeFailure(w, r, http.StatusForbidden, "not authorized to view this order")
		return domain.Order{}, false
	}
	return order, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeFailure(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
