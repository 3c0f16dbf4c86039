package httpsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
	"github.com/vladislavdragonenkov/epiccart/internal/service/orders"
)

// Запросы принимают только перечисленные поля; цены и прочее от клиента игнорируются.

type orderItemRequest struct {
	ID      string `json:"_id"`
	Product string `json:"product"`
	Qty     int    `json:"qty"`
}

func (i orderItemRequest) productID() string {
	if i.ID != "" {
		return i.ID
	}
	return i.Product
}

type shippingAddressDTO struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type createOrderRequest struct {
	OrderItems      []orderItemRequest `json:"orderItems"`
	ShippingAddress shippingAddressDTO `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
}

func (req createOrderRequest) toInput(ownerID string) orders.CreateOrderInput {
	items := make([]orders.RequestedItem, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		items = append(items, orders.RequestedItem{ProductID: item.productID(), Qty: item.Qty})
	}
	return orders.CreateOrderInput{
		OwnerID: ownerID,
		Items:   items,
		ShippingAddress: domain.ShippingAddress{
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		PaymentMethod: req.PaymentMethod,
	}
}

type payOrderRequest struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	UpdateTime string `json:"update_time"`
	Payer      struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

func (req payOrderRequest) toResult() domain.PaymentResult {
	return domain.PaymentResult{
		ExternalID: req.ID,
		Status:     req.Status,
		UpdateTime: req.UpdateTime,
		PayerEmail: req.Payer.EmailAddress,
	}
}

type orderItemResponse struct {
	Product string `json:"product"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Price   string `json:"price"`
	Qty     int    `json:"qty"`
}

type paymentResultResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

type orderResponse struct {
	ID              string                 `json:"_id"`
	User            string                 `json:"user"`
	OrderItems      []orderItemResponse    `json:"orderItems"`
	ShippingAddress shippingAddressDTO     `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	State           string                 `json:"state"`
	ItemsPrice      string                 `json:"itemsPrice"`
	ShippingPrice   string                 `json:"shippingPrice"`
	TaxPrice        string                 `json:"taxPrice"`
	TotalPrice      string                 `json:"totalPrice"`
	IsPaid          bool                   `json:"isPaid"`
	PaidAt          *time.Time             `json:"paidAt,omitempty"`
	PaymentResult   *paymentResultResponse `json:"paymentResult,omitempty"`
	IsDelivered     bool                   `json:"isDelivered"`
	DeliveredAt     *time.Time             `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			Product: item.ProductID,
			Name:    item.Name,
			Image:   item.Image,
			Price:   money(item.Price),
			Qty:     item.Qty,
		})
	}

	resp := orderResponse{
		ID:         order.ID,
		User:       order.OwnerID,
		OrderItems: items,
		ShippingAddress: shippingAddressDTO{
			Address:    order.ShippingAddress.Address,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		PaymentMethod: order.PaymentMethod,
		State:         string(order.State()),
		ItemsPrice:    money(order.ItemsPrice),
		ShippingPrice: money(order.ShippingPrice),
		TaxPrice:      money(order.TaxPrice),
		TotalPrice:    money(order.TotalPrice),
		IsPaid:        order.IsPaid,
		PaidAt:        order.PaidAt,
		IsDelivered:   order.IsDelivered,
		DeliveredAt:   order.DeliveredAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	if order.PaymentResult != nil {
		resp.PaymentResult = &paymentResultResponse{
			ID:           order.PaymentResult.ExternalID,
			Status:       order.PaymentResult.Status,
			UpdateTime:   order.PaymentResult.UpdateTime,
			EmailAddress: order.PaymentResult.PayerEmail,
		}
	}
	return resp
}

func toOrderResponses(list []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, order := range list {
		out = append(out, toOrderResponse(order))
	}
	return out
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func toTimelineResponses(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, timelineEventResponse{Type: ev.Type, Reason: ev.Reason, OccurredAt: ev.Occurred})
	}
	return out
}

type dailySalesResponse struct {
	Date       string `json:"_id"`
	TotalSales string `json:"totalSales"`
}

func toDailySalesResponses(sales []domain.DailySales) []dailySalesResponse {
	out := make([]dailySalesResponse, 0, len(sales))
	for _, day := range sales {
		out = append(out, dailySalesResponse{Date: day.Date, TotalSales: money(day.TotalSales)})
	}
	return out
}
