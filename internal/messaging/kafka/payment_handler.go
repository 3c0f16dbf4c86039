package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

// Payer — операция оплаты заказа.
type Payer interface {
	Pay(ctx context.Context, orderID string, result domain.PaymentResult) (domain.Order, error)
}

// NewPaymentHandler превращает PaymentCapturedEvent в вызов Pay. Некорректный запрос,
// неизвестный заказ и запрещённый переход не повторяются; сбой хранилища повторяется.
func NewPaymentHandler(payer Payer, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-consumer")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParsePaymentCapturedEvent(message)
		if err != nil {
			return err
		}

		order, err := payer.Pay(ctx, event.OrderID, domain.PaymentResult{
			ExternalID: event.ExternalID,
			Status:     event.Status,
			UpdateTime: event.UpdateTime,
			PayerEmail: event.PayerEmail,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, domain.ErrInvalidTransition) {
				return Permanent(err)
			}
			return err
		}

		logger.WithFields(log.Fields{
			"order_id":    order.ID,
			"external_id": event.ExternalID,
		}).Info("order paid from payment event")
		return nil
	}
}
