package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Категории ошибок. Конкретные ошибки оборачивают одну из них и проверяются через errors.Is.
var (
	// ErrInvalidRequest — запрос не прошёл валидацию.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound — заказ или товар не найден.
	ErrNotFound = errors.New("not found")
	// ErrPersistence — ошибка хранилища, повтор не выполняется.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidTransition — переход запрещён строгой политикой переходов.
	ErrInvalidTransition = errors.New("invalid transition")
)

var (
	// Ошибка отсутствующего владельца заказа.
	ErrOwnerRequired = newKindError(ErrInvalidRequest, "order owner is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = newKindError(ErrInvalidRequest, "no order items")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = newKindError(ErrInvalidRequest, "item qty must be greater than zero")
	// Ошибка, если у позиции не указан товар.
	ErrItemProductRequired = newKindError(ErrInvalidRequest, "item product id is required")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = newKindError(ErrInvalidRequest, "item price must be non-negative")
	// Ошибка несоответствия сохранённых цен пересчёту.
	ErrPriceMismatch = newKindError(ErrInvalidRequest, "order prices do not match items")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = newKindError(ErrInvalidRequest, "order id is required")
	// Оплаченный заказ без даты или результата оплаты.
	ErrPaymentDetailsMissing = newKindError(ErrInvalidRequest, "paid order must have paid_at and payment result")
	// Доставленный заказ без даты доставки.
	ErrDeliveryDateMissing = newKindError(ErrInvalidRequest, "delivered order must have delivered_at")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newKindError(ErrNotFound, "order not found")
	// ErrProductNotFound возвращается, если товар отсутствует в каталоге.
	ErrProductNotFound = newKindError(ErrNotFound, "product not found")

	// ErrOrderAlreadyPaid — повторная оплата при строгой политике.
	ErrOrderAlreadyPaid = newKindError(ErrInvalidTransition, "order already paid")
	// ErrOrderNotPaid — доставка неоплаченного заказа при строгой политике.
	ErrOrderNotPaid = newKindError(ErrInvalidTransition, "order is not paid")
	// ErrOrderAlreadyDelivered — повторная доставка при строгой политике.
	ErrOrderAlreadyDelivered = newKindError(ErrInvalidTransition, "order already delivered")
)

var (
	// ErrOrderAlreadyExists — запись с таким ID уже сохранена.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

type kindError struct {
	kind error
	msg  string
}

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// ProductsNotFoundError перечисляет все товары запроса, которых нет в каталоге.
type ProductsNotFoundError struct {
	IDs []string
}

func (e *ProductsNotFoundError) Error() string {
	return fmt.Sprintf("products not found: %s", strings.Join(e.IDs, ", "))
}

func (e *ProductsNotFoundError) Unwrap() error { return ErrProductNotFound }

// PersistenceError сохраняет имя операции и исходную причину сбоя хранилища.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrPersistence, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// WrapPersistence оборачивает ошибку хранилища. Категоризированные ошибки возвращаются как есть.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// ErrorKind — короткая метка категории ошибки для логов и метрик.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindInvalidRequest    ErrorKind = "invalid_request"
	ErrorKindNotFound          ErrorKind = "not_found"
	ErrorKindInvalidTransition ErrorKind = "invalid_transition"
	ErrorKindPersistence       ErrorKind = "persistence"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// KindOf определяет категорию ошибки.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrInvalidRequest):
		return ErrorKindInvalidRequest
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return ErrorKindInvalidTransition
	case errors.Is(err, ErrPersistence):
		return ErrorKindPersistence
	default:
		return ErrorKindUnknown
	}
}
