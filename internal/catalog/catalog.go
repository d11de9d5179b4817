// Package catalog предоставляет доступ к каталогу товаров: базовой цене
// и действующей скидке.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrProductNotFound возвращается, если товар с указанным идентификатором не найден.
var ErrProductNotFound = errors.New("product not found")

// Discount описывает процентную скидку, действующую в интервале
// [StartAt, EndAt] включительно.
type Discount struct {
	Percent int
	StartAt time.Time
	EndAt   time.Time
}

// Product содержит данные товара, необходимые для оформления заказа.
// Discount равен nil, если для товара скидка не заведена.
type Product struct {
	ID        uuid.UUID
	Title     string
	BasePrice decimal.Decimal
	ImageURL  *string
	Discount  *Discount
}

// Service описывает контракт каталога, используемый при оформлении заказа.
type Service interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}
