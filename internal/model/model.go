// Package model содержит доменные сущности интернет-магазина.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentType описывает способ оплаты заказа. Набор значений закрыт.
type PaymentType string

const (
	PaymentPayme PaymentType = "PAYME"
	PaymentClick PaymentType = "CLICK"
	PaymentUzum  PaymentType = "UZUM"
	PaymentCash  PaymentType = "CASH"
)

// Valid сообщает, входит ли значение в допустимый набор способов оплаты.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentPayme, PaymentClick, PaymentUzum, PaymentCash:
		return true
	}
	return false
}

// DeliveryType описывает способ получения заказа. Набор значений закрыт.
type DeliveryType string

const (
	DeliveryCourier DeliveryType = "DELIVERY"
	DeliveryPickup  DeliveryType = "PICKUP"
)

// Valid сообщает, входит ли значение в допустимый набор способов доставки.
func (t DeliveryType) Valid() bool {
	switch t {
	case DeliveryCourier, DeliveryPickup:
		return true
	}
	return false
}

// Customer представляет покупателя. Создаётся и изменяется внешней
// системой аутентификации, здесь используется только для чтения.
type Customer struct {
	ID          uuid.UUID
	Email       *string
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	CreatedAt   time.Time
}

// Address — адрес доставки. Создаётся заново для каждого заказа и
// после создания не изменяется.
type Address struct {
	ID           uuid.UUID
	Country      string
	Address      string
	Floor        string
	Apartment    string
	IntercomCode string
	PhoneNumber  string
	CreatedAt    time.Time
}

// PaymentMethod — запись способа оплаты, общая для всех заказов с этим типом.
type PaymentMethod struct {
	ID        uuid.UUID
	Type      PaymentType
	CreatedAt time.Time
}

// DeliveryMethod — запись способа доставки, общая для всех заказов с этим типом.
type DeliveryMethod struct {
	ID        uuid.UUID
	Type      DeliveryType
	CreatedAt time.Time
}

// Order описывает заказ покупателя. Number — шестизначный номер,
// уникальный среди всех заказов. TotalPrice вычисляется один раз при
// создании как сумма позиций и далее не редактируется.
type Order struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Number     string
	AddressID  uuid.UUID
	PaymentID  uuid.UUID
	DeliveryID uuid.UUID
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
}

// OrderItem — позиция заказа: товар и количество (не меньше единицы).
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	CreatedAt time.Time
}
