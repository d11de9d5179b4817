// Package service реализует бизнес-логику оформления заказов.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bekzod-dev/shopmart-system/internal/catalog"
	"github.com/bekzod-dev/shopmart-system/internal/customer"
	"github.com/bekzod-dev/shopmart-system/internal/model"
	"github.com/bekzod-dev/shopmart-system/internal/pricing"
	"github.com/bekzod-dev/shopmart-system/internal/repository"
	"github.com/bekzod-dev/shopmart-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InOrderTx(ctx context.Context, fn func(tx repository.OrderTx) error) error
	GetOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]repository.OrderView, error)
}

// ValidationError содержит ошибки валидации входных данных по полям.
type ValidationError struct {
	Fields map[string]string
}

// Error возвращает перечисление полей с ошибками в детерминированном порядке.
func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// AddressInput — адрес доставки из запроса на оформление заказа.
type AddressInput struct {
	Country      string
	Address      string
	Floor        string
	Apartment    string
	IntercomCode string
	PhoneNumber  string
}

// OrderItemInput — запрошенная позиция заказа.
type OrderItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// PlaceOrderRequest — проверенные на уровне формата входные данные
// оформления заказа.
type PlaceOrderRequest struct {
	CustomerID uuid.UUID
	Address    AddressInput
	Payment    model.PaymentType
	Delivery   model.DeliveryType
	Items      []OrderItemInput
}

// PlaceOrderResult — результат успешного оформления заказа.
type PlaceOrderResult struct {
	OrderNumber string
	CustomerID  uuid.UUID
	TotalPrice  decimal.Decimal
}

// Service содержит бизнес-логику оформления и чтения заказов.
type Service struct {
	repo      Repository
	catalog   catalog.Service
	customers customer.Directory
	now       func() time.Time
}

// NewService создаёт сервис с указанным репозиторием, каталогом и
// справочником покупателей.
func NewService(repo Repository, cat catalog.Service, customers customer.Directory) *Service {
	return &Service{
		repo:      repo,
		catalog:   cat,
		customers: customers,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// PlaceOrder оформляет заказ: проверяет входные данные до открытия
// транзакции, затем в одной транзакции создаёт адрес, получает либо
// создаёт записи способов оплаты и доставки, создаёт заказ с
// уникальным номером, рассчитывает и записывает позиции и итоговую
// сумму. При любой ошибке внутри транзакции не остаётся ни одной записи.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if verr := validatePlaceOrder(req); verr != nil {
		return nil, verr
	}

	if _, err := s.customers.FindByID(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	var result *PlaceOrderResult

	err := s.repo.InOrderTx(ctx, func(tx repository.OrderTx) error {
		addressID, err := tx.CreateAddress(ctx, model.Address{
			Country:      req.Address.Country,
			Address:      req.Address.Address,
			Floor:        req.Address.Floor,
			Apartment:    req.Address.Apartment,
			IntercomCode: req.Address.IntercomCode,
			PhoneNumber:  req.Address.PhoneNumber,
		})
		if err != nil {
			return err
		}

		paymentID, err := tx.GetOrCreatePaymentMethod(ctx, req.Payment)
		if err != nil {
			return err
		}

		deliveryID, err := tx.GetOrCreateDeliveryMethod(ctx, req.Delivery)
		if err != nil {
			return err
		}

		order, err := tx.CreateOrder(ctx, req.CustomerID, addressID, paymentID, deliveryID, NewOrderNumber)
		if err != nil {
			return err
		}

		at := s.now()
		total := decimal.Zero

		for _, item := range req.Items {
			product, err := s.catalog.FindProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}

			unitPrice, err := pricing.EffectiveUnitPrice(product, at)
			if err != nil {
				return err
			}

			if err := tx.CreateOrderItem(ctx, order.ID, item.ProductID, item.Quantity); err != nil {
				return err
			}

			total = total.Add(unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		if err := tx.SetOrderTotal(ctx, order.ID, total); err != nil {
			return err
		}

		result = &PlaceOrderResult{
			OrderNumber: order.Number,
			CustomerID:  req.CustomerID,
			TotalPrice:  total,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetOrdersForCustomer возвращает заказы покупателя с позициями.
func (s *Service) GetOrdersForCustomer(ctx context.Context, customerID uuid.UUID) ([]repository.OrderView, error) {
	return s.repo.GetOrdersByCustomer(ctx, customerID)
}

func validatePlaceOrder(req PlaceOrderRequest) *ValidationError {
	fields := make(map[string]string)

	if req.CustomerID == uuid.Nil {
		fields["customer_id"] = "customer_id is required"
	}

	if req.Address.Country == "" {
		fields["order_address.country"] = "country is required"
	}
	if req.Address.Address == "" {
		fields["order_address.address"] = "address is required"
	}
	if req.Address.Floor == "" {
		fields["order_address.floor"] = "floor is required"
	}
	if req.Address.Apartment == "" {
		fields["order_address.apartment"] = "apartment is required"
	}
	if !validation.IsValidPhoneNumber(req.Address.PhoneNumber) {
		fields["order_address.phone_number"] = "phone number must contain exactly 12 digits"
	}

	if !req.Payment.Valid() {
		fields["order_payment"] = fmt.Sprintf("unknown payment type %q", string(req.Payment))
	}
	if !req.Delivery.Valid() {
		fields["order_delivery"] = fmt.Sprintf("unknown delivery type %q", string(req.Delivery))
	}

	if len(req.Items) == 0 {
		fields["products"] = "at least one product is required"
	}
	for i, item := range req.Items {
		if item.ProductID == uuid.Nil {
			fields[fmt.Sprintf("products[%d].product_id", i)] = "product_id is required"
		}
		if item.Quantity < 1 {
			fields[fmt.Sprintf("products[%d].quantity", i)] = "quantity must be at least 1"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
