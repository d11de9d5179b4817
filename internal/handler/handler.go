// Package handler содержит HTTP-обработчики API магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bekzod-dev/shopmart-system/internal/catalog"
	"github.com/bekzod-dev/shopmart-system/internal/customer"
	"github.com/bekzod-dev/shopmart-system/internal/middleware"
	"github.com/bekzod-dev/shopmart-system/internal/model"
	"github.com/bekzod-dev/shopmart-system/internal/repository"
	"github.com/bekzod-dev/shopmart-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*service.PlaceOrderResult, error)
	GetOrdersForCustomer(ctx context.Context, customerID uuid.UUID) ([]repository.OrderView, error)
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type addressRequest struct {
	Country      string `json:"country"`
	Address      string `json:"address"`
	Floor        string `json:"floor"`
	Apartment    string `json:"apartment"`
	IntercomCode string `json:"intercom_code,omitempty"`
	PhoneNumber  string `json:"phone_number"`
}

type orderItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type createOrderRequest struct {
	CustomerID uuid.UUID          `json:"customer_id"`
	Address    addressRequest     `json:"order_address"`
	Payment    string             `json:"order_payment"`
	Delivery   string             `json:"order_delivery"`
	Products   []orderItemRequest `json:"products"`
}

type createOrderResponse struct {
	OrderNumber string `json:"order_number"`
	CustomerID  string `json:"customer_id"`
	TotalPrice  string `json:"total_price"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// CreateOrder оформляет заказ текущего покупателя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed request body")
		return
	}

	items := make([]service.OrderItemInput, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, service.OrderItemInput{
			ProductID: p.ProductID,
			Quantity:  p.Quantity,
		})
	}

	result, err := h.service.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		CustomerID: req.CustomerID,
		Address: service.AddressInput{
			Country:      req.Address.Country,
			Address:      req.Address.Address,
			Floor:        req.Address.Floor,
			Apartment:    req.Address.Apartment,
			IntercomCode: req.Address.IntercomCode,
			PhoneNumber:  req.Address.PhoneNumber,
		},
		Payment:  model.PaymentType(req.Payment),
		Delivery: model.DeliveryType(req.Delivery),
		Items:    items,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, verr.Fields)
		case errors.Is(err, customer.ErrCustomerNotFound):
			writeDetail(w, http.StatusNotFound, "customer not found")
		case errors.Is(err, catalog.ErrProductNotFound):
			writeDetail(w, http.StatusUnprocessableEntity, "product not found")
		case errors.Is(err, repository.ErrOrderNumberExhausted):
			writeDetail(w, http.StatusConflict, "could not allocate order number, retry the request")
		default:
			h.logger.Error("create order error", zap.Error(err))
			writeDetail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderNumber: result.OrderNumber,
		CustomerID:  result.CustomerID.String(),
		TotalPrice:  result.TotalPrice.StringFixed(2),
	})
}

type orderItemResponse struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Price     string  `json:"price"`
	Image     *string `json:"image"`
	Quantity  int     `json:"quantity"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	Products  []orderItemResponse `json:"products"`
	CreatedAt string              `json:"created_at"`
}

// GetOrders возвращает список заказов текущего покупателя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.GetCustomerIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetOrdersForCustomer(r.Context(), customerID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.String("customerID", customerID.String()))
		writeDetail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		items := make([]orderItemResponse, 0, len(o.Items))
		for _, item := range o.Items {
			items = append(items, orderItemResponse{
				ProductID: item.ProductID.String(),
				Title:     item.Title,
				Price:     item.Price.StringFixed(2),
				Image:     item.ImageURL,
				Quantity:  item.Quantity,
			})
		}
		resp = append(resp, orderResponse{
			ID:        o.ID.String(),
			Products:  items,
			CreatedAt: o.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
