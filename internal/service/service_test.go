package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bekzod-dev/shopmart-system/internal/catalog"
	"github.com/bekzod-dev/shopmart-system/internal/customer"
	"github.com/bekzod-dev/shopmart-system/internal/model"
	"github.com/bekzod-dev/shopmart-system/internal/repository"
	"github.com/bekzod-dev/shopmart-system/internal/validation"
)

type storedOrder struct {
	order model.Order
	items []model.OrderItem
}

// fakeStore имитирует хранилище с транзакционной семантикой: записи,
// созданные внутри InOrderTx, публикуются только при успешном завершении.
type fakeStore struct {
	payments   map[model.PaymentType]uuid.UUID
	deliveries map[model.DeliveryType]uuid.UUID
	addresses  map[uuid.UUID]model.Address
	orders     map[uuid.UUID]*storedOrder
	numbers    map[string]bool

	products map[uuid.UUID]*catalog.Product
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:   make(map[model.PaymentType]uuid.UUID),
		deliveries: make(map[model.DeliveryType]uuid.UUID),
		addresses:  make(map[uuid.UUID]model.Address),
		orders:     make(map[uuid.UUID]*storedOrder),
		numbers:    make(map[string]bool),
		products:   make(map[uuid.UUID]*catalog.Product),
	}
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) InOrderTx(ctx context.Context, fn func(tx repository.OrderTx) error) error {
	tx := &fakeTx{
		store:      s,
		payments:   make(map[model.PaymentType]uuid.UUID),
		deliveries: make(map[model.DeliveryType]uuid.UUID),
		addresses:  make(map[uuid.UUID]model.Address),
		orders:     make(map[uuid.UUID]*storedOrder),
		numbers:    make(map[string]bool),
	}

	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.payments {
		s.payments[k] = v
	}
	for k, v := range tx.deliveries {
		s.deliveries[k] = v
	}
	for k, v := range tx.addresses {
		s.addresses[k] = v
	}
	for k, v := range tx.orders {
		s.orders[k] = v
	}
	for n := range tx.numbers {
		s.numbers[n] = true
	}

	return nil
}

func (s *fakeStore) GetOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]repository.OrderView, error) {
	var views []repository.OrderView
	for _, so := range s.orders {
		if so.order.CustomerID != customerID {
			continue
		}

		view := repository.OrderView{ID: so.order.ID, CreatedAt: so.order.CreatedAt}
		for _, item := range so.items {
			p, ok := s.products[item.ProductID]
			if !ok {
				return nil, fmt.Errorf("product %s not found", item.ProductID)
			}
			view.Items = append(view.Items, repository.OrderItemView{
				ProductID: item.ProductID,
				Title:     p.Title,
				Price:     p.BasePrice,
				ImageURL:  p.ImageURL,
				Quantity:  item.Quantity,
			})
		}
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})

	return views, nil
}

type fakeTx struct {
	store      *fakeStore
	payments   map[model.PaymentType]uuid.UUID
	deliveries map[model.DeliveryType]uuid.UUID
	addresses  map[uuid.UUID]model.Address
	orders     map[uuid.UUID]*storedOrder
	numbers    map[string]bool
}

func (t *fakeTx) CreateAddress(ctx context.Context, addr model.Address) (uuid.UUID, error) {
	addr.ID = uuid.New()
	addr.CreatedAt = time.Now()
	t.addresses[addr.ID] = addr
	return addr.ID, nil
}

func (t *fakeTx) GetOrCreatePaymentMethod(ctx context.Context, pt model.PaymentType) (uuid.UUID, error) {
	if id, ok := t.store.payments[pt]; ok {
		return id, nil
	}
	if id, ok := t.payments[pt]; ok {
		return id, nil
	}
	id := uuid.New()
	t.payments[pt] = id
	return id, nil
}

func (t *fakeTx) GetOrCreateDeliveryMethod(ctx context.Context, dt model.DeliveryType) (uuid.UUID, error) {
	if id, ok := t.store.deliveries[dt]; ok {
		return id, nil
	}
	if id, ok := t.deliveries[dt]; ok {
		return id, nil
	}
	id := uuid.New()
	t.deliveries[dt] = id
	return id, nil
}

func (t *fakeTx) CreateOrder(ctx context.Context, customerID, addressID, paymentID, deliveryID uuid.UUID, nextNumber func() string) (*model.Order, error) {
	for attempt := 0; attempt < 5; attempt++ {
		number := nextNumber()
		if t.store.numbers[number] || t.numbers[number] {
			continue
		}

		o := &storedOrder{order: model.Order{
			ID:         uuid.New(),
			CustomerID: customerID,
			Number:     number,
			AddressID:  addressID,
			PaymentID:  paymentID,
			DeliveryID: deliveryID,
			TotalPrice: decimal.Zero,
			CreatedAt:  time.Now(),
		}}
		t.orders[o.order.ID] = o
		t.numbers[number] = true

		order := o.order
		return &order, nil
	}

	return nil, repository.ErrOrderNumberExhausted
}

func (t *fakeTx) CreateOrderItem(ctx context.Context, orderID, productID uuid.UUID, quantity int) error {
	o, ok := t.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.items = append(o.items, model.OrderItem{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	})
	return nil
}

func (t *fakeTx) SetOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	o, ok := t.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.order.TotalPrice = total
	return nil
}

type stubCatalog struct {
	products map[uuid.UUID]*catalog.Product
}

func (c *stubCatalog) FindProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, id)
	}
	return p, nil
}

type stubDirectory struct {
	customers map[uuid.UUID]*model.Customer
}

func (d *stubDirectory) FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	c, ok := d.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", customer.ErrCustomerNotFound, id)
	}
	return c, nil
}

type testEnv struct {
	store      *fakeStore
	cat        *stubCatalog
	dir        *stubDirectory
	svc        *Service
	customerID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newFakeStore()
	cat := &stubCatalog{products: store.products}

	customerID := uuid.New()
	dir := &stubDirectory{customers: map[uuid.UUID]*model.Customer{
		customerID: {ID: customerID},
	}}

	return &testEnv{
		store:      store,
		cat:        cat,
		dir:        dir,
		svc:        NewService(store, cat, dir),
		customerID: customerID,
	}
}

func (e *testEnv) addProduct(price string, d *catalog.Discount) uuid.UUID {
	id := uuid.New()
	e.store.products[id] = &catalog.Product{
		ID:        id,
		Title:     "product " + id.String()[:8],
		BasePrice: decimal.RequireFromString(price),
		Discount:  d,
	}
	return id
}

func validAddress() AddressInput {
	return AddressInput{
		Country:     "Uzbekistan",
		Address:     "Tashkent, Amir Temur 42",
		Floor:       "3",
		Apartment:   "15",
		PhoneNumber: "998901234567",
	}
}

func TestPlaceOrder_TotalWithActiveDiscount(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	productA := env.addProduct("100.00", nil)
	productB := env.addProduct("50.00", &catalog.Discount{
		Percent: 20,
		StartAt: now.Add(-time.Hour),
		EndAt:   now.Add(time.Hour),
	})

	res, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: env.customerID,
		Address:    validAddress(),
		Payment:    model.PaymentCash,
		Delivery:   model.DeliveryCourier,
		Items: []OrderItemInput{
			{ProductID: productA, Quantity: 2},
			{ProductID: productB, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if got := res.TotalPrice.StringFixed(2); got != "240.00" {
		t.Fatalf("total = %s, want 240.00", got)
	}
	if !validation.IsSixDigitNumber(res.OrderNumber) {
		t.Fatalf("order number %q is not a 6-digit string", res.OrderNumber)
	}
	if res.CustomerID != env.customerID {
		t.Fatalf("customer id = %s, want %s", res.CustomerID, env.customerID)
	}

	if len(env.store.orders) != 1 {
		t.Fatalf("orders stored = %d, want 1", len(env.store.orders))
	}
	if len(env.store.addresses) != 1 {
		t.Fatalf("addresses stored = %d, want 1", len(env.store.addresses))
	}
	for _, so := range env.store.orders {
		if len(so.items) != 2 {
			t.Fatalf("order items = %d, want 2", len(so.items))
		}
		if got := so.order.TotalPrice.StringFixed(2); got != "240.00" {
			t.Fatalf("stored total = %s, want 240.00", got)
		}
	}
}

func TestPlaceOrder_AtomicOnMissingProduct(t *testing.T) {
	env := newTestEnv(t)

	productA := env.addProduct("10.00", nil)
	productC := env.addProduct("30.00", nil)
	missing := uuid.New()

	_, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: env.customerID,
		Address:    validAddress(),
		Payment:    model.PaymentClick,
		Delivery:   model.DeliveryPickup,
		Items: []OrderItemInput{
			{ProductID: productA, Quantity: 1},
			{ProductID: missing, Quantity: 1},
			{ProductID: productC, Quantity: 1},
		},
	})
	if !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("error = %v, want ErrProductNotFound", err)
	}

	if len(env.store.orders) != 0 {
		t.Fatalf("orders stored after rollback = %d, want 0", len(env.store.orders))
	}
	if len(env.store.addresses) != 0 {
		t.Fatalf("addresses stored after rollback = %d, want 0", len(env.store.addresses))
	}
}

func TestPlaceOrder_AtomicOnInvalidDiscountPercent(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	productA := env.addProduct("10.00", nil)
	broken := env.addProduct("20.00", &catalog.Discount{
		Percent: 150,
		StartAt: now.Add(-time.Hour),
		EndAt:   now.Add(time.Hour),
	})

	_, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: env.customerID,
		Address:    validAddress(),
		Payment:    model.PaymentCash,
		Delivery:   model.DeliveryCourier,
		Items: []OrderItemInput{
			{ProductID: productA, Quantity: 1},
			{ProductID: broken, Quantity: 1},
		},
	})
	if err == nil {
		t.Fatalf("expected error for out-of-range discount percent")
	}

	if len(env.store.orders) != 0 {
		t.Fatalf("orders stored after rollback = %d, want 0", len(env.store.orders))
	}
}

func TestPlaceOrder_InactiveDiscountUsesBasePrice(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	product := env.addProduct("100.00", &catalog.Discount{
		Percent: 50,
		StartAt: now.Add(-2 * time.Hour),
		EndAt:   now.Add(-time.Hour),
	})

	res, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: env.customerID,
		Address:    validAddress(),
		Payment:    model.PaymentPayme,
		Delivery:   model.DeliveryCourier,
		Items:      []OrderItemInput{{ProductID: product, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if got := res.TotalPrice.StringFixed(2); got != "300.00" {
		t.Fatalf("total = %s, want 300.00", got)
	}
}

func TestPlaceOrder_SharedPaymentMethod(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct("10.00", nil)

	for i := 0; i < 2; i++ {
		_, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
			CustomerID: env.customerID,
			Address:    validAddress(),
			Payment:    model.PaymentCash,
			Delivery:   model.DeliveryCourier,
			Items:      []OrderItemInput{{ProductID: product, Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("PlaceOrder %d error: %v", i, err)
		}
	}

	if len(env.store.payments) != 1 {
		t.Fatalf("payment method rows = %d, want 1", len(env.store.payments))
	}

	paymentID := env.store.payments[model.PaymentCash]
	for _, so := range env.store.orders {
		if so.order.PaymentID != paymentID {
			t.Fatalf("order payment id = %s, want shared %s", so.order.PaymentID, paymentID)
		}
	}
}

func TestPlaceOrder_ZeroQuantityRejected(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct("10.00", nil)

	_, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: env.customerID,
		Address:    validAddress(),
		Payment:    model.PaymentCash,
		Delivery:   model.DeliveryCourier,
		Items:      []OrderItemInput{{ProductID: product, Quantity: 0}},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if _, ok := verr.Fields["products[0].quantity"]; !ok {
		t.Fatalf("validation fields = %v, want products[0].quantity", verr.Fields)
	}
	if len(env.store.orders) != 0 {
		t.Fatalf("orders stored = %d, want 0", len(env.store.orders))
	}
}

func TestPlaceOrder_UnknownTagsRejected(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct("10.00", nil)

	_, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: env.customerID,
		Address:    validAddress(),
		Payment:    model.PaymentType("BITCOIN"),
		Delivery:   model.DeliveryType("DRONE"),
		Items:      []OrderItemInput{{ProductID: product, Quantity: 1}},
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if _, ok := verr.Fields["order_payment"]; !ok {
		t.Fatalf("validation fields = %v, want order_payment", verr.Fields)
	}
	if _, ok := verr.Fields["order_delivery"]; !ok {
		t.Fatalf("validation fields = %v, want order_delivery", verr.Fields)
	}
}

func TestPlaceOrder_EmptyItemsRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: env.customerID,
		Address:    validAddress(),
		Payment:    model.PaymentCash,
		Delivery:   model.DeliveryCourier,
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if _, ok := verr.Fields["products"]; !ok {
		t.Fatalf("validation fields = %v, want products", verr.Fields)
	}
}

func TestPlaceOrder_CustomerNotFound(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct("10.00", nil)

	_, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: uuid.New(),
		Address:    validAddress(),
		Payment:    model.PaymentCash,
		Delivery:   model.DeliveryCourier,
		Items:      []OrderItemInput{{ProductID: product, Quantity: 1}},
	})
	if !errors.Is(err, customer.ErrCustomerNotFound) {
		t.Fatalf("error = %v, want ErrCustomerNotFound", err)
	}
	if len(env.store.orders) != 0 {
		t.Fatalf("orders stored = %d, want 0", len(env.store.orders))
	}
}

func TestPlaceOrder_OrderNumbersUnique(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct("10.00", nil)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		res, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
			CustomerID: env.customerID,
			Address:    validAddress(),
			Payment:    model.PaymentUzum,
			Delivery:   model.DeliveryPickup,
			Items:      []OrderItemInput{{ProductID: product, Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("PlaceOrder %d error: %v", i, err)
		}
		if !validation.IsSixDigitNumber(res.OrderNumber) {
			t.Fatalf("order number %q is not a 6-digit string", res.OrderNumber)
		}
		if seen[res.OrderNumber] {
			t.Fatalf("duplicate order number %q", res.OrderNumber)
		}
		seen[res.OrderNumber] = true
	}
}

func TestPlaceOrder_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	productA := env.addProduct("15.00", nil)
	productB := env.addProduct("7.50", nil)

	res, err := env.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: env.customerID,
		Address:    validAddress(),
		Payment:    model.PaymentClick,
		Delivery:   model.DeliveryCourier,
		Items: []OrderItemInput{
			{ProductID: productA, Quantity: 2},
			{ProductID: productB, Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}
	if got := res.TotalPrice.StringFixed(2); got != "60.00" {
		t.Fatalf("total = %s, want 60.00", got)
	}

	views, err := env.svc.GetOrdersForCustomer(context.Background(), env.customerID)
	if err != nil {
		t.Fatalf("GetOrdersForCustomer error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("orders returned = %d, want 1", len(views))
	}

	view := views[0]
	if view.CreatedAt.IsZero() {
		t.Fatalf("created_at is zero")
	}
	if len(view.Items) != 2 {
		t.Fatalf("items returned = %d, want 2", len(view.Items))
	}

	quantities := make(map[uuid.UUID]int)
	for _, item := range view.Items {
		quantities[item.ProductID] = item.Quantity
		if item.Title == "" {
			t.Fatalf("item title is empty")
		}
	}
	if quantities[productA] != 2 || quantities[productB] != 4 {
		t.Fatalf("quantities = %v, want {%s:2, %s:4}", quantities, productA, productB)
	}
}

func TestNewOrderNumberFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		n := NewOrderNumber()
		if !validation.IsSixDigitNumber(n) {
			t.Fatalf("NewOrderNumber() = %q, want 6 digits", n)
		}
		seen[n] = true
	}

	// Из миллиона значений 10 000 розыгрышей должны дать почти столько же
	// различных номеров: заметные повторы означали бы смещённый генератор.
	if len(seen) < 9900 {
		t.Fatalf("distinct numbers = %d out of 10000, distribution looks skewed", len(seen))
	}
}
