// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/bekzod-dev/shopmart-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNumberExhausted возвращается, когда все попытки подобрать
// свободный номер заказа закончились конфликтом уникальности.
var ErrOrderNumberExhausted = errors.New("order number attempts exhausted")

// orderNumberAttempts ограничивает число повторных генераций номера
// заказа при конфликте уникальности.
const orderNumberAttempts = 5

// OrderTx — примитивы одной транзакции оформления заказа. Все записи,
// созданные через OrderTx, становятся видимыми только после успешного
// завершения InOrderTx; при любой ошибке они откатываются целиком.
type OrderTx interface {
	CreateAddress(ctx context.Context, addr model.Address) (uuid.UUID, error)
	GetOrCreatePaymentMethod(ctx context.Context, t model.PaymentType) (uuid.UUID, error)
	GetOrCreateDeliveryMethod(ctx context.Context, t model.DeliveryType) (uuid.UUID, error)
	CreateOrder(ctx context.Context, customerID, addressID, paymentID, deliveryID uuid.UUID, nextNumber func() string) (*model.Order, error)
	CreateOrderItem(ctx context.Context, orderID, productID uuid.UUID, quantity int) error
	SetOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error
}

// OrderItemView — позиция заказа в ответе на чтение истории заказов.
type OrderItemView struct {
	ProductID uuid.UUID
	Title     string
	Price     decimal.Decimal
	ImageURL  *string
	Quantity  int
}

// OrderView — заказ с позициями в ответе на чтение истории заказов.
type OrderView struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Items     []OrderItemView
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Pool возвращает пул соединений для смежных читающих компонентов
// (каталог, справочник покупателей).
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только конфликты сериализации и дедлоки: остальные
		// ошибки БД повтор не исправит.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// InOrderTx выполняет fn в одной транзакции оформления заказа.
// Любая ошибка fn или фиксации приводит к полному откату; конфликты
// сериализации и сетевые сбои повторяются, при этом fn вызывается заново.
func (r *PostgresRepository) InOrderTx(ctx context.Context, fn func(tx OrderTx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(&orderTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

type orderTx struct {
	tx pgx.Tx
}

// CreateAddress создаёт адрес доставки и возвращает его идентификатор.
func (t *orderTx) CreateAddress(ctx context.Context, addr model.Address) (uuid.UUID, error) {
	var intercom *string
	if addr.IntercomCode != "" {
		intercom = &addr.IntercomCode
	}

	var id uuid.UUID
	err := t.tx.QueryRow(ctx,
		`INSERT INTO order_addresses (country, address, floor, apartment, intercom_code, phone_number)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		addr.Country, addr.Address, addr.Floor, addr.Apartment, intercom, addr.PhoneNumber,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert address: %w", err)
	}

	return id, nil
}

// GetOrCreatePaymentMethod возвращает идентификатор записи способа оплаты,
// создавая её при отсутствии. INSERT ... ON CONFLICT DO NOTHING с
// последующим SELECT гарантирует единственную запись на тип даже при
// конкурентных оформлениях.
func (t *orderTx) GetOrCreatePaymentMethod(ctx context.Context, pt model.PaymentType) (uuid.UUID, error) {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO order_payments (type) VALUES ($1) ON CONFLICT (type) DO NOTHING`,
		string(pt),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert payment method: %w", err)
	}

	var id uuid.UUID
	err = t.tx.QueryRow(ctx,
		`SELECT id FROM order_payments WHERE type = $1`,
		string(pt),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("select payment method: %w", err)
	}

	return id, nil
}

// GetOrCreateDeliveryMethod возвращает идентификатор записи способа доставки,
// создавая её при отсутствии.
func (t *orderTx) GetOrCreateDeliveryMethod(ctx context.Context, dt model.DeliveryType) (uuid.UUID, error) {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO order_deliveries (type) VALUES ($1) ON CONFLICT (type) DO NOTHING`,
		string(dt),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert delivery method: %w", err)
	}

	var id uuid.UUID
	err = t.tx.QueryRow(ctx,
		`SELECT id FROM order_deliveries WHERE type = $1`,
		string(dt),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("select delivery method: %w", err)
	}

	return id, nil
}

// CreateOrder создаёт заказ с нулевой итоговой суммой. Номер заказа
// берётся у nextNumber; при конфликте уникальности вставка повторяется
// в пределах savepoint с новым номером, не ломая внешнюю транзакцию.
func (t *orderTx) CreateOrder(ctx context.Context, customerID, addressID, paymentID, deliveryID uuid.UUID, nextNumber func() string) (*model.Order, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number := nextNumber()

		sp, err := t.tx.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin savepoint: %w", err)
		}

		o := model.Order{
			CustomerID: customerID,
			Number:     number,
			AddressID:  addressID,
			PaymentID:  paymentID,
			DeliveryID: deliveryID,
			TotalPrice: decimal.Zero,
		}

		err = sp.QueryRow(ctx,
			`INSERT INTO orders (customer_id, order_number, address_id, payment_id, delivery_id)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, created_at`,
			customerID, number, addressID, paymentID, deliveryID,
		).Scan(&o.ID, &o.CreatedAt)
		if err != nil {
			_ = sp.Rollback(ctx)

			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation &&
				pgErr.ConstraintName == "orders_order_number_key" {
				continue
			}
			return nil, fmt.Errorf("insert order: %w", err)
		}

		if err := sp.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit savepoint: %w", err)
		}

		return &o, nil
	}

	return nil, ErrOrderNumberExhausted
}

// CreateOrderItem создаёт позицию заказа.
func (t *orderTx) CreateOrderItem(ctx context.Context, orderID, productID uuid.UUID, quantity int) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)`,
		orderID, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}

	return nil
}

// SetOrderTotal записывает итоговую сумму заказа, вычисленную по позициям.
func (t *orderTx) SetOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE orders SET total_price = $2::numeric, updated_at = now() WHERE id = $1`,
		orderID, total.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}

	return nil
}

// GetOrdersByCustomer возвращает заказы покупателя с позициями,
// отсортированные от новых к старым.
func (r *PostgresRepository) GetOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]OrderView, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.created_at, i.product_id, i.quantity, p.title, p.price::text,
		        (SELECT pi.url FROM product_images pi
		         WHERE pi.product_id = p.id
		         ORDER BY pi.position LIMIT 1)
		 FROM orders o
		 JOIN order_items i ON i.order_id = o.id
		 JOIN products p ON p.id = i.product_id
		 WHERE o.customer_id = $1
		 ORDER BY o.created_at DESC, o.id, i.created_at`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []OrderView
	for rows.Next() {
		var (
			orderID   uuid.UUID
			createdAt time.Time
			item      OrderItemView
			priceText string
		)
		if err := rows.Scan(&orderID, &createdAt, &item.ProductID, &item.Quantity, &item.Title, &priceText, &item.ImageURL); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		item.Price, err = decimal.NewFromString(priceText)
		if err != nil {
			return nil, fmt.Errorf("parse product price: %w", err)
		}

		if len(orders) == 0 || orders[len(orders)-1].ID != orderID {
			orders = append(orders, OrderView{ID: orderID, CreatedAt: createdAt})
		}
		last := &orders[len(orders)-1]
		last.Items = append(last.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
