package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresCatalog читает данные каталога из PostgreSQL.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog создаёт каталог поверх существующего пула соединений.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// FindProduct возвращает товар с базовой ценой, первой картинкой и
// скидкой, если она заведена. Активность скидки здесь не проверяется.
func (c *PostgresCatalog) FindProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	row := c.pool.QueryRow(ctx,
		`SELECT p.id, p.title, p.price::text,
		        (SELECT pi.url FROM product_images pi
		         WHERE pi.product_id = p.id
		         ORDER BY pi.position LIMIT 1),
		        d.percent, d.start_at, d.end_at
		 FROM products p
		 LEFT JOIN product_discounts d ON d.product_id = p.id
		 WHERE p.id = $1`,
		id,
	)

	var (
		p         Product
		priceText string
		imageURL  *string
		percent   *int
		startAt   *time.Time
		endAt     *time.Time
	)
	err := row.Scan(&p.ID, &p.Title, &priceText, &imageURL, &percent, &startAt, &endAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	p.BasePrice, err = decimal.NewFromString(priceText)
	if err != nil {
		return nil, fmt.Errorf("parse product price: %w", err)
	}
	p.ImageURL = imageURL

	if percent != nil && startAt != nil && endAt != nil {
		p.Discount = &Discount{
			Percent: *percent,
			StartAt: *startAt,
			EndAt:   *endAt,
		}
	}

	return &p, nil
}
