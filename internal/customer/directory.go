// Package customer предоставляет справочник покупателей. Учётные записи
// создаются внешней системой аутентификации, здесь они только читаются.
package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bekzod-dev/shopmart-system/internal/model"
)

// ErrCustomerNotFound возвращается, если покупатель не найден.
var ErrCustomerNotFound = errors.New("customer not found")

// Directory описывает контракт справочника покупателей.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error)
}

// PostgresDirectory читает покупателей из PostgreSQL.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory создаёт справочник поверх существующего пула соединений.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// FindByID возвращает покупателя по идентификатору.
func (d *PostgresDirectory) FindByID(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, phone_number, created_at
		 FROM customers
		 WHERE id = $1`,
		id,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.PhoneNumber, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
		}
		return nil, fmt.Errorf("select customer: %w", err)
	}

	return &c, nil
}
