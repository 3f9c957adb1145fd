package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shipperhq/shopware-shipperhq/pkg/rates"
)

// Postgres reads shipping methods from the shipping_method table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a catalog over pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the shipping_method table if it is missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS shipping_method (
  id text PRIMARY KEY,
  name text NOT NULL DEFAULT '',
  technical_name text NOT NULL DEFAULT '',
  active boolean NOT NULL DEFAULT true,
  custom_fields jsonb
);`)
	if err != nil {
		return fmt.Errorf("creating shipping_method table: %w", err)
	}
	return nil
}

// ShippingMethod implements rates.MethodLookup.
func (p *Postgres) ShippingMethod(ctx context.Context, id string) (*rates.ShippingMethod, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, name, technical_name, active, custom_fields
		FROM shipping_method WHERE id = $1`, id)

	m, err := scanMethod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rates.ErrMethodNotFound
		}
		return nil, fmt.Errorf("loading shipping method %s: %w", id, err)
	}
	return &m, nil
}

// ActiveMethods implements rates.MethodCatalog.
func (p *Postgres) ActiveMethods(ctx context.Context) ([]rates.ShippingMethod, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, technical_name, active, custom_fields
		FROM shipping_method
		WHERE active AND technical_name LIKE $1
		ORDER BY id`, rates.TechnicalNamePrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("listing shipping methods: %w", err)
	}
	defer rows.Close()

	var out []rates.ShippingMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning shipping method: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert writes m.
func (p *Postgres) Upsert(ctx context.Context, m rates.ShippingMethod) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO shipping_method(id, name, technical_name, active, custom_fields)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		  name = EXCLUDED.name,
		  technical_name = EXCLUDED.technical_name,
		  active = EXCLUDED.active,
		  custom_fields = EXCLUDED.custom_fields`,
		m.ID, m.Name, m.TechnicalName, m.Active, m.CustomFields)
	if err != nil {
		return fmt.Errorf("upserting shipping method %s: %w", m.ID, err)
	}
	return nil
}

func scanMethod(row pgx.Row) (rates.ShippingMethod, error) {
	var m rates.ShippingMethod
	if err := row.Scan(&m.ID, &m.Name, &m.TechnicalName, &m.Active, &m.CustomFields); err != nil {
		return rates.ShippingMethod{}, err
	}
	return m, nil
}

var (
	_ rates.MethodLookup  = (*Postgres)(nil)
	_ rates.MethodCatalog = (*Postgres)(nil)
)
