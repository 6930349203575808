package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

// Reserve relies on the database to serialize concurrent decrements: the
// WHERE stock >= qty guard makes the check and the decrement one statement.
func (l *PgLedger) Reserve(ctx context.Context, medicineID uuid.UUID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	tag, err := l.pool.Exec(ctx, `
		UPDATE medicines
		SET stock = stock - $2,
		    updated_at = now()
		WHERE id = $1
		  AND stock >= $2
	`, medicineID, qty)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing medicine from a short one.
		if _, err := l.Stock(ctx, medicineID); err != nil {
			return err
		}
		return ErrInsufficientStock
	}

	return nil
}

func (l *PgLedger) Release(ctx context.Context, medicineID uuid.UUID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	tag, err := l.pool.Exec(ctx, `
		UPDATE medicines
		SET stock = stock + $2,
		    updated_at = now()
		WHERE id = $1
	`, medicineID, qty)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrMedicineNotFound
	}

	return nil
}

func (l *PgLedger) Stock(ctx context.Context, medicineID uuid.UUID) (int, error) {
	var stock int
	err := l.pool.QueryRow(ctx, `
		SELECT stock FROM medicines WHERE id = $1
	`, medicineID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrMedicineNotFound
		}
		return 0, err
	}
	return stock, nil
}

func (l *PgLedger) GetMedicine(ctx context.Context, medicineID uuid.UUID) (*Medicine, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT id, pharmacy_id, name, unit_price, discounted_price, requires_prescription,
		       stock, expires_at, created_at, updated_at
		FROM medicines
		WHERE id = $1
	`, medicineID)

	var m Medicine
	err := row.Scan(
		&m.ID,
		&m.PharmacyID,
		&m.Name,
		&m.UnitPrice,
		&m.DiscountedPrice,
		&m.RequiresPrescription,
		&m.Stock,
		&m.ExpiresAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMedicineNotFound
		}
		return nil, err
	}

	return &m, nil
}

func (l *PgLedger) FindLowStock(ctx context.Context, threshold int) ([]StockLevel, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, pharmacy_id, name, stock, expires_at
		FROM medicines
		WHERE stock <= $1
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStockLevels(rows)
}

func (l *PgLedger) FindExpiring(ctx context.Context, now time.Time) ([]StockLevel, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, pharmacy_id, name, stock, expires_at
		FROM medicines
		WHERE expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStockLevels(rows)
}

func scanStockLevels(rows pgx.Rows) ([]StockLevel, error) {
	var result []StockLevel
	for rows.Next() {
		var s StockLevel
		if err := rows.Scan(&s.MedicineID, &s.PharmacyID, &s.Name, &s.Stock, &s.ExpiresAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
