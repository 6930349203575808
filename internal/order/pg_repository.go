package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PgRepository)(nil)

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const orderColumns = `
	id, customer_id, pharmacy_id, status, items,
	total_amount, discounted_amount, delivery_charge, final_amount,
	delivery_slot, delivery_address, distance_km,
	approval_deadline, confirmation_deadline, prescription_id,
	created_at, updated_at
`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var items []byte

	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.PharmacyID,
		&o.Status,
		&items,
		&o.TotalAmount,
		&o.DiscountedAmount,
		&o.DeliveryCharge,
		&o.FinalAmount,
		&o.DeliverySlot,
		&o.DeliveryAddress,
		&o.DistanceKm,
		&o.ApprovalDeadline,
		&o.ConfirmationDeadline,
		&o.PrescriptionID,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("decode order items: %w", err)
		}
	}

	return &o, nil
}

func (r *PgRepository) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, pharmacy_id, status, items,
			total_amount, discounted_amount, delivery_charge, final_amount,
			delivery_slot, delivery_address, distance_km,
			approval_deadline, confirmation_deadline, prescription_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
	`,
		o.ID, o.CustomerID, o.PharmacyID, o.Status, items,
		o.TotalAmount, o.DiscountedAmount, o.DeliveryCharge, o.FinalAmount,
		o.DeliverySlot, o.DeliveryAddress, o.DistanceKm,
		o.ApprovalDeadline, o.ConfirmationDeadline, o.PrescriptionID,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)
	return scanOrder(row)
}

func (r *PgRepository) Update(ctx context.Context, o *Order, expected Status) (*Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $2,
		    items = $3,
		    total_amount = $4,
		    discounted_amount = $5,
		    delivery_charge = $6,
		    final_amount = $7,
		    delivery_slot = $8,
		    delivery_address = $9,
		    distance_km = $10,
		    approval_deadline = $11,
		    confirmation_deadline = $12,
		    prescription_id = $13,
		    updated_at = now()
		WHERE id = $1
		  AND status = $14
		RETURNING `+orderColumns+`
	`,
		o.ID, o.Status, items,
		o.TotalAmount, o.DiscountedAmount, o.DeliveryCharge, o.FinalAmount,
		o.DeliverySlot, o.DeliveryAddress, o.DistanceKm,
		o.ApprovalDeadline, o.ConfirmationDeadline, o.PrescriptionID,
		expected,
	)

	updated, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			// No row matched: either the order is gone or its status moved
			// under us. Tell them apart for the retry logic.
			if _, getErr := r.GetByID(ctx, o.ID); getErr == nil {
				return nil, ErrStatusConflict
			}
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
