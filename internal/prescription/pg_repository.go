package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

const prescriptionColumns = `
	id, customer_id, pharmacy_id, status, medicines, validity, reviewer_id,
	is_recurring, recurring, created_at, updated_at
`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var medicines, recurring []byte

	err := row.Scan(
		&p.ID,
		&p.CustomerID,
		&p.PharmacyID,
		&p.Status,
		&medicines,
		&p.Validity,
		&p.ReviewerID,
		&p.IsRecurring,
		&recurring,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}

	if len(medicines) > 0 {
		if err := json.Unmarshal(medicines, &p.Medicines); err != nil {
			return nil, fmt.Errorf("decode prescription medicines: %w", err)
		}
	}
	if len(recurring) > 0 {
		if err := json.Unmarshal(recurring, &p.Recurring); err != nil {
			return nil, fmt.Errorf("decode recurring details: %w", err)
		}
	}

	return &p, nil
}

func encodePrescription(p *Prescription) (medicines, recurring []byte, err error) {
	medicines, err = json.Marshal(p.Medicines)
	if err != nil {
		return nil, nil, fmt.Errorf("encode prescription medicines: %w", err)
	}
	if p.Recurring != nil {
		recurring, err = json.Marshal(p.Recurring)
		if err != nil {
			return nil, nil, fmt.Errorf("encode recurring details: %w", err)
		}
	}
	return medicines, recurring, nil
}

func (r *PgRepository) Create(ctx context.Context, p *Prescription) error {
	medicines, recurring, err := encodePrescription(p)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO prescriptions (
			id, customer_id, pharmacy_id, status, medicines, validity, reviewer_id,
			is_recurring, recurring, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`,
		p.ID, p.CustomerID, p.PharmacyID, p.Status, medicines, p.Validity, p.ReviewerID,
		p.IsRecurring, recurring,
	)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE id = $1
	`, id)
	return scanPrescription(row)
}

func (r *PgRepository) Update(ctx context.Context, p *Prescription, expected Status) (*Prescription, error) {
	medicines, recurring, err := encodePrescription(p)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE prescriptions
		SET pharmacy_id = $2,
		    status = $3,
		    medicines = $4,
		    validity = $5,
		    reviewer_id = $6,
		    is_recurring = $7,
		    recurring = $8,
		    updated_at = now()
		WHERE id = $1
		  AND status = $9
		RETURNING `+prescriptionColumns+`
	`,
		p.ID, p.PharmacyID, p.Status, medicines, p.Validity, p.ReviewerID,
		p.IsRecurring, recurring, expected,
	)

	updated, err := scanPrescription(row)
	if err != nil {
		if errors.Is(err, ErrPrescriptionNotFound) {
			if _, getErr := r.GetByID(ctx, p.ID); getErr == nil {
				return nil, ErrStatusConflict
			}
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) FindExpired(ctx context.Context, now time.Time) ([]Prescription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE validity < $1
		  AND status <> 'expired'
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
