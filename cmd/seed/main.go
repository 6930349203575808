package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medikart/order-lifecycle/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	pharmacies, err := seedPharmacies(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed pharmacies: %v", err)
	}
	if err := seedCustomers(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed customers: %v", err)
	}
	if err := seedMedicines(context.Background(), pool, pharmacies, 40); err != nil {
		log.Fatalf("seed medicines: %v", err)
	}

	log.Println("seed complete")
}

func seedPharmacies(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d pharmacies", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Pharmacy"
		address := gofakeit.Address().Address

		_, err := tx.Exec(ctx, `
			INSERT INTO pharmacies (id, name, address, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, address)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d customers", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO customers (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedMedicines(ctx context.Context, pool *pgxpool.Pool, pharmacies []uuid.UUID, perPharmacy int) error {
	log.Printf("seeding %d medicines per pharmacy", perPharmacy)

	names := []string{
		"Paracetamol 500mg", "Ibuprofen 400mg", "Amoxicillin 250mg",
		"Metformin 500mg", "Atorvastatin 10mg", "Omeprazole 20mg",
		"Cetirizine 10mg", "Azithromycin 500mg", "Losartan 50mg",
		"Amlodipine 5mg", "Salbutamol Inhaler", "Insulin Glargine",
	}
	prescriptionOnly := map[string]bool{
		"Amoxicillin 250mg":  true,
		"Azithromycin 500mg": true,
		"Insulin Glargine":   true,
		"Metformin 500mg":    true,
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pharmacyID := range pharmacies {
		for i := 0; i < perPharmacy; i++ {
			id := uuid.New()
			name := names[gofakeit.Number(0, len(names)-1)]
			price := gofakeit.Price(10, 900)
			discounted := price * (1 - gofakeit.Float64Range(0, 0.3))
			stock := gofakeit.Number(0, 200)
			expiry := time.Now().AddDate(0, gofakeit.Number(-1, 24), 0)

			_, err := tx.Exec(ctx, `
				INSERT INTO medicines (
					id, pharmacy_id, name, unit_price, discounted_price,
					requires_prescription, stock, expires_at, created_at, updated_at
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			`, id, pharmacyID, name, price, discounted, prescriptionOnly[name], stock, expiry)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}
