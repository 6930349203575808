package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medikart/order-lifecycle/internal/db"
)

// simulate drives N concurrent confirm() calls against orders competing
// for the same medicine and reports how the stock invariant held up:
// with stock S and N orders of quantity 1, exactly S must win.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	baseURL := flag.String("base-url", "http://127.0.0.1:8080", "api-server base URL")
	orders := flag.Int("orders", 10, "number of competing orders")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	customerID, pharmacyID, medicineID, stock, err := pickTargets(ctx, pool, *orders)
	if err != nil {
		log.Fatalf("pick targets: %v", err)
	}
	log.Printf("target medicine=%s stock=%d orders=%d", medicineID, stock, *orders)

	client := &http.Client{Timeout: 10 * time.Second}

	// Stage: one approved order per worker, each wanting a single unit.
	orderIDs := make([]uuid.UUID, 0, *orders)
	for i := 0; i < *orders; i++ {
		id, err := stageOrder(ctx, client, *baseURL, customerID, pharmacyID, medicineID)
		if err != nil {
			log.Fatalf("stage order %d: %v", i, err)
		}
		orderIDs = append(orderIDs, id)
	}

	var confirmed, outOfStock, failed int64
	var wg sync.WaitGroup

	start := time.Now()
	for _, id := range orderIDs {
		wg.Add(1)
		go func(orderID uuid.UUID) {
			defer wg.Done()

			status, code, err := post(ctx, client, fmt.Sprintf("%s/orders/%s/confirm", *baseURL, orderID), nil)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				log.Printf("confirm %s: %v", orderID, err)
			case status == http.StatusOK:
				atomic.AddInt64(&confirmed, 1)
			case code == "insufficient_stock":
				atomic.AddInt64(&outOfStock, 1)
			default:
				atomic.AddInt64(&failed, 1)
				log.Printf("confirm %s: status=%d code=%s", orderID, status, code)
			}
		}(id)
	}
	wg.Wait()

	log.Printf("done in %s: confirmed=%d insufficient_stock=%d failed=%d",
		time.Since(start), confirmed, outOfStock, failed)

	want := int64(stock)
	if int64(*orders) < want {
		want = int64(*orders)
	}
	if confirmed == want && failed == 0 {
		log.Println("stock invariant held: winners == min(stock, orders)")
	} else {
		log.Printf("INVARIANT VIOLATION: expected %d winners", want)
		os.Exit(1)
	}
}

func pickTargets(ctx context.Context, pool *pgxpool.Pool, orders int) (customerID, pharmacyID, medicineID uuid.UUID, stock int, err error) {
	err = pool.QueryRow(ctx, `
		SELECT id FROM customers LIMIT 1
	`).Scan(&customerID)
	if err != nil {
		return
	}

	// A non-prescription medicine with less stock than competing orders
	// makes the race interesting.
	err = pool.QueryRow(ctx, `
		SELECT id, pharmacy_id, stock
		FROM medicines
		WHERE requires_prescription = false
		  AND stock > 0
		  AND stock < $1
		ORDER BY stock
		LIMIT 1
	`, orders).Scan(&medicineID, &pharmacyID, &stock)
	return
}

func stageOrder(ctx context.Context, client *http.Client, baseURL string, customerID, pharmacyID, medicineID uuid.UUID) (uuid.UUID, error) {
	var created struct {
		ID uuid.UUID `json:"id"`
	}

	status, _, err := postInto(ctx, client, baseURL+"/orders", map[string]any{
		"customer_id": customerID.String(),
		"pharmacy_id": pharmacyID.String(),
	}, &created)
	if err != nil || status != http.StatusCreated {
		return uuid.Nil, fmt.Errorf("create cart: status=%d err=%w", status, err)
	}

	status, code, err := post(ctx, client, fmt.Sprintf("%s/orders/%s/items", baseURL, created.ID), map[string]any{
		"medicine_id": medicineID.String(),
		"quantity":    1,
	})
	if err != nil || status != http.StatusOK {
		return uuid.Nil, fmt.Errorf("add item: status=%d code=%s err=%w", status, code, err)
	}

	status, code, err = post(ctx, client, fmt.Sprintf("%s/orders/%s/checkout", baseURL, created.ID), map[string]any{
		"delivery_slot":    "evening",
		"delivery_address": "simulation depot",
		"distance_km":      2.5,
	})
	if err != nil || status != http.StatusOK {
		return uuid.Nil, fmt.Errorf("checkout: status=%d code=%s err=%w", status, code, err)
	}

	return created.ID, nil
}

func post(ctx context.Context, client *http.Client, url string, body map[string]any) (int, string, error) {
	return postInto(ctx, client, url, body, nil)
}

func postInto(ctx context.Context, client *http.Client, url string, body map[string]any, out any) (int, string, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, "", err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return resp.StatusCode, apiErr.Error, nil
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, "", err
		}
	}
	return resp.StatusCode, "", nil
}
