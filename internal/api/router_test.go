package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikart/order-lifecycle/internal/config"
	"github.com/medikart/order-lifecycle/internal/inventory"
	"github.com/medikart/order-lifecycle/internal/notify"
	"github.com/medikart/order-lifecycle/internal/order"
	"github.com/medikart/order-lifecycle/internal/prescription"
	"github.com/medikart/order-lifecycle/internal/scheduler"
	"github.com/medikart/order-lifecycle/internal/timeline"
)

type testServer struct {
	handler http.Handler
	ledger  *inventory.MemoryLedger

	customerID uuid.UUID
	pharmacyID uuid.UUID
}

func newTestServer() *testServer {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ledger := inventory.NewMemoryLedger()
	recorder := timeline.NewMemoryRecorder()
	emitter := notify.NewMemoryEmitter()
	jobs := scheduler.NewManager(scheduler.NewMemoryStore(), clock)

	cfg := config.Config{
		ApprovalWindow:     10 * time.Minute,
		ConfirmationWindow: 30 * time.Minute,
	}
	pricer := order.DistancePricer{Base: 20, PerKm: 5, FreeAbove: 500}

	orders := order.NewService(order.NewMemoryRepository(), ledger, recorder, jobs, emitter, pricer, clock, cfg)
	prescriptions := prescription.NewService(prescription.NewMemoryRepository(), orders, recorder, jobs, emitter, clock)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Orders:        orders,
			Prescriptions: prescriptions,
			Env:           "test",
			Version:       "test",
		}),
		ledger:     ledger,
		customerID: uuid.New(),
		pharmacyID: uuid.New(),
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) OrderResponse {
	t.Helper()
	var resp OrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer()
	med := uuid.New()
	ts.ledger.Put(inventory.Medicine{
		ID:              med,
		PharmacyID:      ts.pharmacyID,
		Name:            "Paracetamol 650mg",
		UnitPrice:       30,
		DiscountedPrice: 25,
		Stock:           10,
	})

	rec := ts.do(t, http.MethodPost, "/orders", CreateCartRequest{
		CustomerID: ts.customerID.String(),
		PharmacyID: ts.pharmacyID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	cart := decodeOrder(t, rec)
	assert.Equal(t, "cart", cart.Status)

	rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+"/items", AddItemRequest{
		MedicineID: med.String(),
		Quantity:   2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	withItem := decodeOrder(t, rec)
	require.Len(t, withItem.Items, 1)
	assert.InDelta(t, 50, withItem.DiscountedAmount, 1e-9)

	rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+"/checkout", CheckoutRequest{
		DeliverySlot:    "18:00-20:00",
		DeliveryAddress: "12 MG Road",
		DistanceKm:      2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	approved := decodeOrder(t, rec)
	assert.Equal(t, "approved", approved.Status)
	assert.NotNil(t, approved.ConfirmationDeadline)
	assert.InDelta(t, 30, approved.DeliveryCharge, 1e-9)
	assert.InDelta(t, 80, approved.FinalAmount, 1e-9)

	rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "processing", decodeOrder(t, rec).Status)

	for _, step := range []struct{ path, want string }{
		{"/ready", "ready_for_delivery"},
		{"/dispatch", "out_for_delivery"},
		{"/delivered", "delivered"},
	} {
		rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+step.path, nil)
		require.Equal(t, http.StatusOK, rec.Code, step.path)
		assert.Equal(t, step.want, decodeOrder(t, rec).Status)
	}

	// Timeline rides along on GET.
	rec = ts.do(t, http.MethodGet, "/orders/"+cart.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decodeOrder(t, rec)
	assert.Equal(t, "delivered", final.Status)
	assert.NotEmpty(t, final.Timeline)

	rec = ts.do(t, http.MethodGet, "/orders?customer_id="+ts.customerID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []OrderResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, cart.ID, list[0].ID)
}

func TestOrderErrorMapping(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/orders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Confirming a cart is an illegal transition.
	rec = ts.do(t, http.MethodPost, "/orders", CreateCartRequest{
		CustomerID: ts.customerID.String(),
		PharmacyID: ts.pharmacyID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	cart := decodeOrder(t, rec)

	rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "invalid_transition", errResp.Error)

	// Checkout of an empty cart.
	rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+"/checkout", CheckoutRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutRequiresPrescriptionOverHTTP(t *testing.T) {
	ts := newTestServer()
	med := uuid.New()
	ts.ledger.Put(inventory.Medicine{
		ID:                   med,
		PharmacyID:           ts.pharmacyID,
		Name:                 "Amoxicillin 500mg",
		UnitPrice:            90,
		DiscountedPrice:      80,
		RequiresPrescription: true,
		Stock:                10,
	})

	rec := ts.do(t, http.MethodPost, "/orders", CreateCartRequest{
		CustomerID: ts.customerID.String(),
		PharmacyID: ts.pharmacyID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	cart := decodeOrder(t, rec)

	rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+"/items", AddItemRequest{
		MedicineID: med.String(),
		Quantity:   1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+"/checkout", CheckoutRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/orders/"+cart.ID.String()+"/checkout", CheckoutRequest{
		PrescriptionID: uuid.NewString(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending_approval", decodeOrder(t, rec).Status)
}

func TestPrescriptionEndpoints(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/prescriptions", CreatePrescriptionRequest{
		CustomerID: ts.customerID.String(),
		PharmacyID: ts.pharmacyID.String(),
		Medicines: []PrescriptionMedicineInput{
			{Name: "Metformin 500mg", Quantity: 2},
		},
		Validity: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created PrescriptionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "pending", created.Status)

	reviewerID := uuid.NewString()
	rec = ts.do(t, http.MethodPost, "/prescriptions/"+created.ID.String()+"/review", StartReviewRequest{
		ReviewerID: reviewerID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var underReview PrescriptionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&underReview))
	assert.Equal(t, "under_review", underReview.Status)

	medID := uuid.NewString()
	rec = ts.do(t, http.MethodPost, "/prescriptions/"+created.ID.String()+"/verify", VerifyPrescriptionRequest{
		ReviewerID: reviewerID,
		Outcome:    "verified",
		Decisions: []MedicineDecision{
			{Name: "Metformin 500mg", Status: "approved", MedicineID: medID},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var verified PrescriptionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&verified))
	assert.Equal(t, "verified", verified.Status)
	require.Len(t, verified.Medicines, 1)
	assert.Equal(t, "approved", verified.Medicines[0].Status)

	// Verified prescriptions cannot be forwarded.
	rec = ts.do(t, http.MethodPost, "/prescriptions/"+created.ID.String()+"/forward", ForwardPrescriptionRequest{
		PharmacyID: uuid.NewString(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
