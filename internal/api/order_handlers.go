package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medikart/order-lifecycle/internal/inventory"
	"github.com/medikart/order-lifecycle/internal/order"
)

func createCartHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		customerID, err := uuid.Parse(req.CustomerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_customer_id", "customer_id must be a valid UUID")
			return
		}
		pharmacyID, err := uuid.Parse(req.PharmacyID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pharmacy_id", "pharmacy_id must be a valid UUID")
			return
		}

		o, err := svc.CreateCart(r.Context(), customerID, pharmacyID)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toOrderResponse(o, nil))
	}
}

func addItemHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req AddItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		medicineID, err := uuid.Parse(req.MedicineID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_medicine_id", "medicine_id must be a valid UUID")
			return
		}

		o, err := svc.AddItem(r.Context(), orderID, medicineID, req.Quantity)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
	}
}

func updateItemHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}
		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_item_id", "itemID must be a valid UUID")
			return
		}

		var req UpdateItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		o, err := svc.UpdateItem(r.Context(), orderID, itemID, req.Quantity, req.Selected)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
	}
}

func checkoutHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		checkout := order.CheckoutRequest{
			OrderID:         orderID,
			DeliverySlot:    req.DeliverySlot,
			DeliveryAddress: req.DeliveryAddress,
			DistanceKm:      req.DistanceKm,
		}
		if req.PrescriptionID != "" {
			pid, err := uuid.Parse(req.PrescriptionID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_prescription_id", "prescription_id must be a valid UUID")
				return
			}
			checkout.PrescriptionID = &pid
		}

		o, err := svc.Checkout(r.Context(), checkout)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
	}
}

func approveOrderHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		o, err := svc.Approve(r.Context(), orderID)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
	}
}

func rejectOrderHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req RejectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		o, err := svc.Reject(r.Context(), orderID, req.Reason)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
	}
}

func confirmOrderHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		o, err := svc.Confirm(r.Context(), orderID)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
	}
}

func cancelOrderHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Actor == "" {
			req.Actor = "customer"
		}

		o, err := svc.Cancel(r.Context(), orderID, req.Reason, req.Actor)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
	}
}

func advanceOrderHandler(advance func(r *http.Request, id uuid.UUID) (*order.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		o, err := advance(r, orderID)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, nil))
	}
}

func listOrdersHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := uuid.Parse(r.URL.Query().Get("customer_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_customer_id", "customer_id must be a valid UUID")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		orders, err := svc.ListByCustomer(r.Context(), customerID, limit, offset)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		resp := make([]OrderResponse, 0, len(orders))
		for i := range orders {
			resp = append(resp, toOrderResponse(&orders[i], nil))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getOrderHandler(svc *order.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		o, entries, err := svc.Get(r.Context(), orderID)
		if err != nil {
			handleOrderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toOrderResponse(o, entries))
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleOrderError(w http.ResponseWriter, err error) {
	var transition *order.InvalidTransitionError

	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, inventory.ErrMedicineNotFound):
		writeError(w, http.StatusNotFound, "medicine_not_found", err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, order.ErrDeadlineExpired):
		writeError(w, http.StatusConflict, "deadline_expired", err.Error())
	case errors.Is(err, order.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "concurrent_modification", "the order was modified concurrently, please retry")
	case errors.Is(err, order.ErrPrescriptionRequired):
		writeError(w, http.StatusUnprocessableEntity, "prescription_required", err.Error())
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrItemNotFound):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
