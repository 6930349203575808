package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/medikart/order-lifecycle/internal/prescription"
)

func createPrescriptionHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePrescriptionRequest
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
		if len(req.Medicines) == 0 {
			writeError(w, http.StatusBadRequest, "no_medicines", "a prescription needs at least one medicine")
			return
		}

		create := prescription.CreateRequest{
			CustomerID: customerID,
			PharmacyID: pharmacyID,
			Validity:   req.Validity,
		}
		for _, m := range req.Medicines {
			create.Medicines = append(create.Medicines, prescription.RequestedMedicine{
				Name:     m.Name,
				Quantity: m.Quantity,
			})
		}
		if req.Recurring != nil {
			create.Recurring = &prescription.RecurringDetails{
				Frequency:        prescription.Frequency(req.Recurring.Frequency),
				NextRefillDate:   req.Recurring.NextRefillDate,
				RemainingRefills: req.Recurring.RemainingRefills,
			}
		}

		p, err := svc.Create(r.Context(), create)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPrescriptionResponse(p, nil))
	}
}

func startReviewHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req StartReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		reviewerID, err := uuid.Parse(req.ReviewerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reviewer_id", "reviewer_id must be a valid UUID")
			return
		}

		p, err := svc.StartReview(r.Context(), id, reviewerID)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPrescriptionResponse(p, nil))
	}
}

func verifyPrescriptionHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req VerifyPrescriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		reviewerID, err := uuid.Parse(req.ReviewerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reviewer_id", "reviewer_id must be a valid UUID")
			return
		}

		verify := prescription.VerifyRequest{
			ID:         id,
			ReviewerID: reviewerID,
			Outcome:    prescription.Status(req.Outcome),
		}
		if req.ValidUntil != nil {
			verify.ValidUntil = *req.ValidUntil
		}
		for _, d := range req.Decisions {
			decision := prescription.MedicineDecision{
				Name:   d.Name,
				Status: prescription.MedicineStatus(d.Status),
			}
			if d.MedicineID != "" {
				mid, err := uuid.Parse(d.MedicineID)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_medicine_id", "medicine_id must be a valid UUID")
					return
				}
				decision.MedicineID = &mid
			}
			if d.AlternativeID != "" {
				aid, err := uuid.Parse(d.AlternativeID)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_alternative_id", "alternative_id must be a valid UUID")
					return
				}
				decision.AlternativeID = &aid
			}
			verify.Decisions = append(verify.Decisions, decision)
		}

		p, err := svc.Verify(r.Context(), verify)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPrescriptionResponse(p, nil))
	}
}

func rejectPrescriptionHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req RejectPrescriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		reviewerID, err := uuid.Parse(req.ReviewerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reviewer_id", "reviewer_id must be a valid UUID")
			return
		}

		p, err := svc.Reject(r.Context(), id, reviewerID, req.Reason)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPrescriptionResponse(p, nil))
	}
}

func forwardPrescriptionHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req ForwardPrescriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		pharmacyID, err := uuid.Parse(req.PharmacyID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pharmacy_id", "pharmacy_id must be a valid UUID")
			return
		}

		p, err := svc.Forward(r.Context(), id, pharmacyID)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPrescriptionResponse(p, nil))
	}
}

func refillPrescriptionHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.ProcessRefill(r.Context(), id)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPrescriptionResponse(p, nil))
	}
}

func getPrescriptionHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		p, entries, err := svc.Get(r.Context(), id)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPrescriptionResponse(p, entries))
	}
}

func handlePrescriptionError(w http.ResponseWriter, err error) {
	var transition *prescription.InvalidTransitionError

	switch {
	case errors.Is(err, prescription.ErrPrescriptionNotFound):
		writeError(w, http.StatusNotFound, "prescription_not_found", err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, prescription.ErrNotEligibleForRefill):
		writeError(w, http.StatusConflict, "not_eligible_for_refill", err.Error())
	case errors.Is(err, prescription.ErrNoFulfillableMedicines):
		writeError(w, http.StatusUnprocessableEntity, "no_fulfillable_medicines", err.Error())
	case errors.Is(err, prescription.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "concurrent_modification", "the prescription was modified concurrently, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
