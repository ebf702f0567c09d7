package controllers

import (
	"net/http"

	"github.com/CyberITEX/cms-commerce/api/responses"
	"github.com/CyberITEX/cms-commerce/api/validators"
	renewalsvc "github.com/CyberITEX/cms-commerce/internal/renewals"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

// AdminRenewalListDue pages the renewals the worker will charge next.
func AdminRenewalListDue(svc renewalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 25, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListDue(r.Context(), limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminRenewalCreate materializes the next renewal order for a subscription
// ahead of the worker's schedule.
func AdminRenewalCreate(svc renewalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		renewal, err := svc.CreateRenewalOrder(r.Context(), subscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, renewal)
	}
}

type settleRenewalRequest struct {
	Payment gatewayResultPayload `json:"payment" validate:"required"`
}

// AdminRenewalSettle applies an out-of-band gateway result to a pending
// renewal, for charges settled outside the worker.
func AdminRenewalSettle(svc renewalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renewalOrderID, err := pathUUID(r, "renewalOrderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload settleRenewalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ProcessRenewal(r.Context(), renewalOrderID, payload.Payment.toResult())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminRenewalRetry records a failed charge attempt and schedules the next
// retry window without settling the renewal.
func AdminRenewalRetry(svc renewalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renewalOrderID, err := pathUUID(r, "renewalOrderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.IncrementAttempt(r.Context(), renewalOrderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"renewal_order_id": renewalOrderID})
	}
}
