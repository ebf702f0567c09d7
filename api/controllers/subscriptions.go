package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/CyberITEX/cms-commerce/api/responses"
	"github.com/CyberITEX/cms-commerce/api/validators"
	subsvc "github.com/CyberITEX/cms-commerce/internal/subscriptions"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

type subscriptionListResponse struct {
	Subscriptions []models.Subscription `json:"subscriptions"`
	Total         int64                 `json:"total"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

func SubscriptionList(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

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

		subs, total, err := svc.ListByUser(r.Context(), userID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionListResponse{Subscriptions: subs, Total: total, Limit: limit, Offset: offset})
	}
}

func SubscriptionGet(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.GetSubscription(r.Context(), userID, subscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// SubscriptionChanges returns the audit history for a subscription.
func SubscriptionChanges(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		changes, err := svc.ListChanges(r.Context(), subscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, changes)
	}
}

type requestChangeRequest struct {
	RequestedStatus string `json:"requested_status" validate:"required"`
	Reason          string `json:"reason,omitempty" validate:"max=500"`
}

// SubscriptionRequestChange files a pending pause or cancel for staff review.
func SubscriptionRequestChange(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload requestChangeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.RequestChange(r.Context(), userID, subscriptionID, enums.SubscriptionStatus(payload.RequestedStatus), payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, sub)
	}
}

func AdminSubscriptionApprove(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.ApprovePending(r.Context(), actorID, subscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

type rejectChangeRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

func AdminSubscriptionReject(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload rejectChangeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.RejectPending(r.Context(), actorID, subscriptionID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

type transitionRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type transitionFunc func(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error)

func adminTransition(logg *logger.Logger, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := fn(r.Context(), actorID, subscriptionID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

func AdminSubscriptionPause(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return adminTransition(logg, svc.Pause)
}

func AdminSubscriptionResume(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return adminTransition(logg, svc.Resume)
}

func AdminSubscriptionCancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return adminTransition(logg, svc.Cancel)
}

type changePlanRequest struct {
	PricingOptionID uuid.UUID `json:"pricing_option_id" validate:"required"`
}

// AdminSubscriptionChangePlan moves the subscription onto another recurring
// pricing option, reclassifying it as an upgrade or downgrade by price.
func AdminSubscriptionChangePlan(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.ChangePlan(r.Context(), actorID, subscriptionID, payload.PricingOptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

type changeFrequencyRequest struct {
	BillingFrequency string `json:"billing_frequency" validate:"required"`
	BillingInterval  int    `json:"billing_interval" validate:"required,min=1"`
}

func AdminSubscriptionChangeFrequency(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := pathUUID(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changeFrequencyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.ChangeFrequency(r.Context(), actorID, subscriptionID, enums.BillingFrequency(payload.BillingFrequency), payload.BillingInterval)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}
