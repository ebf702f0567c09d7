package controllers

import (
	"net/http"

	"github.com/CyberITEX/cms-commerce/api/responses"
	"github.com/CyberITEX/cms-commerce/api/validators"
	couponsvc "github.com/CyberITEX/cms-commerce/internal/coupons"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,min=1,max=64"`
}

// CouponApply resolves a code against the caller's active cart and reprices it.
func CouponApply(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload applyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Apply(r.Context(), userID, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CouponRemove strips the applied coupon and returns the repriced totals.
func CouponRemove(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		totals, err := svc.Remove(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, totals)
	}
}
