package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veridianhq/veridian/pkg/billing"
	"github.com/veridianhq/veridian/pkg/orgs"
)

// BillingHandlers exposes billing activation over HTTP.
type BillingHandlers struct {
	billing *billing.Service
}

// NewBillingHandlers creates a new BillingHandlers.
func NewBillingHandlers(svc *billing.Service) *BillingHandlers {
	return &BillingHandlers{billing: svc}
}

// RegisterRoutes registers billing routes.
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{id}/billing/activate", h.Activate).Methods("POST")
	router.HandleFunc("/orgs/{id}/billing/subscription", h.GetSubscription).Methods("GET")
}

// ActivateRequest is the payload confirming payment for an organization.
type ActivateRequest struct {
	Plan                 orgs.PlanTier `json:"plan"`
	StripeCustomerID     string        `json:"stripe_customer_id"`
	StripeSubscriptionID string        `json:"stripe_subscription_id"`
}

// Activate flips an organization's billing to active.
func (h *BillingHandlers) Activate(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}
	var req ActivateRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Plan == "" {
		req.Plan = orgs.PlanStarter
	}

	result, err := h.billing.ActivateBilling(r.Context(), billing.ActivateParams{
		OrganizationID:       orgID,
		Plan:                 req.Plan,
		StripeCustomerID:     req.StripeCustomerID,
		StripeSubscriptionID: req.StripeSubscriptionID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetSubscription retrieves the organization's subscription.
func (h *BillingHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}

	sub, err := h.billing.GetSubscription(r.Context(), orgID)
	if err != nil {
		if err == orgs.ErrNotFound {
			writeError(w, orgs.NewCodedError(orgs.CodeOrgNotFound, "subscription not found"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
