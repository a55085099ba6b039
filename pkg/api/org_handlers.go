package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veridianhq/veridian/pkg/lifecycle"
	"github.com/veridianhq/veridian/pkg/orgs"
	"github.com/veridianhq/veridian/pkg/policy"
)

// OrgHandlers exposes the organization lifecycle and access policy over HTTP.
type OrgHandlers struct {
	lifecycle *lifecycle.Service
	engine    *policy.Engine
	store     orgs.Store
}

// NewOrgHandlers creates a new OrgHandlers.
func NewOrgHandlers(svc *lifecycle.Service, engine *policy.Engine, store orgs.Store) *OrgHandlers {
	return &OrgHandlers{
		lifecycle: svc,
		engine:    engine,
		store:     store,
	}
}

// RegisterRoutes registers organization routes.
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/trial", h.CreateTrial).Methods("POST")
	router.HandleFunc("/orgs/demo", h.CreateDemo).Methods("POST")
	router.HandleFunc("/orgs/{id}", h.GetOrganization).Methods("GET")

	// Lifecycle transitions
	router.HandleFunc("/orgs/{id}/upgrade", h.Upgrade).Methods("POST")
	router.HandleFunc("/orgs/{id}/extend", h.Extend).Methods("POST")
	router.HandleFunc("/orgs/{id}/convert", h.Convert).Methods("POST")

	// Access policy
	router.HandleFunc("/orgs/{id}/access", h.GetAccess).Methods("GET")
	router.HandleFunc("/orgs/{id}/authorize", h.Authorize).Methods("POST")
	router.HandleFunc("/orgs/{id}/usage", h.RecordUsage).Methods("POST")
	router.HandleFunc("/orgs/{id}/seats", h.GetSeats).Methods("GET")
}

// CreateTrialRequest is the payload for creating a trial organization.
type CreateTrialRequest struct {
	Name        string `json:"name"`
	OwnerUserID int64  `json:"owner_user_id"`
}

// CreateTrial creates a new trial organization.
func (h *OrgHandlers) CreateTrial(w http.ResponseWriter, r *http.Request) {
	var req CreateTrialRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" || req.OwnerUserID <= 0 {
		writeBadRequest(w, "name and owner_user_id are required")
		return
	}

	org, err := h.lifecycle.CreateTrialOrganization(r.Context(), lifecycle.CreateTrialParams{
		Name:        req.Name,
		OwnerUserID: req.OwnerUserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// CreateDemoRequest is the optional payload for provisioning a demo.
type CreateDemoRequest struct {
	Email string `json:"email"`
}

// CreateDemo provisions an anonymous demo organization. The body is optional;
// a synthetic demo email is generated when none is given.
func (h *OrgHandlers) CreateDemo(w http.ResponseWriter, r *http.Request) {
	var req CreateDemoRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
	}

	result, err := h.lifecycle.CreateDemoOrganization(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetOrganization retrieves an organization by ID.
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}

	org, err := h.store.GetOrganization(r.Context(), orgID)
	if err != nil {
		if err == orgs.ErrNotFound {
			writeError(w, orgs.NewCodedError(orgs.CodeOrgNotFound, "organization not found"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// UpgradeRequest is the payload for upgrading a trial to paid.
type UpgradeRequest struct {
	Plan        orgs.PlanTier `json:"plan"`
	ActorUserID int64         `json:"actor_user_id"`
}

// Upgrade flips a trial organization to paid in place.
func (h *OrgHandlers) Upgrade(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}
	var req UpgradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Plan == "" {
		req.Plan = orgs.PlanStarter
	}

	result, err := h.lifecycle.UpgradeToPaid(r.Context(), orgID, req.Plan, req.ActorUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExtendRequest is the payload for extending a trial.
type ExtendRequest struct {
	Days        int    `json:"days"`
	Reason      string `json:"reason"`
	ActorUserID int64  `json:"actor_user_id"`
}

// Extend pushes a trial's expiry out.
func (h *OrgHandlers) Extend(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}
	var req ExtendRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Reason == "" {
		writeBadRequest(w, "reason is required")
		return
	}

	org, err := h.lifecycle.ExtendTrial(r.Context(), orgID, req.Days, req.Reason, req.ActorUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

// ConvertRequest is the payload for converting a trial into a new paid
// organization.
type ConvertRequest struct {
	NewName     string `json:"new_name"`
	ActorUserID int64  `json:"actor_user_id"`
}

// Convert migrates a trial into a brand-new paid organization.
func (h *OrgHandlers) Convert(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}
	var req ConvertRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.NewName == "" || req.ActorUserID <= 0 {
		writeBadRequest(w, "new_name and actor_user_id are required")
		return
	}

	org, err := h.lifecycle.ConvertTrialToOrg(r.Context(), orgID, req.ActorUserID, req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// GetAccess returns the tenant's current access snapshot.
func (h *OrgHandlers) GetAccess(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}

	snap, err := h.engine.Snapshot(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// AuthorizeRequest is the payload for a policy check.
type AuthorizeRequest struct {
	Action policy.Action `json:"action"`
}

// Authorize runs a policy check. Denials are 200s carrying the decision;
// only unknown organizations and store failures are errors.
func (h *OrgHandlers) Authorize(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}
	var req AuthorizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}

	decision, err := h.engine.Authorize(r.Context(), orgID, req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// RecordUsageRequest is the payload for bumping a usage counter.
type RecordUsageRequest struct {
	Counter string `json:"counter"`
	Amount  int64  `json:"amount"`
}

// RecordUsage bumps today's usage counter after a gated action succeeded.
func (h *OrgHandlers) RecordUsage(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}
	var req RecordUsageRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Counter == "" {
		writeBadRequest(w, "counter is required")
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	if err := h.engine.IncrementUsage(r.Context(), orgID, req.Counter, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSeats reports member seat availability.
func (h *OrgHandlers) GetSeats(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgIDFromPath(r)
	if !ok {
		writeBadRequest(w, "invalid organization ID")
		return
	}

	seats, err := h.engine.GetSeatAvailability(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seats)
}
