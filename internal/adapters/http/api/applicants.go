package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/growth/internal/adapters/assets"
	service "github.com/okian/growth/internal/app"
	"github.com/okian/growth/internal/domain/gating"
	"github.com/okian/growth/internal/domain/model"
)

// ApplicantDependencies defines the interface for applicant operations.
type ApplicantDependencies interface {
	Register(ctx context.Context, caller, org model.Key, in service.ApplicantInput) (service.Applicant, error)
	SendScore(ctx context.Context, caller, org, applicant model.Key) (uint16, error)
	Verify(ctx context.Context, caller, org, applicant model.Key) error
	UpdateScores(ctx context.Context, caller, org, applicant model.Key, in gating.OverrideInput) (gating.Outcome, error)
	Score(ctx context.Context, org, applicant model.Key) (*model.ScoreRecord, error)
	Badge(ctx context.Context, org, applicant model.Key) (assets.Metadata, error)
}

// ApplicantHandler handles applicant requests.
type ApplicantHandler struct {
	deps ApplicantDependencies
}

// NewApplicantHandler creates a new applicant handler.
func NewApplicantHandler(deps ApplicantDependencies) *ApplicantHandler {
	return &ApplicantHandler{deps: deps}
}

// HandleRegister handles POST /applicants requests.
func (h *ApplicantHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register"
	who, err := caller(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrCaller, err))
		return
	}
	var req applicantRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	org, applicant, err := target(req.Org, req.Applicant)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeFailure(w, fmt.Errorf("%w: missing name", ErrBadRequest))
		return
	}
	levels, err := bytesOf("levels", req.Levels)
	if err != nil {
		writeFailure(w, err)
		return
	}

	app, err := h.deps.Register(r.Context(), who, org, service.ApplicantInput{
		Applicant:  applicant,
		Name:       req.Name,
		Levels:     levels,
		LastUpdate: req.LastUpdate,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := newScoreResponse(app.Address, app.Record)
	resp.Created = app.Created
	status := http.StatusOK
	if app.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// HandleGetScore handles GET /scores/{org}/{applicant} requests.
func (h *ApplicantHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	org, applicant, err := target(r.PathValue("org"), r.PathValue("applicant"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	rec, err := h.deps.Score(r.Context(), org, applicant)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newScoreResponse(model.ScoreAddress(org, applicant), rec))
}

// HandleGetBadge handles GET /badges/{org}/{applicant} requests.
func (h *ApplicantHandler) HandleGetBadge(w http.ResponseWriter, r *http.Request) {
	org, applicant, err := target(r.PathValue("org"), r.PathValue("applicant"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	md, err := h.deps.Badge(r.Context(), org, applicant)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBadgeResponse(md))
}

// HandleVerify handles POST /verify requests.
func (h *ApplicantHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	who, org, applicant, ok := h.authorityTarget(w, r, "api.verify")
	if !ok {
		return
	}
	if err := h.deps.Verify(r.Context(), who, org, applicant); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// HandleSendScore handles POST /reviews-sent requests.
func (h *ApplicantHandler) HandleSendScore(w http.ResponseWriter, r *http.Request) {
	who, org, applicant, ok := h.authorityTarget(w, r, "api.send_score")
	if !ok {
		return
	}
	sent, err := h.deps.SendScore(r.Context(), who, org, applicant)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint16{"reviews_sent": sent})
}

// HandleUpdateScores handles POST /admin/scores requests.
func (h *ApplicantHandler) HandleUpdateScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_scores"
	who, err := caller(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrCaller, err))
		return
	}
	var req overrideRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	org, applicant, err := target(req.Org, req.Applicant)
	if err != nil {
		writeFailure(w, err)
		return
	}
	levels, err := bytesOf("levels", req.Levels)
	if err != nil {
		writeFailure(w, err)
		return
	}
	out, err := h.deps.UpdateScores(r.Context(), who, org, applicant, gating.OverrideInput{
		ScoresSum:       req.ScoresSum,
		ReviewsReceived: req.ReviewsReceived,
		LastUpdate:      req.LastUpdate,
		Levels:          levels,
		OverrideLevels:  req.OverrideLevels,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeResponse(out))
}

func (h *ApplicantHandler) authorityTarget(w http.ResponseWriter, r *http.Request, op string) (who, org, applicant model.Key, ok bool) {
	who, err := caller(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrCaller, err))
		return who, org, applicant, false
	}
	var req targetRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return who, org, applicant, false
	}
	org, applicant, err = target(req.Org, req.Applicant)
	if err != nil {
		writeFailure(w, err)
		return who, org, applicant, false
	}
	return who, org, applicant, true
}

func target(rawOrg, rawApplicant string) (org, applicant model.Key, err error) {
	if org, err = parseKey("org", rawOrg); err != nil {
		return org, applicant, err
	}
	applicant, err = parseKey("applicant", rawApplicant)
	return org, applicant, err
}
