package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/growth/internal/app"
	"github.com/okian/growth/internal/domain/model"
)

// OrganizationDependencies defines the interface for organization operations.
type OrganizationDependencies interface {
	CreateOrganization(ctx context.Context, caller model.Key, in service.OrganizationInput) (service.Organization, error)
	Registry(ctx context.Context, org model.Key) (*model.Registry, error)
}

// OrganizationHandler handles organization requests.
type OrganizationHandler struct {
	deps OrganizationDependencies
}

// NewOrganizationHandler creates a new organization handler.
func NewOrganizationHandler(deps OrganizationDependencies) *OrganizationHandler {
	return &OrganizationHandler{deps: deps}
}

// HandleCreate handles POST /organizations requests. The caller becomes the
// authority of the new organization.
func (h *OrganizationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_organization"
	who, err := caller(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrCaller, err))
		return
	}
	var req organizationRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeFailure(w, err)
		return
	}
	org, err := h.deps.CreateOrganization(r.Context(), who, in)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRegistryResponse(org.Address, org.Registry))
}

// HandleGet handles GET /registries/{org} requests.
func (h *OrganizationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	org, err := parseKey("org", r.PathValue("org"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	reg, err := h.deps.Registry(r.Context(), org)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRegistryResponse(org, reg))
}

func (req organizationRequest) input() (service.OrganizationInput, error) {
	if strings.TrimSpace(req.Name) == "" {
		return service.OrganizationInput{}, fmt.Errorf("%w: missing name", ErrBadRequest)
	}
	if req.MinReviews < 0 || req.MinReviews > 255 {
		return service.OrganizationInput{}, fmt.Errorf("%w: min_reviews out of range", ErrBadRequest)
	}
	ranges, err := bytesOf("ranges", req.Ranges)
	if err != nil {
		return service.OrganizationInput{}, err
	}
	in := service.OrganizationInput{
		Name:       req.Name,
		MinReviews: uint8(req.MinReviews),
		Weights:    req.Weights,
		Ranges:     ranges,
		Levels:     req.Levels,
		Domain:     strings.TrimSuffix(req.Domain, "/"),
		LevelWait:  req.LevelWait,
	}
	if req.Mint != "" {
		if in.Mint, err = parseKey("mint", req.Mint); err != nil {
			return service.OrganizationInput{}, err
		}
	}
	return in, nil
}
