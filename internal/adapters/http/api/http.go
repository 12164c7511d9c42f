// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/growth/internal/adapters/assets"
	service "github.com/okian/growth/internal/app"
	"github.com/okian/growth/internal/domain/gating"
	"github.com/okian/growth/internal/domain/model"
)

// CallerHeader carries the key of the signer of a request.
const CallerHeader = "X-Growth-Caller"

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	CreateOrganization(ctx context.Context, caller model.Key, in service.OrganizationInput) (service.Organization, error)
	Register(ctx context.Context, caller, org model.Key, in service.ApplicantInput) (service.Applicant, error)
	Enqueue(ctx context.Context, sub model.Submission) (string, bool, error)
	ReceiveScore(ctx context.Context, sub model.Submission) (gating.Outcome, error)
	SendScore(ctx context.Context, caller, org, applicant model.Key) (uint16, error)
	Verify(ctx context.Context, caller, org, applicant model.Key) error
	UpdateScores(ctx context.Context, caller, org, applicant model.Key, in gating.OverrideInput) (gating.Outcome, error)

	Registry(ctx context.Context, org model.Key) (*model.Registry, error)
	Score(ctx context.Context, org, applicant model.Key) (*model.ScoreRecord, error)
	Badge(ctx context.Context, org, applicant model.Key) (assets.Metadata, error)

	Deposit(ctx context.Context, addr model.Key, amount uint64) error
	Balance(ctx context.Context, addr model.Key) (uint64, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	organizationHandler *OrganizationHandler
	applicantHandler    *ApplicantHandler
	reviewHandler       *ReviewHandler
	walletHandler       *WalletHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		organizationHandler: NewOrganizationHandler(deps),
		applicantHandler:    NewApplicantHandler(deps),
		reviewHandler:       NewReviewHandler(deps),
		walletHandler:       NewWalletHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /organizations", MetricsMiddleware(s.organizationHandler.HandleCreate, "organizations"))
	mux.HandleFunc("GET /registries/{org}", MetricsMiddleware(s.organizationHandler.HandleGet, "registries"))

	mux.HandleFunc("POST /applicants", MetricsMiddleware(s.applicantHandler.HandleRegister, "applicants"))
	mux.HandleFunc("GET /scores/{org}/{applicant}", MetricsMiddleware(s.applicantHandler.HandleGetScore, "scores"))
	mux.HandleFunc("GET /badges/{org}/{applicant}", MetricsMiddleware(s.applicantHandler.HandleGetBadge, "badges"))
	mux.HandleFunc("POST /verify", MetricsMiddleware(s.applicantHandler.HandleVerify, "verify"))
	mux.HandleFunc("POST /reviews-sent", MetricsMiddleware(s.applicantHandler.HandleSendScore, "reviews_sent"))
	mux.HandleFunc("POST /admin/scores", MetricsMiddleware(s.applicantHandler.HandleUpdateScores, "admin_scores"))

	mux.HandleFunc("POST /reviews", MetricsMiddleware(s.reviewHandler.HandlePostReview, "reviews"))

	mux.HandleFunc("POST /deposits", MetricsMiddleware(s.walletHandler.HandleDeposit, "deposits"))
	mux.HandleFunc("GET /wallets/{addr}", MetricsMiddleware(s.walletHandler.HandleBalance, "wallets"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func parseKey(field, raw string) (model.Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.NilKey, fmt.Errorf("%w: missing %s", ErrBadRequest, field)
	}
	k, err := model.ParseKey(raw)
	if err != nil {
		return model.NilKey, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, field, raw)
	}
	return k, nil
}

func caller(r *http.Request) (model.Key, error) {
	k, err := model.ParseKey(strings.TrimSpace(r.Header.Get(CallerHeader)))
	if err != nil || k == model.NilKey {
		return model.NilKey, fmt.Errorf("%w: %s header", ErrCaller, CallerHeader)
	}
	return k, nil
}
