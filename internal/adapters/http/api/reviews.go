package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/growth/internal/adapters/mq/queue"
	"github.com/okian/growth/internal/domain/gating"
	"github.com/okian/growth/internal/domain/model"
)

// ReviewDependencies defines the interface for review ingestion.
type ReviewDependencies interface {
	Enqueue(ctx context.Context, sub model.Submission) (string, bool, error)
	ReceiveScore(ctx context.Context, sub model.Submission) (gating.Outcome, error)
}

// ReviewHandler handles review submissions.
type ReviewHandler struct {
	deps ReviewDependencies
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(deps ReviewDependencies) *ReviewHandler {
	return &ReviewHandler{deps: deps}
}

// HandlePostReview handles POST /reviews requests. Reviews are queued and
// acknowledged with 202 unless sync is set.
func (h *ReviewHandler) HandlePostReview(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_review"
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	org, applicant, err := target(req.Org, req.Applicant)
	if err != nil {
		writeFailure(w, err)
		return
	}
	sub := model.Submission{
		ID:        req.ID,
		Org:       org,
		Applicant: applicant,
		Scores:    req.Scores,
		Timestamp: req.Timestamp,
	}

	if req.Sync {
		out, err := h.deps.ReceiveScore(r.Context(), sub)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newOutcomeResponse(out))
		return
	}

	id, dup, err := h.deps.Enqueue(r.Context(), sub)
	if err != nil {
		if errors.Is(err, queue.ErrFull) {
			err = WrapKind(op, ErrBackpressure, err)
		}
		writeFailure(w, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", ID: id, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: id})
}
