package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/growth/internal/domain/model"
)

// WalletDependencies defines the interface for funding operations.
type WalletDependencies interface {
	Deposit(ctx context.Context, addr model.Key, amount uint64) error
	Balance(ctx context.Context, addr model.Key) (uint64, error)
}

// WalletHandler funds payers and reports balances.
type WalletHandler struct {
	deps WalletDependencies
}

// NewWalletHandler creates a new wallet handler.
func NewWalletHandler(deps WalletDependencies) *WalletHandler {
	return &WalletHandler{deps: deps}
}

// HandleDeposit handles POST /deposits requests.
func (h *WalletHandler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	addr, err := parseKey("address", req.Address)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if req.Amount == 0 {
		writeFailure(w, fmt.Errorf("%w: amount must be positive", ErrBadRequest))
		return
	}
	if err := h.deps.Deposit(r.Context(), addr, req.Amount); err != nil {
		writeFailure(w, err)
		return
	}
	h.writeBalance(w, r, addr)
}

// HandleBalance handles GET /wallets/{addr} requests.
func (h *WalletHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseKey("address", r.PathValue("addr"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	h.writeBalance(w, r, addr)
}

func (h *WalletHandler) writeBalance(w http.ResponseWriter, r *http.Request, addr model.Key) {
	bal, err := h.deps.Balance(r.Context(), addr)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr.String(), Lamports: bal})
}
