package ledger

import (
	"errors"
	"fmt"

	"github.com/okian/growth/internal/domain/model"
)

// Sentinel kinds for ledger errors.
var (
	ErrNotFound          = fmt.Errorf("account %w", model.ErrNotFound)
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrGrowTooLarge      = errors.New("growth exceeds per-call limit")
	ErrInvalidResize     = errors.New("accounts cannot shrink")
	ErrDataTooLarge      = errors.New("data exceeds account size")
	ErrTxDone            = errors.New("transaction already finished")
)
