package ledger

import "errors"

// Chain-import error values. No function in this package returns them: the
// validation predicates (ValidChain, DeriveWallets, AdoptChain) report a
// rejected candidate as a boolean, not an error.
var (
	ErrEmptyChain          = errors.New("ledger: chain has no blocks")
	ErrChainNotLongerLocal = errors.New("ledger: candidate chain is not strictly longer")
	ErrChainInvalid        = errors.New("ledger: candidate chain failed validation")
	ErrWalletsNotClean     = errors.New("ledger: candidate chain derives a negative-balance or value-mismatched wallet view")
)
