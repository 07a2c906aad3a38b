package workflow

import (
	"context"
	"fmt"
	"math"

	"github.com/AlexZinkM/secret-commit/internal/fhevm"
	"github.com/AlexZinkM/secret-commit/internal/logger"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Requester exchanges a signed authorization for the clear amount
type Requester struct {
	ledger Ledger
	clock  clock.Clock
	log    *zap.Logger
}

// NewRequester creates a Requester reading handles from ledger
func NewRequester(ledger Ledger, clk clock.Clock, log *zap.Logger) *Requester {
	return &Requester{ledger: ledger, clock: clk, log: log}
}

// ReadHandle reads the identity's handle from the contract. Never cached.
func (r *Requester) ReadHandle(ctx context.Context, identity common.Address) (common.Hash, error) {
	raw, err := r.ledger.GetMyCommitment(ctx, identity)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read commitment: %w", err)
	}
	handle := common.Hash(raw)
	if handle == (common.Hash{}) {
		return handle, ErrNoCommitment
	}
	return handle, nil
}

// RequestPlaintext decrypts handle for identity through the relayer.
// Slow: the relayer takes tens of seconds.
func (r *Requester) RequestPlaintext(ctx context.Context, capability Capability, contract, identity common.Address, handle common.Hash, auth *SignedAuthorization) (uint32, error) {
	if !r.clock.Now().Before(auth.Expires()) {
		return 0, ErrAuthorizationExpired
	}

	values, err := capability.UserDecrypt(ctx, fhevm.UserDecryptRequest{
		Pairs:             []fhevm.HandleContractPair{{Handle: handle, Contract: contract}},
		Keypair:           auth.Keypair,
		Signature:         auth.Signature,
		ContractAddresses: auth.Contracts,
		User:              identity,
		StartTimestamp:    auth.StartTimestamp,
		DurationDays:      auth.DurationDays,
	})
	if err != nil {
		return 0, err
	}

	value, ok := values[handle]
	if !ok {
		return 0, fmt.Errorf("%w %s", fhevm.ErrNoResult, handle.Hex())
	}
	if value > math.MaxUint32 {
		return 0, fmt.Errorf("clear value %d does not fit euint32", value)
	}

	r.log.Debug("handle decrypted", zap.Stringer("handle", handle), logger.Redacted("amount"))
	return uint32(value), nil
}
