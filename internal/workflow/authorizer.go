package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/AlexZinkM/secret-commit/internal/fhevm"
	"github.com/AlexZinkM/secret-commit/internal/logger"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

const domainTypeName = "EIP712Domain"

// SignedAuthorization lets the session keypair decrypt the identity's handles
// of Contracts during the validity window. Used once, then discarded.
type SignedAuthorization struct {
	Keypair        *fhevm.Keypair
	Signature      []byte
	Contracts      []common.Address
	StartTimestamp int64
	DurationDays   uint64
}

// Expires returns the end of the validity window
func (a *SignedAuthorization) Expires() time.Time {
	return time.Unix(a.StartTimestamp, 0).Add(time.Duration(a.DurationDays) * 24 * time.Hour)
}

// Discard wipes the session private key
func (a *SignedAuthorization) Discard() {
	if a.Keypair != nil {
		a.Keypair.Zero()
	}
	clear(a.Signature)
}

// Authorizer builds and signs decryption authorizations
type Authorizer struct {
	clock clock.Clock
	days  uint64
	log   *zap.Logger
}

// NewAuthorizer creates an Authorizer whose authorizations last days
func NewAuthorizer(clk clock.Clock, days uint64, log *zap.Logger) *Authorizer {
	return &Authorizer{clock: clk, days: days, log: log}
}

// BuildAndSign generates a fresh keypair, builds the typed authorization and has
// the wallet sign it. The domain descriptor is removed from the signed types.
func (a *Authorizer) BuildAndSign(ctx context.Context, capability Capability, contract, identity common.Address, wallet Wallet) (*SignedAuthorization, error) {
	if wallet.Address() != identity {
		return nil, fmt.Errorf("wallet %s does not match identity %s", wallet.Address().Hex(), identity.Hex())
	}

	kp, err := capability.GenerateKeypair()
	if err != nil {
		return nil, err
	}

	auth := &SignedAuthorization{
		Keypair:        kp,
		Contracts:      []common.Address{contract},
		StartTimestamp: a.clock.Now().Unix(),
		DurationDays:   a.days,
	}

	td, err := capability.CreateEIP712(kp.PublicKey[:], auth.Contracts, auth.StartTimestamp, auth.DurationDays)
	if err != nil {
		auth.Discard()
		return nil, fmt.Errorf("failed to build authorization: %w", err)
	}

	sig, err := wallet.SignTypedData(ctx, td.Domain, withoutDomainType(td.Types), td.Message)
	if err != nil {
		auth.Discard()
		return nil, err
	}
	if len(sig) != 65 {
		auth.Discard()
		return nil, fmt.Errorf("wallet returned a %d-byte signature", len(sig))
	}
	auth.Signature = sig

	a.log.Debug("decryption authorized",
		zap.Stringer("identity", identity),
		zap.Int64("start", auth.StartTimestamp),
		zap.Uint64("days", auth.DurationDays),
		logger.Redacted("signature"),
		logger.Redacted("privateKey"))
	return auth, nil
}

// withoutDomainType copies types without the EIP712Domain entry
func withoutDomainType(types apitypes.Types) apitypes.Types {
	out := make(apitypes.Types, len(types))
	for name, fields := range types {
		if name != domainTypeName {
			out[name] = fields
		}
	}
	return out
}
