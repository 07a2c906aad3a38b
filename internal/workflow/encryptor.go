package workflow

import (
	"context"
	"fmt"

	"github.com/AlexZinkM/secret-commit/internal/common"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Commitment is an encrypted amount ready for submission.
// It is consumed by exactly one Submit.
type Commitment struct {
	Handle   gethcommon.Hash
	Proof    []byte
	Contract gethcommon.Address
	Identity gethcommon.Address
}

// Encryptor turns a plaintext amount into a handle and input proof
type Encryptor struct {
	log *zap.Logger
}

// NewEncryptor creates an Encryptor
func NewEncryptor(log *zap.Logger) *Encryptor {
	return &Encryptor{log: log}
}

// Validate parses raw as a positive 32-bit amount
func (e *Encryptor) Validate(raw string) (uint32, error) {
	return common.ParseAmount(raw)
}

// Encrypt validates raw and encrypts it for the contract and identity pair.
// Invalid input fails before any cryptographic work.
func (e *Encryptor) Encrypt(ctx context.Context, capability Capability, contract, identity gethcommon.Address, raw string) (*Commitment, error) {
	amount, err := e.Validate(raw)
	if err != nil {
		return nil, err
	}

	handle, proof, err := capability.EncryptUint32(ctx, contract, identity, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt amount: %w", err)
	}

	e.log.Debug("amount encrypted", zap.Stringer("handle", handle), zap.Int("proofBytes", len(proof)))
	return &Commitment{Handle: handle, Proof: proof, Contract: contract, Identity: identity}, nil
}
