package workflow

import (
	"context"
	"math/big"

	"github.com/AlexZinkM/secret-commit/internal/client"
	"github.com/AlexZinkM/secret-commit/internal/fhevm"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Wallet is the connected wallet: identity, transaction and typed-data signing
type Wallet interface {
	client.TxSigner
	// ChainID is the chain the wallet is bound to, 0 if any
	ChainID() uint64
	SignTypedData(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) ([]byte, error)
}

// Capability is a loaded encryption/decryption capability
type Capability interface {
	Config() fhevm.Config
	EncryptUint32(ctx context.Context, contract, user common.Address, v uint32) (common.Hash, []byte, error)
	GenerateKeypair() (*fhevm.Keypair, error)
	CreateEIP712(publicKey []byte, contracts []common.Address, startTimestamp int64, durationDays uint64) (apitypes.TypedData, error)
	UserDecrypt(ctx context.Context, req fhevm.UserDecryptRequest) (map[common.Hash]uint64, error)
}

// Loader loads the capability for a session
type Loader func(ctx context.Context) (Capability, error)

// Ledger is the commitment contract
type Ledger interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SubmitCommitment(ctx context.Context, signer client.TxSigner, handle [32]byte, proof []byte) (*types.Receipt, error)
	GetMyCommitment(ctx context.Context, from common.Address) ([32]byte, error)
	HasCommitted(ctx context.Context, user common.Address) (bool, error)
}

var (
	_ Capability = (*fhevm.Instance)(nil)
	_ Ledger     = (*client.ChainClient)(nil)
)
