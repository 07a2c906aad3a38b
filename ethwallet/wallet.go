package ethwallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/AlexZinkM/secret-commit/internal/crypto"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	// ErrRejected is returned when the wallet refuses to sign
	ErrRejected = errors.New("wallet rejected the request")
	// ErrLocked is returned after Close
	ErrLocked = errors.New("wallet is locked")
)

// Wallet is an unlocked local key able to sign transactions and EIP-712 data.
// It is the Go stand-in for a browser wallet connection.
type Wallet struct {
	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	address common.Address
	chainID uint64
	allowed map[common.Address]struct{}
}

// Open decrypts the .cwt file and returns an unlocked wallet.
// password must be []byte for security (caller should zero it after use)
func Open(filePath string, password []byte, opts ...Option) (*Wallet, error) {
	o := newOptions(opts)

	header, walletData, err := crypto.DecryptWallet(filePath, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt wallet: %w", err)
	}

	// Always clear private key bytes from memory
	defer clear(walletData.PrivateKey)

	if header.Network != networkEthereum {
		return nil, fmt.Errorf("unsupported wallet network %q", header.Network)
	}
	if len(walletData.PrivateKey) != 32 {
		return nil, fmt.Errorf("invalid private key length")
	}

	key, err := ethcrypto.ToECDSA(walletData.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	address := ethcrypto.PubkeyToAddress(key.PublicKey)

	// Verify key matches the address stored in the header
	if !common.IsHexAddress(header.Address) || common.HexToAddress(header.Address) != address {
		key.D.SetUint64(0)
		return nil, fmt.Errorf("private key does not match address")
	}

	return &Wallet{
		key:     key,
		address: address,
		chainID: header.ChainID,
		allowed: o.allowed,
	}, nil
}

// Address returns the wallet identity
func (w *Wallet) Address() common.Address {
	return w.address
}

// ChainID returns the chain the wallet was generated for, 0 if any
func (w *Wallet) ChainID() uint64 {
	return w.chainID
}

// Close zeroes the key. Every signing call after Close fails with ErrLocked.
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key != nil {
		w.key.D.SetUint64(0)
		w.key = nil
	}
}

// SignTx signs tx for chainID with the latest signer
func (w *Wallet) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if chainID == nil {
		return nil, errors.New("chain id is required")
	}
	if w.chainID != 0 && chainID.Uint64() != w.chainID {
		return nil, fmt.Errorf("%w: wallet is for chain %d, not %s", ErrRejected, w.chainID, chainID)
	}
	if tx.To() == nil {
		return nil, fmt.Errorf("%w: contract creation is not allowed", ErrRejected)
	}
	if !w.isAllowed(*tx.To()) {
		return nil, fmt.Errorf("%w: destination %s is not allowed", ErrRejected, tx.To().Hex())
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.key == nil {
		return nil, ErrLocked
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// SignTypedData signs EIP-712 data the way browser wallets do: types must not contain
// the EIP712Domain descriptor, it is rebuilt from the populated domain fields.
// Returns a 65-byte signature with V in {27, 28}.
func (w *Wallet) SignTypedData(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if domain.VerifyingContract != "" {
		if !common.IsHexAddress(domain.VerifyingContract) {
			return nil, fmt.Errorf("invalid verifying contract %q", domain.VerifyingContract)
		}
		if !w.isAllowed(common.HexToAddress(domain.VerifyingContract)) {
			return nil, fmt.Errorf("%w: verifying contract %s is not allowed", ErrRejected, domain.VerifyingContract)
		}
	}

	hash, err := TypedDataHash(domain, types, message)
	if err != nil {
		return nil, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.key == nil {
		return nil, ErrLocked
	}

	sig, err := ethcrypto.Sign(hash, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (w *Wallet) isAllowed(addr common.Address) bool {
	if len(w.allowed) == 0 {
		return true
	}
	_, ok := w.allowed[addr]
	return ok
}

// String hides the key from fmt and loggers
func (w *Wallet) String() string {
	return "ethwallet(" + strings.ToLower(w.address.Hex()) + ")"
}
