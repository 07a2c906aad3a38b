package fhevm

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/AlexZinkM/secret-commit/internal/client"
	"github.com/AlexZinkM/secret-commit/internal/common"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

const (
	// MaxDurationDays is the longest validity the gateway accepts
	MaxDurationDays = 365

	extraDataHex = "0x00"
)

// extraData is the version byte appended to proofs and authorizations
var extraData = []byte{0x00}

var (
	// ErrUnavailable is returned when the encryption capability cannot be loaded at all
	ErrUnavailable = errors.New("fhevm capability unavailable")
	// ErrChainMismatch is returned when the relayer serves another chain
	ErrChainMismatch = errors.New("relayer serves a different chain")
	// ErrNoResult is returned when the relayer answers without the requested handle
	ErrNoResult = errors.New("relayer returned no value for handle")
)

// Relayer is the relayer API an Instance drives
type Relayer interface {
	KeyInfo(ctx context.Context) (*client.KeyInfo, error)
	InputProof(ctx context.Context, req *client.InputProofRequest) (*client.InputProofResponse, error)
	UserDecrypt(ctx context.Context, req *client.UserDecryptRequest) ([]client.DecryptedShare, error)
}

// Instance is a loaded encryption/decryption capability.
// It is immutable after New and safe for concurrent use.
type Instance struct {
	cfg        Config
	relayer    Relayer
	networkKey [KeySize]byte
	log        *zap.Logger
}

// Option configures New
type Option func(*Instance)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(i *Instance) { i.log = log }
}

// New loads the network input key from the relayer
func New(ctx context.Context, cfg Config, relayer Relayer, opts ...Option) (*Instance, error) {
	if relayer == nil {
		return nil, fmt.Errorf("%w: no relayer configured", ErrUnavailable)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fhevm config: %w", err)
	}

	inst := &Instance{cfg: cfg, relayer: relayer, log: zap.NewNop()}
	for _, opt := range opts {
		opt(inst)
	}
	inst.log = inst.log.Named("fhevm")

	info, err := relayer.KeyInfo(ctx)
	if err != nil {
		if client.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("failed to load network key: %w", err)
	}
	if info.ChainID != 0 && info.ChainID != cfg.ChainID {
		return nil, fmt.Errorf("%w: relayer %d, configured %d", ErrChainMismatch, info.ChainID, cfg.ChainID)
	}

	key, err := common.DecodeHex(info.InputPublicKey)
	if err != nil || len(key) != KeySize {
		return nil, fmt.Errorf("%w: relayer published no usable input key", ErrUnavailable)
	}
	copy(inst.networkKey[:], key)

	inst.log.Info("network key loaded", zap.String("keyId", info.KeyID), zap.Uint64("chainId", cfg.ChainID))
	return inst, nil
}

// Config returns the network configuration
func (i *Instance) Config() Config {
	return i.cfg
}

// EncryptedInput is what submitCommitment-style calls take
type EncryptedInput struct {
	Handles    []gethcommon.Hash
	InputProof []byte
}

// Input collects values to encrypt for one contract and user
type Input struct {
	inst     *Instance
	contract gethcommon.Address
	user     gethcommon.Address
	values   []uint32
}

// CreateEncryptedInput starts an input bound to contract and user
func (i *Instance) CreateEncryptedInput(contract, user gethcommon.Address) *Input {
	return &Input{inst: i, contract: contract, user: user}
}

// Add32 appends a euint32 value
func (in *Input) Add32(v uint32) *Input {
	in.values = append(in.values, v)
	return in
}

// Encrypt seals the values and has the relayer verify them
func (in *Input) Encrypt(ctx context.Context) (*EncryptedInput, error) {
	if len(in.values) == 0 {
		return nil, errors.New("input has no values")
	}
	if len(in.values) > maxInputHandles {
		return nil, fmt.Errorf("input has %d values, max %d", len(in.values), maxInputHandles)
	}
	cfg := in.inst.cfg

	envelope, err := SealInput(in.inst.networkKey, in.contract, in.user, in.values)
	if err != nil {
		return nil, fmt.Errorf("failed to seal input: %w", err)
	}

	resp, err := in.inst.relayer.InputProof(ctx, &client.InputProofRequest{
		ContractChainID:                 strconv.FormatUint(cfg.ChainID, 10),
		ContractAddress:                 in.contract.Hex(),
		UserAddress:                     in.user.Hex(),
		CiphertextWithInputVerification: hex.EncodeToString(envelope),
		ExtraData:                       extraDataHex,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Handles) != len(in.values) {
		return nil, fmt.Errorf("relayer returned %d handles for %d values", len(resp.Handles), len(in.values))
	}
	handles := make([]gethcommon.Hash, len(resp.Handles))
	for idx, raw := range resp.Handles {
		h, err := common.DecodeHandle(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid handle from relayer: %w", err)
		}
		if err := checkHandle(h, idx, cfg.ChainID, TypeEuint32); err != nil {
			return nil, err
		}
		handles[idx] = h
	}

	signatures := make([][]byte, len(resp.Signatures))
	for idx, raw := range resp.Signatures {
		sig, err := common.DecodeHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid signature from relayer: %w", err)
		}
		signatures[idx] = sig
	}

	proof, err := assembleInputProof(handles, signatures, extraData)
	if err != nil {
		return nil, err
	}

	in.inst.log.Debug("input encrypted",
		zap.Stringer("contract", in.contract),
		zap.Stringer("user", in.user),
		zap.Int("handles", len(handles)))
	return &EncryptedInput{Handles: handles, InputProof: proof}, nil
}

// EncryptUint32 encrypts a single value
func (i *Instance) EncryptUint32(ctx context.Context, contract, user gethcommon.Address, v uint32) (gethcommon.Hash, []byte, error) {
	enc, err := i.CreateEncryptedInput(contract, user).Add32(v).Encrypt(ctx)
	if err != nil {
		return gethcommon.Hash{}, nil, err
	}
	return enc.Handles[0], enc.InputProof, nil
}

// GenerateKeypair creates a session keypair for one decryption
func (i *Instance) GenerateKeypair() (*Keypair, error) {
	return GenerateKeypair()
}

// DecryptionPrimaryType is the signed struct of a user decryption
const DecryptionPrimaryType = "UserDecryptRequestVerification"

// CreateEIP712 builds the authorization a user signs to decrypt handles of contracts.
// The returned types include EIP712Domain.
func (i *Instance) CreateEIP712(publicKey []byte, contracts []gethcommon.Address, startTimestamp int64, durationDays uint64) (apitypes.TypedData, error) {
	if len(publicKey) != KeySize {
		return apitypes.TypedData{}, fmt.Errorf("invalid public key length %d", len(publicKey))
	}
	if len(contracts) == 0 {
		return apitypes.TypedData{}, errors.New("no contract addresses")
	}
	if durationDays == 0 || durationDays > MaxDurationDays {
		return apitypes.TypedData{}, fmt.Errorf("duration must be 1 to %d days", MaxDurationDays)
	}
	if startTimestamp <= 0 {
		return apitypes.TypedData{}, errors.New("invalid start timestamp")
	}

	addrs := make([]interface{}, len(contracts))
	for idx, c := range contracts {
		addrs[idx] = c.Hex()
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			DecryptionPrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
				{Name: "extraData", Type: "bytes"},
			},
		},
		PrimaryType: DecryptionPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              "Decryption",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(i.cfg.GatewayChainID)),
			VerifyingContract: i.cfg.VerifyingContractAddressDecryption.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         common.EncodeHex(publicKey),
			"contractAddresses": addrs,
			"startTimestamp":    strconv.FormatInt(startTimestamp, 10),
			"durationDays":      strconv.FormatUint(durationDays, 10),
			"extraData":         extraDataHex,
		},
	}, nil
}

// HandleContractPair names a handle and the contract it belongs to
type HandleContractPair struct {
	Handle   gethcommon.Hash
	Contract gethcommon.Address
}

// UserDecryptRequest is a signed request to decrypt handles owned by User
type UserDecryptRequest struct {
	Pairs             []HandleContractPair
	Keypair           *Keypair
	Signature         []byte
	ContractAddresses []gethcommon.Address
	User              gethcommon.Address
	StartTimestamp    int64
	DurationDays      uint64
}

// UserDecrypt asks the relayer to reencrypt handles to the request keypair and opens them
func (i *Instance) UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[gethcommon.Hash]uint64, error) {
	if req.Keypair == nil {
		return nil, errors.New("keypair required")
	}
	if len(req.Pairs) == 0 {
		return nil, errors.New("no handles to decrypt")
	}
	if len(req.Signature) != signatureLen {
		return nil, fmt.Errorf("invalid signature length %d", len(req.Signature))
	}

	allowed := make(map[gethcommon.Address]bool, len(req.ContractAddresses))
	contracts := make([]string, len(req.ContractAddresses))
	for idx, c := range req.ContractAddresses {
		allowed[c] = true
		contracts[idx] = c.Hex()
	}

	pairs := make([]client.HandleContractPair, len(req.Pairs))
	for idx, p := range req.Pairs {
		if !allowed[p.Contract] {
			return nil, fmt.Errorf("contract %s is not in the authorized contract list", p.Contract.Hex())
		}
		if HandleChainID(p.Handle) != i.cfg.ChainID {
			return nil, fmt.Errorf("handle %s belongs to chain %d", p.Handle.Hex(), HandleChainID(p.Handle))
		}
		pairs[idx] = client.HandleContractPair{Handle: p.Handle.Hex(), ContractAddress: p.Contract.Hex()}
	}

	shares, err := i.relayer.UserDecrypt(ctx, &client.UserDecryptRequest{
		HandleContractPairs: pairs,
		RequestValidity: client.RequestValidity{
			StartTimestamp: strconv.FormatInt(req.StartTimestamp, 10),
			DurationDays:   strconv.FormatUint(req.DurationDays, 10),
		},
		ContractsChainID:  strconv.FormatUint(i.cfg.ChainID, 10),
		ContractAddresses: contracts,
		UserAddress:       req.User.Hex(),
		Signature:         hex.EncodeToString(req.Signature),
		PublicKey:         hex.EncodeToString(req.Keypair.PublicKey[:]),
		ExtraData:         extraDataHex,
	})
	if err != nil {
		return nil, err
	}

	out := make(map[gethcommon.Hash]uint64, len(shares))
	for _, share := range shares {
		h, err := common.DecodeHandle(share.Handle)
		if err != nil {
			return nil, fmt.Errorf("invalid handle from relayer: %w", err)
		}
		payload, err := common.DecodeHex(share.Payload)
		if err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", share.Handle, err)
		}
		value, err := OpenResult(&req.Keypair.PrivateKey, payload)
		if err != nil {
			return nil, fmt.Errorf("handle %s: %w", share.Handle, err)
		}
		if !value.IsUint64() {
			return nil, fmt.Errorf("handle %s: clear value overflows uint64", share.Handle)
		}
		out[h] = value.Uint64()
	}

	for _, p := range req.Pairs {
		if _, ok := out[p.Handle]; !ok {
			return nil, fmt.Errorf("%w %s", ErrNoResult, p.Handle.Hex())
		}
	}
	return out, nil
}
