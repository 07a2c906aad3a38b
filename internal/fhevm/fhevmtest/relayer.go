// Package fhevmtest provides an in-memory relayer for tests.
package fhevmtest

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AlexZinkM/secret-commit/internal/client"
	"github.com/AlexZinkM/secret-commit/internal/common"
	"github.com/AlexZinkM/secret-commit/internal/fhevm"

	"github.com/benbjohnson/clock"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/curve25519"
)

type stored struct {
	value    uint32
	contract gethcommon.Address
	user     gethcommon.Address
}

// Relayer mimics the relayer and KMS: it opens inputs with the network key,
// keeps clear values by handle and reencrypts them for authorized users.
type Relayer struct {
	cfg   fhevm.Config
	clock clock.Clock

	networkPriv [fhevm.KeySize]byte
	networkPub  [fhevm.KeySize]byte
	coprocessor *ecdsa.PrivateKey
	inst        *fhevm.Instance

	mu               sync.Mutex
	values           map[gethcommon.Hash]stored
	acl              map[gethcommon.Hash]map[gethcommon.Address]bool
	keyInfoErr       error
	inputProofErr    error
	userDecryptErr   error
	inputProofCalls  int
	userDecryptCalls int
	holdEntered      chan struct{}
	holdRelease      chan struct{}
}

// NewRelayer creates a relayer for cfg. clk drives authorization validity checks.
func NewRelayer(cfg fhevm.Config, clk clock.Clock) *Relayer {
	r := &Relayer{
		cfg:    cfg,
		clock:  clk,
		values: make(map[gethcommon.Hash]stored),
		acl:    make(map[gethcommon.Hash]map[gethcommon.Address]bool),
	}
	if _, err := io.ReadFull(rand.Reader, r.networkPriv[:]); err != nil {
		panic(err)
	}
	pub, err := curve25519.X25519(r.networkPriv[:], curve25519.Basepoint)
	if err != nil {
		panic(err)
	}
	copy(r.networkPub[:], pub)

	if r.coprocessor, err = crypto.GenerateKey(); err != nil {
		panic(err)
	}
	if r.inst, err = fhevm.New(context.Background(), cfg, r); err != nil {
		panic(err)
	}
	return r
}

// FailKeyInfo makes every KeyInfo call return err until reset with nil
func (r *Relayer) FailKeyInfo(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyInfoErr = err
}

// FailNextInputProof makes the next InputProof call return err
func (r *Relayer) FailNextInputProof(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputProofErr = err
}

// FailNextUserDecrypt makes the next UserDecrypt call return err
func (r *Relayer) FailNextUserDecrypt(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userDecryptErr = err
}

// HoldNextUserDecrypt parks the next UserDecrypt call. entered receives once
// the call arrived; the call proceeds when release is called.
func (r *Relayer) HoldNextUserDecrypt() (entered <-chan struct{}, release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, out := make(chan struct{}, 1), make(chan struct{})
	r.holdEntered, r.holdRelease = in, out
	var once sync.Once
	return in, func() { once.Do(func() { close(out) }) }
}

// InputProofCalls counts InputProof calls
func (r *Relayer) InputProofCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputProofCalls
}

// UserDecryptCalls counts UserDecrypt calls
func (r *Relayer) UserDecryptCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userDecryptCalls
}

// Allow grants decryption of handle to account, as the ACL contract would
func (r *Relayer) Allow(handle gethcommon.Hash, account gethcommon.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acl[handle] == nil {
		r.acl[handle] = make(map[gethcommon.Address]bool)
	}
	r.acl[handle][account] = true
}

// Value returns the clear value behind handle
func (r *Relayer) Value(handle gethcommon.Hash) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.values[handle]
	return s.value, ok
}

// KeyInfo implements fhevm.Relayer
func (r *Relayer) KeyInfo(context.Context) (*client.KeyInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keyInfoErr != nil {
		return nil, r.keyInfoErr
	}
	return &client.KeyInfo{
		KeyID:          "test-key",
		InputPublicKey: common.EncodeHex(r.networkPub[:]),
		ChainID:        r.cfg.ChainID,
	}, nil
}

// InputProof implements fhevm.Relayer
func (r *Relayer) InputProof(_ context.Context, req *client.InputProofRequest) (*client.InputProofResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputProofCalls++
	if err := r.inputProofErr; err != nil {
		r.inputProofErr = nil
		return nil, err
	}

	if req.ContractChainID != strconv.FormatUint(r.cfg.ChainID, 10) {
		return nil, badRequest("unknown contract chain id")
	}
	if !gethcommon.IsHexAddress(req.ContractAddress) || !gethcommon.IsHexAddress(req.UserAddress) {
		return nil, badRequest("invalid address")
	}
	contract := gethcommon.HexToAddress(req.ContractAddress)
	user := gethcommon.HexToAddress(req.UserAddress)

	envelope, err := hex.DecodeString(req.CiphertextWithInputVerification)
	if err != nil {
		return nil, badRequest("invalid ciphertext encoding")
	}
	values, err := fhevm.OpenInput(r.networkPriv, contract, user, envelope)
	if err != nil {
		return nil, badRequest("input verification failed")
	}

	resp := &client.InputProofResponse{}
	var digest []byte
	for idx, v := range values {
		h := fhevm.ComputeHandle(envelope, uint8(idx), r.cfg.ChainID, fhevm.TypeEuint32)
		r.values[h] = stored{value: v, contract: contract, user: user}
		resp.Handles = append(resp.Handles, h.Hex())
		digest = append(digest, h[:]...)
	}

	sig, err := crypto.Sign(crypto.Keccak256(digest, user.Bytes(), contract.Bytes()), r.coprocessor)
	if err != nil {
		return nil, err
	}
	resp.Signatures = []string{common.EncodeHex(sig)}
	return resp, nil
}

// UserDecrypt implements fhevm.Relayer
func (r *Relayer) UserDecrypt(ctx context.Context, req *client.UserDecryptRequest) ([]client.DecryptedShare, error) {
	r.mu.Lock()
	r.userDecryptCalls++
	entered, release := r.holdEntered, r.holdRelease
	r.holdEntered, r.holdRelease = nil, nil
	if err := r.userDecryptErr; err != nil {
		r.userDecryptErr = nil
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	user := gethcommon.HexToAddress(req.UserAddress)
	if err := r.verifyAuthorization(req, user); err != nil {
		return nil, err
	}

	pubRaw, err := hex.DecodeString(req.PublicKey)
	if err != nil || len(pubRaw) != fhevm.KeySize {
		return nil, badRequest("invalid public key")
	}
	var recipient [fhevm.KeySize]byte
	copy(recipient[:], pubRaw)

	r.mu.Lock()
	defer r.mu.Unlock()

	shares := make([]client.DecryptedShare, 0, len(req.HandleContractPairs))
	for _, pair := range req.HandleContractPairs {
		h, err := common.DecodeHandle(pair.Handle)
		if err != nil {
			return nil, badRequest("invalid handle")
		}
		s, ok := r.values[h]
		if !ok {
			return nil, &client.RelayerStatusError{StatusCode: http.StatusNotFound, Message: "unknown handle"}
		}
		if !r.acl[h][user] || gethcommon.HexToAddress(pair.ContractAddress) != s.contract {
			return nil, &client.RelayerStatusError{StatusCode: http.StatusForbidden, Message: "user is not authorized to decrypt handle"}
		}
		payload, err := fhevm.SealResult(recipient, uint256.NewInt(uint64(s.value)))
		if err != nil {
			return nil, err
		}
		shares = append(shares, client.DecryptedShare{Handle: pair.Handle, Payload: common.EncodeHex(payload)})
	}
	return shares, nil
}

// verifyAuthorization checks the validity window and that user signed the request
func (r *Relayer) verifyAuthorization(req *client.UserDecryptRequest, user gethcommon.Address) error {
	start, err := strconv.ParseInt(req.RequestValidity.StartTimestamp, 10, 64)
	if err != nil {
		return badRequest("invalid start timestamp")
	}
	days, err := strconv.ParseUint(req.RequestValidity.DurationDays, 10, 64)
	if err != nil {
		return badRequest("invalid duration")
	}
	now := r.clock.Now().Unix()
	if now < start || now >= start+int64(days)*int64((24*time.Hour).Seconds()) {
		return badRequest("request is not within its validity window")
	}

	pub, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		return badRequest("invalid public key")
	}
	contracts := make([]gethcommon.Address, len(req.ContractAddresses))
	for idx, c := range req.ContractAddresses {
		contracts[idx] = gethcommon.HexToAddress(c)
	}
	td, err := r.inst.CreateEIP712(pub, contracts, start, days)
	if err != nil {
		return badRequest(err.Error())
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return badRequest(err.Error())
	}

	sig, err := hex.DecodeString(req.Signature)
	if err != nil || len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		return badRequest("invalid signature")
	}
	sig = append([]byte{}, sig...)
	sig[64] -= 27
	signer, err := crypto.SigToPub(hash, sig)
	if err != nil || crypto.PubkeyToAddress(*signer) != user {
		return &client.RelayerStatusError{StatusCode: http.StatusUnauthorized, Message: "invalid EIP-712 signature"}
	}
	return nil
}

func badRequest(msg string) error {
	return &client.RelayerStatusError{StatusCode: http.StatusBadRequest, Message: fmt.Sprintf("bad request: %s", msg)}
}
