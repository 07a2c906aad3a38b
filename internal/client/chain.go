package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// CommitmentABI is the fixed interface of the commitment contract
const CommitmentABI = `[
	{"type":"function","name":"submitCommitment","stateMutability":"nonpayable",
	 "inputs":[{"name":"encryptedAmount","type":"bytes32"},{"name":"inputProof","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"getMyCommitment","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"hasCommitted","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"CommitmentSubmitted","anonymous":false,
	 "inputs":[{"name":"user","type":"address","indexed":true},{"name":"timestamp","type":"uint256","indexed":false}]}
]`

const (
	defaultPollInterval = 2 * time.Second
	gasHeadroomPercent  = 20 // added on top of eth_estimateGas
)

// ErrReverted is returned when the contract call reverts
var ErrReverted = errors.New("transaction reverted")

// Backend is the subset of *ethclient.Client used by ChainClient
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TxSigner signs transactions on behalf of one address
type TxSigner interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// CommitmentSubmitted is the decoded contract event
type CommitmentSubmitted struct {
	User      common.Address
	Timestamp *big.Int
}

// ChainClient is a client for the commitment contract over JSON-RPC
type ChainClient struct {
	backend      Backend
	contract     common.Address
	abi          abi.ABI
	clock        clock.Clock
	pollInterval time.Duration
	log          *zap.Logger

	chainMu sync.Mutex
	chainID *big.Int
}

// ChainOption configures ChainClient
type ChainOption func(*ChainClient)

// WithPollInterval sets how often receipts are polled
func WithPollInterval(d time.Duration) ChainOption {
	return func(c *ChainClient) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithClock replaces the wall clock used for receipt polling
func WithClock(clk clock.Clock) ChainOption {
	return func(c *ChainClient) { c.clock = clk }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) ChainOption {
	return func(c *ChainClient) { c.log = log }
}

// DialChain connects to rpcURL and returns a client bound to contract
func DialChain(ctx context.Context, rpcURL string, contract common.Address, opts ...ChainOption) (*ChainClient, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain rpc: %w", err)
	}
	return NewChainClient(eth, contract, opts...)
}

// NewChainClient creates a client bound to contract
func NewChainClient(backend Backend, contract common.Address, opts ...ChainOption) (*ChainClient, error) {
	parsed, err := abi.JSON(strings.NewReader(CommitmentABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}

	c := &ChainClient{
		backend:      backend,
		contract:     contract,
		abi:          parsed,
		clock:        clock.New(),
		pollInterval: defaultPollInterval,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("chain")
	return c, nil
}

// ChainID returns the chain id, cached after the first successful call
func (c *ChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()

	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// SubmitCommitment sends submitCommitment(handle, proof) signed by signer
// and waits for one confirmation.
func (c *ChainClient) SubmitCommitment(ctx context.Context, signer TxSigner, handle [32]byte, proof []byte) (*types.Receipt, error) {
	data, err := c.abi.Pack("submitCommitment", handle, proof)
	if err != nil {
		return nil, fmt.Errorf("failed to pack submitCommitment: %w", err)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	from := signer.Address()
	tx, err := c.buildTx(ctx, chainID, from, data)
	if err != nil {
		return nil, err
	}

	signed, err := signer.SignTx(ctx, tx, chainID)
	if err != nil {
		return nil, err
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	c.log.Info("commitment transaction sent",
		zap.Stringer("tx", signed.Hash()),
		zap.Stringer("from", from),
		zap.Uint64("nonce", signed.Nonce()))

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: tx %s", ErrReverted, signed.Hash().Hex())
	}
	return receipt, nil
}

// buildTx prices and estimates a call to the contract from an address
func (c *ChainClient) buildTx(ctx context.Context, chainID *big.Int, from common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.contract, Data: data})
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %v", ErrReverted, err)
		}
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas += gas * gasHeadroomPercent / 100

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	// Pre-London chains get a legacy transaction
	if head.BaseFee == nil {
		gasPrice, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &c.contract,
			Data:     data,
		}), nil
	}

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.contract,
		Data:      data,
	}), nil
}

// waitMined polls for the receipt until it exists or ctx ends
func (c *ChainClient) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := c.clock.Ticker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("receipt not available", zap.Stringer("tx", hash), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for tx %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetMyCommitment reads the caller-scoped handle as seen by from
func (c *ChainClient) GetMyCommitment(ctx context.Context, from common.Address) ([32]byte, error) {
	var handle [32]byte

	out, err := c.call(ctx, from, "getMyCommitment")
	if err != nil {
		return handle, err
	}
	handle, ok := out[0].([32]byte)
	if !ok {
		return handle, fmt.Errorf("unexpected getMyCommitment output %T", out[0])
	}
	return handle, nil
}

// HasCommitted reports whether user already submitted a commitment
func (c *ChainClient) HasCommitted(ctx context.Context, user common.Address) (bool, error) {
	out, err := c.call(ctx, common.Address{}, "hasCommitted", user)
	if err != nil {
		return false, err
	}
	committed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected hasCommitted output %T", out[0])
	}
	return committed, nil
}

func (c *ChainClient) call(ctx context.Context, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	res, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &c.contract, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrReverted, method, err)
		}
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	out, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s output", method)
	}
	return out, nil
}

// CommitmentEvents decodes CommitmentSubmitted logs emitted by the contract
func (c *ChainClient) CommitmentEvents(receipt *types.Receipt) []CommitmentSubmitted {
	event := c.abi.Events["CommitmentSubmitted"]

	var events []CommitmentSubmitted
	for _, l := range receipt.Logs {
		if l.Address != c.contract || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		ts, _ := values[0].(*big.Int)
		events = append(events, CommitmentSubmitted{
			User:      common.BytesToAddress(l.Topics[1].Bytes()),
			Timestamp: ts,
		})
	}
	return events
}

// isRevert checks if a JSON-RPC error reports an EVM revert
func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
