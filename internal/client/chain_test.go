package client

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0xe2dbd48f9fcfbf30bff433f5e30258ab7040e94b")

type fakeBackend struct {
	mu          sync.Mutex
	chainID     *big.Int
	baseFee     *big.Int
	sent        []*types.Transaction
	pendingPoll int // receipts returned as NotFound this many times
	status      uint64
	estimateErr error
	callOut     []byte
	callMsgs    []ethereum.CallMsg
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) { return b.chainID, nil }
func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}
func (b *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(2), nil }
func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error)  { return big.NewInt(5), nil }
func (b *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: b.baseFee}, nil
}
func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100000, b.estimateErr
}
func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}
func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pendingPoll > 0 {
		b.pendingPoll--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{TxHash: hash, Status: b.status, BlockNumber: big.NewInt(101)}, nil
}
func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callMsgs = append(b.callMsgs, msg)
	return b.callOut, nil
}

func newKeySigner(t *testing.T) funcSigner {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return funcSigner{
		addr: ethcrypto.PubkeyToAddress(key.PublicKey),
		sign: func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
			return types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
		},
	}
}

type funcSigner struct {
	addr common.Address
	sign func(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

func (s funcSigner) Address() common.Address { return s.addr }
func (s funcSigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return s.sign(tx, chainID)
}

func newTestChain(t *testing.T, b *fakeBackend) *ChainClient {
	t.Helper()
	c, err := NewChainClient(b, testContract, WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	return c
}

func TestSubmitCommitmentWaitsForReceipt(t *testing.T) {
	b := &fakeBackend{chainID: big.NewInt(11155111), baseFee: big.NewInt(10), pendingPoll: 3, status: types.ReceiptStatusSuccessful}
	c := newTestChain(t, b)
	signer := newKeySigner(t)

	var handle [32]byte
	handle[0] = 0xaa
	receipt, err := c.SubmitCommitment(context.Background(), signer, handle, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	require.Len(t, b.sent, 1)
	tx := b.sent[0]
	assert.Equal(t, testContract, *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120000), tx.Gas())
	assert.Equal(t, big.NewInt(22), tx.GasFeeCap())
	assert.Equal(t, receipt.TxHash, tx.Hash())

	args, err := c.abi.Methods["submitCommitment"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, handle, args[0].([32]byte))
	assert.Equal(t, []byte{1, 2, 3}, args[1].([]byte))

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.addr, sender)
}

func TestSubmitCommitmentLegacyChain(t *testing.T) {
	b := &fakeBackend{chainID: big.NewInt(1337), status: types.ReceiptStatusSuccessful}
	c := newTestChain(t, b)
	signer := newKeySigner(t)

	_, err := c.SubmitCommitment(context.Background(), signer, [32]byte{}, nil)
	require.NoError(t, err)
	require.Len(t, b.sent, 1)
	assert.Equal(t, uint8(types.LegacyTxType), b.sent[0].Type())
	assert.Equal(t, big.NewInt(5), b.sent[0].GasPrice())
}

func TestSubmitCommitmentReverted(t *testing.T) {
	b := &fakeBackend{chainID: big.NewInt(1), baseFee: big.NewInt(1), status: types.ReceiptStatusFailed}
	c := newTestChain(t, b)
	signer := newKeySigner(t)

	_, err := c.SubmitCommitment(context.Background(), signer, [32]byte{}, nil)
	require.ErrorIs(t, err, ErrReverted)
}

func TestSubmitCommitmentEstimateRevert(t *testing.T) {
	b := &fakeBackend{chainID: big.NewInt(1), baseFee: big.NewInt(1), estimateErr: errors.New("execution reverted: already committed")}
	c := newTestChain(t, b)
	signer := newKeySigner(t)

	_, err := c.SubmitCommitment(context.Background(), signer, [32]byte{}, nil)
	require.ErrorIs(t, err, ErrReverted)
	assert.Empty(t, b.sent)
}

func TestSubmitCommitmentSignerError(t *testing.T) {
	b := &fakeBackend{chainID: big.NewInt(1), baseFee: big.NewInt(1)}
	c := newTestChain(t, b)
	denied := errors.New("denied")

	_, err := c.SubmitCommitment(context.Background(), funcSigner{sign: func(*types.Transaction, *big.Int) (*types.Transaction, error) {
		return nil, denied
	}}, [32]byte{}, nil)
	require.ErrorIs(t, err, denied)
	assert.Empty(t, b.sent)
}

func TestSubmitCommitmentContextTimeout(t *testing.T) {
	b := &fakeBackend{chainID: big.NewInt(1), baseFee: big.NewInt(1), pendingPoll: 1 << 30}
	c := newTestChain(t, b)
	signer := newKeySigner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.SubmitCommitment(ctx, signer, [32]byte{}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetMyCommitmentUsesCallerAddress(t *testing.T) {
	var handle [32]byte
	handle[31] = 0x42
	b := &fakeBackend{}
	c := newTestChain(t, b)
	out, err := c.abi.Methods["getMyCommitment"].Outputs.Pack(handle)
	require.NoError(t, err)
	b.callOut = out

	from := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	got, err := c.GetMyCommitment(context.Background(), from)
	require.NoError(t, err)
	assert.Equal(t, handle, got)
	require.Len(t, b.callMsgs, 1)
	assert.Equal(t, from, b.callMsgs[0].From)
	assert.Equal(t, testContract, *b.callMsgs[0].To)
}

func TestHasCommitted(t *testing.T) {
	b := &fakeBackend{}
	c := newTestChain(t, b)
	out, err := c.abi.Methods["hasCommitted"].Outputs.Pack(true)
	require.NoError(t, err)
	b.callOut = out

	committed, err := c.HasCommitted(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestCommitmentEvents(t *testing.T) {
	c := newTestChain(t, &fakeBackend{})
	event := c.abi.Events["CommitmentSubmitted"]
	user := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(1700000000))
	require.NoError(t, err)

	receipt := &types.Receipt{Logs: []*types.Log{
		{Address: testContract, Topics: []common.Hash{event.ID, common.BytesToHash(user.Bytes())}, Data: data},
		{Address: common.HexToAddress("0x99"), Topics: []common.Hash{event.ID, common.BytesToHash(user.Bytes())}, Data: data},
	}}

	events := c.CommitmentEvents(receipt)
	require.Len(t, events, 1)
	assert.Equal(t, user, events[0].User)
	assert.Equal(t, int64(1700000000), events[0].Timestamp.Int64())
}

func TestChainIDCached(t *testing.T) {
	b := &fakeBackend{chainID: big.NewInt(5)}
	c := newTestChain(t, b)
	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	b.chainID = big.NewInt(6)
	id2, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}
