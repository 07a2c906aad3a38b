package workflow

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AlexZinkM/secret-commit/ethwallet"
	"github.com/AlexZinkM/secret-commit/internal/client"
	"github.com/AlexZinkM/secret-commit/internal/fhevm"
	"github.com/AlexZinkM/secret-commit/internal/fhevm/fhevmtest"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
)

const testChainID = 11155111

var testContract = common.HexToAddress("0xe2dbd48f9fcfbf30bff433f5e30258ab7040e94b")

func testFhevmConfig() fhevm.Config {
	return fhevm.Config{
		ChainID:                            testChainID,
		GatewayChainID:                     10901,
		ACLContractAddress:                 common.HexToAddress("0xf0Ffdc93b7E186bC2f8CB3dAA75D86d1930A433D"),
		VerifyingContractAddressDecryption: common.HexToAddress("0x5D8BD78e2ea6bbE41f26dFe9fdaEAa349e077478"),
	}
}

// fakeLedger stores one handle per identity and grants it on the relayer ACL
type fakeLedger struct {
	relayer *fhevmtest.Relayer
	chainID *big.Int

	mu          sync.Mutex
	commitments map[common.Address][32]byte
	submits     int
	reads       int
	block       chan struct{}
	entered     chan struct{}
	failNext    error
	readBlock   chan struct{}
	readEntered chan struct{}
}

func newFakeLedger(relayer *fhevmtest.Relayer) *fakeLedger {
	return &fakeLedger{
		relayer:     relayer,
		chainID:     big.NewInt(testChainID),
		commitments: make(map[common.Address][32]byte),
	}
}

func (l *fakeLedger) ChainID(context.Context) (*big.Int, error) {
	return l.chainID, nil
}

func (l *fakeLedger) SubmitCommitment(ctx context.Context, signer client.TxSigner, handle [32]byte, proof []byte) (*types.Receipt, error) {
	l.mu.Lock()
	l.submits++
	block, entered := l.block, l.entered
	failNext := l.failNext
	l.failNext = nil
	l.mu.Unlock()

	tx := types.NewTx(&types.DynamicFeeTx{ChainID: l.chainID, To: &testContract, Gas: 100000, Data: append(handle[:], proof...)})
	signed, err := signer.SignTx(ctx, tx, l.chainID)
	if err != nil {
		return nil, err
	}

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failNext != nil {
		return nil, failNext
	}

	l.mu.Lock()
	l.commitments[signer.Address()] = handle
	l.mu.Unlock()
	l.relayer.Allow(handle, signer.Address())

	event := &types.Log{Address: testContract, Topics: []common.Hash{{}, common.BytesToHash(signer.Address().Bytes())}}
	return &types.Receipt{TxHash: signed.Hash(), Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42), Logs: []*types.Log{event}}, nil
}

// CommitmentEvents reports one event per receipt, stamped with the mock start time
func (l *fakeLedger) CommitmentEvents(receipt *types.Receipt) []client.CommitmentSubmitted {
	if receipt.Status != types.ReceiptStatusSuccessful || len(receipt.Logs) == 0 {
		return nil
	}
	return []client.CommitmentSubmitted{{
		User:      common.BytesToAddress(receipt.Logs[0].Topics[1].Bytes()),
		Timestamp: big.NewInt(1_700_000_000),
	}}
}

func (l *fakeLedger) GetMyCommitment(_ context.Context, from common.Address) ([32]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	return l.commitments[from], nil
}

func (l *fakeLedger) HasCommitted(ctx context.Context, user common.Address) (bool, error) {
	l.mu.Lock()
	block, entered := l.readBlock, l.readEntered
	l.readBlock, l.readEntered = nil, nil
	l.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.commitments[user]
	return ok, nil
}

func (l *fakeLedger) submitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submits
}

func (l *fakeLedger) stored(user common.Address) [32]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commitments[user]
}

// flakyWallet rejects the next rejectSigns typed-data requests
type flakyWallet struct {
	*ethwallet.Wallet

	mu          sync.Mutex
	rejectSigns int
	lastTypes   apitypes.Types
}

func (w *flakyWallet) SignTypedData(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) ([]byte, error) {
	w.mu.Lock()
	w.lastTypes = types
	if w.rejectSigns > 0 {
		w.rejectSigns--
		w.mu.Unlock()
		return nil, ethwallet.ErrRejected
	}
	w.mu.Unlock()
	return w.Wallet.SignTypedData(ctx, domain, types, message)
}

type harness struct {
	m       *Machine
	ledger  *fakeLedger
	relayer *fhevmtest.Relayer
	clock   *clock.Mock
	wallet  *flakyWallet
}

func newTestWallet(t *testing.T, opts ...ethwallet.Option) *ethwallet.Wallet {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	_, _, err := ethwallet.GenerateWallet(path, []byte("pw"), testChainID, ethwallet.WithLightKDF())
	require.NoError(t, err)
	w, err := ethwallet.Open(path, []byte("pw"), opts...)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func testLoader(relayer *fhevmtest.Relayer) Loader {
	return func(ctx context.Context) (Capability, error) {
		return fhevm.New(ctx, testFhevmConfig(), relayer)
	}
}

func newHarness(t *testing.T, walletOpts ...ethwallet.Option) *harness {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))

	relayer := fhevmtest.NewRelayer(testFhevmConfig(), clk)
	ledger := newFakeLedger(relayer)

	m, err := NewMachine(Config{
		Contract:          testContract,
		PropagationDelay:  10 * time.Second,
		AuthorizationDays: 10,
		InitTimeout:       5 * time.Second,
		SubmitTimeout:     5 * time.Second,
		DecryptTimeout:    5 * time.Second,
	}, testLoader(relayer), ledger, WithClock(clk))
	require.NoError(t, err)

	return &harness{
		m:       m,
		ledger:  ledger,
		relayer: relayer,
		clock:   clk,
		wallet:  &flakyWallet{Wallet: newTestWallet(t, walletOpts...)},
	}
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	snap, err := h.m.Connect(context.Background(), h.wallet)
	require.NoError(t, err)
	require.Contains(t, []State{Ready, AwaitingPropagation}, snap.State)
}

// elapse advances the mock clock past the gate and waits for Decryptable
func (h *harness) elapse(t *testing.T) {
	t.Helper()
	h.clock.Add(10 * time.Second)
	h.waitState(t, Decryptable)
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.m.State() == want }, 2*time.Second, time.Millisecond,
		"state %s, want %s", h.m.State(), want)
}

var errBoom = errors.New("boom")
