package workflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlexZinkM/secret-commit/internal/fhevm"
	"github.com/AlexZinkM/secret-commit/internal/fhevm/fhevmtest"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextManagerSingleInitialization(t *testing.T) {
	relayer := fhevmtest.NewRelayer(testFhevmConfig(), clock.NewMock())
	release := make(chan struct{})
	started := make(chan struct{})
	var loads atomic.Int32

	mgr := NewContextManager(func(ctx context.Context) (Capability, error) {
		loads.Add(1)
		close(started)
		<-release
		return fhevm.New(ctx, testFhevmConfig(), relayer)
	}, zap.NewNop())
	w := newTestWallet(t)

	type result struct {
		s   *Session
		err error
	}
	first := make(chan result, 1)
	go func() {
		s, err := mgr.Initialize(context.Background(), w.Address(), w)
		first <- result{s, err}
	}()
	<-started

	_, err := mgr.Initialize(context.Background(), w.Address(), w)
	require.ErrorIs(t, err, ErrAlreadyInitializing)

	close(release)
	r := <-first
	require.NoError(t, r.err)
	assert.NotEmpty(t, r.s.ID)

	again, err := mgr.Initialize(context.Background(), w.Address(), w)
	require.NoError(t, err)
	assert.Same(t, r.s, again)
	assert.Equal(t, int32(1), loads.Load())

	mgr.Reset()
	assert.Nil(t, mgr.Session())
	select {
	case <-r.s.Done():
	default:
		t.Fatal("session context not cancelled on reset")
	}
}

func TestContextManagerPreconditions(t *testing.T) {
	mgr := NewContextManager(nil, zap.NewNop())
	_, err := mgr.Initialize(context.Background(), common.Address{}, nil)
	require.ErrorIs(t, err, ErrNotReady)

	w := newTestWallet(t)
	_, err = mgr.Initialize(context.Background(), w.Address(), w)
	require.ErrorIs(t, err, ErrSdkUnavailable)
}

func TestContextManagerWalletChainMismatch(t *testing.T) {
	cfg := testFhevmConfig()
	cfg.ChainID = 1
	relayer := fhevmtest.NewRelayer(cfg, clock.NewMock())
	mgr := NewContextManager(func(ctx context.Context) (Capability, error) {
		return fhevm.New(ctx, cfg, relayer)
	}, zap.NewNop())

	w := newTestWallet(t)
	_, err := mgr.Initialize(context.Background(), w.Address(), w)
	require.ErrorIs(t, err, ErrNetworkMismatch)
	assert.Nil(t, mgr.Session())
}

func TestGate(t *testing.T) {
	clk := clock.NewMock()
	g := NewGate(clk, 10*time.Second)
	var fired atomic.Int32

	g.Start(func() { fired.Add(1) })
	assert.Equal(t, 10*time.Second, g.Remaining())

	clk.Add(4 * time.Second)
	assert.Equal(t, 6*time.Second, g.Remaining())
	assert.Equal(t, int32(0), fired.Load())

	clk.Add(6 * time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, g.Remaining())
}

func TestGateCancel(t *testing.T) {
	clk := clock.NewMock()
	g := NewGate(clk, 10*time.Second)
	var fired atomic.Int32

	g.Start(func() { fired.Add(1) })
	g.Cancel()
	clk.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Zero(t, g.Remaining())
}

func TestGateRestartReplacesCountdown(t *testing.T) {
	clk := clock.NewMock()
	g := NewGate(clk, 10*time.Second)
	var first, second atomic.Int32

	g.Start(func() { first.Add(1) })
	clk.Add(5 * time.Second)
	g.Start(func() { second.Add(1) })

	clk.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(0), second.Load())

	clk.Add(5 * time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestGateZeroDelay(t *testing.T) {
	g := NewGate(clock.NewMock(), 0)
	done := make(chan struct{})
	g.Start(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero delay gate did not fire")
	}
}

func TestAuthorizerStripsDomainType(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	relayer := fhevmtest.NewRelayer(testFhevmConfig(), clk)
	inst, err := fhevm.New(context.Background(), testFhevmConfig(), relayer)
	require.NoError(t, err)

	w := &flakyWallet{Wallet: newTestWallet(t)}
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewAuthorizer(clk, 10, zap.New(core))

	auth, err := a.BuildAndSign(context.Background(), inst, testContract, w.Address(), w)
	require.NoError(t, err)
	assert.Len(t, auth.Signature, 65)
	assert.Equal(t, []common.Address{testContract}, auth.Contracts)
	assert.Equal(t, int64(1_700_000_000), auth.StartTimestamp)
	assert.Equal(t, time.Unix(1_700_000_000, 0).Add(240*time.Hour), auth.Expires())

	assert.NotContains(t, w.lastTypes, "EIP712Domain")
	assert.Contains(t, w.lastTypes, fhevm.DecryptionPrimaryType)

	entries := logs.FilterMessage("decryption authorized").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[redacted]", fields["signature"])
	assert.Equal(t, "[redacted]", fields["privateKey"])
	for _, v := range fields {
		assert.NotEqual(t, common.Bytes2Hex(auth.Signature), v)
	}

	auth.Discard()
	assert.Equal(t, [fhevm.KeySize]byte{}, auth.Keypair.PrivateKey)
}

func TestAuthorizerRejectsForeignWallet(t *testing.T) {
	clk := clock.NewMock()
	relayer := fhevmtest.NewRelayer(testFhevmConfig(), clk)
	inst, err := fhevm.New(context.Background(), testFhevmConfig(), relayer)
	require.NoError(t, err)

	w := newTestWallet(t)
	_, err = NewAuthorizer(clk, 10, zap.NewNop()).BuildAndSign(context.Background(), inst, testContract, common.HexToAddress("0x01"), w)
	require.Error(t, err)
}

func TestRequesterRefusesExpiredAuthorization(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	relayer := fhevmtest.NewRelayer(testFhevmConfig(), clk)
	inst, err := fhevm.New(context.Background(), testFhevmConfig(), relayer)
	require.NoError(t, err)

	r := NewRequester(newFakeLedger(relayer), clk, zap.NewNop())
	auth := &SignedAuthorization{StartTimestamp: clk.Now().Add(-240 * time.Hour).Unix(), DurationDays: 10}

	_, err = r.RequestPlaintext(context.Background(), inst, testContract, common.HexToAddress("0x01"), common.Hash{1}, auth)
	require.ErrorIs(t, err, ErrAuthorizationExpired)
	assert.Equal(t, 0, relayer.UserDecryptCalls())
}

func TestRequesterReadHandle(t *testing.T) {
	relayer := fhevmtest.NewRelayer(testFhevmConfig(), clock.NewMock())
	ledger := newFakeLedger(relayer)
	r := NewRequester(ledger, clock.NewMock(), zap.NewNop())
	user := common.HexToAddress("0x01")

	_, err := r.ReadHandle(context.Background(), user)
	require.ErrorIs(t, err, ErrNoCommitment)

	ledger.commitments[user] = [32]byte{7}
	h, err := r.ReadHandle(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{7}, h)
	assert.Equal(t, 2, ledger.reads)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "AwaitingPropagation", AwaitingPropagation.String())
	assert.Equal(t, "Unknown", State(99).String())
	text, err := Decrypted.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Decrypted", string(text))
	assert.Equal(t, 3, SecondsRemaining(2500*time.Millisecond))
	assert.Equal(t, 0, SecondsRemaining(-time.Second))
}

func TestSubmitterLogsCommitmentEvents(t *testing.T) {
	relayer := fhevmtest.NewRelayer(testFhevmConfig(), clock.NewMock())
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewSubmitter(newFakeLedger(relayer), zap.New(core))
	w := newTestWallet(t)

	handle := common.Hash{0x01}
	receipt, err := s.Submit(context.Background(), w, &Commitment{Handle: handle, Proof: []byte{0x00}, Contract: testContract, Identity: w.Address()})
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)

	entries := logs.FilterMessage("commitment recorded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, w.Address().Hex(), entries[0].ContextMap()["user"])
	assert.Equal(t, "1700000000", entries[0].ContextMap()["timestamp"])
}

func TestSubmitterRejectsForeignCommitment(t *testing.T) {
	relayer := fhevmtest.NewRelayer(testFhevmConfig(), clock.NewMock())
	ledger := newFakeLedger(relayer)
	s := NewSubmitter(ledger, zap.NewNop())
	w := newTestWallet(t)

	_, err := s.Submit(context.Background(), w, &Commitment{Handle: common.Hash{0x01}, Identity: testContract})
	require.Error(t, err)
	assert.Zero(t, ledger.submitCount())
}
