package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/AlexZinkM/secret-commit/internal/client"
	"github.com/AlexZinkM/secret-commit/internal/fhevm"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Config holds the workflow parameters
type Config struct {
	Contract          common.Address
	PropagationDelay  time.Duration
	AuthorizationDays uint64
	InitTimeout       time.Duration
	SubmitTimeout     time.Duration
	DecryptTimeout    time.Duration
}

// Option configures NewMachine
type Option func(*Machine)

// WithClock replaces the wall clock. Tests use a mock.
func WithClock(clk clock.Clock) Option {
	return func(m *Machine) { m.clock = clk }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// SubmitResult describes a confirmed submission
type SubmitResult struct {
	TxHash           common.Hash
	Handle           common.Hash
	BlockNumber      uint64
	PropagationDelay time.Duration
}

// DecryptResult is the clear amount of a handle
type DecryptResult struct {
	Handle common.Hash
	Amount uint32
}

// Snapshot is a point-in-time view of the machine
type Snapshot struct {
	State     State
	SessionID string
	Identity  common.Address
	Contract  common.Address
	TxHash    common.Hash
	Handle    common.Hash
	Remaining time.Duration
	Amount    *uint32
	Failure   *Failure
}

// Machine sequences connect, submit, propagation and decrypt for one wallet session.
// Every action is serialized through the current state; only one step runs at a time.
type Machine struct {
	cfg    Config
	ledger Ledger
	clock  clock.Clock
	log    *zap.Logger

	contexts   *ContextManager
	encryptor  *Encryptor
	submitter  *Submitter
	gate       *Gate
	authorizer *Authorizer
	requester  *Requester

	mu         sync.Mutex
	state      State
	gen        uint64 // bumped on every teardown, stale step results are dropped
	connecting bool
	session    *Session
	failure *Failure
	txHash  common.Hash
	handle  common.Hash
	result  *DecryptResult
}

// NewMachine creates a machine in Disconnected
func NewMachine(cfg Config, load Loader, ledger Ledger, opts ...Option) (*Machine, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, errors.New("contract address is required")
	}
	if cfg.AuthorizationDays == 0 || cfg.AuthorizationDays > fhevm.MaxDurationDays {
		return nil, fmt.Errorf("authorization days must be 1 to %d", fhevm.MaxDurationDays)
	}

	m := &Machine{
		cfg:    cfg,
		ledger: ledger,
		clock:  clock.New(),
		log:    zap.NewNop(),
		state:  Disconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("workflow")

	m.contexts = NewContextManager(load, m.log.Named("context"))
	m.encryptor = NewEncryptor(m.log.Named("encryptor"))
	m.submitter = NewSubmitter(ledger, m.log.Named("submitter"))
	m.gate = NewGate(m.clock, cfg.PropagationDelay)
	m.authorizer = NewAuthorizer(m.clock, cfg.AuthorizationDays, m.log.Named("authorizer"))
	m.requester = NewRequester(ledger, m.clock, m.log.Named("requester"))
	return m, nil
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current state and everything known about the commitment
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:    m.state,
		Contract: m.cfg.Contract,
		TxHash:   m.txHash,
		Handle:   m.handle,
	}
	if m.session != nil {
		snap.SessionID = m.session.ID
		snap.Identity = m.session.Identity
	}
	if m.state == AwaitingPropagation {
		snap.Remaining = m.gate.Remaining()
	}
	if m.result != nil && m.state == Decrypted {
		amount := m.result.Amount
		snap.Amount = &amount
	}
	if m.failure != nil {
		f := *m.failure
		snap.Failure = &f
	}
	return snap
}

// Connect initializes the session for wallet. If the identity already committed
// the machine resumes at AwaitingPropagation and runs the full gate.
func (m *Machine) Connect(ctx context.Context, wallet Wallet) (Snapshot, error) {
	if wallet == nil {
		return m.Snapshot(), ErrNotReady
	}

	m.mu.Lock()
	switch {
	case m.session != nil && m.session.Identity == wallet.Address():
		m.mu.Unlock()
		return m.Snapshot(), nil
	case m.connecting:
		m.mu.Unlock()
		return m.Snapshot(), ErrAlreadyInitializing
	case m.state == Error && m.failure.Fatal:
		f := m.failure
		m.mu.Unlock()
		return m.Snapshot(), f
	case !m.disconnectedLocked():
		m.mu.Unlock()
		return m.Snapshot(), ErrSessionActive
	}
	m.connecting = true
	gen := m.gen
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.InitTimeout)
	defer cancel()

	session, err := m.contexts.Initialize(stepCtx, wallet.Address(), wallet)
	if errors.Is(err, ErrAlreadyInitializing) {
		return m.Snapshot(), err
	}
	if err != nil {
		return m.Snapshot(), m.failConnect(gen, "failed to initialize encryption", err)
	}

	committed, err := m.checkNetwork(stepCtx, session)
	if err != nil {
		m.contexts.Reset()
		return m.Snapshot(), m.failConnect(gen, "failed to read chain", err)
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.contexts.Reset()
		return m.Snapshot(), ErrSessionReset
	}
	if m.session != nil || !m.disconnectedLocked() {
		m.mu.Unlock()
		return m.Snapshot(), ErrSessionActive
	}
	m.session = session
	m.failure = nil
	if committed {
		m.state = AwaitingPropagation
		m.startGateLocked()
	} else {
		m.state = Ready
	}
	m.mu.Unlock()

	m.log.Info("connected",
		zap.String("session", session.ID),
		zap.Stringer("identity", session.Identity),
		zap.Bool("committed", committed))
	return m.Snapshot(), nil
}

// disconnectedLocked reports whether no session is up, counting a failed connect
func (m *Machine) disconnectedLocked() bool {
	return m.state == Disconnected || (m.state == Error && m.failure.Resume == Disconnected)
}

// checkNetwork verifies the ledger chain and reads whether the identity committed
func (m *Machine) checkNetwork(ctx context.Context, session *Session) (bool, error) {
	chainID, err := m.ledger.ChainID(ctx)
	if err != nil {
		return false, err
	}
	if want := session.Capability.Config().ChainID; !chainID.IsUint64() || chainID.Uint64() != want {
		return false, fmt.Errorf("%w: ledger chain %s, network chain %d", ErrNetworkMismatch, chainID, want)
	}
	return m.ledger.HasCommitted(ctx, session.Identity)
}

func (m *Machine) failConnect(gen uint64, msg string, err error) error {
	f := newFailure(KindInitialization, Disconnected, Disconnected, msg, err)
	f.Fatal = errors.Is(err, ErrSdkUnavailable)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return ErrSessionReset
	}
	m.enterErrorLocked(f)
	return f
}

// Disconnect tears the session down and discards all transient state,
// including a running propagation countdown
func (m *Machine) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.log.Info("disconnected")
}

func (m *Machine) resetLocked() {
	m.gen++
	m.gate.Cancel()
	m.contexts.Reset()
	m.session = nil
	m.failure = nil
	m.txHash = common.Hash{}
	m.handle = common.Hash{}
	m.result = nil
	m.state = Disconnected
}

// Submit validates raw, encrypts it and writes the commitment on-chain.
// Invalid input fails synchronously with a ValidationFailure and no external call.
func (m *Machine) Submit(ctx context.Context, raw string) (*SubmitResult, error) {
	m.mu.Lock()
	if err := m.canSubmitLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if _, err := m.encryptor.Validate(raw); err != nil {
		f := newFailure(KindValidation, Ready, Ready, "invalid amount", err)
		m.enterErrorLocked(f)
		m.mu.Unlock()
		return nil, f
	}
	m.state = Submitting
	m.failure = nil
	gen, session := m.gen, m.session
	m.mu.Unlock()

	stepCtx, done := stepContext(ctx, session, m.cfg.SubmitTimeout)
	defer done()

	commitment, err := m.encryptor.Encrypt(stepCtx, session.Capability, m.cfg.Contract, session.Identity, raw)
	if err != nil {
		return nil, m.fail(gen, Submitting, Ready, classifyEncrypt(err))
	}

	receipt, err := m.submitter.Submit(stepCtx, session.Wallet, commitment)
	if err != nil {
		return nil, m.fail(gen, Submitting, Ready, classifySubmit(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil, ErrSessionReset
	}
	m.txHash = receipt.TxHash
	m.handle = commitment.Handle
	m.state = AwaitingPropagation
	m.startGateLocked()

	res := &SubmitResult{
		TxHash:           receipt.TxHash,
		Handle:           commitment.Handle,
		PropagationDelay: m.gate.Delay(),
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res, nil
}

func (m *Machine) canSubmitLocked() error {
	switch {
	case m.state == Ready:
		return nil
	case m.state == Error && !m.failure.Fatal && m.failure.Resume == Ready:
		return nil
	case m.state == Submitting:
		return ErrBusy
	case m.state == Disconnected:
		return ErrNotConnected
	case m.state.committed():
		return ErrAlreadyCommitted
	}
	return ErrInvalidState
}

// startGateLocked arms the propagation gate for the current generation
func (m *Machine) startGateLocked() {
	gen := m.gen
	m.gate.Start(func() { m.propagated(gen) })
	m.log.Info("awaiting propagation", zap.Duration("delay", m.gate.Delay()))
}

func (m *Machine) propagated(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != AwaitingPropagation {
		return
	}
	m.state = Decryptable
	m.log.Info("commitment decryptable", zap.Stringer("handle", m.handle))
}

// Decrypt signs a fresh authorization and asks the relayer for the clear amount.
// Before the gate elapsed it returns ErrNotYetPropagated and changes nothing.
func (m *Machine) Decrypt(ctx context.Context) (*DecryptResult, error) {
	m.mu.Lock()
	switch {
	case m.state == Decryptable:
	case m.state == Error && !m.failure.Fatal && m.failure.Resume == Decryptable:
	case m.state == Decrypted:
		res := *m.result
		m.mu.Unlock()
		return &res, nil
	case m.state == Submitting || m.state == AwaitingPropagation:
		m.mu.Unlock()
		return nil, ErrNotYetPropagated
	case m.state == Decrypting:
		m.mu.Unlock()
		return nil, ErrBusy
	case m.state == Disconnected:
		m.mu.Unlock()
		return nil, ErrNotConnected
	case m.state == Ready:
		m.mu.Unlock()
		return nil, ErrNothingCommitted
	default:
		m.mu.Unlock()
		return nil, ErrInvalidState
	}
	m.state = Decrypting
	m.failure = nil
	gen, session := m.gen, m.session
	m.mu.Unlock()

	stepCtx, done := stepContext(ctx, session, m.cfg.DecryptTimeout)
	defer done()

	auth, err := m.authorizer.BuildAndSign(stepCtx, session.Capability, m.cfg.Contract, session.Identity, session.Wallet)
	if err != nil {
		return nil, m.fail(gen, Decrypting, Decryptable, classifyAuthorize(err))
	}
	defer auth.Discard()

	handle, err := m.requester.ReadHandle(stepCtx, session.Identity)
	if err != nil {
		return nil, m.fail(gen, Decrypting, Decryptable, newFailure(KindRelayer, 0, 0, "failed to read commitment handle", err))
	}

	amount, err := m.requester.RequestPlaintext(stepCtx, session.Capability, m.cfg.Contract, session.Identity, handle, auth)
	if err != nil {
		return nil, m.fail(gen, Decrypting, Decryptable, classifyDecrypt(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil, ErrSessionReset
	}
	m.handle = handle
	m.result = &DecryptResult{Handle: handle, Amount: amount}
	m.state = Decrypted
	m.log.Info("commitment decrypted", zap.Stringer("handle", handle))

	res := *m.result
	return &res, nil
}

// Recover leaves Error for the state that preceded the failure.
// Fatal failures cannot be recovered.
func (m *Machine) Recover() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Error {
		return m.state, ErrInvalidState
	}
	if m.failure.Fatal {
		return m.state, m.failure
	}
	m.state = m.failure.Resume
	m.failure = nil
	if m.state == Disconnected {
		m.resetLocked()
	}
	return m.state, nil
}

// fail moves to Error unless the session was reset while the step ran
func (m *Machine) fail(gen uint64, failed, resume State, f *Failure) error {
	f.State, f.Resume = failed, resume

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return ErrSessionReset
	}
	m.enterErrorLocked(f)
	return f
}

func (m *Machine) enterErrorLocked(f *Failure) {
	m.state = Error
	m.failure = f
	m.log.Warn("workflow failure",
		zap.String("kind", string(f.Kind)),
		zap.Stringer("failed", f.State),
		zap.Stringer("resume", f.Resume),
		zap.Bool("fatal", f.Fatal),
		zap.Error(f.Err))
}

// stepContext detaches a step from the caller so a dropped request cannot abort it
// half way. The step ends on timeout or session teardown.
func stepContext(parent context.Context, session *Session, timeout time.Duration) (context.Context, func()) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	stop := context.AfterFunc(session.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func classifyEncrypt(err error) *Failure {
	if isTimeout(err) {
		return newFailure(KindRelayer, 0, 0, "encryption timed out", err)
	}
	return newFailure(KindRelayer, 0, 0, "failed to encrypt amount", err)
}

func classifySubmit(err error) *Failure {
	switch {
	case isUserRejection(err):
		return newFailure(KindUserRejection, 0, 0, "transaction rejected in wallet", err)
	case errors.Is(err, client.ErrReverted):
		return newFailure(KindChain, 0, 0, "transaction reverted", err)
	case isTimeout(err):
		return newFailure(KindChain, 0, 0, "transaction not confirmed in time", err)
	}
	return newFailure(KindChain, 0, 0, "failed to submit commitment", err)
}

func classifyAuthorize(err error) *Failure {
	if isUserRejection(err) {
		return newFailure(KindUserRejection, 0, 0, "signature rejected in wallet", err)
	}
	return newFailure(KindAuthorization, 0, 0, "failed to sign decryption authorization", err)
}

func classifyDecrypt(err error) *Failure {
	switch {
	case errors.Is(err, ErrAuthorizationExpired):
		return newFailure(KindAuthorization, 0, 0, "authorization expired", err)
	case client.IsUnauthorized(err):
		return newFailure(KindRelayer, 0, 0, "relayer refused decryption, permissions may not have propagated", err)
	case isTimeout(err):
		return newFailure(KindRelayer, 0, 0, "decryption timed out", err)
	}
	return newFailure(KindRelayer, 0, 0, "decryption failed", err)
}

// SecondsRemaining rounds a countdown up to whole seconds
func SecondsRemaining(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
