package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AlexZinkM/secret-commit/internal/fhevm"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotReady is returned when no wallet or identity is given
	ErrNotReady = errors.New("wallet not ready")
	// ErrAlreadyInitializing is returned while another initialization is in flight
	ErrAlreadyInitializing = errors.New("initialization already in progress")
	// ErrSdkUnavailable is returned when no capability can be loaded at all
	ErrSdkUnavailable = errors.New("encryption capability unavailable")
	// ErrNetworkMismatch is returned when wallet and capability serve different chains
	ErrNetworkMismatch = errors.New("wallet and encryption network differ")
	// ErrSessionActive is returned when another identity holds the session
	ErrSessionActive = errors.New("another identity is connected")
)

// Session binds an identity, its wallet and its capability
type Session struct {
	ID         string
	Identity   common.Address
	Wallet     Wallet
	Capability Capability

	ctx    context.Context
	cancel context.CancelFunc
}

// Done is closed when the session is torn down
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// ContextManager owns the capability of the connected session.
// At most one session exists and at most one initialization runs at a time.
type ContextManager struct {
	load Loader
	log  *zap.Logger

	mu           sync.Mutex
	initializing bool
	session      *Session
}

// NewContextManager creates a manager that loads capabilities with load
func NewContextManager(load Loader, log *zap.Logger) *ContextManager {
	return &ContextManager{load: load, log: log}
}

// Initialize loads the capability for identity. It is a no-op returning the
// existing session when identity is already initialized.
func (m *ContextManager) Initialize(ctx context.Context, identity common.Address, wallet Wallet) (*Session, error) {
	if wallet == nil || identity == (common.Address{}) {
		return nil, ErrNotReady
	}

	m.mu.Lock()
	if s := m.session; s != nil {
		m.mu.Unlock()
		if s.Identity == identity {
			return s, nil
		}
		return nil, ErrSessionActive
	}
	if m.initializing {
		m.mu.Unlock()
		return nil, ErrAlreadyInitializing
	}
	m.initializing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.initializing = false
		m.mu.Unlock()
	}()

	if m.load == nil {
		return nil, ErrSdkUnavailable
	}
	capability, err := m.load(ctx)
	if err != nil {
		if errors.Is(err, fhevm.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrSdkUnavailable, err)
		}
		return nil, err
	}
	if capability == nil {
		return nil, ErrSdkUnavailable
	}

	if want := capability.Config().ChainID; wallet.ChainID() != 0 && wallet.ChainID() != want {
		return nil, fmt.Errorf("%w: wallet chain %d, network chain %d", ErrNetworkMismatch, wallet.ChainID(), want)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         uuid.NewString(),
		Identity:   identity,
		Wallet:     wallet,
		Capability: capability,
		ctx:        sessionCtx,
		cancel:     cancel,
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	m.log.Info("session initialized", zap.String("session", s.ID), zap.Stringer("identity", identity))
	return s, nil
}

// Session returns the current session or nil
func (m *ContextManager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Reset tears the session down and cancels everything bound to it
func (m *ContextManager) Reset() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s != nil {
		s.cancel()
		m.log.Info("session reset", zap.String("session", s.ID))
	}
}
