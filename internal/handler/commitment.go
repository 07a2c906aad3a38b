package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/AlexZinkM/secret-commit/internal/model"
	"github.com/AlexZinkM/secret-commit/internal/workflow"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// SessionWallet is a workflow wallet that can be locked again
type SessionWallet interface {
	workflow.Wallet
	Close()
}

// WalletOpener unlocks the configured wallet
type WalletOpener func() (SessionWallet, error)

// CommitmentReader answers hasCommitted for any address
type CommitmentReader interface {
	HasCommitted(ctx context.Context, user common.Address) (bool, error)
}

// CommitmentHandler drives the commitment workflow of the local wallet
type CommitmentHandler struct {
	machine *workflow.Machine
	reader  CommitmentReader
	open    WalletOpener
	log     *zap.Logger

	mu     sync.Mutex
	wallet SessionWallet
}

// NewCommitmentHandler creates a new CommitmentHandler
func NewCommitmentHandler(machine *workflow.Machine, reader CommitmentReader, open WalletOpener, log *zap.Logger) *CommitmentHandler {
	return &CommitmentHandler{
		machine: machine,
		reader:  reader,
		open:    open,
		log:     log.Named("commitment"),
	}
}

// Connect handles POST /session/connect
// @Summary      Connect wallet
// @Description  Unlocks the wallet and initializes the encryption capability. Resumes at the propagation wait if the wallet already committed.
// @Tags         session
// @Produce      json
// @Success      200  {object}  model.ConnectResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /session/connect [post]
func (h *CommitmentHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	opened := false
	if h.wallet == nil {
		wallet, err := h.open()
		if err != nil {
			writeError(w, http.StatusBadRequest, model.CodeInitialization, err)
			return
		}
		h.wallet, opened = wallet, true
	}

	snap, err := h.machine.Connect(r.Context(), h.wallet)
	if err != nil {
		if opened && !errors.Is(err, workflow.ErrAlreadyInitializing) {
			h.wallet.Close()
			h.wallet = nil
		}
		writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ConnectResponse{
		SessionID: snap.SessionID,
		Address:   snap.Identity.Hex(),
		State:     snap.State.String(),
	})
}

// Disconnect handles POST /session/disconnect
// @Summary      Disconnect wallet
// @Description  Tears the session down, cancels the propagation countdown and locks the wallet
// @Tags         session
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Router       /session/disconnect [post]
func (h *CommitmentHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	h.machine.Disconnect()

	h.mu.Lock()
	if h.wallet != nil {
		h.wallet.Close()
		h.wallet = nil
	}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, statusResponse(h.machine.Snapshot()))
}

// Submit handles POST /commitment/submit
// @Summary      Submit commitment
// @Description  Encrypts the amount for the contract and wallet, submits it and waits for one confirmation
// @Tags         commitment
// @Accept       json
// @Produce      json
// @Param        request  body      model.SubmitRequest  true  "Amount to commit"
// @Success      200      {object}  model.SubmitResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      403      {object}  model.ErrorResponse
// @Failure      409      {object}  model.ErrorResponse
// @Failure      502      {object}  model.ErrorResponse
// @Router       /commitment/submit [post]
func (h *CommitmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.CodeValidation, err)
		return
	}

	res, err := h.machine.Submit(r.Context(), req.Amount)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SubmitResponse{
		TxHash:             res.TxHash.Hex(),
		Handle:             res.Handle.Hex(),
		BlockNumber:        res.BlockNumber,
		PropagationSeconds: workflow.SecondsRemaining(res.PropagationDelay),
	})
}

// Decrypt handles POST /commitment/decrypt
// @Summary      Decrypt commitment
// @Description  Signs a decryption authorization and retrieves the committed amount through the relayer. Takes tens of seconds.
// @Tags         commitment
// @Produce      json
// @Success      200  {object}  model.DecryptResponse
// @Failure      403  {object}  model.ErrorResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      502  {object}  model.ErrorResponse
// @Router       /commitment/decrypt [post]
func (h *CommitmentHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	res, err := h.machine.Decrypt(r.Context())
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.DecryptResponse{
		Handle: res.Handle.Hex(),
		Amount: res.Amount,
	})
}

// Recover handles POST /commitment/recover
// @Summary      Recover from error
// @Description  Returns from the error state to the state that preceded the failure
// @Tags         commitment
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Failure      409  {object}  model.ErrorResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /commitment/recover [post]
func (h *CommitmentHandler) Recover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	if _, err := h.machine.Recover(); err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(h.machine.Snapshot()))
}

// Status handles GET /commitment/status
// @Summary      Workflow status
// @Description  Gets the workflow state, propagation countdown, last failure and the decrypted amount once available
// @Tags         commitment
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Router       /commitment/status [get]
func (h *CommitmentHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse(h.machine.Snapshot()))
}

// Committed handles GET /commitment/committed
// @Summary      Check commitment
// @Description  Reads hasCommitted(address) from the contract
// @Tags         commitment
// @Produce      json
// @Param        address  query     string  true  "Address to check"
// @Success      200      {object}  model.CommittedResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      502      {object}  model.ErrorResponse
// @Router       /commitment/committed [get]
func (h *CommitmentHandler) Committed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Query().Get("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, model.CodeValidation, errors.New("address must be a 20-byte hex address"))
		return
	}
	address := common.HexToAddress(raw)

	committed, err := h.reader.HasCommitted(r.Context(), address)
	if err != nil {
		h.log.Warn("hasCommitted failed", zap.Stringer("address", address), zap.Error(err))
		writeError(w, http.StatusBadGateway, model.CodeChain, err)
		return
	}

	writeJSON(w, http.StatusOK, model.CommittedResponse{
		Address:   address.Hex(),
		Committed: committed,
	})
}
