package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AlexZinkM/secret-commit/internal/model"
	"github.com/AlexZinkM/secret-commit/internal/workflow"

	"github.com/ethereum/go-ethereum/common"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, model.ErrorResponse{Error: err.Error(), Code: code})
}

var failureCodes = map[workflow.Kind]string{
	workflow.KindInitialization: model.CodeInitialization,
	workflow.KindValidation:     model.CodeValidation,
	workflow.KindUserRejection:  model.CodeUserRejection,
	workflow.KindChain:          model.CodeChain,
	workflow.KindAuthorization:  model.CodeAuthorization,
	workflow.KindRelayer:        model.CodeRelayer,
}

// writeWorkflowError maps workflow errors to status codes:
// validation 400, rejection 403, wrong state 409, fatal init 503, upstream 502
func writeWorkflowError(w http.ResponseWriter, err error) {
	var f *workflow.Failure
	if errors.As(err, &f) {
		status := http.StatusBadGateway
		switch {
		case f.Kind == workflow.KindValidation:
			status = http.StatusBadRequest
		case f.Kind == workflow.KindUserRejection:
			status = http.StatusForbidden
		case f.Fatal:
			status = http.StatusServiceUnavailable
		case f.Kind == workflow.KindAuthorization:
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, model.ErrorResponse{Error: f.Message, Code: failureCodes[f.Kind], State: f.State.String()})
		return
	}

	switch {
	case errors.Is(err, workflow.ErrBusy),
		errors.Is(err, workflow.ErrNotConnected),
		errors.Is(err, workflow.ErrNotYetPropagated),
		errors.Is(err, workflow.ErrAlreadyCommitted),
		errors.Is(err, workflow.ErrNothingCommitted),
		errors.Is(err, workflow.ErrInvalidState),
		errors.Is(err, workflow.ErrSessionActive),
		errors.Is(err, workflow.ErrSessionReset),
		errors.Is(err, workflow.ErrAlreadyInitializing):
		writeError(w, http.StatusConflict, model.CodeState, err)
	case errors.Is(err, workflow.ErrNotReady):
		writeError(w, http.StatusBadRequest, model.CodeState, err)
	default:
		writeError(w, http.StatusInternalServerError, model.CodeInternal, err)
	}
}

func statusResponse(s workflow.Snapshot) model.StatusResponse {
	resp := model.StatusResponse{
		State:            s.State.String(),
		SessionID:        s.SessionID,
		Contract:         s.Contract.Hex(),
		SecondsRemaining: workflow.SecondsRemaining(s.Remaining),
		Amount:           s.Amount,
	}
	if s.SessionID != "" {
		resp.Address = s.Identity.Hex()
	}
	if s.TxHash != (common.Hash{}) {
		resp.TxHash = s.TxHash.Hex()
	}
	if f := s.Failure; f != nil {
		resp.Failure = &model.FailureInfo{
			Kind:        string(f.Kind),
			FailedState: f.State.String(),
			ResumeState: f.Resume.String(),
			Message:     f.Message,
			Fatal:       f.Fatal,
		}
	}
	return resp
}
