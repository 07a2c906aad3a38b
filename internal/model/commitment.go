package model

// SubmitRequest represents request for POST /commitment/submit
type SubmitRequest struct {
	Amount string `json:"amount" binding:"required"` // positive whole number, fits in 32 bits
}

// SubmitResponse represents response for POST /commitment/submit
type SubmitResponse struct {
	TxHash             string `json:"txHash"`
	Handle             string `json:"handle"`
	BlockNumber        uint64 `json:"blockNumber"`
	PropagationSeconds int    `json:"propagationSeconds"` // wait before decryption is allowed
}

// DecryptResponse represents response for POST /commitment/decrypt
type DecryptResponse struct {
	Handle string `json:"handle"`
	Amount uint32 `json:"amount"`
}

// FailureInfo describes the last workflow failure
type FailureInfo struct {
	Kind        string `json:"kind"`
	FailedState string `json:"failedState"`
	ResumeState string `json:"resumeState"`
	Message     string `json:"message"`
	Fatal       bool   `json:"fatal"`
}

// StatusResponse represents response for GET /commitment/status
type StatusResponse struct {
	State            string       `json:"state"`
	SessionID        string       `json:"sessionId,omitempty"`
	Address          string       `json:"address,omitempty"`
	Contract         string       `json:"contract"`
	TxHash           string       `json:"txHash,omitempty"`
	SecondsRemaining int          `json:"secondsRemaining"` // propagation countdown
	Amount           *uint32      `json:"amount,omitempty"` // only when decrypted
	Failure          *FailureInfo `json:"failure,omitempty"`
}

// CommittedResponse represents response for GET /commitment/committed
type CommittedResponse struct {
	Address   string `json:"address"`
	Committed bool   `json:"committed"`
}

// ConnectResponse represents response for POST /session/connect
type ConnectResponse struct {
	SessionID string `json:"sessionId"`
	Address   string `json:"address"`
	State     string `json:"state"`
}
