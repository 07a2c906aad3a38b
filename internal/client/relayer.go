package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	keyInfoPath     = "/v1/keyurl"
	inputProofPath  = "/v1/input-proof"
	userDecryptPath = "/v1/user-decrypt"

	maxErrorBody = 4096
)

// RelayerStatusError is a non-2xx relayer response
type RelayerStatusError struct {
	StatusCode int
	Message    string
}

func (e *RelayerStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relayer returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("relayer returned status %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized checks if the relayer refused the request's authorization
func IsUnauthorized(err error) bool {
	var se *RelayerStatusError
	return errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden)
}

// IsNotFound checks if the relayer answered 404
func IsNotFound(err error) bool {
	var se *RelayerStatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// KeyInfo describes the network input key published by the relayer
type KeyInfo struct {
	KeyID          string `json:"keyId"`
	InputPublicKey string `json:"inputPublicKey"` // 0x-prefixed X25519 key
	ChainID        uint64 `json:"chainId"`
}

// InputProofRequest is the body of POST /v1/input-proof
type InputProofRequest struct {
	ContractChainID                 string `json:"contractChainId"`
	ContractAddress                 string `json:"contractAddress"`
	UserAddress                     string `json:"userAddress"`
	CiphertextWithInputVerification string `json:"ciphertextWithInputVerification"`
	ExtraData                       string `json:"extraData"`
}

// InputProofResponse carries the handles and coprocessor signatures for an input
type InputProofResponse struct {
	Handles    []string `json:"handles"`
	Signatures []string `json:"signatures"`
}

// HandleContractPair names one ciphertext and the contract allowed to use it
type HandleContractPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

// RequestValidity is the authorization window, both values in decimal
type RequestValidity struct {
	StartTimestamp string `json:"startTimestamp"`
	DurationDays   string `json:"durationDays"`
}

// UserDecryptRequest is the body of POST /v1/user-decrypt
type UserDecryptRequest struct {
	HandleContractPairs []HandleContractPair `json:"handleContractPairs"`
	RequestValidity     RequestValidity      `json:"requestValidity"`
	ContractsChainID    string               `json:"contractsChainId"`
	ContractAddresses   []string             `json:"contractAddresses"`
	UserAddress         string               `json:"userAddress"`
	Signature           string               `json:"signature"` // hex without 0x
	PublicKey           string               `json:"publicKey"` // hex without 0x
	ExtraData           string               `json:"extraData"`
}

// DecryptedShare is one handle's clear value sealed to the request public key
type DecryptedShare struct {
	Handle  string `json:"handle"`
	Payload string `json:"payload"`
}

type envelope[T any] struct {
	Response T      `json:"response"`
	Message  string `json:"message,omitempty"`
}

// RelayerClient client for the FHEVM relayer HTTP API
type RelayerClient struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewRelayerClient creates a new relayer client.
// timeout bounds a single request; user decryption can take close to a minute.
func NewRelayerClient(baseURL string, timeout time.Duration, log *zap.Logger) *RelayerClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &RelayerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		log: log.Named("relayer"),
	}
}

// BaseURL returns the relayer URL without a trailing slash
func (c *RelayerClient) BaseURL() string {
	return c.baseURL
}

// KeyInfo gets the network input key
func (c *RelayerClient) KeyInfo(ctx context.Context) (*KeyInfo, error) {
	var out envelope[KeyInfo]
	if err := c.do(ctx, http.MethodGet, keyInfoPath, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get key info: %w", err)
	}
	return &out.Response, nil
}

// InputProof registers an encrypted input and returns its handles and signatures
func (c *RelayerClient) InputProof(ctx context.Context, req *InputProofRequest) (*InputProofResponse, error) {
	var out envelope[InputProofResponse]
	if err := c.do(ctx, http.MethodPost, inputProofPath, req, &out); err != nil {
		return nil, fmt.Errorf("failed to get input proof: %w", err)
	}
	return &out.Response, nil
}

// UserDecrypt exchanges a signed authorization for sealed clear values
func (c *RelayerClient) UserDecrypt(ctx context.Context, req *UserDecryptRequest) ([]DecryptedShare, error) {
	var out envelope[[]DecryptedShare]
	if err := c.do(ctx, http.MethodPost, userDecryptPath, req, &out); err != nil {
		return nil, fmt.Errorf("failed to user-decrypt: %w", err)
	}
	return out.Response, nil
}

func (c *RelayerClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("relayer call",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("requestId", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RelayerStatusError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readErrorMessage extracts "message" from a JSON error body, or returns the raw text
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}
