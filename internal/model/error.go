package model

// Error codes returned in ErrorResponse.Code
const (
	CodeValidation     = "VALIDATION_FAILURE"
	CodeInitialization = "INITIALIZATION_FAILURE"
	CodeUserRejection  = "USER_REJECTION"
	CodeChain          = "CHAIN_FAILURE"
	CodeAuthorization  = "AUTHORIZATION_FAILURE"
	CodeRelayer        = "RELAYER_FAILURE"
	CodeState          = "INVALID_STATE"
	CodeInternal       = "INTERNAL"
)

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	State string `json:"state,omitempty"` // workflow state that failed
}
