package model

// GenerateResponse represents response for POST /wallet/generate
type GenerateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Address string `json:"address,omitempty"`
	QR      string `json:"QR,omitempty"` // base64 PNG
}
