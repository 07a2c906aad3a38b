package fhevmtest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AlexZinkM/secret-commit/internal/client"
)

// Handler serves r over the relayer HTTP API
func (r *Relayer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/keyurl", func(w http.ResponseWriter, req *http.Request) {
		info, err := r.KeyInfo(req.Context())
		respond(w, info, err)
	})
	mux.HandleFunc("POST /v1/input-proof", func(w http.ResponseWriter, req *http.Request) {
		var body client.InputProofRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respond(w, nil, badRequest("invalid json"))
			return
		}
		resp, err := r.InputProof(req.Context(), &body)
		respond(w, resp, err)
	})
	mux.HandleFunc("POST /v1/user-decrypt", func(w http.ResponseWriter, req *http.Request) {
		var body client.UserDecryptRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respond(w, nil, badRequest("invalid json"))
			return
		}
		shares, err := r.UserDecrypt(req.Context(), &body)
		respond(w, shares, err)
	})
	return mux
}

func respond(w http.ResponseWriter, v interface{}, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		status, msg := http.StatusInternalServerError, err.Error()
		var se *client.RelayerStatusError
		if errors.As(err, &se) {
			status, msg = se.StatusCode, se.Message
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": v})
}
