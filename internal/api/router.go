package api

import (
	"net/http"
	"time"

	"github.com/AlexZinkM/secret-commit/internal/handler"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// SetupRouter sets up router with handlers
func SetupRouter(walletHandler *handler.WalletHandler, commitmentHandler *handler.CommitmentHandler, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Wallet endpoints
	mux.HandleFunc("/wallet/generate", walletHandler.Generate)

	// Session endpoints
	mux.HandleFunc("/session/connect", commitmentHandler.Connect)
	mux.HandleFunc("/session/disconnect", commitmentHandler.Disconnect)

	// Commitment endpoints
	mux.HandleFunc("/commitment/submit", commitmentHandler.Submit)
	mux.HandleFunc("/commitment/decrypt", commitmentHandler.Decrypt)
	mux.HandleFunc("/commitment/recover", commitmentHandler.Recover)
	mux.HandleFunc("/commitment/status", commitmentHandler.Status)
	mux.HandleFunc("/commitment/committed", commitmentHandler.Committed)

	return withAccessLog(mux, log.Named("http"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withAccessLog logs method, path, status and duration of every request
func withAccessLog(next http.Handler, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(started)))
	})
}
