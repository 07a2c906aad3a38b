package handler

import (
	"errors"
	"net/http"

	"github.com/AlexZinkM/secret-commit/ethwallet"
	"github.com/AlexZinkM/secret-commit/internal/config"
	"github.com/AlexZinkM/secret-commit/internal/model"

	"go.uber.org/zap"
)

// WalletHandler holds configuration for wallet operations
type WalletHandler struct {
	filePath string
	chainID  uint64
	opts     []ethwallet.Option
	log      *zap.Logger
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(filePath string, chainID uint64, log *zap.Logger, opts ...ethwallet.Option) (*WalletHandler, error) {
	if filePath == "" {
		return nil, errors.New("WALLET_FILE_PATH not set")
	}
	return &WalletHandler{
		filePath: filePath,
		chainID:  chainID,
		opts:     opts,
		log:      log.Named("wallet"),
	}, nil
}

// Generate handles POST /wallet/generate
// @Summary      Generate new wallet
// @Description  Generates a new EVM wallet, saves it to the .cwt file and returns its address with a QR code
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.GenerateResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /wallet/generate [post]
func (h *WalletHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. should be POST", http.StatusMethodNotAllowed)
		return
	}

	// Get password as []byte, use it, then zero it immediately
	passwordBytes, err := config.GetWalletPasswordBytes()
	if err != nil {
		writeError(w, http.StatusBadRequest, model.CodeInternal, err)
		return
	}
	defer clear(passwordBytes)

	address, qr, err := ethwallet.GenerateWallet(h.filePath, passwordBytes, h.chainID, h.opts...)
	if err != nil {
		if ethwallet.IsFileExistsError(err) {
			writeError(w, http.StatusConflict, model.CodeState, err)
			return
		}
		writeError(w, http.StatusInternalServerError, model.CodeInternal, err)
		return
	}

	h.log.Info("wallet generated", zap.String("address", address))
	writeJSON(w, http.StatusOK, model.GenerateResponse{
		Success: true,
		Message: "Wallet generated successfully",
		Address: address,
		QR:      qr,
	})
}
