package ethwallet

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AlexZinkM/secret-commit/internal/crypto"
	"github.com/AlexZinkM/secret-commit/internal/model"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/skip2/go-qrcode"
)

const (
	networkEthereum = "ethereum"
)

// FileExistsError is an error when file already exists and is not empty
type FileExistsError struct {
	Message string
}

func (e *FileExistsError) Error() string {
	return e.Message
}

// IsFileExistsError checks if error is FileExistsError
func IsFileExistsError(err error) bool {
	_, ok := err.(*FileExistsError)
	return ok
}

// GenerateWallet generates a new secp256k1 wallet and saves it to .cwt file.
// Returns the checksummed address and a base64 PNG QR code of its EIP-681 URI.
// password must be []byte for security (caller should zero it after use)
func GenerateWallet(filePath string, password []byte, chainID uint64, opts ...Option) (address, qr string, err error) {
	o := newOptions(opts)

	// Check file extension (.cwt)
	if filepath.Ext(filePath) != ".cwt" {
		return "", "", fmt.Errorf("file must have .cwt extension")
	}

	// Check file existence
	if fileInfo, err := os.Stat(filePath); err == nil && fileInfo.Size() > 0 {
		return "", "", &FileExistsError{Message: "file is not empty"}
	}

	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	privateKey := ethcrypto.FromECDSA(key)
	defer clear(privateKey)
	defer key.D.SetUint64(0)

	address = ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	qr, err = generateQRCode(paymentURI(address, chainID))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate QR code: %w", err)
	}

	header := model.CWTFile{
		Network: networkEthereum,
		ChainID: chainID,
		Address: address,
		QR:      qr,
	}
	walletData := &model.WalletData{
		PrivateKey: privateKey,
		CreatedAt:  time.Now().Format(time.RFC3339),
	}

	if err := crypto.EncryptWallet(filePath, header, walletData, password, o.scryptN); err != nil {
		return "", "", fmt.Errorf("failed to encrypt wallet: %w", err)
	}

	return address, qr, nil
}

// ReadAddress reads the wallet address without decrypting the key
func ReadAddress(filePath string) (string, error) {
	return crypto.ReadWalletAddress(filePath)
}

// paymentURI formats an EIP-681 address URI
func paymentURI(address string, chainID uint64) string {
	if chainID == 0 {
		return "ethereum:" + address
	}
	return fmt.Sprintf("ethereum:%s@%d", address, chainID)
}

// generateQRCode generates QR code of content in base64
func generateQRCode(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
