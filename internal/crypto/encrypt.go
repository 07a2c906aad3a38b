package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlexZinkM/secret-commit/internal/model"

	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt parameters for local wallet
	// Security is prioritized over performance
	//
	// N=2^18 (~256MB RAM, 0.5-2s) - optimal balance:
	//   - Maximum security while remaining compatible with mobile devices
	//   - Brute-force attacks remain extremely expensive
	//
	// LightScryptN (~4MB) is for tests and throwaway wallets only.
	StandardScryptN = 1 << 18
	LightScryptN    = 1 << 12

	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncryptWallet encrypts wallet data and writes it to .cwt.
// header supplies network, chain id, address and QR; the crypto fields are filled here.
// password must be []byte for security (caller should zero it after use)
func EncryptWallet(filePath string, header model.CWTFile, walletData *model.WalletData, password []byte, scryptN int) error {
	// Check file extension (should be .cwt)
	if !strings.HasSuffix(filePath, ".cwt") {
		return errors.New("file must have .cwt extension")
	}

	// File may exist but must be empty
	if fileInfo, err := os.Stat(filePath); err == nil && fileInfo.Size() > 0 {
		return fmt.Errorf("file is not empty: %w", os.ErrExist)
	}

	return writeSealed(filePath, header, walletData, password, scryptN)
}

// RewrapWallet re-encrypts an existing .cwt under a new password, keeping the header.
// Both passwords must be []byte (caller should zero them after use)
func RewrapWallet(filePath string, oldPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return errors.New("new password cannot be empty")
	}

	header, walletData, err := DecryptWallet(filePath, oldPassword)
	if err != nil {
		return err
	}
	defer clear(walletData.PrivateKey)

	scryptN := header.ScryptN
	if scryptN == 0 {
		scryptN = StandardScryptN
	}
	return writeSealed(filePath, *header, walletData, newPassword, scryptN)
}

func writeSealed(filePath string, header model.CWTFile, walletData *model.WalletData, password []byte, scryptN int) error {
	if len(password) == 0 {
		return errors.New("password cannot be empty")
	}

	// Generate salt and nonce
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(password, salt, scryptN)
	if err != nil {
		return err
	}

	// Serialize wallet data
	plaintext, err := json.Marshal(walletData)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet data: %w", err)
	}
	defer clear(plaintext) // wipe plaintext bytes from memory

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, headerAAD(&header))

	header.ScryptN = scryptN
	header.Salt = base64.StdEncoding.EncodeToString(salt)
	header.Nonce = base64.StdEncoding.EncodeToString(nonce)
	header.CipherText = base64.StdEncoding.EncodeToString(ciphertext)

	fileData, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cwt file: %w", err)
	}

	// Add UTF-8 BOM for proper display in Windows
	fileDataWithBOM := append(append([]byte{}, utf8BOM...), fileData...)

	if err := os.WriteFile(filePath, fileDataWithBOM, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// headerAAD binds the plaintext header fields to the ciphertext
func headerAAD(header *model.CWTFile) []byte {
	aad := make([]byte, 0, len(header.Network)+len(header.Address)+10)
	aad = append(aad, header.Network...)
	aad = append(aad, 0)
	aad = binary.BigEndian.AppendUint64(aad, header.ChainID)
	aad = append(aad, 0)
	return append(aad, strings.ToLower(header.Address)...)
}

// newGCM derives the file key from password and returns an AES-GCM AEAD
func newGCM(password, salt []byte, scryptN int) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
