// Re-encrypts the wallet file under a new password, keeping its header.
// Usage: WALLET_FILE_PATH=wallet.cwt go run ./cmd/rekey
package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/AlexZinkM/secret-commit/internal/config"
	"github.com/AlexZinkM/secret-commit/internal/crypto"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rekey failed:", err)
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv("WALLET_FILE_PATH")
	if path == "" {
		return errors.New("WALLET_FILE_PATH not set")
	}

	address, err := crypto.ReadWalletAddress(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "wallet:", address)

	oldPassword, err := config.ReadPassword("Current password: ")
	if err != nil {
		return err
	}
	defer clear(oldPassword)

	newPassword, err := config.ReadPassword("New password: ")
	if err != nil {
		return err
	}
	defer clear(newPassword)

	confirm, err := config.ReadPassword("Repeat new password: ")
	if err != nil {
		return err
	}
	defer clear(confirm)

	if !bytes.Equal(newPassword, confirm) {
		return errors.New("passwords do not match")
	}

	if err := crypto.RewrapWallet(path, oldPassword, newPassword); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "wallet re-encrypted")
	return nil
}
