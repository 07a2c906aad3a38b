package fhevm

import (
	"crypto/rand"
	"fmt"

	"github.com/AlexZinkM/secret-commit/internal/common"

	"golang.org/x/crypto/nacl/box"
)

// Keypair is a per-request key the decrypted values are sealed to
type Keypair struct {
	PublicKey  [KeySize]byte
	PrivateKey [KeySize]byte
}

// GenerateKeypair creates a fresh session keypair
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	kp := &Keypair{PublicKey: *pub, PrivateKey: *priv}
	clear(priv[:])
	return kp, nil
}

// PublicKeyHex returns the 0x-prefixed public key
func (k *Keypair) PublicKeyHex() string {
	return common.EncodeHex(k.PublicKey[:])
}

// Zero wipes the private key
func (k *Keypair) Zero() {
	clear(k.PrivateKey[:])
}

func (k *Keypair) String() string {
	return "Keypair{" + k.PublicKeyHex() + "}"
}
