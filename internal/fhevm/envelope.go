package fhevm

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/box"
)

const (
	KeySize = 32

	envelopeInfo = "fhevm input envelope v1"
	valueSize    = 4 // euint32

	resultNonceSize = 24
	resultMinSize   = KeySize + resultNonceSize + box.Overhead
)

var errMalformedEnvelope = errors.New("malformed envelope")

// SealInput encrypts 32-bit values to the network input key.
// The ciphertext only opens for the same contract and user pair.
// Layout: ephemeralPub(32) | nonce(12) | sealed
func SealInput(networkKey [KeySize]byte, contract, user gethcommon.Address, values []uint32) ([]byte, error) {
	var ephPriv [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, ephPriv[:]); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	defer clear(ephPriv[:])

	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(ephPriv[:], networkKey[:])
	if err != nil {
		return nil, fmt.Errorf("invalid network key: %w", err)
	}
	defer clear(shared)

	aead, err := envelopeAEAD(shared, ephPub, networkKey[:])
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	plain := make([]byte, valueSize*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(plain[i*valueSize:], v)
	}
	defer clear(plain)

	out := make([]byte, 0, len(ephPub)+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, ephPub...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, bindingAAD(contract, user)), nil
}

// OpenInput is the network side of SealInput
func OpenInput(networkPriv [KeySize]byte, contract, user gethcommon.Address, envelope []byte) ([]uint32, error) {
	nonceSize := chacha20poly1305.NonceSize
	if len(envelope) < KeySize+nonceSize+chacha20poly1305.Overhead {
		return nil, errMalformedEnvelope
	}
	ephPub := envelope[:KeySize]
	nonce := envelope[KeySize : KeySize+nonceSize]

	networkPub, err := curve25519.X25519(networkPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	shared, err := curve25519.X25519(networkPriv[:], ephPub)
	if err != nil {
		return nil, err
	}
	defer clear(shared)

	aead, err := envelopeAEAD(shared, ephPub, networkPub)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, envelope[KeySize+nonceSize:], bindingAAD(contract, user))
	if err != nil {
		return nil, fmt.Errorf("failed to open envelope: %w", err)
	}
	if len(plain)%valueSize != 0 {
		return nil, errMalformedEnvelope
	}

	values := make([]uint32, len(plain)/valueSize)
	for i := range values {
		values[i] = binary.BigEndian.Uint32(plain[i*valueSize:])
	}
	return values, nil
}

func envelopeAEAD(shared, ephPub, recipientPub []byte) (cipher.AEAD, error) {
	salt := make([]byte, 0, 2*KeySize)
	salt = append(salt, ephPub...)
	salt = append(salt, recipientPub...)

	key := make([]byte, chacha20poly1305.KeySize)
	defer clear(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(envelopeInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive envelope key: %w", err)
	}
	return chacha20poly1305.New(key)
}

// bindingAAD is contract(20) | user(20)
func bindingAAD(contract, user gethcommon.Address) []byte {
	aad := make([]byte, 0, 2*gethcommon.AddressLength)
	aad = append(aad, contract.Bytes()...)
	return append(aad, user.Bytes()...)
}

// SealResult encrypts a clear value to a session public key.
// Layout: ephemeralPub(32) | nonce(24) | box
func SealResult(recipient [KeySize]byte, value *uint256.Int) ([]byte, error) {
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	defer clear(ephPriv[:])

	var nonce [resultNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	clearValue := value.Bytes32()
	out := make([]byte, 0, resultMinSize+len(clearValue))
	out = append(out, ephPub[:]...)
	out = append(out, nonce[:]...)
	return box.Seal(out, clearValue[:], &nonce, &recipient, ephPriv), nil
}

// OpenResult decrypts a SealResult payload with the session private key
func OpenResult(privateKey *[KeySize]byte, payload []byte) (*uint256.Int, error) {
	if len(payload) < resultMinSize {
		return nil, errMalformedEnvelope
	}
	var ephPub [KeySize]byte
	var nonce [resultNonceSize]byte
	copy(ephPub[:], payload[:KeySize])
	copy(nonce[:], payload[KeySize:KeySize+resultNonceSize])

	clearValue, ok := box.Open(nil, payload[KeySize+resultNonceSize:], &nonce, &ephPub, privateKey)
	if !ok {
		return nil, errors.New("failed to open result: authentication failed")
	}
	if len(clearValue) > 32 {
		return nil, errMalformedEnvelope
	}
	return new(uint256.Int).SetBytes(clearValue), nil
}
