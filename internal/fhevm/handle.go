package fhevm

import (
	"encoding/binary"
	"fmt"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Encrypted types as encoded in byte 30 of a handle
const (
	TypeEbool    byte = 0
	TypeEuint8   byte = 2
	TypeEuint16  byte = 3
	TypeEuint32  byte = 4
	TypeEuint64  byte = 5
	TypeEuint128 byte = 6
	TypeEaddress byte = 7
	TypeEuint256 byte = 8

	HandleVersion byte = 0
)

// Handle layout: hash(21) | index(1) | chainId(8) | type(1) | version(1)
const (
	handleHashLen   = 21
	handleIndexPos  = 21
	handleChainPos  = 22
	handleTypePos   = 30
	handleVerPos    = 31
	maxInputHandles = 255
)

// ComputeHandle derives the handle of value index in an input ciphertext
func ComputeHandle(ciphertext []byte, index uint8, chainID uint64, typ byte) gethcommon.Hash {
	var h gethcommon.Hash
	digest := crypto.Keccak256(ciphertext, []byte{index})
	copy(h[:handleHashLen], digest)
	h[handleIndexPos] = index
	binary.BigEndian.PutUint64(h[handleChainPos:handleTypePos], chainID)
	h[handleTypePos] = typ
	h[handleVerPos] = HandleVersion
	return h
}

// HandleIndex returns the position of the value inside its input
func HandleIndex(h gethcommon.Hash) uint8 { return h[handleIndexPos] }

// HandleChainID returns the chain id the handle was created for
func HandleChainID(h gethcommon.Hash) uint64 {
	return binary.BigEndian.Uint64(h[handleChainPos:handleTypePos])
}

// HandleType returns the encrypted type tag
func HandleType(h gethcommon.Hash) byte { return h[handleTypePos] }

// checkHandle verifies a relayer handle against what was requested
func checkHandle(h gethcommon.Hash, index int, chainID uint64, typ byte) error {
	if int(HandleIndex(h)) != index {
		return fmt.Errorf("handle %s: index %d, expected %d", h.Hex(), HandleIndex(h), index)
	}
	if HandleChainID(h) != chainID {
		return fmt.Errorf("handle %s: chain id %d, expected %d", h.Hex(), HandleChainID(h), chainID)
	}
	if HandleType(h) != typ {
		return fmt.Errorf("handle %s: type %d, expected %d", h.Hex(), HandleType(h), typ)
	}
	if h[handleVerPos] != HandleVersion {
		return fmt.Errorf("handle %s: unsupported version %d", h.Hex(), h[handleVerPos])
	}
	return nil
}
