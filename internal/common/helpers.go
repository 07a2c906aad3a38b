package common

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	HandleLen = 32 // ciphertext handles are bytes32 on-chain
)

var (
	// ErrEmptyAmount is returned for blank input
	ErrEmptyAmount = errors.New("amount is empty")
	// ErrNotNumeric is returned when the amount is not a base-10 integer
	ErrNotNumeric = errors.New("amount must be a whole number")
	// ErrNotPositive is returned for zero or negative amounts
	ErrNotPositive = errors.New("amount must be greater than zero")
	// ErrOutOfRange is returned when the amount does not fit in 32 bits
	ErrOutOfRange = fmt.Errorf("amount must not exceed %d", uint32(math.MaxUint32))
)

// ParseAmount converts user input to a positive 32-bit amount.
// Example: ParseAmount(" 5000 ") = 5000
func ParseAmount(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyAmount
	}

	// Sign is checked before parsing so "-5" reports ErrNotPositive, not a syntax error
	if strings.HasPrefix(s, "-") {
		if _, err := strconv.ParseInt(s, 10, 64); err != nil && !isRangeErr(err) {
			return 0, ErrNotNumeric
		}
		return 0, ErrNotPositive
	}

	n, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, 32)
	if err != nil {
		if isRangeErr(err) {
			return 0, ErrOutOfRange
		}
		return 0, ErrNotNumeric
	}
	if n == 0 {
		return 0, ErrNotPositive
	}
	return uint32(n), nil
}

func isRangeErr(err error) bool {
	var numErr *strconv.NumError
	return errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange)
}

// Strip0x removes a leading 0x or 0X
func Strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// DecodeHex decodes a hex string with or without the 0x prefix
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(Strip0x(strings.TrimSpace(s)))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// DecodeHandle decodes a 0x-prefixed bytes32 handle
func DecodeHandle(s string) ([HandleLen]byte, error) {
	var h [HandleLen]byte
	b, err := DecodeHex(s)
	if err != nil {
		return h, err
	}
	if len(b) != HandleLen {
		return h, fmt.Errorf("invalid handle length: expected %d bytes, got %d", HandleLen, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// EncodeHex encodes bytes as a 0x-prefixed lowercase hex string
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
