package fhevm

import (
	"bytes"
	"crypto/rand"
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

var (
	contractC = gethcommon.HexToAddress("0xe2dbd48f9fcfbf30bff433f5e30258ab7040e94b")
	userA     = gethcommon.HexToAddress("0x00000000000000000000000000000000000000a1")
	userB     = gethcommon.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func networkKeys(t *testing.T) (priv, pub [KeySize]byte) {
	t.Helper()
	_, err := rand.Read(priv[:])
	require.NoError(t, err)
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	require.NoError(t, err)
	copy(pub[:], p)
	return priv, pub
}

func TestSealOpenInput(t *testing.T) {
	priv, pub := networkKeys(t)

	envelope, err := SealInput(pub, contractC, userA, []uint32{5000, 1})
	require.NoError(t, err)

	values, err := OpenInput(priv, contractC, userA, envelope)
	require.NoError(t, err)
	assert.Equal(t, []uint32{5000, 1}, values)
}

func TestOpenInputBinding(t *testing.T) {
	priv, pub := networkKeys(t)
	envelope, err := SealInput(pub, contractC, userA, []uint32{42})
	require.NoError(t, err)

	_, err = OpenInput(priv, contractC, userB, envelope)
	require.Error(t, err, "another identity must not reuse the ciphertext")

	_, err = OpenInput(priv, userB, userA, envelope)
	require.Error(t, err, "another contract must not reuse the ciphertext")

	_, err = OpenInput(priv, contractC, userA, envelope[:10])
	require.ErrorIs(t, err, errMalformedEnvelope)
}

func TestSealInputIsRandomized(t *testing.T) {
	_, pub := networkKeys(t)
	a, err := SealInput(pub, contractC, userA, []uint32{7})
	require.NoError(t, err)
	b, err := SealInput(pub, contractC, userA, []uint32{7})
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b))
}

func TestSealOpenResult(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	payload, err := SealResult(kp.PublicKey, uint256.NewInt(5000))
	require.NoError(t, err)

	value, err := OpenResult(&kp.PrivateKey, payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), value.Uint64())

	other, err := GenerateKeypair()
	require.NoError(t, err)
	_, err = OpenResult(&other.PrivateKey, payload)
	require.Error(t, err)

	_, err = OpenResult(&kp.PrivateKey, payload[:20])
	require.ErrorIs(t, err, errMalformedEnvelope)
}

func TestKeypairZero(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	kp.Zero()
	assert.Equal(t, [KeySize]byte{}, kp.PrivateKey)
	assert.NotContains(t, kp.String(), "Private")
}

func TestComputeHandleLayout(t *testing.T) {
	h := ComputeHandle([]byte("ciphertext"), 3, 11155111, TypeEuint32)

	assert.Equal(t, uint8(3), HandleIndex(h))
	assert.Equal(t, uint64(11155111), HandleChainID(h))
	assert.Equal(t, TypeEuint32, HandleType(h))
	assert.Equal(t, HandleVersion, h[31])

	require.NoError(t, checkHandle(h, 3, 11155111, TypeEuint32))
	require.Error(t, checkHandle(h, 0, 11155111, TypeEuint32))
	require.Error(t, checkHandle(h, 3, 1, TypeEuint32))
	require.Error(t, checkHandle(h, 3, 11155111, TypeEuint64))
}

func TestAssembleInputProof(t *testing.T) {
	h := ComputeHandle([]byte("x"), 0, 1, TypeEuint32)
	sig := bytes.Repeat([]byte{0x11}, signatureLen)

	proof, err := assembleInputProof([]gethcommon.Hash{h}, [][]byte{sig}, []byte{0x00})
	require.NoError(t, err)
	require.Len(t, proof, 2+32+65+1)
	assert.Equal(t, byte(1), proof[0])
	assert.Equal(t, byte(1), proof[1])
	assert.Equal(t, h[:], proof[2:34])
	assert.Equal(t, sig, proof[34:99])
	assert.Equal(t, byte(0x00), proof[99])

	_, err = assembleInputProof(nil, [][]byte{sig}, nil)
	require.Error(t, err)
	_, err = assembleInputProof([]gethcommon.Hash{h}, [][]byte{sig[:64]}, nil)
	require.Error(t, err)
}
