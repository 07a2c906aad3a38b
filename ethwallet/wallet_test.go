package ethwallet

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractA = common.HexToAddress("0xe2dbd48f9fcfbf30bff433f5e30258ab7040e94b")
	verifierB = common.HexToAddress("0x5D8BD78e2ea6bbE41f26dFe9fdaEAa349e077478")
)

func newTestWallet(t *testing.T, opts ...Option) *Wallet {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	address, qr, err := GenerateWallet(path, []byte("pw"), 11155111, WithLightKDF())
	require.NoError(t, err)
	require.True(t, common.IsHexAddress(address))
	require.NotEmpty(t, qr)

	w, err := Open(path, []byte("pw"), opts...)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(address), w.Address())
	t.Cleanup(w.Close)
	return w
}

func decryptionTypedData() (apitypes.TypedDataDomain, apitypes.Types, apitypes.TypedDataMessage) {
	domain := apitypes.TypedDataDomain{
		Name:              "Decryption",
		Version:           "1",
		ChainId:           (*math.HexOrDecimal256)(big.NewInt(10901)),
		VerifyingContract: verifierB.Hex(),
	}
	typs := apitypes.Types{
		"UserDecryptRequestVerification": {
			{Name: "publicKey", Type: "bytes"},
			{Name: "contractAddresses", Type: "address[]"},
			{Name: "startTimestamp", Type: "uint256"},
			{Name: "durationDays", Type: "uint256"},
			{Name: "extraData", Type: "bytes"},
		},
	}
	message := apitypes.TypedDataMessage{
		"publicKey":         "0x0102030405",
		"contractAddresses": []interface{}{contractA.Hex()},
		"startTimestamp":    "1700000000",
		"durationDays":      "10",
		"extraData":         "0x00",
	}
	return domain, typs, message
}

func TestGenerateWalletRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	_, _, err := GenerateWallet(path, []byte("pw"), 1, WithLightKDF())
	require.NoError(t, err)

	_, _, err = GenerateWallet(path, []byte("pw"), 1, WithLightKDF())
	require.True(t, IsFileExistsError(err))

	addr, err := ReadAddress(path)
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(addr))
}

func TestOpenWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	_, _, err := GenerateWallet(path, []byte("pw"), 1, WithLightKDF())
	require.NoError(t, err)

	_, err = Open(path, []byte("wrong"))
	require.Error(t, err)
}

func TestSignTypedDataRecoversSigner(t *testing.T) {
	w := newTestWallet(t)
	domain, typs, message := decryptionTypedData()

	sig, err := w.SignTypedData(context.Background(), domain, typs, message)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])

	hash, err := TypedDataHash(domain, typs, message)
	require.NoError(t, err)

	raw := append([]byte{}, sig...)
	raw[64] -= 27
	pub, err := ethcrypto.SigToPub(hash, raw)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), ethcrypto.PubkeyToAddress(*pub))
}

func TestSignTypedDataRejectsDomainDescriptorInTypes(t *testing.T) {
	w := newTestWallet(t)
	domain, typs, message := decryptionTypedData()
	typs[domainTypeName] = DomainType(domain)

	_, err := w.SignTypedData(context.Background(), domain, typs, message)
	require.ErrorContains(t, err, "ambiguous primary types")
}

func TestPrimaryType(t *testing.T) {
	typs := apitypes.Types{
		"Mail":   {{Name: "from", Type: "Person"}, {Name: "cc", Type: "Person[]"}},
		"Person": {{Name: "wallet", Type: "address"}},
	}
	got, err := PrimaryType(typs)
	require.NoError(t, err)
	assert.Equal(t, "Mail", got)

	_, err = PrimaryType(apitypes.Types{})
	require.Error(t, err)
}

func TestAllowedContracts(t *testing.T) {
	w := newTestWallet(t, WithAllowedContracts(contractA))
	ctx := context.Background()

	domain, typs, message := decryptionTypedData()
	_, err := w.SignTypedData(ctx, domain, typs, message)
	require.ErrorIs(t, err, ErrRejected)

	chainID := big.NewInt(11155111)
	toB := types.NewTx(&types.DynamicFeeTx{ChainID: chainID, To: &verifierB, Gas: 21000})
	_, err = w.SignTx(ctx, toB, chainID)
	require.ErrorIs(t, err, ErrRejected)

	toA := types.NewTx(&types.DynamicFeeTx{ChainID: chainID, To: &contractA, Gas: 21000})
	signed, err := w.SignTx(ctx, toA, chainID)
	require.NoError(t, err)
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)

	_, err = w.SignTx(ctx, toA, big.NewInt(1))
	require.ErrorIs(t, err, ErrRejected)
}

func TestCloseLocksWallet(t *testing.T) {
	w := newTestWallet(t)
	w.Close()

	domain, typs, message := decryptionTypedData()
	_, err := w.SignTypedData(context.Background(), domain, typs, message)
	require.ErrorIs(t, err, ErrLocked)
}
