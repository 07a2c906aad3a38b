package fhevm

import (
	"errors"

	gethcommon "github.com/ethereum/go-ethereum/common"
)

// Config is the FHEVM network description for one host chain
type Config struct {
	// ChainID of the chain holding the application contract
	ChainID uint64
	// GatewayChainID signs decryption authorizations
	GatewayChainID uint64

	ACLContractAddress           gethcommon.Address
	KMSContractAddress           gethcommon.Address
	InputVerifierContractAddress gethcommon.Address

	// Verifying contracts of the two EIP-712 domains
	VerifyingContractAddressDecryption        gethcommon.Address
	VerifyingContractAddressInputVerification gethcommon.Address
}

// Validate checks that every field New depends on is set
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return errors.New("chain id not set")
	}
	if c.GatewayChainID == 0 {
		return errors.New("gateway chain id not set")
	}
	if c.VerifyingContractAddressDecryption == (gethcommon.Address{}) {
		return errors.New("decryption verifying contract not set")
	}
	if c.ACLContractAddress == (gethcommon.Address{}) {
		return errors.New("acl contract not set")
	}
	return nil
}
