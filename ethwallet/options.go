package ethwallet

import (
	"github.com/AlexZinkM/secret-commit/internal/crypto"

	"github.com/ethereum/go-ethereum/common"
)

// Option configures GenerateWallet and Open
type Option func(*options)

type options struct {
	scryptN int
	allowed map[common.Address]struct{}
}

func newOptions(opts []Option) *options {
	o := &options{scryptN: crypto.StandardScryptN}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLightKDF uses the cheap scrypt cost. Tests only.
func WithLightKDF() Option {
	return func(o *options) { o.scryptN = crypto.LightScryptN }
}

// WithAllowedContracts limits transactions and typed-data domains to the given contracts.
// Without it the wallet signs for any contract.
func WithAllowedContracts(addrs ...common.Address) Option {
	return func(o *options) {
		if o.allowed == nil {
			o.allowed = make(map[common.Address]struct{}, len(addrs))
		}
		for _, a := range addrs {
			o.allowed[a] = struct{}{}
		}
	}
}
