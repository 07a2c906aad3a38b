package ethwallet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const domainTypeName = "EIP712Domain"

// PrimaryType returns the only struct type not referenced by another type.
// A types set that still carries EIP712Domain has two roots and is rejected.
func PrimaryType(types apitypes.Types) (string, error) {
	referenced := make(map[string]bool)
	for _, fields := range types {
		for _, f := range fields {
			referenced[baseType(f.Type)] = true
		}
	}

	var roots []string
	for name := range types {
		if !referenced[name] {
			roots = append(roots, name)
		}
	}
	sort.Strings(roots)

	switch len(roots) {
	case 0:
		return "", fmt.Errorf("missing primary type")
	case 1:
		return roots[0], nil
	default:
		return "", fmt.Errorf("ambiguous primary types or unused types: %s", strings.Join(roots, ", "))
	}
}

// DomainType returns the EIP712Domain fields for the populated domain members
func DomainType(domain apitypes.TypedDataDomain) []apitypes.Type {
	var fields []apitypes.Type
	if domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}

// TypedDataHash computes the EIP-712 signing hash over (domain, types, message)
func TypedDataHash(domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) ([]byte, error) {
	primary, err := PrimaryType(types)
	if err != nil {
		return nil, err
	}

	full := make(apitypes.Types, len(types)+1)
	for name, fields := range types {
		full[name] = fields
	}
	full[domainTypeName] = DomainType(domain)

	hash, _, err := apitypes.TypedDataAndHash(apitypes.TypedData{
		Types:       full,
		PrimaryType: primary,
		Domain:      domain,
		Message:     message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// baseType strips array suffixes: "address[]" -> "address"
func baseType(t string) string {
	if i := strings.IndexByte(t, '['); i >= 0 {
		return t[:i]
	}
	return t
}
