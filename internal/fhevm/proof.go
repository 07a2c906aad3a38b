package fhevm

import (
	"errors"
	"fmt"

	gethcommon "github.com/ethereum/go-ethereum/common"
)

const signatureLen = 65

// assembleInputProof packs the verifier input proof:
// numHandles(1) | numSigners(1) | handles(32 each) | signatures(65 each) | extraData
func assembleInputProof(handles []gethcommon.Hash, signatures [][]byte, extraData []byte) ([]byte, error) {
	if len(handles) == 0 || len(handles) > maxInputHandles {
		return nil, fmt.Errorf("invalid handle count %d", len(handles))
	}
	if len(signatures) == 0 || len(signatures) > 255 {
		return nil, fmt.Errorf("invalid signer count %d", len(signatures))
	}

	proof := make([]byte, 0, 2+len(handles)*gethcommon.HashLength+len(signatures)*signatureLen+len(extraData))
	proof = append(proof, byte(len(handles)), byte(len(signatures)))
	for _, h := range handles {
		proof = append(proof, h[:]...)
	}
	for _, sig := range signatures {
		if len(sig) != signatureLen {
			return nil, errors.New("invalid coprocessor signature length")
		}
		proof = append(proof, sig...)
	}
	return append(proof, extraData...), nil
}
