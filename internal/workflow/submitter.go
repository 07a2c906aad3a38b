package workflow

import (
	"context"
	"errors"

	"github.com/AlexZinkM/secret-commit/internal/client"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// eventSource is a ledger that decodes CommitmentSubmitted logs from a receipt
type eventSource interface {
	CommitmentEvents(receipt *types.Receipt) []client.CommitmentSubmitted
}

var _ eventSource = (*client.ChainClient)(nil)

// Submitter writes a commitment on-chain and waits for one confirmation
type Submitter struct {
	ledger Ledger
	log    *zap.Logger
}

// NewSubmitter creates a Submitter for ledger
func NewSubmitter(ledger Ledger, log *zap.Logger) *Submitter {
	return &Submitter{ledger: ledger, log: log}
}

// Submit issues exactly one submitCommitment transaction signed by signer
func (s *Submitter) Submit(ctx context.Context, signer client.TxSigner, c *Commitment) (*types.Receipt, error) {
	if c == nil {
		return nil, errors.New("no commitment to submit")
	}
	if signer.Address() != c.Identity {
		return nil, errors.New("commitment was encrypted for another identity")
	}

	receipt, err := s.ledger.SubmitCommitment(ctx, signer, c.Handle, c.Proof)
	if err != nil {
		return nil, err
	}

	s.log.Info("commitment confirmed",
		zap.Stringer("tx", receipt.TxHash),
		zap.Stringer("handle", c.Handle),
		zap.Stringer("block", receipt.BlockNumber))

	if src, ok := s.ledger.(eventSource); ok {
		for _, ev := range src.CommitmentEvents(receipt) {
			s.log.Info("commitment recorded",
				zap.Stringer("user", ev.User),
				zap.Stringer("timestamp", ev.Timestamp))
		}
	}
	return receipt, nil
}
