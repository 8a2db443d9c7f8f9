package classify

import "github.com/cenetex/cosyworld-sub000/internal/core/domain"

// DefaultMaxTransferFeeLamports is the network fee ceiling for a plain transfer.
const DefaultMaxTransferFeeLamports = 10_000

// Policy holds the tunable parts of the swap/transfer heuristic.
type Policy struct {
	MaxTransferFeeLamports uint64 `yaml:"max_transfer_fee_lamports" default:"10000"`
}

// Classifier assigns an EventType and, for swaps, a Direction.
type Classifier struct {
	policy Policy
}

func NewClassifier(policy Policy) *Classifier {
	if policy.MaxTransferFeeLamports == 0 {
		policy.MaxTransferFeeLamports = DefaultMaxTransferFeeLamports
	}
	return &Classifier{policy: policy}
}

// Classify sets ev.Type and ev.Direction in place and returns the type.
//
// More than one distinct mint is a swap. A single-mint event is a transfer only
// when it has exactly one sender/recipient pair between exactly two wallets, no
// mint or burn, and a fee within policy. Everything else is a swap.
func (c *Classifier) Classify(ev *domain.TransactionEvent) domain.EventType {
	ev.Type = domain.EventTypeSwap
	ev.Direction = ""

	switch {
	case len(ev.Mints) > 1:
	case ev.Pairs == 1 &&
		len(ev.Wallets) == 2 &&
		!ev.MintOrBurn &&
		ev.Fee <= c.policy.MaxTransferFeeLamports:
		ev.Type = domain.EventTypeTransfer
	}

	if ev.Type == domain.EventTypeSwap {
		ev.Direction = direction(ev)
	}
	return ev.Type
}

// direction is buy when the tracked token moves to the signer, sell when it
// moves away from the signer.
func direction(ev *domain.TransactionEvent) domain.Direction {
	switch {
	case ev.FeePayer != "" && ev.Sender == ev.FeePayer:
		return domain.DirectionSell
	default:
		return domain.DirectionBuy
	}
}
