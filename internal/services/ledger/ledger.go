// Package ledger answers whether a ticket was sold and is still usable.
package ledger

import (
	"context"

	"gate-system/models"
)

// Kind tags a LookupResult.
type Kind int

const (
	KindFound Kind = iota + 1
	KindNotFound
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindNotFound:
		return "not_found"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LookupResult is the outcome of a sale lookup. A storage fault is its own
// kind and can never be read as "no sale"; the zero value is a failure too.
type LookupResult struct {
	Kind   Kind
	Record models.SaleRecord
	Err    error
}

func Found(rec models.SaleRecord) LookupResult {
	return LookupResult{Kind: KindFound, Record: rec}
}

func NotFound() LookupResult {
	return LookupResult{Kind: KindNotFound}
}

func LookupFailed(err error) LookupResult {
	return LookupResult{Kind: KindFailed, Err: err}
}

// Failed reports a lookup that must be treated as a storage error.
func (r LookupResult) Failed() bool {
	return r.Kind != KindFound && r.Kind != KindNotFound
}

// Ledger is the read side used by verification.
type Ledger interface {
	Lookup(ctx context.Context, ticketID string) LookupResult
}

// MatchLister lists the sales of one match, for operators.
type MatchLister interface {
	ListByMatch(ctx context.Context, matchID string) ([]models.SaleRecord, error)
}
