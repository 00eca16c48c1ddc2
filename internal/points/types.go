// Package points meters generate/edit usage. It is an out-of-core
// collaborator: the image pipeline works identically with metering off.
package points

import (
	"context"
	"errors"
)

// ErrInsufficient is returned by Charge when the balance cannot cover the
// amount.
var ErrInsufficient = errors.New("insufficient points")

// Ledger tracks per-user point balances.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Charge(ctx context.Context, userID string, amount int, reason string) error
	Close() error
}
