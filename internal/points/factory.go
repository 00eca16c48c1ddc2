package points

import (
	"context"
	"strings"
)

// defaultInitialGrant covers a handful of generations for a new user.
const defaultInitialGrant = 100

// NewLedger creates a postgres-backed ledger when configured, otherwise
// in-memory.
func NewLedger(ctx context.Context, databaseURL string) (Ledger, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryLedger(defaultInitialGrant), nil
	}
	return NewPostgresLedger(ctx, databaseURL, defaultInitialGrant)
}
