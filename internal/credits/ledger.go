// Package credits is the boundary to the credit ledger. The queue core only
// debits amounts computed by agents; purchase and refund flows live with the
// billing layer.
package credits

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

type Ledger struct {
	sql    infra.SQLExecutor
	logger zerolog.Logger
}

func NewLedger(sql infra.SQLExecutor, logger zerolog.Logger) *Ledger {
	return &Ledger{sql: sql, logger: logger}
}

// Debit atomically charges the user and records the ledger entry, returning
// the remaining balance. A zero or negative amount is a free operation and is
// not recorded. Returns domain.ErrInsufficientCredits when the balance cannot
// cover the amount.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, nil
	}
	row := l.sql.QueryRow(ctx, sqlinline.QDebitCredits, userID, amount, reason)
	var balance int
	if err := row.Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("debit credits: %w", err)
	}
	l.logger.Info().
		Str("user_id", userID).
		Int("amount", amount).
		Int("balance", balance).
		Str("reason", reason).
		Msg("credits: debited")
	return balance, nil
}

// Balance returns the user's current credit balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	row := l.sql.QueryRow(ctx, sqlinline.QGetCreditBalance, userID)
	var balance int
	if err := row.Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("get credit balance: %w", err)
	}
	return balance, nil
}
