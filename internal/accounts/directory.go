// Package accounts adapts the external account provider. It only answers
// "which account is making this request"; credentials and sessions live
// with the provider.
package accounts

import (
	"context"

	id "referral/pkg/domain"
	dErrors "referral/pkg/domain-errors"
	"referral/pkg/requestcontext"
)

// Directory resolves the authenticated account for a request.
type Directory interface {
	CurrentAccountID(ctx context.Context) (id.AccountID, error)
}

// ContextDirectory reads the account id the auth middleware placed on the context.
type ContextDirectory struct{}

func (ContextDirectory) CurrentAccountID(ctx context.Context) (id.AccountID, error) {
	accountID, ok := requestcontext.AccountID(ctx)
	if !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return accountID, nil
}
