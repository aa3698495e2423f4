package testutil

import (
	"net/http"

	id "referral/pkg/domain"
	"referral/pkg/requestcontext"
)

// WithAccountID places accountID on the request context the way the auth
// middleware does.
func WithAccountID(req *http.Request, accountID string) *http.Request {
	return req.WithContext(requestcontext.WithAccountID(req.Context(), id.AccountID(accountID)))
}

// WithRequestID sets the request id without running the request middleware.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
