package xoauth

import "fmt"

// ErrorKind classifies a failed token endpoint call.
type ErrorKind string

const (
	// KindTransport covers network failures and timeouts. A transport failure
	// must never be treated as an authorization failure.
	KindTransport ErrorKind = "transport"
	// KindDenied covers provider-reported denial: the grant was rejected or
	// the response carried no usable access token.
	KindDenied ErrorKind = "denied"
	// KindNoRefreshToken means a refresh was requested for a credential that
	// has no stored refresh token.
	KindNoRefreshToken ErrorKind = "no_refresh_token"
)

// ExchangeError reports a failed authorization-code grant. Payload preserves
// the provider's diagnostic body for user-visible display.
type ExchangeError struct {
	Kind    ErrorKind
	Payload string
	Err     error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange %s: %v", e.Kind, e.Err)
	}
	if e.Payload != "" {
		return fmt.Sprintf("token exchange %s: %s", e.Kind, e.Payload)
	}
	return fmt.Sprintf("token exchange %s", e.Kind)
}

// Unwrap returns the underlying error.
func (e *ExchangeError) Unwrap() error { return e.Err }

// RefreshError reports a failed refresh-token grant.
type RefreshError struct {
	Kind    ErrorKind
	Payload string
	Err     error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh %s: %v", e.Kind, e.Err)
	}
	if e.Payload != "" {
		return fmt.Sprintf("token refresh %s: %s", e.Kind, e.Payload)
	}
	return fmt.Sprintf("token refresh %s", e.Kind)
}

// Unwrap returns the underlying error.
func (e *RefreshError) Unwrap() error { return e.Err }
