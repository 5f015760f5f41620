// Package credential supplies valid plaintext credentials for dispatching
// authenticated API calls. The manager refreshes tokens proactively when
// local expiry bookkeeping says they are stale and reactively when the
// provider rejects a call; the dispatcher bounds recovery to exactly one
// refresh-and-retry cycle per call.
package credential

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/router-for-me/xlink/internal/store"
	"github.com/router-for-me/xlink/internal/xoauth"
)

// NotLinkedError means no credential exists for the owner (or the selected
// account). No network call is made on this path.
type NotLinkedError struct {
	OwnerID string
}

func (e *NotLinkedError) Error() string {
	return "no X account linked for this identity"
}

// PlaintextCredential is a decrypted credential. It exists only in memory for
// the duration of a request or refresh.
type PlaintextCredential struct {
	OwnerID      string
	XUserID      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// expired reports whether local bookkeeping says the access token is stale.
// An unknown expiry is treated as never expiring; the provider's 401 handling
// still applies.
func (c *PlaintextCredential) expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenRefresher is the slice of the OAuth client the manager depends on.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*xoauth.TokenResult, error)
}

// Manager resolves, decrypts, and refreshes stored credentials.
type Manager struct {
	store *store.Store
	oauth TokenRefresher
	group singleflight.Group
	now   func() time.Time
}

// NewManager builds a Manager on top of the credential store and token
// client.
func NewManager(st *store.Store, oauth TokenRefresher) *Manager {
	return &Manager{store: st, oauth: oauth, now: time.Now}
}

// ActiveCredential resolves the owner's selected account (falling back to the
// first linked account when the selection is unset or stale) and returns its
// decrypted credential. A credential past its known expiry is refreshed
// first when a refresh token is stored; if that refresh fails, or no refresh
// token exists, the stale credential is returned as-is and the caller's 401
// handling decides.
func (m *Manager) ActiveCredential(ctx context.Context, ownerID, preferredXUserID string) (*PlaintextCredential, error) {
	rec, err := m.resolveRecord(ctx, ownerID, preferredXUserID)
	if err != nil {
		return nil, err
	}
	cred, err := m.decrypt(rec)
	if err != nil {
		return nil, err
	}

	if cred.expired(m.now()) && cred.RefreshToken != "" {
		refreshed, errRefresh := m.ForceRefresh(ctx, cred.OwnerID, cred.XUserID)
		if errRefresh != nil {
			log.WithFields(log.Fields{
				"owner":     cred.OwnerID,
				"x_user_id": cred.XUserID,
			}).WithError(errRefresh).Warn("proactive token refresh failed, returning stale credential")
			return cred, nil
		}
		return refreshed, nil
	}
	return cred, nil
}

// ForceRefresh runs the refresh grant for the pair unconditionally and
// persists the result. Concurrent refreshes for the same pair are coalesced
// into a single provider call. A provider-denied refresh deletes the
// credential row: the refresh token is revoked and retrying would never
// succeed.
func (m *Manager) ForceRefresh(ctx context.Context, ownerID, xUserID string) (*PlaintextCredential, error) {
	v, err, _ := m.group.Do(ownerID+"|"+xUserID, func() (any, error) {
		return m.refresh(ctx, ownerID, xUserID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PlaintextCredential), nil
}

func (m *Manager) refresh(ctx context.Context, ownerID, xUserID string) (*PlaintextCredential, error) {
	rec, err := m.store.Credential(ctx, ownerID, xUserID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		refreshTotal.WithLabelValues("missing").Inc()
		return nil, &NotLinkedError{OwnerID: ownerID}
	}
	_, refreshToken, err := m.store.DecryptTokens(rec)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		refreshTotal.WithLabelValues(string(xoauth.KindNoRefreshToken)).Inc()
		return nil, &xoauth.RefreshError{Kind: xoauth.KindNoRefreshToken}
	}

	result, err := m.oauth.Refresh(ctx, refreshToken)
	if err != nil {
		var refreshErr *xoauth.RefreshError
		if errors.As(err, &refreshErr) {
			refreshTotal.WithLabelValues(string(refreshErr.Kind)).Inc()
			if refreshErr.Kind == xoauth.KindDenied {
				if errDelete := m.store.DeleteCredential(ctx, ownerID, xUserID); errDelete != nil {
					log.WithError(errDelete).Error("failed to delete credential after denied refresh")
				} else {
					log.WithFields(log.Fields{
						"owner":     ownerID,
						"x_user_id": xUserID,
					}).Info("deleted credential after provider denied refresh")
				}
			}
		}
		return nil, err
	}
	refreshTotal.WithLabelValues("success").Inc()

	updated, err := m.store.UpsertCredential(ctx, ownerID, xUserID, result)
	if err != nil {
		return nil, err
	}
	return m.decrypt(updated)
}

// resolveRecord applies the active-account selection with fallback to the
// first linked account.
func (m *Manager) resolveRecord(ctx context.Context, ownerID, preferredXUserID string) (*store.CredentialRecord, error) {
	if preferredXUserID != "" {
		rec, err := m.store.Credential(ctx, ownerID, preferredXUserID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
		// Selection points at a removed account; fall through.
	}
	accounts, err := m.store.LinkedAccounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		rec, err := m.store.Credential(ctx, ownerID, a.XUserID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, &NotLinkedError{OwnerID: ownerID}
}

func (m *Manager) decrypt(rec *store.CredentialRecord) (*PlaintextCredential, error) {
	access, refresh, err := m.store.DecryptTokens(rec)
	if err != nil {
		return nil, err
	}
	return &PlaintextCredential{
		OwnerID:      rec.OwnerID,
		XUserID:      rec.XUserID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    rec.ExpiresAt,
		Scope:        rec.Scope,
	}, nil
}
