package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/xlink/internal/cipher"
	"github.com/router-for-me/xlink/internal/credential"
	"github.com/router-for-me/xlink/internal/xoauth"
)

type accountView struct {
	XUserID      string `json:"x_user_id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
	LinkedAt     string `json:"linked_at"`
	Active       bool   `json:"active"`
}

// handleListAccounts returns every linked account for the session's owner.
// The active flag follows the session's selection, falling back to the first
// linked account.
func (s *Server) handleListAccounts(c *gin.Context) {
	sess := currentSession(c)
	accounts, err := s.store.LinkedAccounts(c.Request.Context(), sess.OwnerID)
	if err != nil {
		log.WithError(err).Error("listing linked accounts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to list accounts"})
		return
	}

	active := sess.ActiveXUserID
	if active != "" {
		found := false
		for _, a := range accounts {
			if a.XUserID == active {
				found = true
				break
			}
		}
		if !found {
			active = ""
		}
	}
	if active == "" && len(accounts) > 0 {
		active = accounts[0].XUserID
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			XUserID:      a.XUserID,
			Username:     a.Username,
			Name:         a.Name,
			ProfileImage: a.ProfileImage,
			LinkedAt:     a.LinkedAt.UTC().Format(time.RFC3339),
			Active:       a.XUserID == active,
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views, "is_admin": sess.IsAdmin})
}

// handleSetActive switches the session's account selection. The target must
// be one of the owner's linked accounts.
func (s *Server) handleSetActive(c *gin.Context) {
	sess := currentSession(c)
	var req struct {
		XUserID string `json:"x_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x_user_id is required"})
		return
	}

	accounts, err := s.store.LinkedAccounts(c.Request.Context(), sess.OwnerID)
	if err != nil {
		log.WithError(err).Error("listing linked accounts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to switch account"})
		return
	}
	for _, a := range accounts {
		if a.XUserID == req.XUserID {
			sess.ActiveXUserID = req.XUserID
			c.JSON(http.StatusOK, gin.H{"active": req.XUserID})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no such linked account"})
}

// handleUnlink removes an account and its credential. The stored access
// token is revoked at the provider on a best-effort basis; revocation
// failure never blocks the local removal.
func (s *Server) handleUnlink(c *gin.Context) {
	sess := currentSession(c)
	xUserID := c.Param("x_user_id")
	ctx := c.Request.Context()

	rec, err := s.store.Credential(ctx, sess.OwnerID, xUserID)
	if err != nil {
		log.WithError(err).Error("loading credential for unlink failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to unlink account"})
		return
	}
	if rec != nil {
		if access, _, errDecrypt := s.store.DecryptTokens(rec); errDecrypt == nil && access != "" {
			if errRevoke := s.oauthClient().Revoke(ctx, access); errRevoke != nil {
				log.WithError(errRevoke).Warn("provider token revocation failed, removing locally anyway")
			}
		} else if errDecrypt != nil {
			log.WithError(errDecrypt).Warn("stored credential unreadable, skipping revocation")
		}
	}

	if err := s.store.DeleteLinkedAccount(ctx, sess.OwnerID, xUserID); err != nil {
		log.WithError(err).Error("deleting linked account failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to unlink account"})
		return
	}
	if sess.ActiveXUserID == xUserID {
		sess.ActiveXUserID = ""
	}

	log.WithFields(log.Fields{"owner": sess.OwnerID, "x_user_id": xUserID}).Info("x account unlinked")
	c.JSON(http.StatusOK, gin.H{"unlinked": xUserID})
}

// handleRefreshNow forces a refresh grant for one account regardless of the
// stored expiry.
func (s *Server) handleRefreshNow(c *gin.Context) {
	sess := currentSession(c)
	xUserID := c.Param("x_user_id")

	cred, err := s.manager.ForceRefresh(c.Request.Context(), sess.OwnerID, xUserID)
	if err != nil {
		var (
			notLinked  *credential.NotLinkedError
			refreshErr *xoauth.RefreshError
			cryptoErr  *cipher.CryptoError
		)
		switch {
		case errors.As(err, &notLinked):
			c.JSON(http.StatusNotFound, gin.H{"error": "no such linked account"})
		case errors.As(err, &cryptoErr):
			log.WithError(err).Error("stored credential unreadable")
			c.JSON(http.StatusConflict, gin.H{"error": "stored credential unreadable, reconnect this account"})
		case errors.As(err, &refreshErr) && refreshErr.Kind == xoauth.KindNoRefreshToken:
			c.JSON(http.StatusConflict, gin.H{"error": "account has no refresh token, reconnect it"})
		case errors.As(err, &refreshErr) && refreshErr.Kind == xoauth.KindDenied:
			c.JSON(http.StatusBadGateway, gin.H{"error": "provider denied the refresh", "provider": refreshErr.Payload})
		default:
			log.WithError(err).Error("forced refresh failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "token refresh failed"})
		}
		return
	}

	resp := gin.H{"refreshed": xUserID}
	if !cred.ExpiresAt.IsZero() {
		resp["expires_at"] = cred.ExpiresAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
