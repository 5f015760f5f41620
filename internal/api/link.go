package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/xlink/internal/linkstate"
	"github.com/router-for-me/xlink/internal/store"
	"github.com/router-for-me/xlink/internal/xoauth"
)

// handleLink starts the authorization flow: generate fresh PKCE material and
// a CSRF state, remember both against the browser session, and send the user
// to the provider. Re-entering the flow replaces any earlier attempt.
func (s *Server) handleLink(c *gin.Context) {
	sess := currentSession(c)

	codes, err := xoauth.GeneratePKCECodes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to start authorization"})
		return
	}
	state, err := xoauth.GenerateState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to start authorization"})
		return
	}

	redirectURI := s.config().X.RedirectURI
	s.links.Begin(sess.ID, linkstate.Attempt{
		State:          state,
		CodeVerifier:   codes.CodeVerifier,
		RedirectURI:    redirectURI,
		LinkingOwnerID: sess.OwnerID,
	})

	c.Redirect(http.StatusFound, s.oauthClient().AuthorizeURL(redirectURI, state, codes.CodeChallenge))
}

// handleCallback completes the flow. The state binding is checked before
// anything else; a mismatch or a missing code rejects the callback with a
// generic message while the detail goes to the log only. A valid callback
// exchanges the code, loads the profile, and persists account and credential.
func (s *Server) handleCallback(c *gin.Context) {
	sess := currentSession(c)
	state := c.Query("state")
	code := c.Query("code")

	attempt, err := s.links.Consume(sess.ID, state)
	if err != nil {
		log.WithField("session", sess.ID).WithError(err).Warn("oauth callback rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth response"})
		return
	}
	if code == "" {
		log.WithField("session", sess.ID).Warn("oauth callback rejected: missing authorization code")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth response"})
		return
	}

	ctx := c.Request.Context()
	oauth := s.oauthClient()

	tok, err := oauth.Exchange(ctx, code, attempt.CodeVerifier, attempt.RedirectURI)
	if err != nil {
		var exchErr *xoauth.ExchangeError
		if errors.As(err, &exchErr) && exchErr.Kind == xoauth.KindDenied {
			c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed", "provider": exchErr.Payload})
			return
		}
		log.WithError(err).Error("token exchange transport failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}

	profile, err := oauth.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		log.WithError(err).Error("profile lookup failed after token exchange")
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to load X profile"})
		return
	}

	ownerID := attempt.LinkingOwnerID
	if ownerID == "" {
		ownerID = sess.OwnerID
	}
	if ownerID == "" {
		ownerID = uuid.NewString()
	}
	sess.OwnerID = ownerID
	if s.config().IsAdminUsername(profile.Username) {
		sess.IsAdmin = true
	}

	if err := s.store.UpsertLinkedAccount(ctx, &store.LinkedAccount{
		OwnerID:      ownerID,
		XUserID:      profile.ID,
		Username:     profile.Username,
		Name:         profile.Name,
		ProfileImage: profile.ProfileImageURL,
	}); err != nil {
		log.WithError(err).Error("persisting linked account failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to store linked account"})
		return
	}
	if _, err := s.store.UpsertCredential(ctx, ownerID, profile.ID, tok); err != nil {
		log.WithError(err).Error("persisting credential failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to store credential"})
		return
	}
	sess.ActiveXUserID = profile.ID

	log.WithFields(log.Fields{
		"owner":     ownerID,
		"x_user_id": profile.ID,
		"username":  profile.Username,
	}).Info("x account linked")

	c.JSON(http.StatusOK, gin.H{
		"linked": gin.H{
			"x_user_id": profile.ID,
			"username":  profile.Username,
			"name":      profile.Name,
		},
	})
}
