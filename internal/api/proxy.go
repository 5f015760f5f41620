package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/xlink/internal/cipher"
	"github.com/router-for-me/xlink/internal/credential"
)

// notLinkedMessage is shown whenever a call is attempted with no linked
// account.
const notLinkedMessage = "No X account linked yet."

type proxyRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url" binding:"required"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// handleProxy dispatches one credentialed call to the X API on behalf of the
// session's owner. Token injection, proactive refresh, and the single
// 401-refresh-retry cycle all happen inside the dispatcher; this handler only
// translates its tagged outcome to an HTTP response.
func (s *Server) handleProxy(c *gin.Context) {
	sess := currentSession(c)

	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	header := make(http.Header, len(req.Headers))
	for k, v := range req.Headers {
		header.Set(k, v)
	}
	var body []byte
	if req.Body != "" {
		body = []byte(req.Body)
	}

	result, err := s.dispatcher.Call(c.Request.Context(), sess.OwnerID, sess.ActiveXUserID, method, req.URL, header, body)
	if err != nil {
		var cryptoErr *cipher.CryptoError
		if errors.As(err, &cryptoErr) {
			log.WithError(err).Error("stored credential unreadable")
			c.JSON(http.StatusConflict, gin.H{"error": "stored credential unreadable, reconnect this account"})
			return
		}
		log.WithError(err).Warn("upstream request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
		return
	}

	if result.Kind == credential.OutcomeNotLinked {
		c.JSON(http.StatusBadRequest, gin.H{"error": notLinkedMessage})
		return
	}

	contentType := result.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(result.StatusCode, contentType, result.Body)
}
