package api

import (
	"github.com/gin-gonic/gin"

	"github.com/router-for-me/xlink/internal/session"
)

const sessionCookie = "xlink_session"

const sessionContextKey = "xlink.session"

// sessionMiddleware resolves the browser session from the cookie, creating a
// fresh one when the cookie is missing or stale, and stashes it in the
// request context.
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sess *session.Session
		if id, err := c.Cookie(sessionCookie); err == nil {
			sess = s.sessions.Get(id)
		}
		if sess == nil {
			sess = s.sessions.New()
			c.SetCookie(sessionCookie, sess.ID, int(session.DefaultTTL.Seconds()), "/", "", false, true)
		}
		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionContextKey).(*session.Session)
}
