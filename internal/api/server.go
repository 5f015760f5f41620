// Package api exposes the HTTP surface of the xlink server: the OAuth link
// and callback flow, linked account management, and the credentialed proxy
// endpoint.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/xlink/internal/api/middleware"
	"github.com/router-for-me/xlink/internal/config"
	"github.com/router-for-me/xlink/internal/credential"
	"github.com/router-for-me/xlink/internal/linkstate"
	"github.com/router-for-me/xlink/internal/logging"
	"github.com/router-for-me/xlink/internal/session"
	"github.com/router-for-me/xlink/internal/store"
	"github.com/router-for-me/xlink/internal/xoauth"
)

// Server owns the HTTP engine and every component behind it. The OAuth
// client is rebuilt on config reload; the store and its cipher are bound at
// startup because the encryption secret cannot change without a restart.
type Server struct {
	mu    sync.RWMutex
	cfg   *config.Config
	oauth *xoauth.Client

	engine     *gin.Engine
	store      *store.Store
	sessions   *session.Store
	links      *linkstate.Store
	manager    *credential.Manager
	dispatcher *credential.Dispatcher
}

// New assembles a Server around an already opened store.
func New(cfg *config.Config, st *store.Store) *Server {
	s := &Server{
		cfg:      cfg,
		oauth:    buildOAuthClient(cfg),
		store:    st,
		sessions: session.NewStore(session.DefaultTTL),
		links:    linkstate.NewStore(),
	}
	s.manager = credential.NewManager(st, s)
	s.dispatcher = credential.NewDispatcher(s.manager, &http.Client{Timeout: cfg.RequestTimeout()})

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(middleware.PrometheusMiddleware())
	s.engine = engine
	s.registerRoutes()
	return s
}

func buildOAuthClient(cfg *config.Config) *xoauth.Client {
	return xoauth.NewClient(xoauth.Config{
		ClientID:     cfg.X.ClientID,
		ClientSecret: cfg.X.ClientSecret,
		AuthorizeURL: cfg.X.AuthorizeURL,
		TokenURL:     cfg.X.TokenURL,
		RevokeURL:    cfg.X.RevokeURL,
		APIBaseURL:   cfg.X.APIBaseURL,
		Timeout:      cfg.RequestTimeout(),
	})
}

// UpdateConfig swaps in a reloaded configuration. OAuth application settings
// and the admin list take effect immediately; database path and encryption
// secret changes require a restart and are logged when they differ.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.oauth = buildOAuthClient(cfg)
	s.mu.Unlock()

	if old.DatabasePath != cfg.DatabasePath || old.EncryptionSecret != cfg.EncryptionSecret {
		log.Warn("database path and encryption secret changes take effect after restart")
	}
	log.Debug("configuration reloaded")
}

func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) oauthClient() *xoauth.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.oauth
}

// Refresh satisfies credential.TokenRefresher against the current OAuth
// client, so a config reload reaches refreshes already wired into the
// manager.
func (s *Server) Refresh(ctx context.Context, refreshToken string) (*xoauth.TokenResult, error) {
	return s.oauthClient().Refresh(ctx, refreshToken)
}

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves HTTP until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.config()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("xlink server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", middleware.PrometheusHandler())

	authed := s.engine.Group("/", s.sessionMiddleware())

	authed.GET("/auth/x/link", s.handleLink)
	authed.GET("/auth/x/login", s.handleLink)
	authed.GET("/auth/x/reauth", s.handleLink)

	authed.GET("/auth/x/callback", s.handleCallback)
	authed.GET("/callback", s.handleCallback)
	authed.GET("/oauth/callback", s.handleCallback)

	authed.GET("/accounts", s.handleListAccounts)
	authed.POST("/accounts/active", s.handleSetActive)
	authed.DELETE("/accounts/:x_user_id", s.handleUnlink)
	authed.POST("/accounts/:x_user_id/refresh", s.handleRefreshNow)

	authed.POST("/api/proxy", s.handleProxy)
}
