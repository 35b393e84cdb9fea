// Package server exposes the feed, health and admin HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sportfeeds/internal/config"
	"sportfeeds/internal/feeds"
	"sportfeeds/internal/logging"
	"sportfeeds/internal/ports"
	"sportfeeds/internal/usecase"
)

const (
	feedCacheControl = "public, max-age=900"
	shutdownTimeout  = 10 * time.Second
)

// Deps wires the HTTP surface's collaborators.
type Deps struct {
	Config    config.Config
	Store     ports.ArticleStore
	Refresher *usecase.Refresher
	Renderer  *feeds.Renderer
	Logger    *slog.Logger
}

// Server serves RSS/Atom feeds from the store plus health and admin routes.
type Server struct {
	cfg       config.Config
	store     ports.ArticleStore
	refresher *usecase.Refresher
	renderer  *feeds.Renderer
	logger    *slog.Logger
	engine    *gin.Engine
}

// New builds the gin engine with all routes registered.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Component(nil, "server")
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = feeds.NewRenderer()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:       deps.Config,
		store:     deps.Store,
		refresher: deps.Refresher,
		renderer:  renderer,
		logger:    logger,
		engine:    engine,
	}

	engine.GET("/", s.handleDashboard)
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/feeds/:source/:section/:format", s.handleFeed)

	admin := engine.Group("/admin", s.requireAdminKey)
	admin.GET("/refresh", s.handleAdminRefresh)
	admin.GET("/stats", s.handleAdminStats)

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleFeed(c *gin.Context) {
	sourceKey := c.Param("source")
	sectionKey := c.Param("section")
	format := c.Param("format")

	if format != "rss" && format != "atom" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be rss or atom"})
		return
	}

	src, ok := s.cfg.Source(sourceKey)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source: " + sourceKey})
		return
	}
	sec, ok := src.Section(sectionKey)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown section: " + sectionKey})
		return
	}

	if c.Query("refresh") == "1" && s.refresher != nil {
		s.refresher.TriggerNow()
	}

	limit := config.DefaultFeedLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	articles, err := s.store.Recent(c.Request.Context(), ports.ArticleQuery{
		Source:  sourceKey,
		Section: sectionKey,
		Limit:   limit,
		Term:    c.Query("q"),
	})
	if err != nil {
		s.logger.Error("feed query failed", "source", sourceKey, "section", sectionKey, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed unavailable"})
		return
	}

	selfURL := s.selfURL(c)
	var body string
	var contentType string
	switch format {
	case "atom":
		body, err = s.renderer.Atom(articles, src, sec, selfURL)
		contentType = "application/atom+xml; charset=utf-8"
	default:
		body, err = s.renderer.RSS(articles, src, sec, selfURL)
		contentType = "application/rss+xml; charset=utf-8"
	}
	if err != nil {
		s.logger.Error("feed render failed", "source", sourceKey, "section", sectionKey, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed unavailable"})
		return
	}

	c.Header("Cache-Control", feedCacheControl)
	c.Data(http.StatusOK, contentType, []byte(body))
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.refresher.Status()

	var lastRun gin.H
	if status.LastRun != nil {
		lastRun = gin.H{
			"finishedAt": status.LastRun.FinishedAt,
			"duration":   status.LastRun.Duration.String(),
			"totalAdded": status.LastRun.TotalAdded,
		}
	}

	payload := gin.H{
		"status":          "ok",
		"refreshRunning":  status.Running,
		"intervalMinutes": status.IntervalMinutes,
		"lastRun":         lastRun,
	}
	if stats, err := s.store.Stats(c.Request.Context()); err == nil {
		payload["totalArticles"] = stats.TotalArticles
		payload["lastUpdate"] = stats.LastUpdate
	}

	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleDashboard(c *gin.Context) {
	type feedInfo struct {
		Source  string `json:"source"`
		Section string `json:"section"`
		Name    string `json:"name"`
		RSS     string `json:"rss"`
		Atom    string `json:"atom"`
	}

	var list []feedInfo
	for _, src := range s.cfg.Sources {
		for _, sec := range src.Sections {
			list = append(list, feedInfo{
				Source:  src.Key,
				Section: sec.Key,
				Name:    fmt.Sprintf("%s - %s", src.Name, sec.Name),
				RSS:     fmt.Sprintf("/feeds/%s/%s/rss", src.Key, sec.Key),
				Atom:    fmt.Sprintf("/feeds/%s/%s/atom", src.Key, sec.Key),
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  "sportfeeds",
		"feeds": list,
	})
}

// requireAdminKey rejects admin calls unless a key is configured and matches.
func (s *Server) requireAdminKey(c *gin.Context) {
	key := s.cfg.Server.AdminKey
	if key == "" || c.Query("key") != key {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid admin key"})
		return
	}
	c.Next()
}

func (s *Server) handleAdminRefresh(c *gin.Context) {
	if s.refresher.TriggerNow() {
		c.JSON(http.StatusAccepted, gin.H{"status": "refresh started"})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"status": "refresh already running"})
}

func (s *Server) handleAdminStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}

	authors := make([]gin.H, 0, len(stats.TopAuthors))
	for _, a := range stats.TopAuthors {
		authors = append(authors, gin.H{"author": a.Author, "count": a.Count})
	}

	payload := gin.H{
		"totalArticles": stats.TotalArticles,
		"addedLast24h":  stats.AddedLast24h,
		"addedLast7d":   stats.AddedLast7d,
		"withImage":     stats.WithImage,
		"topAuthors":    authors,
		"lastUpdate":    stats.LastUpdate,
	}

	if last := s.refresher.Status().LastRun; last != nil {
		feedsRun := make([]gin.H, 0, len(last.Feeds))
		for _, f := range last.Feeds {
			feedsRun = append(feedsRun, gin.H{
				"source": f.Source, "section": f.Section,
				"found": f.Found, "added": f.Added,
				"skipped": f.Skipped, "failed": f.Failed,
			})
		}
		payload["lastRun"] = gin.H{
			"startedAt":  last.StartedAt,
			"finishedAt": last.FinishedAt,
			"duration":   last.Duration.String(),
			"totalAdded": last.TotalAdded,
			"feeds":      feedsRun,
		}
	}

	c.JSON(http.StatusOK, payload)
}

func (s *Server) selfURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, c.Request.URL.RequestURI())
}
