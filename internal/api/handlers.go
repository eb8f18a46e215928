package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"mt5-signal-bot/internal/auth"
	"mt5-signal-bot/internal/events"
	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/review"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"rule_version": s.catalog.Version(),
		"time":         time.Now().UTC().Format(time.RFC3339),
	})
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	token, err := s.authn.Login(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(s.jwtManager.TokenDuration().Seconds()),
	})
}

func (s *Server) handleRulesVersion(c *gin.Context) {
	cat := s.catalog.Get()
	c.JSON(http.StatusOK, gin.H{
		"version":    cat.Version,
		"rule_count": len(cat.Rules),
	})
}

// handleRulesReload re-reads the rule document from disk and swaps it in
// atomically. A document that fails validation leaves the running catalog
// untouched.
func (s *Server) handleRulesReload(c *gin.Context) {
	version, err := s.catalog.Reload(s.rulePath)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.rulePath).Msg("rule reload rejected")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.log.Info().Str("version", version).Msg("rule catalog reloaded")
	if s.eventBus != nil {
		s.eventBus.Publish(events.Event{
			Type:      events.EventCatalogReloaded,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"version": version},
		})
	}

	c.JSON(http.StatusOK, gin.H{"version": version})
}

func (s *Server) handleListReview(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	items, err := s.reviews.ListUnresolved(c.Request.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list review queue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list review queue"})
		return
	}
	if items == nil {
		items = []*review.Item{}
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) handleResolveReview(c *gin.Context) {
	id := c.Param("id")

	if err := s.reviews.Resolve(c.Request.Context(), id); err != nil {
		if errors.Is(err, review.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "review item not found"})
			return
		}
		s.log.Error().Err(err).Str("id", id).Msg("failed to resolve review item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve review item"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"resolved": id})
}

func (s *Server) handleListGroups(c *gin.Context) {
	groups, err := s.groups.ListActive(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list signal groups")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signal groups"})
		return
	}
	if groups == nil {
		groups = []*ledger.Group{}
	}

	c.JSON(http.StatusOK, gin.H{"groups": groups, "count": len(groups)})
}

func (s *Server) handleGetGroup(c *gin.Context) {
	key := c.Param("key")

	group, err := s.groups.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, ledger.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "signal group not found"})
			return
		}
		s.log.Error().Err(err).Str("key", key).Msg("failed to load signal group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load signal group"})
		return
	}

	c.JSON(http.StatusOK, group)
}
