package browse

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"osusume/internal/auth"
)

type Handler struct {
	Registry *Registry
	Tokens   auth.TokenService
}

func NewHandler(reg *Registry, tokens auth.TokenService) *Handler {
	return &Handler{Registry: reg, Tokens: tokens}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.create) // POST /sessions

	s := rg.Group("/session", auth.AuthMiddleware(h.Tokens, h.Registry.Has))
	s.GET("", h.state)                      // GET /session
	s.DELETE("", h.end)                     // DELETE /session
	s.POST("/selection", h.toggle)          // POST /session/selection {anime_id}
	s.DELETE("/selection", h.clear)         // DELETE /session/selection
	s.POST("/selection/remove", h.removeAt) // POST /session/selection/remove {positions, ids}
	s.PUT("/search", h.search)              // PUT /session/search {keyword}
}

func (h *Handler) create(c *gin.Context) {
	sess, err := h.Registry.Create(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return
	}

	token, exp, err := h.Tokens.Sign(sess.ID())
	if err != nil {
		_ = h.Registry.Delete(sess.ID())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": sess.ID(),
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
		"state":      sess.State(),
	})
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	sess, err := h.Registry.Get(claims.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

// state returns the session snapshot. ?wait=true blocks until pending
// search and recommendation runs have landed.
func (h *Handler) state(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if c.Query("wait") == "true" {
		if err := sess.WaitIdle(c.Request.Context()); err != nil {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "wait cancelled"})
			return
		}
	}
	c.JSON(http.StatusOK, sess.State())
}

func (h *Handler) end(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.Registry.Delete(claims.SessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type toggleReq struct {
	AnimeID int64 `json:"anime_id"`
}

func (h *Handler) toggle(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil || req.AnimeID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "anime_id required"})
		return
	}

	items, err := sess.Toggle(c.Request.Context(), req.AnimeID)
	if err != nil {
		if errors.Is(err, ErrUnknownAnime) {
			c.JSON(http.StatusNotFound, gin.H{"error": "anime not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selection": items})
}

func (h *Handler) clear(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.Clear()
	c.JSON(http.StatusOK, gin.H{"selection": sess.Selection()})
}

type removeReq struct {
	Positions []int   `json:"positions"`
	IDs       []int64 `json:"ids"`
}

func (h *Handler) removeAt(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req removeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.IDs) > 0 {
		sess.RemoveIDs(req.IDs...)
	}
	if len(req.Positions) > 0 {
		sess.RemoveAt(req.Positions...)
	}
	c.JSON(http.StatusOK, gin.H{"selection": sess.Selection()})
}

type searchReq struct {
	Keyword string `json:"keyword"`
}

func (h *Handler) search(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req searchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	sess.Search(req.Keyword)
	c.JSON(http.StatusAccepted, gin.H{"keyword": req.Keyword})
}
