package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.resolve)         // GET /anime?ids=1,2,3
	rg.GET("/popular", h.popular) // GET /anime/popular
	rg.GET("/search", h.search)   // GET /anime/search?q=
	rg.GET("/count", h.count)     // GET /anime/count
	rg.GET("/:id", h.getByID)     // GET /anime/:id
}

func (h *Handler) popular(c *gin.Context) {
	limit := parseInt(c.Query("limit"), DefaultLimit)
	items, err := h.Repo.Popular(c.Request.Context(), limit)
	if err != nil {
		writeStoreError(c, err, "popular failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) search(c *gin.Context) {
	q := c.Query("q")
	limit := parseInt(c.Query("limit"), DefaultLimit)
	items, err := h.Repo.Search(c.Request.Context(), q, limit)
	if err != nil {
		writeStoreError(c, err, "search failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"q": q, "items": items})
}

func (h *Handler) resolve(c *gin.Context) {
	// ids=1,2,3 OR ids=1&ids=2
	raw := c.QueryArray("ids")
	if len(raw) == 1 {
		raw = strings.Split(raw[0], ",")
	}
	ids, err := ParseIDs(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids must be integers"})
		return
	}

	items, err := h.Repo.ResolveByIDs(c.Request.Context(), ids)
	if err != nil {
		writeStoreError(c, err, "resolve failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) count(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.Repo.Count(c.Request.Context())})
}

func (h *Handler) getByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	a, err := h.Repo.Get(c.Request.Context(), id)
	if err != nil {
		writeStoreError(c, err, "get failed")
		return
	}
	if a == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

// ParseIDs converts decimal strings to identifiers, skipping blanks.
func ParseIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func writeStoreError(c *gin.Context, err error, msg string) {
	if errors.Is(err, ErrStorageUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
