package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AdminRequest struct {
	Secret string `json:"secret" binding:"required"`
}

type Handler struct {
	issuer      *Issuer
	adminSecret string
}

// 工厂方法：创建 handler
func NewHandler(issuer *Issuer, adminSecret string) *Handler {
	return &Handler{issuer: issuer, adminSecret: adminSecret}
}

// POST /auth/admin
func (h *Handler) Admin(c *gin.Context) {
	var req AdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if h.adminSecret == "" || subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.adminSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong admin secret"})
		return
	}
	tok, err := h.issuer.Issue("", "", RoleAdmin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jwt": tok})
}

// POST /auth/refresh  (需带 JWT)
func (h *Handler) Refresh(c *gin.Context) {
	tok, err := h.issuer.Issue(c.GetString("team"), c.GetString("room"), c.GetString("role"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jwt": tok})
}
