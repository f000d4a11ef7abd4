package auth

import (
	"crypto/subtle"
	"net/http"

	"ict-engine/internal/logging"

	"github.com/gin-gonic/gin"
)

// Handlers contains the auth HTTP handlers
type Handlers struct {
	config Config
	jwt    *JWTManager
	logger *logging.Logger
}

// NewHandlers creates a new Handlers instance. jwt may be nil when auth is
// disabled.
func NewHandlers(cfg Config, jwt *JWTManager, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{config: cfg, jwt: jwt, logger: logger.WithComponent("auth")}
}

// IssueToken handles operator login
// POST /api/auth/token
func (h *Handlers) IssueToken(c *gin.Context) {
	if !h.config.Enabled || h.jwt == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   ErrAuthDisabled.Code,
			"message": ErrAuthDisabled.Message,
		})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.config.OperatorUser)) == 1
	passOK := VerifyPassword(req.Password, h.config.OperatorPasswordHash)
	if !userOK || !passOK {
		h.logger.Warn("Rejected operator login", "username", req.Username, "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   ErrInvalidCredentials.Code,
			"message": ErrInvalidCredentials.Message,
		})
		return
	}

	token, err := h.jwt.GenerateAccessToken(OperatorClaims{Username: req.Username, Role: RoleOperator})
	if err != nil {
		h.logger.WithError(err).Error("Failed to sign operator token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL_ERROR",
			"message": "failed to issue token",
		})
		return
	}

	h.logger.Info("Issued operator token", "username", req.Username)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		ExpiresIn:   h.jwt.GetAccessTokenDuration(),
		TokenType:   "Bearer",
	})
}
