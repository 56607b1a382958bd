package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/souqhub/souq-api/internal/dto"
	"github.com/souqhub/souq-api/internal/middleware"
	"github.com/souqhub/souq-api/internal/model"
	"github.com/souqhub/souq-api/internal/service"
)

type AuthHandler struct {
	authSvc      *service.AuthService
	marketSvc    *service.MarketService
	cookieName   string
	cookieSecure bool
	sessionTTL   time.Duration
}

func NewAuthHandler(authSvc *service.AuthService, marketSvc *service.MarketService, cookieName string, cookieSecure bool, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authSvc:      authSvc,
		marketSvc:    marketSvc,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
		sessionTTL:   sessionTTL,
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	principal, err := h.authSvc.Authenticate(c.Request.Context(), req.Credential)
	if err != nil {
		if errors.Is(err, service.ErrCredentialFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrCredentialFormat.Error()})
			return
		}
		if errors.Is(err, service.ErrInvalidCredential) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "access denied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	token, err := h.authSvc.IssueSession(principal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.sessionTTL.Seconds()), "/", "", h.cookieSecure, true)

	c.JSON(http.StatusOK, dto.PrincipalResponse{
		ID:       principal.ID,
		Name:     principal.Name,
		Role:     principal.Role,
		MarketID: principal.MarketID,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	auth := middleware.GetAuthContext(c)

	if auth.Role == model.RoleMarketOwner {
		market, err := h.marketSvc.GetByID(c.Request.Context(), *auth.MarketID)
		if err != nil {
			if errors.Is(err, service.ErrMarketNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, dto.PrincipalResponse{
			ID: market.ID, Name: market.Name, Role: model.RoleMarketOwner, MarketID: auth.MarketID,
		})
		return
	}

	user, err := h.authSvc.GetUser(c.Request.Context(), auth.UserID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, dto.PrincipalResponse{ID: user.ID, Name: user.Name, Role: user.Role})
}
