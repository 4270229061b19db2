package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verisafe/account-integrity/internal/usecase"
)

// SecurityHandler exposes the failed-login limiter to the authentication
// path: record a failure after credentials are rejected, check the block
// before credentials are examined.
type SecurityHandler struct {
	guard *usecase.LoginGuardService
}

// NewSecurityHandler builds a security handler over the login guard.
func NewSecurityHandler(guard *usecase.LoginGuardService) *SecurityHandler {
	return &SecurityHandler{guard: guard}
}

// RegisterRoutes wires the security endpoints into the provided group.
func (h *SecurityHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/login-failure", h.RecordFailure)
	group.GET("/login-status", h.LoginStatus)
}

// RecordFailure handles POST /security/login-failure.
func (h *SecurityHandler) RecordFailure(c *gin.Context) {
	var req LoginFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "a valid email is required"))
		return
	}

	ip := req.IPAddress
	if ip == "" {
		ip = c.ClientIP()
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	state, err := h.guard.RecordFailedLogin(c.Request.Context(), req.Email, ip, userAgent)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to record login attempt"))
		return
	}

	c.JSON(http.StatusOK, LoginFailureResponse{
		Blocked:      state.Blocked,
		NewlyBlocked: state.NewlyBlocked,
		AttemptCount: state.AttemptCount,
		BlockedUntil: state.BlockedUntil,
	})
}

// LoginStatus handles GET /security/login-status?email=...
func (h *SecurityHandler) LoginStatus(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email query parameter is required"))
		return
	}

	status, err := h.guard.IsLoginBlocked(c.Request.Context(), email)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to check login status"))
		return
	}

	c.JSON(http.StatusOK, LoginStatusResponse{
		Blocked:           status.Blocked,
		BlockedUntil:      status.BlockedUntil,
		RemainingAttempts: status.RemainingAttempts,
	})
}
