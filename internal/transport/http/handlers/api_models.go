package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verisafe/account-integrity/internal/core/domain"
)

// ErrorResponse represents a generic error payload with request ID for debugging.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response with the request ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	requestID, _ := c.Get("request_id")
	requestIDStr, _ := requestID.(string)

	return ErrorResponse{
		Error:     errorMsg,
		RequestID: requestIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// WebhookResponse reports how a gateway event was settled.
type WebhookResponse struct {
	Outcome       string `json:"outcome"`
	TransactionID string `json:"transaction_id,omitempty"`
	Tier          string `json:"tier,omitempty"`
	Points        int    `json:"points,omitempty"`
	Message       string `json:"message,omitempty"`
}

// ConsumeRequest identifies the account spending a point.
type ConsumeRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ConsumeResponse names the tier the point came from.
type ConsumeResponse struct {
	UserID   string `json:"user_id"`
	TierUsed string `json:"tier_used"`
}

// BalanceResponse is the per-tier view of an account's points.
type BalanceResponse struct {
	UserID    string         `json:"user_id"`
	PlanTier  string         `json:"plan_tier"`
	Balances  map[string]int `json:"balances"`
	Total     int            `json:"total"`
	Hierarchy []string       `json:"hierarchy"`
}

// CreditRequest adds points to an explicitly named tier.
type CreditRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Tier   string `json:"tier" binding:"required"`
	Points int    `json:"points" binding:"required,gt=0"`
}

// CreditResponse returns the balances after a credit.
type CreditResponse struct {
	UserID   string         `json:"user_id"`
	PlanTier string         `json:"plan_tier"`
	Balances map[string]int `json:"balances"`
	Total    int            `json:"total"`
}

// LoginFailureRequest reports one failed authentication attempt.
type LoginFailureRequest struct {
	Email     string `json:"email" binding:"required,email"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// LoginFailureResponse describes the window state after recording a failure.
type LoginFailureResponse struct {
	Blocked      bool       `json:"blocked"`
	NewlyBlocked bool       `json:"newly_blocked"`
	AttemptCount int        `json:"attempt_count"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// LoginStatusResponse answers the pre-authentication block check.
type LoginStatusResponse struct {
	Blocked           bool       `json:"blocked"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
	RemainingAttempts int        `json:"remaining_attempts"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func balancesPayload(ledger *domain.AccountLedger) map[string]int {
	return map[string]int{
		string(domain.TierFree):     ledger.FreePoints,
		string(domain.TierBasic):    ledger.BasicPoints,
		string(domain.TierStandard): ledger.StandardPoints,
		string(domain.TierBusiness): ledger.BusinessPoints,
	}
}
