package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/usecase"
)

// LedgerHandler exposes point consumption, crediting, and balance reads.
type LedgerHandler struct {
	ledger *usecase.PointLedgerService
}

// NewLedgerHandler builds a ledger handler over the point ledger service.
func NewLedgerHandler(ledger *usecase.PointLedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// RegisterRoutes wires the ledger endpoints into the provided group.
func (h *LedgerHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/consume", h.Consume)
	group.POST("/credit", h.Credit)
	group.GET("/balance/:user_id", h.Balance)
}

var consumeErrorCases = []ErrorCase{
	{Err: usecase.ErrUnknownAccount, Status: http.StatusNotFound, Message: "account not found"},
	{Err: usecase.ErrNoPointsAvailable, Status: http.StatusPaymentRequired, Message: "no points available at your tier"},
}

// Consume handles POST /ledger/consume.
func (h *LedgerHandler) Consume(c *gin.Context) {
	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	tierUsed, err := h.ledger.Consume(c.Request.Context(), req.UserID)
	if err != nil {
		RespondWithMappedError(c, err, consumeErrorCases, http.StatusInternalServerError, "consume failed")
		return
	}

	c.JSON(http.StatusOK, ConsumeResponse{
		UserID:   req.UserID,
		TierUsed: string(tierUsed),
	})
}

var creditErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidTier, Status: http.StatusBadRequest, Message: "invalid tier"},
}

// Credit handles POST /ledger/credit. Used by reward mechanisms that grant
// points outside the payment pipeline.
func (h *LedgerHandler) Credit(c *gin.Context) {
	var req CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id, tier, and a positive points count are required"))
		return
	}

	tier, err := domain.ParsePlanTier(req.Tier)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid tier"))
		return
	}

	ledger, err := h.ledger.CreditTier(c.Request.Context(), req.UserID, tier, req.Points)
	if err != nil {
		RespondWithMappedError(c, err, creditErrorCases, http.StatusInternalServerError, "credit failed")
		return
	}

	c.JSON(http.StatusOK, CreditResponse{
		UserID:   ledger.UserID,
		PlanTier: string(ledger.PlanTier),
		Balances: balancesPayload(ledger),
		Total:    ledger.AggregateBalance,
	})
}

var balanceErrorCases = []ErrorCase{
	{Err: usecase.ErrUnknownAccount, Status: http.StatusNotFound, Message: "account not found"},
}

// Balance handles GET /ledger/balance/:user_id.
func (h *LedgerHandler) Balance(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	report, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, balanceErrorCases, http.StatusInternalServerError, "balance lookup failed")
		return
	}

	balances := make(map[string]int, len(report.PerTier))
	for tier, points := range report.PerTier {
		balances[string(tier)] = points
	}

	hierarchy := make([]string, 0, len(report.Hierarchy))
	for _, tier := range report.Hierarchy {
		hierarchy = append(hierarchy, string(tier))
	}

	c.JSON(http.StatusOK, BalanceResponse{
		UserID:    report.UserID,
		PlanTier:  string(report.PlanTier),
		Balances:  balances,
		Total:     report.Total,
		Hierarchy: hierarchy,
	})
}
