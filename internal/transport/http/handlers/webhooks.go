package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
	"github.com/verisafe/account-integrity/internal/usecase"
)

// maxWebhookBody caps inbound payload size; gateway webhooks are small JSON
// documents.
const maxWebhookBody = 1 << 20

// WebhookHandler accepts payment gateway webhooks and drives the crediting
// pipeline. A 2xx response tells the gateway to stop redelivering; a 5xx
// invites another attempt.
type WebhookHandler struct {
	crediting *usecase.CreditingService
	parsers   map[domain.Gateway]port.GatewayClient
	logger    *zap.Logger
}

// NewWebhookHandler builds a webhook handler over the registered gateway clients.
func NewWebhookHandler(crediting *usecase.CreditingService, clients []port.GatewayClient, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	parsers := make(map[domain.Gateway]port.GatewayClient, len(clients))
	for _, client := range clients {
		if client == nil {
			continue
		}
		parsers[client.Name()] = client
	}

	return &WebhookHandler{crediting: crediting, parsers: parsers, logger: logger}
}

// RegisterRoutes wires the webhook endpoints into the provided group.
func (h *WebhookHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/:gateway", h.Receive)
}

// Receive handles POST /webhooks/:gateway.
func (h *WebhookHandler) Receive(c *gin.Context) {
	gateway, err := domain.ParseGateway(c.Param("gateway"))
	if err != nil {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "unknown gateway"))
		return
	}

	parser, ok := h.parsers[gateway]
	if !ok {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "gateway not configured"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unreadable payload"))
		return
	}

	event, err := parser.ParseWebhook(payload)
	if err != nil {
		h.logger.Warn("malformed gateway webhook",
			zap.String("gateway", string(gateway)),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "malformed payload"))
		return
	}

	result, err := h.crediting.HandleGatewayEvent(c.Request.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrDuplicateTransaction):
			// Redelivery of a settled transaction; acknowledge so the
			// gateway stops retrying.
			c.JSON(http.StatusOK, WebhookResponse{
				Outcome:       string(usecase.OutcomeDuplicate),
				TransactionID: result.TransactionID,
				Message:       "transaction already processed",
			})
		case errors.Is(err, usecase.ErrVerificationFailed), errors.Is(err, usecase.ErrUnknownAccount):
			// Recorded as failed; a redelivery would reach the same verdict.
			c.JSON(http.StatusOK, WebhookResponse{
				Outcome:       string(usecase.OutcomeFailed),
				TransactionID: event.TransactionID,
				Message:       "verification failed",
			})
		case errors.Is(err, usecase.ErrUnknownGateway):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "gateway not configured"))
		default:
			// Store failure; a 5xx triggers gateway redelivery and the
			// pending record lets the retry converge.
			c.Error(err)
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "event processing failed"))
		}
		return
	}

	resp := WebhookResponse{
		Outcome:       string(result.Outcome),
		TransactionID: result.TransactionID,
	}
	if result.Outcome == usecase.OutcomeCredited {
		resp.Tier = string(result.Tier)
		resp.Points = result.Points
	}

	c.JSON(http.StatusOK, resp)
}
