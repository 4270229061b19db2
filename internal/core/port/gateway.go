package port

import (
	"context"

	"github.com/verisafe/account-integrity/internal/core/domain"
)

// GatewayClient is the per-gateway collaborator contract: it parses raw
// webhook payloads into typed events at the boundary, and answers "what
// really happened" for a transaction id through the gateway's verification
// API. The pipeline trusts verification results only.
type GatewayClient interface {
	Name() domain.Gateway
	ParseWebhook(payload []byte) (domain.GatewayEvent, error)
	VerifyTransaction(ctx context.Context, transactionID string) (*domain.Verification, error)
}
