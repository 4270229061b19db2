package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
)

const paystackChargeSuccess = "charge.success"

// PaystackClient verifies transactions against the Paystack API and parses
// Paystack webhook payloads into typed gateway events.
type PaystackClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewPaystackClient constructs a Paystack gateway client.
func NewPaystackClient(baseURL, secretKey string, timeout time.Duration, logger *zap.Logger) *PaystackClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &PaystackClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Name reports which gateway this client speaks for.
func (c *PaystackClient) Name() domain.Gateway {
	return domain.GatewayPaystack
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// ParseWebhook turns a raw Paystack webhook body into a typed event. Only
// the transaction reference is taken from the payload; everything else is
// re-fetched through verification.
func (c *PaystackClient) ParseWebhook(payload []byte) (domain.GatewayEvent, error) {
	var hook paystackWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return domain.GatewayEvent{}, fmt.Errorf("parse paystack webhook: %w", err)
	}

	if hook.Event == "" {
		return domain.GatewayEvent{}, fmt.Errorf("paystack webhook missing event type")
	}

	event := domain.GatewayEvent{
		Gateway:      domain.GatewayPaystack,
		Kind:         domain.EventUnrecognized,
		RawEventType: hook.Event,
		ClaimedEmail: hook.Data.Customer.Email,
		ReceivedAt:   c.now().UTC(),
	}

	if hook.Event != paystackChargeSuccess {
		return event, nil
	}

	if hook.Data.Reference == "" {
		return domain.GatewayEvent{}, fmt.Errorf("paystack charge event missing transaction reference")
	}

	event.Kind = domain.EventChargeCompleted
	event.TransactionID = hook.Data.Reference
	return event, nil
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata struct {
			Plan   string `json:"plan"`
			Points any    `json:"points"`
		} `json:"metadata"`
	} `json:"data"`
}

// VerifyTransaction asks Paystack what really happened to a transaction.
// Amount, currency, customer email, and the purchased tier all come from
// this response, never from the inbound webhook.
func (c *PaystackClient) VerifyTransaction(ctx context.Context, transactionID string) (*domain.Verification, error) {
	endpoint := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(transactionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create paystack verify request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute paystack verify request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read paystack verify response: %w", err)
	}

	var body paystackVerifyResponse
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil, fmt.Errorf("decode paystack verify response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("paystack verification rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", body.Message),
		)
		return &domain.Verification{
			Succeeded:     false,
			GatewayStatus: fmt.Sprintf("http %d: %s", resp.StatusCode, body.Message),
		}, nil
	}

	verification := &domain.Verification{
		Succeeded:     body.Status && body.Data.Status == "success",
		Amount:        body.Data.Amount,
		Currency:      body.Data.Currency,
		CustomerEmail: body.Data.Customer.Email,
		GatewayStatus: body.Data.Status,
	}

	if !verification.Succeeded {
		return verification, nil
	}

	tier, points, err := resolvePurchase(body.Data.Metadata.Plan, body.Data.Metadata.Points)
	if err != nil {
		return nil, fmt.Errorf("paystack transaction %s: %w", transactionID, err)
	}
	verification.Tier = tier
	verification.Points = points

	return verification, nil
}

// resolvePurchase maps gateway transaction metadata to a tier and point
// count. Shared by both gateway clients because both carry purchase details
// in free-form metadata fields, where the point count may arrive as a JSON
// number or a string.
func resolvePurchase(plan string, points any) (domain.PlanTier, int, error) {
	tier, err := domain.ParsePlanTier(plan)
	if err != nil {
		return "", 0, fmt.Errorf("purchase metadata: %w", err)
	}

	var count int
	switch v := points.(type) {
	case float64:
		count = int(v)
	case string:
		count, err = strconv.Atoi(v)
		if err != nil {
			return "", 0, fmt.Errorf("purchase metadata points %q not an integer: %w", v, err)
		}
	case nil:
		return "", 0, fmt.Errorf("purchase metadata missing points count")
	default:
		return "", 0, fmt.Errorf("purchase metadata points has unsupported type %T", points)
	}

	if count <= 0 {
		return "", 0, fmt.Errorf("purchase metadata points %d not positive", count)
	}

	return tier, count, nil
}

var _ port.GatewayClient = (*PaystackClient)(nil)
