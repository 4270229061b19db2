package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/core/domain"
	"github.com/verisafe/account-integrity/internal/core/port"
)

const (
	flutterwaveChargeCompleted = "charge.completed"
	flutterwaveStatusSuccess   = "successful"
)

// FlutterwaveClient verifies transactions against the Flutterwave API and
// parses Flutterwave webhook payloads into typed gateway events.
type FlutterwaveClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewFlutterwaveClient constructs a Flutterwave gateway client.
func NewFlutterwaveClient(baseURL, secretKey string, timeout time.Duration, logger *zap.Logger) *FlutterwaveClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &FlutterwaveClient{
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
func (c *FlutterwaveClient) Name() domain.Gateway {
	return domain.GatewayFlutterwave
}

type flutterwaveWebhook struct {
	Event string `json:"event"`
	Data  struct {
		ID       json.Number `json:"id"`
		Status   string      `json:"status"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// ParseWebhook turns a raw Flutterwave webhook body into a typed event.
// Bank-transfer charges arrive with a non-successful status while the
// transfer settles; those become pending events the pipeline acknowledges
// without calling the verification API.
func (c *FlutterwaveClient) ParseWebhook(payload []byte) (domain.GatewayEvent, error) {
	var hook flutterwaveWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return domain.GatewayEvent{}, fmt.Errorf("parse flutterwave webhook: %w", err)
	}

	if hook.Event == "" {
		return domain.GatewayEvent{}, fmt.Errorf("flutterwave webhook missing event type")
	}

	event := domain.GatewayEvent{
		Gateway:      domain.GatewayFlutterwave,
		Kind:         domain.EventUnrecognized,
		RawEventType: hook.Event,
		ClaimedEmail: hook.Data.Customer.Email,
		ReceivedAt:   c.now().UTC(),
	}

	if hook.Event != flutterwaveChargeCompleted {
		return event, nil
	}

	if hook.Data.ID.String() == "" {
		return domain.GatewayEvent{}, fmt.Errorf("flutterwave charge event missing transaction id")
	}

	event.TransactionID = hook.Data.ID.String()

	if hook.Data.Status != flutterwaveStatusSuccess {
		event.Kind = domain.EventTransferPending
		return event, nil
	}

	event.Kind = domain.EventChargeCompleted
	return event, nil
}

type flutterwaveVerifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
		Meta struct {
			Plan   string `json:"plan"`
			Points any    `json:"points"`
		} `json:"meta"`
	} `json:"data"`
}

// VerifyTransaction asks Flutterwave what really happened to a transaction.
func (c *FlutterwaveClient) VerifyTransaction(ctx context.Context, transactionID string) (*domain.Verification, error) {
	endpoint := fmt.Sprintf("%s/v3/transactions/%s/verify", c.baseURL, url.PathEscape(transactionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create flutterwave verify request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute flutterwave verify request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read flutterwave verify response: %w", err)
	}

	var body flutterwaveVerifyResponse
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil, fmt.Errorf("decode flutterwave verify response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("flutterwave verification rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", body.Message),
		)
		return &domain.Verification{
			Succeeded:     false,
			GatewayStatus: fmt.Sprintf("http %d: %s", resp.StatusCode, body.Message),
		}, nil
	}

	verification := &domain.Verification{
		Succeeded:     body.Status == "success" && body.Data.Status == flutterwaveStatusSuccess,
		Amount:        body.Data.Amount,
		Currency:      body.Data.Currency,
		CustomerEmail: body.Data.Customer.Email,
		GatewayStatus: body.Data.Status,
	}

	if !verification.Succeeded {
		return verification, nil
	}

	tier, points, err := resolvePurchase(body.Data.Meta.Plan, body.Data.Meta.Points)
	if err != nil {
		return nil, fmt.Errorf("flutterwave transaction %s: %w", transactionID, err)
	}
	verification.Tier = tier
	verification.Points = points

	return verification, nil
}

var _ port.GatewayClient = (*FlutterwaveClient)(nil)
