package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"course-payment-service/internal/signature"
	"course-payment-service/internal/util"

	"go.uber.org/zap"
)

// Gateway is the slice of the payment provider the payment flow depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	VerifyPaymentSignature(orderID, paymentID, sig string) bool
	KeyID() string
	Mode() string
}

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	PaymentCapture bool              `json:"payment_capture"`
	Notes          map[string]string `json:"notes,omitempty"`
}

// Order mirrors the gateway's order entity. It is handed to the browser
// checkout as-is.
type Order struct {
	ID         string          `json:"id"`
	Entity     string          `json:"entity"`
	Amount     int64           `json:"amount"`
	AmountPaid int64           `json:"amount_paid"`
	AmountDue  int64           `json:"amount_due"`
	Currency   string          `json:"currency"`
	Receipt    string          `json:"receipt"`
	OfferID    *string         `json:"offer_id"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	Notes      json.RawMessage `json:"notes,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// APIError is returned for non-2xx gateway responses.
type APIError struct {
	StatusCode  int
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay: status %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// Modes derived from the key id prefix
const (
	ModeTest = "test"
	ModeLive = "live"
)

// RazorpayClient talks to the Razorpay REST API with basic auth. The key
// secret never leaves this struct.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRazorpayClient creates a client bound to one key pair
func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     util.GetLogger(),
	}
}

// KeyID returns the publishable key id
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

// Mode reports whether the configured key is a test or live key
func (c *RazorpayClient) Mode() string {
	return ModeFromKeyID(c.keyID)
}

// ModeFromKeyID classifies rzp_live_* keys as live and everything else as test.
func ModeFromKeyID(keyID string) string {
	if strings.HasPrefix(keyID, "rzp_live_") {
		return ModeLive
	}
	return ModeTest
}

// VerifyPaymentSignature checks a checkout callback signature with the key secret
func (c *RazorpayClient) VerifyPaymentSignature(orderID, paymentID, sig string) bool {
	return signature.VerifyPayment(orderID, paymentID, sig, c.keySecret)
}

// CreateOrder opens a gateway order
func (c *RazorpayClient) CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	ctx, span := util.StartSpan(ctx, "RazorpayClient.CreateOrder")
	defer span.End()

	start := time.Now()
	var order Order
	err := c.do(ctx, http.MethodPost, "/orders", req, &order)

	outcome := "success"
	if err != nil {
		outcome = "error"
		util.RecordError(span, err)
	}
	util.GatewayRequestLatency.WithLabelValues("create_order", outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}

	c.logger.Info("Gateway order created",
		zap.String("gateway_order_id", order.ID),
		zap.String("receipt", order.Receipt),
		zap.Int64("amount", order.Amount))
	return &order, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("razorpay request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read razorpay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode razorpay response: %w", err)
		}
	}
	return nil
}
