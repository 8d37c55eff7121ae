// Package gateway talks to the hosted payment provider. The core only needs
// two things from it: open a remote order for an amount, and verify the
// signature the provider sends back on its callback.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Errors returned by the gateway client.
var (
	ErrNoOrderID = errors.New("gateway returned no order id")
)

// Client is the narrow surface the order flow depends on. Satisfied by
// *HTTPClient; mocked in service tests.
type Client interface {
	// CreateOrder opens a remote payment order. Amount is in the gateway's
	// minor currency unit (e.g. paise for INR).
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (string, error)
	// VerifySignature checks the HMAC the gateway attaches to its payment
	// callback.
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	// Name identifies the provider on persisted payment records.
	Name() string
}

// HTTPClient implements Client against a Razorpay-compatible REST API.
type HTTPClient struct {
	baseURL   string
	keyID     string
	keySecret string
	name      string
	http      *http.Client
}

func NewHTTPClient(baseURL, keyID, keySecret string) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		name:      "razorpay",
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) Name() string { return c.name }

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (string, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amountMinorUnits,
		Currency: currency,
		Receipt:  receipt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal gateway order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway create order: status %d", resp.StatusCode)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if out.ID == "" {
		return "", ErrNoOrderID
	}
	return out.ID, nil
}

// VerifySignature recomputes HMAC-SHA256 over "orderID|paymentID" with the
// key secret and compares in constant time.
func (c *HTTPClient) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
