package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateOrder(t *testing.T) {
	var gotBody createOrderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			t.Errorf("path: got %s, want /orders", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Errorf("basic auth: got %s/%s", user, pass)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "order_abc123"})
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "key", "secret")
	id, err := c.CreateOrder(context.Background(), 46200, "INR", "ord-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "order_abc123" {
		t.Errorf("order id: got %s, want order_abc123", id)
	}
	if gotBody.Amount != 46200 {
		t.Errorf("amount: got %d, want 46200", gotBody.Amount)
	}
	if gotBody.Currency != "INR" {
		t.Errorf("currency: got %s, want INR", gotBody.Currency)
	}
}

func TestCreateOrder_EmptyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": ""})
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "key", "secret")
	_, err := c.CreateOrder(context.Background(), 100, "INR", "ord-1")
	if !errors.Is(err, ErrNoOrderID) {
		t.Fatalf("expected ErrNoOrderID, got: %v", err)
	}
}

func TestCreateOrder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "key", "secret")
	if _, err := c.CreateOrder(context.Background(), 100, "INR", "ord-1"); err == nil {
		t.Fatal("expected error for 502 response, got nil")
	}
}

func TestVerifySignature(t *testing.T) {
	c := NewHTTPClient("http://unused", "key", "secret")

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("order_abc|pay_def"))
	valid := hex.EncodeToString(mac.Sum(nil))

	if !c.VerifySignature("order_abc", "pay_def", valid) {
		t.Error("valid signature rejected")
	}
	if c.VerifySignature("order_abc", "pay_def", "deadbeef") {
		t.Error("invalid signature accepted")
	}
	if c.VerifySignature("order_abc", "pay_other", valid) {
		t.Error("signature for different payment accepted")
	}
}
