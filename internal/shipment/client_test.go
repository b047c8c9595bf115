package shipment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReturnShippingFee_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/shipments/return-shipping-fee" {
			t.Fatalf("path = %s, want /api/shipments/return-shipping-fee", r.URL.Path)
		}

		var req returnFeeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SellerID != 5 || req.CustomerShippingAddressID != 77 {
			t.Fatalf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(returnFeeResponse{Code: 0, Data: 3500}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fee, err := client.ReturnShippingFee(ctx, 5, 77)
	if err != nil {
		t.Fatalf("ReturnShippingFee error: %v", err)
	}
	if fee != 3500 {
		t.Fatalf("fee = %d, want 3500", fee)
	}
}

func TestReturnShippingFee_ServiceError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(returnFeeResponse{Code: 1, Message: "address not found"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.ReturnShippingFee(ctx, 5, 77); err == nil {
		t.Fatalf("expected error for non-zero response code")
	}
}

func TestReturnShippingFee_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.ReturnShippingFee(ctx, 5, 77); err == nil {
		t.Fatalf("expected error for status 502")
	}
}

func TestReturnShippingFee_NotConfigured(t *testing.T) {
	var client *Client

	if _, err := client.ReturnShippingFee(context.Background(), 5, 77); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
