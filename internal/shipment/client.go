// Package shipment предоставляет клиент для внешнего сервиса доставки.
// Сервис скидок не считает стоимость доставки сам: при возврате он лишь
// запрашивает у перевозчика сумму возврата за доставку и передаёт её дальше.
package shipment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом доставки.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент для обращения к сервису доставки по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type returnFeeRequest struct {
	SellerID                  int64 `json:"seller_id"`
	CustomerShippingAddressID int64 `json:"customer_shipping_address_id"`
}

type returnFeeResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    int64  `json:"data"`
}

// ReturnShippingFee запрашивает стоимость обратной доставки от покупателя
// к продавцу. Возвращаемая сумма — в целых единицах валюты.
func (c *Client) ReturnShippingFee(ctx context.Context, sellerID, customerShippingAddressID int64) (int64, error) {
	if c == nil || c.baseURL == "" {
		return 0, fmt.Errorf("shipment client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := base + "/api/shipments/return-shipping-fee"

	body, err := json.Marshal(returnFeeRequest{
		SellerID:                  sellerID,
		CustomerShippingAddressID: customerShippingAddressID,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result returnFeeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	if result.Code != 0 {
		return 0, fmt.Errorf("shipment service error: %s", result.Message)
	}

	return result.Data, nil
}
