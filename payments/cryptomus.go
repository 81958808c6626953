package payments

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/otpbuy/otpbuy/core"
)

// CryptomusConfig carries the merchant credentials for the Cryptomus gateway.
type CryptomusConfig struct {
	MerchantID string
	APIKey     string
	BaseURL    string // e.g. https://api.cryptomus.com
	ReturnURL  string
}

type Cryptomus struct {
	cfg CryptomusConfig
	hc  *http.Client
}

func NewCryptomus(cfg CryptomusConfig, hc *http.Client) *Cryptomus {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cryptomus.com"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Cryptomus{cfg: cfg, hc: hc}
}

// sign is the Cryptomus request signature: md5(base64(body) + apiKey), hex.
func (c *Cryptomus) sign(body []byte) string {
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString(body) + c.cfg.APIKey))
	return hex.EncodeToString(sum[:])
}

func (c *Cryptomus) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", c.cfg.MerchantID)
	req.Header.Set("sign", c.sign(body))
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("cryptomus %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("cryptomus %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cryptomus %s: status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("cryptomus %s: bad reply: %w", path, err)
	}
	return nil
}

// Initiate opens an invoice and returns the hosted payment page URL.
func (c *Cryptomus) Initiate(ctx context.Context, orderID string, amount float64) (string, error) {
	reqBody := map[string]any{
		"amount":     fmt.Sprintf("%.2f", amount),
		"currency":   "USD",
		"order_id":   orderID,
		"url_return": c.cfg.ReturnURL,
	}
	var reply struct {
		State  int `json:"state"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/v1/payment", reqBody, &reply); err != nil {
		return "", err
	}
	if reply.State != 0 || reply.Result.URL == "" {
		return "", fmt.Errorf("cryptomus initiate: %s", reply.Message)
	}
	return reply.Result.URL, nil
}

// Verify reads the invoice status. Cryptomus reports "paid"/"paid_over" on
// settlement; cancellations and expiries are failures.
func (c *Cryptomus) Verify(ctx context.Context, orderID string) (core.OrderStatus, string, error) {
	reqBody := map[string]any{"order_id": orderID}
	var reply struct {
		State  int `json:"state"`
		Result struct {
			Status string `json:"status"`
			TxID   string `json:"txid"`
			UUID   string `json:"uuid"`
		} `json:"result"`
	}
	if err := c.post(ctx, "/v1/payment/info", reqBody, &reply); err != nil {
		return core.OrderPending, "", err
	}
	utr := reply.Result.TxID
	if utr == "" {
		utr = reply.Result.UUID
	}
	switch reply.Result.Status {
	case "paid", "paid_over":
		return core.OrderSuccess, utr, nil
	case "cancel", "fail", "system_fail", "wrong_amount":
		return core.OrderFailure, utr, nil
	default:
		return core.OrderPending, "", nil
	}
}
