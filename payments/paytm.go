// Package payments holds the gateway clients used for wallet top-ups. Each
// gateway exposes Initiate to open an order upstream and Verify to read its
// terminal status; order bookkeeping itself lives in core.
package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/otpbuy/otpbuy/core"
)

// PaytmConfig carries the merchant credentials for the Paytm gateway.
type PaytmConfig struct {
	MID         string
	MerchantKey string
	Website     string
	BaseURL     string // e.g. https://securegw.paytm.in
	CallbackURL string
}

type Paytm struct {
	cfg PaytmConfig
	hc  *http.Client
}

func NewPaytm(cfg PaytmConfig, hc *http.Client) *Paytm {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://securegw.paytm.in"
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Paytm{cfg: cfg, hc: hc}
}

// PaytmOrder is what the client needs to render the payment screen.
type PaytmOrder struct {
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	TxnToken string  `json:"txnToken"`
	UPIURL   string  `json:"upiUrl"`
	QRURL    string  `json:"qrUrl"`
}

// sign computes the request signature over the serialized body.
func (p *Paytm) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.MerchantKey))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (p *Paytm) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", p.sign(body))
	resp, err := p.hc.Do(req)
	if err != nil {
		return fmt.Errorf("paytm %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paytm %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("paytm %s: status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("paytm %s: bad reply: %w", path, err)
	}
	return nil
}

// Initiate opens a transaction upstream and returns the token plus the UPI
// intent and QR links the client renders.
func (p *Paytm) Initiate(ctx context.Context, orderID string, amount float64) (*PaytmOrder, error) {
	reqBody := map[string]any{
		"mid":         p.cfg.MID,
		"websiteName": p.cfg.Website,
		"orderId":     orderID,
		"callbackUrl": p.cfg.CallbackURL,
		"txnAmount":   map[string]string{"value": fmt.Sprintf("%.2f", amount), "currency": "INR"},
	}
	var reply struct {
		Body struct {
			TxnToken   string `json:"txnToken"`
			ResultInfo struct {
				ResultStatus string `json:"resultStatus"`
				ResultMsg    string `json:"resultMsg"`
			} `json:"resultInfo"`
		} `json:"body"`
	}
	if err := p.post(ctx, "/theia/api/v1/initiateTransaction?mid="+p.cfg.MID+"&orderId="+orderID, reqBody, &reply); err != nil {
		return nil, err
	}
	if reply.Body.ResultInfo.ResultStatus != "S" {
		return nil, fmt.Errorf("paytm initiate: %s", reply.Body.ResultInfo.ResultMsg)
	}
	token := reply.Body.TxnToken
	return &PaytmOrder{
		OrderID:  orderID,
		Amount:   amount,
		TxnToken: token,
		UPIURL:   fmt.Sprintf("%s/theia/paymentPage?mid=%s&orderId=%s&txnToken=%s", p.cfg.BaseURL, p.cfg.MID, orderID, token),
		QRURL:    fmt.Sprintf("%s/theia/qr?mid=%s&orderId=%s&txnToken=%s", p.cfg.BaseURL, p.cfg.MID, orderID, token),
	}, nil
}

// Verify reads the transaction status. PENDING maps to the local pending
// state; anything the gateway calls TXN_SUCCESS or TXN_FAILURE is terminal.
func (p *Paytm) Verify(ctx context.Context, orderID string) (core.OrderStatus, string, error) {
	reqBody := map[string]any{"mid": p.cfg.MID, "orderId": orderID}
	var reply struct {
		Body struct {
			ResultInfo struct {
				ResultStatus string `json:"resultStatus"`
			} `json:"resultInfo"`
			TxnID      string `json:"txnId"`
			BankTxnID  string `json:"bankTxnId"`
			TxnAmount  string `json:"txnAmount"`
			OrderID    string `json:"orderId"`
			StatusCode string `json:"resultCode"`
		} `json:"body"`
	}
	if err := p.post(ctx, "/v3/order/status", reqBody, &reply); err != nil {
		return core.OrderPending, "", err
	}
	utr := reply.Body.BankTxnID
	if utr == "" {
		utr = reply.Body.TxnID
	}
	switch reply.Body.ResultInfo.ResultStatus {
	case "TXN_SUCCESS":
		return core.OrderSuccess, utr, nil
	case "TXN_FAILURE":
		return core.OrderFailure, utr, nil
	default:
		return core.OrderPending, "", nil
	}
}
