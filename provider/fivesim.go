package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const fivesimDefaultBaseURL = "https://5sim.net"

// fiveSim speaks the 5sim JSON API with Bearer auth. Unlike smsbower, errors
// arrive as plain-text bodies on 4xx responses.
type fiveSim struct {
	apiKey  string
	baseURL string
	hc      *http.Client
}

func newFiveSim(apiKey, baseURL string, hc *http.Client) *fiveSim {
	if baseURL == "" {
		baseURL = fivesimDefaultBaseURL
	}
	return &fiveSim{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *fiveSim) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// decodeErr maps 5sim's text error bodies onto typed kinds.
func (c *fiveSim) decodeErr(status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusUnauthorized:
		return &Error{Kind: BadKey}
	case strings.EqualFold(text, "no free phones"):
		return &Error{Kind: NoNumbers}
	case strings.EqualFold(text, "not enough user balance"):
		return &Error{Kind: NoBalance}
	case strings.EqualFold(text, "order not found"), status == http.StatusNotFound:
		return &Error{Kind: NoActivation}
	case strings.EqualFold(text, "order has sms"), strings.EqualFold(text, "cannot cancel order"):
		return &Error{Kind: EarlyCancelDenied}
	}
	if status >= 400 {
		return fmt.Errorf("fivesim: http %d: %s", status, snippet(text))
	}
	return nil
}

type fivesimOrder struct {
	ID     json.Number `json:"id"`
	Phone  string      `json:"phone"`
	Price  float64     `json:"price"`
	Status string      `json:"status"`
	SMS    []struct {
		Text string `json:"text"`
		Code string `json:"code"`
	} `json:"sms"`
}

func (c *fiveSim) GetNumber(ctx context.Context, serviceCode string) (Activation, error) {
	// Service codes come from admin-edited catalog rows; escape them so a
	// stray "/" or "?" cannot rewrite the request.
	status, body, err := c.get(ctx, "/v1/user/buy/activation/any/any/"+url.PathEscape(serviceCode))
	if err != nil {
		return Activation{}, err
	}
	if err := c.decodeErr(status, body); err != nil {
		return Activation{}, err
	}
	var o fivesimOrder
	if err := json.Unmarshal(body, &o); err != nil || o.ID.String() == "" || o.Phone == "" {
		return Activation{}, &ErrBadReply{Provider: KindFiveSim, Snippet: snippet(string(body))}
	}
	return Activation{ActivationID: o.ID.String(), PhoneNumber: o.Phone, Cost: o.Price}, nil
}

func (c *fiveSim) GetStatus(ctx context.Context, activationID string) (StatusReply, error) {
	status, body, err := c.get(ctx, "/v1/user/check/"+url.PathEscape(activationID))
	if err != nil {
		return StatusReply{}, err
	}
	if err := c.decodeErr(status, body); err != nil {
		return StatusReply{}, err
	}
	var o fivesimOrder
	if err := json.Unmarshal(body, &o); err != nil || o.Status == "" {
		return StatusReply{}, &ErrBadReply{Provider: KindFiveSim, Snippet: snippet(string(body))}
	}
	switch o.Status {
	case "CANCELED", "BANNED", "TIMEOUT":
		return StatusReply{Cancelled: true}, nil
	case "RECEIVED", "FINISHED":
		if len(o.SMS) > 0 {
			msg := o.SMS[len(o.SMS)-1].Code
			if msg == "" {
				msg = o.SMS[len(o.SMS)-1].Text
			}
			return StatusReply{HasOTP: true, Message: msg}, nil
		}
		return StatusReply{}, nil
	case "PENDING":
		return StatusReply{}, nil
	}
	return StatusReply{}, &ErrBadReply{Provider: KindFiveSim, Snippet: snippet(string(body))}
}

func (c *fiveSim) CancelNumber(ctx context.Context, activationID string) error {
	status, body, err := c.get(ctx, "/v1/user/cancel/"+url.PathEscape(activationID))
	if err != nil {
		return err
	}
	return c.decodeErr(status, body)
}

// Stock returns the operator-indexed feed: {"vk_any": 312, ...}. The guest
// products endpoint reports per-product quantities; operators are folded into
// "<code>_any" keys.
func (c *fiveSim) Stock(ctx context.Context) (Stock, error) {
	status, body, err := c.get(ctx, "/v1/guest/products/any/any")
	if err != nil {
		return Stock{}, err
	}
	if err := c.decodeErr(status, body); err != nil {
		return Stock{}, err
	}
	var raw map[string]struct {
		Qty json.Number `json:"Qty"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Stock{}, &ErrBadReply{Provider: KindFiveSim, Snippet: snippet(string(body))}
	}
	feed := make(map[string]int, len(raw))
	for code, v := range raw {
		n, err := strconv.Atoi(v.Qty.String())
		if err != nil {
			continue
		}
		feed[code+"_any"] = n
	}
	return Stock{Operator: feed}, nil
}

var _ Client = (*fiveSim)(nil)
