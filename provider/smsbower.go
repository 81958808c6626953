package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const smsbowerDefaultBaseURL = "https://smsbower.online/stubs/handler_api.php"

// smsBower speaks the sms-activate-style text protocol: replies are either
// "KEYWORD" or "KEYWORD:field:field". getAllStock is the one JSON action.
type smsBower struct {
	apiKey  string
	baseURL string
	hc      *http.Client
}

func newSMSBower(apiKey, baseURL string, hc *http.Client) *smsBower {
	if baseURL == "" {
		baseURL = smsbowerDefaultBaseURL
	}
	return &smsBower{apiKey: apiKey, baseURL: baseURL, hc: hc}
}

func (c *smsBower) call(ctx context.Context, action string, params url.Values) (string, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("action", action)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// decodeErr maps bare error keywords onto typed kinds.
func (c *smsBower) decodeErr(reply string) error {
	switch ErrorKind(reply) {
	case BadKey, BadAction, NoActivation, NoNumbers, NoBalance, EarlyCancelDenied:
		return &Error{Kind: ErrorKind(reply)}
	}
	return nil
}

func snippet(s string) string {
	if len(s) > 80 {
		return s[:80]
	}
	return s
}

func (c *smsBower) GetNumber(ctx context.Context, serviceCode string) (Activation, error) {
	reply, err := c.call(ctx, "getNumber", url.Values{"service": {serviceCode}})
	if err != nil {
		return Activation{}, err
	}
	if err := c.decodeErr(reply); err != nil {
		return Activation{}, err
	}
	// ACCESS_NUMBER:<id>:<phone>[:<cost>]
	parts := strings.Split(reply, ":")
	if len(parts) < 3 || parts[0] != "ACCESS_NUMBER" || parts[1] == "" || parts[2] == "" {
		return Activation{}, &ErrBadReply{Provider: KindSMSBower, Snippet: snippet(reply)}
	}
	a := Activation{ActivationID: parts[1], PhoneNumber: parts[2]}
	if len(parts) > 3 {
		if cost, err := strconv.ParseFloat(parts[3], 64); err == nil {
			a.Cost = cost
		}
	}
	return a, nil
}

func (c *smsBower) GetStatus(ctx context.Context, activationID string) (StatusReply, error) {
	reply, err := c.call(ctx, "getStatus", url.Values{"id": {activationID}})
	if err != nil {
		return StatusReply{}, err
	}
	if err := c.decodeErr(reply); err != nil {
		return StatusReply{}, err
	}
	switch {
	case reply == "STATUS_WAIT_CODE" || reply == "STATUS_WAIT_RETRY":
		return StatusReply{}, nil
	case reply == "ACCESS_CANCEL" || reply == "STATUS_CANCEL":
		return StatusReply{Cancelled: true}, nil
	case strings.HasPrefix(reply, "STATUS_OK:"):
		code := strings.TrimPrefix(reply, "STATUS_OK:")
		if code == "" {
			return StatusReply{}, &ErrBadReply{Provider: KindSMSBower, Snippet: snippet(reply)}
		}
		return StatusReply{HasOTP: true, Message: code}, nil
	}
	return StatusReply{}, &ErrBadReply{Provider: KindSMSBower, Snippet: snippet(reply)}
}

func (c *smsBower) CancelNumber(ctx context.Context, activationID string) error {
	reply, err := c.call(ctx, "setStatus", url.Values{"id": {activationID}, "status": {"8"}})
	if err != nil {
		return err
	}
	if err := c.decodeErr(reply); err != nil {
		return err
	}
	if reply == "ACCESS_CANCEL" {
		return nil
	}
	return &ErrBadReply{Provider: KindSMSBower, Snippet: snippet(reply)}
}

// Stock returns the suffix-indexed feed: {"vk_0": "1207", ...} where the _N
// suffix is an operator slot and counts arrive as strings.
func (c *smsBower) Stock(ctx context.Context) (Stock, error) {
	reply, err := c.call(ctx, "getAllStock", nil)
	if err != nil {
		return Stock{}, err
	}
	if err := c.decodeErr(reply); err != nil {
		return Stock{}, err
	}
	var feed map[string]string
	if err := json.Unmarshal([]byte(reply), &feed); err != nil {
		// Some deployments wrap the map in {"status":"success","stock":{...}}.
		var wrapped struct {
			Status string            `json:"status"`
			Stock  map[string]string `json:"stock"`
		}
		if jerr := json.Unmarshal([]byte(reply), &wrapped); jerr != nil || wrapped.Stock == nil {
			return Stock{}, &ErrBadReply{Provider: KindSMSBower, Snippet: snippet(reply)}
		}
		feed = wrapped.Stock
	}
	return Stock{Suffix: feed}, nil
}

var _ Client = (*smsBower)(nil)
